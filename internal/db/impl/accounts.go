package impl

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sidereusnuntius/feather/internal/db"
	"github.com/sidereusnuntius/feather/internal/domain"
	"github.com/sidereusnuntius/feather/internal/utils"
	"golang.org/x/crypto/bcrypt"
)

func (d *dbImpl) InsertLocalAccount(ctx context.Context, username, password, name, summary string, admin bool) (*domain.Actor, error) {
	_, privPem, err := utils.GenerateKeysPem(d.Config.RsaKeySize)
	if err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	account := &domain.LocalAccount{
		Admin:         admin,
		PrivateKeyPem: privPem,
		PasswordHash:  hash,
	}
	actor := domain.NewLocalActor(username, name, summary, account)

	err = d.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO actors (username, host, name, summary) VALUES (?, NULL, ?, ?)",
			username, name, summary)
		if err != nil {
			return err
		}

		actor.ID, err = res.LastInsertId()
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			"INSERT INTO local_accounts (id, admin, private_key_pem, password_hash) VALUES (?, ?, ?, ?)",
			actor.ID, admin, privPem, hash)
		return err
	})
	if err != nil {
		return nil, err
	}
	return actor, nil
}

func (d *dbImpl) InsertRemoteAccount(ctx context.Context, seed db.RemoteSeed) (*domain.Actor, error) {
	account := &domain.RemoteAccount{
		PublicKeyPem: seed.PublicKeyPem,
		FetchedAt:    time.Now(),
	}
	actor := domain.NewRemoteActor(seed.Username, seed.Host, seed.Name, seed.Summary, account)

	err := d.WithTx(ctx, func(tx *sql.Tx) error {
		uriID, err := allocateURI(ctx, tx, seed.URI)
		if err != nil {
			return err
		}
		keyURIID, err := allocateURI(ctx, tx, seed.KeyURI)
		if err != nil {
			return err
		}
		inboxURIID, err := allocateOrReuseURI(ctx, tx, seed.InboxURI)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			"INSERT INTO actors (username, host, name, summary) VALUES (?, ?, ?, ?)",
			seed.Username, seed.Host, seed.Name, seed.Summary)
		if err != nil {
			return err
		}

		actor.ID, err = res.LastInsertId()
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO remote_accounts (id, uri_id, inbox_uri_id, key_uri_id, public_key_pem, fetched_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			actor.ID, uriID, inboxURIID, keyURIID, seed.PublicKeyPem, account.FetchedAt.Unix())
		if err != nil {
			return err
		}

		account.URI = &domain.URI{ID: uriID, URI: seed.URI, Allocated: true}
		account.KeyURI = &domain.URI{ID: keyURIID, URI: seed.KeyURI, Allocated: true}
		account.InboxURI = &domain.URI{ID: inboxURIID, URI: seed.InboxURI, Allocated: true}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return actor, nil
}

func (d *dbImpl) RefreshRemoteAccount(ctx context.Context, actor *domain.Actor, name, summary, publicKeyPem string) error {
	return d.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"UPDATE actors SET name = ?, summary = ? WHERE id = ?", name, summary, actor.ID)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			"UPDATE remote_accounts SET public_key_pem = ?, fetched_at = ? WHERE id = ?",
			publicKeyPem, time.Now().Unix(), actor.ID)
		return err
	})
}

func (d *dbImpl) SelectActorByUsernameAndHost(ctx context.Context, username, host string) (*domain.Actor, error) {
	var row *sql.Row
	if host == "" {
		row = d.db.QueryRowContext(ctx,
			"SELECT id, username, host, name, summary FROM actors WHERE username = ? AND host IS NULL", username)
	} else {
		row = d.db.QueryRowContext(ctx,
			"SELECT id, username, host, name, summary FROM actors WHERE username = ? AND host = ?", username, host)
	}
	return d.scanActor(row)
}

func (d *dbImpl) SelectActorByID(ctx context.Context, id int64) (*domain.Actor, error) {
	row := d.db.QueryRowContext(ctx,
		"SELECT id, username, host, name, summary FROM actors WHERE id = ?", id)
	return d.scanActor(row)
}

func (d *dbImpl) scanActor(row *sql.Row) (*domain.Actor, error) {
	var actor domain.Actor
	var host sql.NullString
	err := row.Scan(&actor.ID, &actor.Username, &host, &actor.Name, &actor.Summary)
	if err != nil {
		return nil, d.HandleError(err)
	}
	actor.Host = host.String

	actor.Account = domain.DeferRef(func(ctx context.Context) (domain.Account, error) {
		if actor.Host == "" {
			local, err := d.SelectLocalAccountByActorID(ctx, actor.ID)
			if err != nil {
				return nil, err
			}
			domain.BindAccount(&actor, local)
			return local, nil
		}

		remote, _, err := d.selectRemoteAccount(ctx, "remote_accounts.id = ?", actor.ID)
		if err != nil {
			return nil, err
		}
		domain.BindAccount(&actor, remote)
		return remote, nil
	})
	return &actor, nil
}

func (d *dbImpl) SelectLocalAccountByActorID(ctx context.Context, id int64) (*domain.LocalAccount, error) {
	row := d.db.QueryRowContext(ctx,
		"SELECT admin, private_key_pem, password_hash FROM local_accounts WHERE id = ?", id)

	var account domain.LocalAccount
	err := row.Scan(&account.Admin, &account.PrivateKeyPem, &account.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("%w: local account of actor %d", d.HandleError(err), id)
	}
	return &account, nil
}

func (d *dbImpl) SelectRemoteAccountByURI(ctx context.Context, uri string) (*domain.RemoteAccount, error) {
	account, actorID, err := d.selectRemoteAccount(ctx,
		"remote_accounts.uri_id = (SELECT id FROM uris WHERE uri = ?)", uri)
	if err != nil {
		return nil, err
	}
	return account, d.bindRemoteActor(ctx, account, actorID)
}

func (d *dbImpl) SelectRemoteAccountByKeyURI(ctx context.Context, keyURI string) (*domain.RemoteAccount, error) {
	account, actorID, err := d.selectRemoteAccount(ctx,
		"remote_accounts.key_uri_id = (SELECT id FROM uris WHERE uri = ?)", keyURI)
	if err != nil {
		return nil, err
	}
	return account, d.bindRemoteActor(ctx, account, actorID)
}

func (d *dbImpl) selectRemoteAccount(ctx context.Context, where string, arg any) (*domain.RemoteAccount, int64, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT remote_accounts.id, remote_accounts.public_key_pem, remote_accounts.fetched_at,
		        u.id, u.uri, i.id, i.uri, k.id, k.uri
		 FROM remote_accounts
		 JOIN uris u ON u.id = remote_accounts.uri_id
		 JOIN uris i ON i.id = remote_accounts.inbox_uri_id
		 JOIN uris k ON k.id = remote_accounts.key_uri_id
		 WHERE `+where, arg)

	var account domain.RemoteAccount
	var actorID, fetched int64
	var uri, inbox, key domain.URI
	err := row.Scan(&actorID, &account.PublicKeyPem, &fetched,
		&uri.ID, &uri.URI, &inbox.ID, &inbox.URI, &key.ID, &key.URI)
	if err != nil {
		return nil, 0, d.HandleError(err)
	}

	uri.Allocated, inbox.Allocated, key.Allocated = true, true, true
	account.URI, account.InboxURI, account.KeyURI = &uri, &inbox, &key
	account.FetchedAt = time.Unix(fetched, 0)
	return &account, actorID, nil
}

// bindRemoteActor loads the owning actor of a remote account fetched on its
// own and registers the inverse reference.
func (d *dbImpl) bindRemoteActor(ctx context.Context, account *domain.RemoteAccount, actorID int64) error {
	actor, err := d.SelectActorByID(ctx, actorID)
	if err != nil {
		return err
	}
	domain.BindAccount(actor, account)
	return nil
}
