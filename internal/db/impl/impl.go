package impl

import (
	"context"
	"database/sql"
	"errors"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/feather/internal/config"
	"github.com/sidereusnuntius/feather/internal/db"
	"github.com/sidereusnuntius/feather/internal/notify"
)

type dbImpl struct {
	Config config.Configuration
	db     *sql.DB
	hub    *notify.Hub
}

func New(config config.Configuration, d *sql.DB, hub *notify.Hub) db.DB {
	return &dbImpl{
		Config: config,
		db:     d,
		hub:    hub,
	}
}

// HandleError takes a database error and returns a higher level error that hides the implementation details
// and can be more easily handled by the calling functions without doing type assertions, checking error codes and
// comparing to sentinel errors.
func (d *dbImpl) HandleError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return db.ErrNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return db.ErrAborted
	default:
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return db.ErrConflict
		}
		log.Error().Err(err).Send()
		return err
	}
}

func (d *dbImpl) WithTx(ctx context.Context, f func(tx *sql.Tx) error) (err error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return d.HandleError(err)
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		} else if err != nil {
			_ = tx.Rollback()
			err = d.HandleError(err)
		} else {
			err = d.HandleError(tx.Commit())
		}
	}()

	err = f(tx)
	return
}

// allocateURI reserves uri inside tx and returns the allocation id. A
// uniqueness violation bubbles up and is mapped to ErrConflict by WithTx.
func allocateURI(ctx context.Context, tx *sql.Tx, uri string) (int64, error) {
	res, err := tx.ExecContext(ctx, "INSERT INTO uris (uri, allocated) VALUES (?, TRUE)", uri)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// allocateOrReuseURI reserves uri, or returns the existing allocation when
// the same string was already reserved. Used for inbox URIs, which servers
// legitimately share between their actors.
func allocateOrReuseURI(ctx context.Context, tx *sql.Tx, uri string) (int64, error) {
	_, err := tx.ExecContext(ctx, "INSERT INTO uris (uri, allocated) VALUES (?, TRUE) ON CONFLICT (uri) DO NOTHING", uri)
	if err != nil {
		return 0, err
	}

	var id int64
	err = tx.QueryRowContext(ctx, "SELECT id FROM uris WHERE uri = ?", uri).Scan(&id)
	return id, err
}
