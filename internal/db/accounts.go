package db

import (
	"context"

	"github.com/sidereusnuntius/feather/internal/domain"
)

// RemoteSeed carries the verified properties a resolved remote actor is
// persisted with. The three URIs are reserved in the allocation table in the
// same transaction as the account row.
type RemoteSeed struct {
	Username     string
	Host         string
	Name         string
	Summary      string
	URI          string
	InboxURI     string
	KeyURI       string
	PublicKeyPem string
}

type Accounts interface {
	// InsertLocalAccount creates an actor with a fresh keypair and a derived
	// password secret. A username collision surfaces as ErrConflict.
	InsertLocalAccount(ctx context.Context, username, password, name, summary string, admin bool) (*domain.Actor, error)

	// InsertRemoteAccount persists a resolved remote actor together with its
	// three URI allocations, atomically. A collision on any of the URIs or on
	// the username/host pair surfaces as ErrConflict with no partial rows.
	InsertRemoteAccount(ctx context.Context, seed RemoteSeed) (*domain.Actor, error)

	// SelectActorByUsernameAndHost looks an actor up by its acct pair; host is
	// empty for local actors.
	SelectActorByUsernameAndHost(ctx context.Context, username, host string) (*domain.Actor, error)
	SelectActorByID(ctx context.Context, id int64) (*domain.Actor, error)

	// RefreshRemoteAccount updates the mutable profile fields of a remote
	// account after a successful re-verification. The addressing URIs are
	// immutable; callers must reject a peer that moved them.
	RefreshRemoteAccount(ctx context.Context, actor *domain.Actor, name, summary, publicKeyPem string) error

	SelectRemoteAccountByURI(ctx context.Context, uri string) (*domain.RemoteAccount, error)
	SelectRemoteAccountByKeyURI(ctx context.Context, keyURI string) (*domain.RemoteAccount, error)
	SelectLocalAccountByActorID(ctx context.Context, id int64) (*domain.LocalAccount, error)
}
