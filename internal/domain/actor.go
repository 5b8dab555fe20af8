package domain

import (
	"time"
)

// Actor is a federation identity. Host is empty for actors originated by
// this server and holds the verified origin host for remote ones; the
// distinction is fixed at creation and determines which account type the
// actor owns.
type Actor struct {
	ID       int64
	Username string
	Host     string
	Name     string
	Summary  string
	Account  *Ref[Account]
}

func (a *Actor) Local() bool {
	return a.Host == ""
}

// Acct renders the username[@host] pair used in WebFinger subjects.
func (a *Actor) Acct() string {
	if a.Host == "" {
		return a.Username
	}
	return a.Username + "@" + a.Host
}

// Account is the single extension an Actor owns: exactly one of
// LocalAccount or RemoteAccount.
type Account interface {
	Owner() *Actor
}

// LocalAccount holds the key material and authentication secrets of an
// actor originated by this server. Created only by local signup.
type LocalAccount struct {
	actor         *Actor
	Admin         bool
	PrivateKeyPem string
	PasswordHash  []byte
}

func (a *LocalAccount) Owner() *Actor { return a.actor }

// RemoteAccount holds the verified addressing and key material of an actor
// on another server. Created only by successful resolution.
type RemoteAccount struct {
	actor        *Actor
	URI          *URI
	InboxURI     *URI
	KeyURI       *URI
	PublicKeyPem string
	FetchedAt    time.Time
}

func (a *RemoteAccount) Owner() *Actor { return a.actor }

// NewLocalActor links a fresh local actor with its account, setting the
// inverse reference on both sides.
func NewLocalActor(username, name, summary string, account *LocalAccount) *Actor {
	actor := &Actor{
		Username: username,
		Name:     name,
		Summary:  summary,
	}
	account.actor = actor
	actor.Account = NewRef[Account](account)
	return actor
}

// NewRemoteActor links a fresh remote actor with its account, setting the
// inverse reference on both sides.
func NewRemoteActor(username, host, name, summary string, account *RemoteAccount) *Actor {
	actor := &Actor{
		Username: username,
		Host:     host,
		Name:     name,
		Summary:  summary,
	}
	account.actor = actor
	actor.Account = NewRef[Account](account)
	return actor
}

// BindAccount attaches an account loaded separately from its actor, keeping
// both directions of the relation consistent.
func BindAccount(actor *Actor, account Account) {
	switch a := account.(type) {
	case *LocalAccount:
		a.actor = actor
	case *RemoteAccount:
		a.actor = actor
	}
	if actor.Account == nil {
		actor.Account = NewRef(account)
	} else {
		actor.Account.Set(account)
	}
}
