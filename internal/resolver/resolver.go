package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"codeberg.org/gruf/go-mutexes"
	"github.com/dgraph-io/ristretto"
	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	ristretto_store "github.com/eko/gocache/store/ristretto/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/sidereusnuntius/feather/internal/apdoc"
	"github.com/sidereusnuntius/feather/internal/config"
	"github.com/sidereusnuntius/feather/internal/db"
	"github.com/sidereusnuntius/feather/internal/domain"
	"github.com/sidereusnuntius/feather/internal/federation"
	"github.com/sidereusnuntius/feather/internal/utils"
	"github.com/sidereusnuntius/feather/internal/wellknown"
)

const securityContext = "https://w3id.org/security/v1"

var actorTypes = []string{"Application", "Group", "Organization", "Person", "Service"}

// Client is the outbound traffic the resolver needs: signed dereferences and
// WebFinger lookups.
type Client interface {
	apdoc.Fetcher
	Finger(ctx context.Context, host, resource string) (*wellknown.WebfingerResponse, error)
}

// Resolver discovers actors and turns untrusted identifiers into verified
// database rows. Discovery of the same identity is single-flighted through a
// per-key lock; verified results sit in an in-process cache until they
// expire.
type Resolver struct {
	config config.Configuration
	db     db.DB
	client Client
	cache  *cache.Cache[*domain.Actor]
	locks  *mutexes.MutexMap
}

func New(config config.Configuration, database db.DB, client Client) (*Resolver, error) {
	ristrettoCache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}

	locks := mutexes.MutexMap{}
	return &Resolver{
		config: config,
		db:     database,
		client: client,
		cache:  cache.New[*domain.Actor](ristretto_store.NewRistretto(ristrettoCache)),
		locks:  &locks,
	}, nil
}

// ActorByAcct resolves a username/host pair to a verified actor, fetching
// and persisting it when unknown. An empty host, or this server's own host,
// addresses a local actor and never leaves the database.
func (r *Resolver) ActorByAcct(ctx context.Context, username, host string) (*domain.Actor, error) {
	host = strings.ToLower(host)
	if host == "" || host == r.config.Host {
		return r.db.SelectActorByUsernameAndHost(ctx, username, "")
	}

	key := "acct:" + username + "@" + host
	if actor, err := r.cache.Get(ctx, key); err == nil && actor != nil {
		return actor, nil
	}

	unlock := r.locks.Lock(key)
	defer unlock()

	actor, err := r.db.SelectActorByUsernameAndHost(ctx, username, host)
	switch {
	case err == nil:
		actor, err = r.refreshIfStale(ctx, actor)
	case errors.Is(err, db.ErrNotFound):
		actor, err = r.discoverByAcct(ctx, username, host)
	}
	if err != nil {
		return nil, err
	}

	r.remember(ctx, key, actor)
	return actor, nil
}

// discoverByAcct runs the double WebFinger lookup: finger the acct, follow
// the self link, then finger the link target and require the same subject
// back. Only then is the actor document trusted enough to persist.
func (r *Resolver) discoverByAcct(ctx context.Context, username, host string) (*domain.Actor, error) {
	resource := "acct:" + url.PathEscape(username) + "@" + host
	firstFinger, err := r.finger(ctx, resource)
	if err != nil {
		return nil, err
	}

	_, subjectHost, err := firstFinger.Acct()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", federation.ErrVerification, err)
	}

	href := firstFinger.Self()
	if href == "" {
		return nil, fmt.Errorf("%w: webfinger response has no self link", federation.ErrVerification)
	}

	secondFinger, err := r.finger(ctx, href)
	if err != nil {
		return nil, err
	}
	if canonicalSubject(firstFinger.Subject) != canonicalSubject(secondFinger.Subject) {
		return nil, fmt.Errorf("%w: webfinger subject mismatch: %q vs %q",
			federation.ErrVerification, firstFinger.Subject, secondFinger.Subject)
	}

	doc := apdoc.New(r.client, href, apdoc.AnyHost)
	return r.createFromHostAndDocument(ctx, subjectHost, doc)
}

// ActorByKeyURI resolves the actor controlling keyURI. A previously
// allocated key URI answers from the database; otherwise the key document is
// fetched and its owner must claim exactly this key back.
func (r *Resolver) ActorByKeyURI(ctx context.Context, keyURI string) (*domain.Actor, error) {
	if actor, err := r.cache.Get(ctx, keyURI); err == nil && actor != nil {
		return actor, nil
	}

	unlock := r.locks.Lock(keyURI)
	defer unlock()

	account, err := r.db.SelectRemoteAccountByKeyURI(ctx, keyURI)
	if err == nil {
		return account.Owner(), nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}

	key := apdoc.New(r.client, keyURI, apdoc.AnyHost)
	owner, err := key.Owner(ctx)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, fmt.Errorf("%w: key owner", federation.ErrMissingProperty)
	}

	ownedKey, err := owner.PublicKey(ctx)
	if err != nil {
		return nil, err
	}
	if ownedKey == nil {
		return nil, fmt.Errorf("%w: owner's public key", federation.ErrMissingProperty)
	}

	ownedKeyURI, err := ownedKey.ID(ctx)
	if err != nil {
		return nil, err
	}
	if ownedKeyURI != keyURI {
		return nil, fmt.Errorf("%w: key %s is not claimed by its owner, who claims %s",
			federation.ErrVerification, keyURI, ownedKeyURI)
	}

	actor, err := r.ActorFromDocument(ctx, owner)
	if err != nil {
		return nil, err
	}

	r.remember(ctx, keyURI, actor)
	return actor, nil
}

// ActorFromDocument resolves an actor document to a persisted actor. Local
// URIs short-circuit to the database; known remote URIs answer from their
// allocation; anything else goes through WebFinger verification.
func (r *Resolver) ActorFromDocument(ctx context.Context, doc *apdoc.Document) (*domain.Actor, error) {
	uri, err := doc.ID(ctx)
	if err != nil {
		return nil, err
	}

	if username, ok := domain.LocalUsernameFromURI(r.config.Url, uri); ok {
		return r.db.SelectActorByUsernameAndHost(ctx, username, "")
	}

	account, err := r.db.SelectRemoteAccountByURI(ctx, uri)
	if err == nil {
		return account.Owner(), nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}

	firstFinger, err := r.finger(ctx, uri)
	if err != nil {
		return nil, err
	}

	_, subjectHost, err := firstFinger.Acct()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", federation.ErrVerification, err)
	}

	secondFinger, err := r.finger(ctx, canonicalSubject(firstFinger.Subject))
	if err != nil {
		return nil, err
	}

	var confirmed bool
	for _, link := range secondFinger.Links {
		if link.Rel == "self" && link.Href == uri {
			confirmed = true
			break
		}
	}
	if !confirmed {
		return nil, fmt.Errorf("%w: webfinger for %s does not link back to %s",
			federation.ErrVerification, firstFinger.Subject, uri)
	}

	return r.createFromHostAndDocument(ctx, subjectHost, doc)
}

// createFromHostAndDocument validates an actor document and persists it
// under the WebFinger-confirmed host. A concurrent resolution of the same
// actor loses the insert race and adopts the winner's row.
func (r *Resolver) createFromHostAndDocument(ctx context.Context, host string, doc *apdoc.Document) (*domain.Actor, error) {
	types, err := doc.Type(ctx)
	if err != nil {
		return nil, err
	}
	var isActor bool
	for _, t := range types {
		for _, allowed := range actorTypes {
			if t == allowed {
				isActor = true
			}
		}
	}
	if !isActor {
		return nil, fmt.Errorf("%w: expected an actor type, got %v", federation.ErrUnsupported, types)
	}

	seed, err := r.collectSeed(ctx, strings.ToLower(host), doc)
	if err != nil {
		return nil, err
	}

	actor, err := r.db.InsertRemoteAccount(ctx, *seed)
	if errors.Is(err, db.ErrConflict) {
		// Someone resolved the same actor first. Their row is as verified as
		// ours would have been.
		account, selectErr := r.db.SelectRemoteAccountByURI(ctx, seed.URI)
		if selectErr != nil {
			return nil, err
		}
		return account.Owner(), nil
	}
	return actor, err
}

// collectSeed gathers and validates the persisted properties of an actor
// document, fetching independent properties concurrently.
func (r *Resolver) collectSeed(ctx context.Context, host string, doc *apdoc.Document) (*db.RemoteSeed, error) {
	seed := db.RemoteSeed{Host: host}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		seed.URI, err = doc.ID(gctx)
		return
	})
	g.Go(func() error {
		inbox, err := doc.Inbox(gctx)
		if err != nil {
			return err
		}
		if inbox == nil {
			return fmt.Errorf("%w: inbox", federation.ErrMissingProperty)
		}
		seed.InboxURI, err = inbox.ID(gctx)
		return err
	})
	g.Go(func() (err error) {
		seed.Username, err = doc.PreferredUsername(gctx)
		if err == nil && seed.Username == "" {
			err = fmt.Errorf("%w: preferredUsername", federation.ErrMissingProperty)
		}
		return
	})
	g.Go(func() (err error) {
		seed.Name, err = doc.Name(gctx)
		return
	})
	g.Go(func() error {
		summary, err := doc.Summary(gctx)
		if err != nil {
			return err
		}
		if summary != nil {
			seed.Summary = *summary
		}
		return nil
	})
	g.Go(func() error {
		key, err := doc.PublicKey(gctx)
		if err != nil {
			return err
		}
		if key == nil {
			return fmt.Errorf("%w: publicKey", federation.ErrMissingProperty)
		}
		if key.Host() != doc.Host() {
			return fmt.Errorf("%w: key host %s mismatches actor host %s",
				federation.ErrVerification, key.Host(), doc.Host())
		}

		if seed.KeyURI, err = key.ID(gctx); err != nil {
			return err
		}
		if seed.PublicKeyPem, err = key.PublicKeyPem(gctx); err != nil {
			return err
		}
		if _, err = utils.ParsePublicKeyPem(seed.PublicKeyPem); err != nil {
			return fmt.Errorf("%w: unreadable public key: %v", federation.ErrVerification, err)
		}
		return nil
	})
	g.Go(func() error {
		ok, err := doc.HasContext(gctx, securityContext)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: security context", federation.ErrMissingProperty)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &seed, nil
}

// refreshIfStale re-verifies a remote actor whose last fetch is older than
// the configured horizon. A peer that is merely unreachable does not
// invalidate what we already verified.
func (r *Resolver) refreshIfStale(ctx context.Context, actor *domain.Actor) (*domain.Actor, error) {
	account, err := remoteAccount(ctx, actor)
	if err != nil {
		return nil, err
	}
	if time.Since(account.FetchedAt) < r.config.RefetchAfter {
		return actor, nil
	}

	iri, err := url.Parse(account.URI.URI)
	if err != nil {
		return nil, err
	}

	body, err := r.client.Get(ctx, iri)
	if err != nil {
		if errors.Is(err, federation.ErrTemporary) {
			log.Warn().Str("actor", actor.Acct()).Err(err).Msg("refresh postponed, peer unreachable")
			return actor, nil
		}
		return nil, err
	}

	doc := apdoc.New(r.client, body, strings.ToLower(iri.Host))
	seed, err := r.collectSeed(ctx, actor.Host, doc)
	if err != nil {
		return nil, err
	}
	if seed.URI != account.URI.URI || seed.KeyURI != account.KeyURI.URI {
		return nil, fmt.Errorf("%w: actor %s moved its identifiers", federation.ErrVerification, actor.Acct())
	}

	if err = r.db.RefreshRemoteAccount(ctx, actor, seed.Name, seed.Summary, seed.PublicKeyPem); err != nil {
		return nil, err
	}
	return r.db.SelectActorByID(ctx, actor.ID)
}

func (r *Resolver) finger(ctx context.Context, resource string) (*wellknown.WebfingerResponse, error) {
	var host string
	if strings.HasPrefix(resource, "acct:") {
		_, h, found := strings.Cut(strings.TrimPrefix(resource, "acct:"), "@")
		if !found {
			return nil, fmt.Errorf("%w: unparsable resource %q", federation.ErrFatal, resource)
		}
		host = h
	} else {
		u, err := url.Parse(resource)
		if err != nil {
			return nil, fmt.Errorf("%w: unparsable resource %q", federation.ErrFatal, resource)
		}
		host = u.Host
	}
	return r.client.Finger(ctx, host, resource)
}

func (r *Resolver) remember(ctx context.Context, key string, actor *domain.Actor) {
	err := r.cache.Set(ctx, key, actor,
		store.WithExpiration(r.config.ActorCacheTTL), store.WithCost(1))
	if err != nil {
		log.Debug().Err(err).Str("key", key).Msg("actor cache set failed")
	}
}

func canonicalSubject(subject string) string {
	if strings.HasPrefix(subject, "acct:") {
		return subject
	}
	return "acct:" + subject
}

func remoteAccount(ctx context.Context, actor *domain.Actor) (*domain.RemoteAccount, error) {
	account, err := actor.Account.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	remote, ok := account.(*domain.RemoteAccount)
	if !ok {
		return nil, fmt.Errorf("actor %s is not remote", actor.Acct())
	}
	return remote, nil
}
