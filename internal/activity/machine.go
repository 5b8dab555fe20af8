// Package activity ingests incoming activities on behalf of a verified
// actor. Each activity kind has its own constructor; the dispatcher routes a
// document to exactly one of them and enforces the checks every kind shares.
package activity

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/feather/internal/apdoc"
	"github.com/sidereusnuntius/feather/internal/config"
	"github.com/sidereusnuntius/feather/internal/conversions"
	"github.com/sidereusnuntius/feather/internal/db"
	"github.com/sidereusnuntius/feather/internal/domain"
	"github.com/sidereusnuntius/feather/internal/federation"
	"github.com/sidereusnuntius/feather/internal/queue"
	"github.com/sidereusnuntius/feather/internal/resolver"
)

type Machine struct {
	config   config.Configuration
	db       db.DB
	client   resolver.Client
	resolver *resolver.Resolver
	queue    queue.ApQueue
}

func New(config config.Configuration, database db.DB, client resolver.Client, res *resolver.Resolver, q queue.ApQueue) *Machine {
	return &Machine{
		config:   config,
		db:       database,
		client:   client,
		resolver: res,
		queue:    q,
	}
}

// Act processes one activity received from actor. A previously allocated
// activity id short-circuits to success, so redelivered activities are
// acknowledged without side effects.
func (m *Machine) Act(ctx context.Context, doc *apdoc.Document, actor *domain.Actor) error {
	uri, err := doc.ID(ctx)
	if err == nil && uri != "" {
		entity, err := m.db.SelectAllocatedURI(ctx, uri)
		if err != nil {
			return err
		}
		if entity != nil {
			log.Debug().Str("uri", uri).Msg("activity already processed")
			return nil
		}
	}

	if err := m.checkActor(ctx, doc, actor); err != nil {
		return err
	}

	types, err := doc.Type(ctx)
	if err != nil {
		return err
	}

	for _, t := range types {
		switch t {
		case "Delete":
			return m.DeleteFromDocument(ctx, doc, actor)
		case "Follow":
			_, err = m.FollowFromDocument(ctx, doc, actor)
			return err
		case "Like":
			_, err = m.LikeFromDocument(ctx, doc, actor)
			return err
		case "Undo":
			return m.UndoFromDocument(ctx, doc, actor)
		case "Announce":
			_, err = m.AnnounceFromDocument(ctx, doc, actor)
			return err
		case "Create":
			_, err = m.CreateFromDocument(ctx, doc, actor)
			return err
		}
	}
	return fmt.Errorf("%w: %v", federation.ErrUnsupported, types)
}

// checkActor rejects an activity whose own actor property names someone
// other than the actor that signed the request.
func (m *Machine) checkActor(ctx context.Context, doc *apdoc.Document, actor *domain.Actor) error {
	claimed, err := doc.Actor(ctx)
	if err != nil || claimed == nil {
		return err
	}

	claimedID, err := claimed.ID(ctx)
	if err != nil || claimedID == "" {
		return err
	}

	expected, err := conversions.ActorURI(m.config, ctx, actor)
	if err != nil {
		return err
	}
	if claimedID != expected.String() {
		return fmt.Errorf("%w: activity claims actor %s but was sent by %s",
			federation.ErrVerification, claimedID, expected)
	}
	return nil
}

// IngestNoteByURI dereferences iri and stores the note it describes. Used by
// the fetch queue to fill in forward references.
func (m *Machine) IngestNoteByURI(ctx context.Context, iri string) error {
	u, err := url.Parse(iri)
	if err != nil {
		return fmt.Errorf("%w: unparsable iri %q", federation.ErrFatal, iri)
	}

	doc := apdoc.New(m.client, iri, strings.ToLower(u.Host))
	_, err = m.NoteFromDocument(ctx, doc, nil)
	return err
}

// isPublic reports whether the to property addresses the public collection.
func isPublic(ctx context.Context, doc *apdoc.Document) (bool, error) {
	recipients, err := doc.To(ctx)
	if err != nil {
		return false, err
	}

	for _, recipient := range recipients {
		if recipient == nil {
			continue
		}
		id, err := recipient.ID(ctx)
		if err != nil {
			continue
		}
		if id == config.PublicAudience {
			return true, nil
		}
	}
	return false, nil
}
