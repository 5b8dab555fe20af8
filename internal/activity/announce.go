package activity

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/sidereusnuntius/feather/internal/apdoc"
	"github.com/sidereusnuntius/feather/internal/db"
	"github.com/sidereusnuntius/feather/internal/domain"
	"github.com/sidereusnuntius/feather/internal/federation"
)

// AnnounceFromDocument ingests an Announce activity, storing the announced
// note first when it is unknown. A non-public announce resolves to nil with
// no error.
func (m *Machine) AnnounceFromDocument(ctx context.Context, doc *apdoc.Document, actor *domain.Actor) (*domain.Announce, error) {
	ok, err := doc.HasType(ctx, "Announce")
	if err != nil {
		return nil, err
	}
	if !ok {
		types, _ := doc.Type(ctx)
		return nil, fmt.Errorf("%w: expected Announce, got %v", federation.ErrUnsupported, types)
	}

	published, err := doc.Published(ctx)
	if err != nil {
		return nil, err
	}
	if published.IsZero() {
		return nil, fmt.Errorf("%w: published", federation.ErrMissingProperty)
	}

	public, err := isPublic(ctx, doc)
	if err != nil {
		return nil, err
	}
	if !public {
		log.Debug().Msg("dropping non-public announce")
		return nil, nil
	}

	object, err := doc.Object(ctx)
	if err != nil {
		return nil, err
	}
	if object == nil {
		return nil, fmt.Errorf("%w: object", federation.ErrMissingProperty)
	}

	note, err := m.NoteFromDocument(ctx, object, nil)
	if err != nil {
		return nil, err
	}
	if note == nil {
		return nil, nil
	}

	uri, err := doc.ID(ctx)
	if err != nil {
		uri = ""
	}

	announce, err := m.db.InsertAnnounce(ctx, db.AnnounceSeed{
		Published: published,
		Actor:     actor,
		URI:       uri,
		Object:    note,
	})
	if err != nil {
		return nil, err
	}

	if err = m.PostStatus(ctx, announce); err != nil {
		return nil, err
	}
	return announce, nil
}
