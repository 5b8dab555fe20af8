package activity

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/sidereusnuntius/feather/internal/apdoc"
	"github.com/sidereusnuntius/feather/internal/domain"
	"github.com/sidereusnuntius/feather/internal/federation"
)

// DeleteFromDocument removes the status allocated under the deleted object's
// id. Deleting something never seen here succeeds without effect, so peers
// can re-send tombstones freely.
func (m *Machine) DeleteFromDocument(ctx context.Context, doc *apdoc.Document, actor *domain.Actor) error {
	ok, err := doc.HasType(ctx, "Delete")
	if err != nil {
		return err
	}
	if !ok {
		types, _ := doc.Type(ctx)
		return fmt.Errorf("%w: expected Delete, got %v", federation.ErrUnsupported, types)
	}

	object, err := doc.Object(ctx)
	if err != nil {
		return err
	}
	if object == nil {
		return fmt.Errorf("%w: object", federation.ErrMissingProperty)
	}

	id, err := object.ID(ctx)
	if err != nil {
		return err
	}

	entity, err := m.db.SelectAllocatedURI(ctx, id)
	if err != nil {
		return err
	}
	if entity == nil {
		log.Debug().Str("uri", id).Msg("delete of unknown object")
		return nil
	}
	return m.db.DeleteStatusByURIAndActor(ctx, entity, actor)
}
