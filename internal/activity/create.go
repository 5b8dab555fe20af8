package activity

import (
	"context"
	"fmt"

	"github.com/sidereusnuntius/feather/internal/apdoc"
	"github.com/sidereusnuntius/feather/internal/conversions"
	"github.com/sidereusnuntius/feather/internal/domain"
	"github.com/sidereusnuntius/feather/internal/federation"
)

// CreateFromDocument ingests a Create activity. The wrapped object's own
// attribution, when present, must name the acting actor; the object is then
// stored as if that actor authored it directly.
func (m *Machine) CreateFromDocument(ctx context.Context, doc *apdoc.Document, actor *domain.Actor) (*domain.Note, error) {
	ok, err := doc.HasType(ctx, "Create")
	if err != nil {
		return nil, err
	}
	if !ok {
		types, _ := doc.Type(ctx)
		return nil, fmt.Errorf("%w: expected Create, got %v", federation.ErrUnsupported, types)
	}

	object, err := doc.Object(ctx)
	if err != nil {
		return nil, err
	}
	if object == nil {
		return nil, fmt.Errorf("%w: object", federation.ErrMissingProperty)
	}

	claimed, err := object.AttributedTo(ctx)
	if err != nil {
		return nil, err
	}
	if claimed != nil {
		claimedID, err := claimed.ID(ctx)
		if err != nil {
			return nil, err
		}

		expected, err := conversions.ActorURI(m.config, ctx, actor)
		if err != nil {
			return nil, err
		}
		if claimedID != "" && claimedID != expected.String() {
			return nil, fmt.Errorf("%w: object attributed to %s but created by %s",
				federation.ErrVerification, claimedID, expected)
		}
	}

	return m.NoteFromDocument(ctx, object, actor)
}
