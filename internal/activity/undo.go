package activity

import (
	"context"
	"fmt"

	"github.com/sidereusnuntius/feather/internal/apdoc"
	"github.com/sidereusnuntius/feather/internal/db"
	"github.com/sidereusnuntius/feather/internal/domain"
	"github.com/sidereusnuntius/feather/internal/federation"
)

// UndoFromDocument reverses an earlier activity of actor. Announces are
// deleted through their allocation, follows and likes by their pair of
// endpoints. An undo of anything else is an error, never a silent drop.
func (m *Machine) UndoFromDocument(ctx context.Context, doc *apdoc.Document, actor *domain.Actor) error {
	ok, err := doc.HasType(ctx, "Undo")
	if err != nil {
		return err
	}
	if !ok {
		types, _ := doc.Type(ctx)
		return fmt.Errorf("%w: expected Undo, got %v", federation.ErrUnsupported, types)
	}

	object, err := doc.Object(ctx)
	if err != nil {
		return err
	}
	if object == nil {
		return fmt.Errorf("%w: object", federation.ErrMissingProperty)
	}

	types, err := object.Type(ctx)
	if err != nil {
		return err
	}

	for _, t := range types {
		switch t {
		case "Announce":
			return m.undoAnnounce(ctx, object, actor)
		case "Follow":
			return m.undoFollow(ctx, object, actor)
		case "Like":
			return m.undoLike(ctx, object, actor)
		}
	}
	return fmt.Errorf("%w: undo of %v", federation.ErrUnsupported, types)
}

func (m *Machine) undoAnnounce(ctx context.Context, object *apdoc.Document, actor *domain.Actor) error {
	id, err := object.ID(ctx)
	if err != nil {
		return err
	}

	entity, err := m.db.SelectAllocatedURI(ctx, id)
	if err != nil {
		return err
	}
	if entity == nil {
		return fmt.Errorf("%w: announce %s", db.ErrNotFound, id)
	}
	return m.db.DeleteStatusByURIAndActor(ctx, entity, actor)
}

func (m *Machine) undoFollow(ctx context.Context, object *apdoc.Document, actor *domain.Actor) error {
	followed, err := object.Object(ctx)
	if err != nil {
		return err
	}
	if followed == nil {
		return fmt.Errorf("%w: undone follow's object", federation.ErrMissingProperty)
	}

	followedActor, err := m.resolver.ActorFromDocument(ctx, followed)
	if err != nil {
		return err
	}
	return m.db.DeleteFollowByActorAndObject(ctx, actor, followedActor)
}

func (m *Machine) undoLike(ctx context.Context, object *apdoc.Document, actor *domain.Actor) error {
	liked, err := object.Object(ctx)
	if err != nil {
		return err
	}
	if liked == nil {
		return fmt.Errorf("%w: undone like's object", federation.ErrMissingProperty)
	}

	note, err := m.NoteFromDocument(ctx, liked, nil)
	if err != nil {
		return err
	}
	if note == nil {
		return fmt.Errorf("%w: liked note is not available", federation.ErrMissingProperty)
	}
	return m.db.DeleteLikeByActorAndObject(ctx, actor, note)
}
