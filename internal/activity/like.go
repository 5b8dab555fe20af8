package activity

import (
	"context"
	"fmt"

	"github.com/sidereusnuntius/feather/internal/apdoc"
	"github.com/sidereusnuntius/feather/internal/conversions"
	"github.com/sidereusnuntius/feather/internal/domain"
	"github.com/sidereusnuntius/feather/internal/federation"
)

// LikeFromDocument ingests a Like activity from actor, resolving the liked
// note first.
func (m *Machine) LikeFromDocument(ctx context.Context, doc *apdoc.Document, actor *domain.Actor) (*domain.Like, error) {
	ok, err := doc.HasType(ctx, "Like")
	if err != nil {
		return nil, err
	}
	if !ok {
		types, _ := doc.Type(ctx)
		return nil, fmt.Errorf("%w: expected Like, got %v", federation.ErrUnsupported, types)
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
		return nil, fmt.Errorf("%w: liked note is not available", federation.ErrMissingProperty)
	}

	return m.CreateLike(ctx, actor, note)
}

// CreateLike stores a like and, when a local actor likes a remote note,
// queues its delivery to the note's author.
func (m *Machine) CreateLike(ctx context.Context, actor *domain.Actor, note *domain.Note) (*domain.Like, error) {
	recipient, err := note.Status().Actor.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	like, err := m.db.InsertLike(ctx, actor, note)
	if err != nil {
		return nil, err
	}

	if actor.Local() && !recipient.Local() {
		activity, err := conversions.LikeToActivity(m.config, ctx, like)
		if err != nil {
			return nil, err
		}
		body, err := conversions.Serialize(activity)
		if err != nil {
			return nil, err
		}

		account, err := remoteAccountOf(ctx, recipient)
		if err != nil {
			return nil, err
		}
		if err = m.queue.Deliver(ctx, body, account.InboxURI.URI, actor); err != nil {
			return nil, err
		}
	}
	return like, nil
}
