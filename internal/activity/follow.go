package activity

import (
	"context"
	"fmt"

	"github.com/sidereusnuntius/feather/internal/apdoc"
	"github.com/sidereusnuntius/feather/internal/conversions"
	"github.com/sidereusnuntius/feather/internal/domain"
	"github.com/sidereusnuntius/feather/internal/federation"
)

// FollowFromDocument ingests a Follow activity from actor, resolving the
// followed actor first.
func (m *Machine) FollowFromDocument(ctx context.Context, doc *apdoc.Document, actor *domain.Actor) (*domain.Follow, error) {
	ok, err := doc.HasType(ctx, "Follow")
	if err != nil {
		return nil, err
	}
	if !ok {
		types, _ := doc.Type(ctx)
		return nil, fmt.Errorf("%w: expected Follow, got %v", federation.ErrUnsupported, types)
	}

	object, err := doc.Object(ctx)
	if err != nil {
		return nil, err
	}
	if object == nil {
		return nil, fmt.Errorf("%w: object", federation.ErrMissingProperty)
	}

	objectActor, err := m.resolver.ActorFromDocument(ctx, object)
	if err != nil {
		return nil, err
	}

	return m.CreateFollow(ctx, actor, objectActor)
}

// CreateFollow stores a follow with its confirming accept and queues the
// deliveries the endpoints call for: the follow itself when a local actor
// follows a remote one, the accept when a remote actor follows a local one.
func (m *Machine) CreateFollow(ctx context.Context, actor, object *domain.Actor) (*domain.Follow, error) {
	follow, err := m.db.InsertFollow(ctx, actor, object)
	if err != nil {
		return nil, err
	}

	if actor.Local() && !object.Local() {
		if err = m.postFollow(ctx, follow, actor, object); err != nil {
			return nil, err
		}
	}
	if !actor.Local() && object.Local() {
		if err = m.postAccept(ctx, follow, actor, object); err != nil {
			return nil, err
		}
	}
	return follow, nil
}

func (m *Machine) postFollow(ctx context.Context, follow *domain.Follow, actor, object *domain.Actor) error {
	activity, err := conversions.FollowToActivity(m.config, ctx, follow)
	if err != nil {
		return err
	}
	body, err := conversions.Serialize(activity)
	if err != nil {
		return err
	}

	account, err := remoteAccountOf(ctx, object)
	if err != nil {
		return err
	}
	return m.queue.Deliver(ctx, body, account.InboxURI.URI, actor)
}

func (m *Machine) postAccept(ctx context.Context, follow *domain.Follow, actor, object *domain.Actor) error {
	accept, err := m.db.SelectAcceptByFollowID(ctx, follow.ID)
	if err != nil {
		return err
	}

	activity, err := conversions.AcceptToActivity(m.config, ctx, accept)
	if err != nil {
		return err
	}
	body, err := conversions.Serialize(activity)
	if err != nil {
		return err
	}

	account, err := remoteAccountOf(ctx, actor)
	if err != nil {
		return err
	}
	return m.queue.Deliver(ctx, body, account.InboxURI.URI, object)
}

func remoteAccountOf(ctx context.Context, actor *domain.Actor) (*domain.RemoteAccount, error) {
	account, err := actor.Account.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	remote, ok := account.(*domain.RemoteAccount)
	if !ok {
		return nil, fmt.Errorf("%w: actor %s has no remote account", federation.ErrVerification, actor.Acct())
	}
	return remote, nil
}
