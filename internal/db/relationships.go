package db

import (
	"context"

	"github.com/sidereusnuntius/feather/internal/domain"
)

type Relationships interface {
	// InsertFollow creates the follow and its confirming accept in one
	// transaction. A duplicate actor/object pair surfaces as ErrConflict.
	InsertFollow(ctx context.Context, actor, object *domain.Actor) (*domain.Follow, error)
	DeleteFollowByActorAndObject(ctx context.Context, actor, object *domain.Actor) error
	SelectFollowIncludingActorAndObjectByID(ctx context.Context, id int64) (*domain.Follow, error)
	SelectAcceptByFollowID(ctx context.Context, followID int64) (*domain.Accept, error)
	SelectFollowersOf(ctx context.Context, object *domain.Actor) ([]*domain.Actor, error)

	// InsertLike is idempotent at the database level; a duplicate pair
	// surfaces as ErrConflict.
	InsertLike(ctx context.Context, actor *domain.Actor, object *domain.Note) (*domain.Like, error)
	DeleteLikeByActorAndObject(ctx context.Context, actor *domain.Actor, object *domain.Note) error
}
