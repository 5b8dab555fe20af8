package impl

import (
	"context"
	"database/sql"

	"github.com/sidereusnuntius/feather/internal/db"
	"github.com/sidereusnuntius/feather/internal/domain"
)

func (d *dbImpl) InsertFollow(ctx context.Context, actor, object *domain.Actor) (*domain.Follow, error) {
	follow := &domain.Follow{
		ActorID:  actor.ID,
		ObjectID: object.ID,
		Actor:    domain.NewRef(actor),
		Object:   domain.NewRef(object),
	}

	err := d.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO follows (actor_id, object_id) VALUES (?, ?)", actor.ID, object.ID)
		if err != nil {
			return err
		}
		if follow.ID, err = res.LastInsertId(); err != nil {
			return err
		}

		// A follow is confirmed the moment it exists, so the accept rides the
		// same transaction.
		_, err = tx.ExecContext(ctx,
			"INSERT INTO accepts (object_id) VALUES (?)", follow.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return follow, nil
}

func (d *dbImpl) DeleteFollowByActorAndObject(ctx context.Context, actor, object *domain.Actor) error {
	res, err := d.db.ExecContext(ctx,
		"DELETE FROM follows WHERE actor_id = ? AND object_id = ?", actor.ID, object.ID)
	if err != nil {
		return d.HandleError(err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return d.HandleError(err)
	}
	if affected == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (d *dbImpl) SelectFollowIncludingActorAndObjectByID(ctx context.Context, id int64) (*domain.Follow, error) {
	row := d.db.QueryRowContext(ctx,
		"SELECT actor_id, object_id FROM follows WHERE id = ?", id)

	follow := &domain.Follow{ID: id}
	if err := row.Scan(&follow.ActorID, &follow.ObjectID); err != nil {
		return nil, d.HandleError(err)
	}

	actor, err := d.SelectActorByID(ctx, follow.ActorID)
	if err != nil {
		return nil, err
	}
	object, err := d.SelectActorByID(ctx, follow.ObjectID)
	if err != nil {
		return nil, err
	}
	follow.Actor = domain.NewRef(actor)
	follow.Object = domain.NewRef(object)
	return follow, nil
}

func (d *dbImpl) SelectAcceptByFollowID(ctx context.Context, followID int64) (*domain.Accept, error) {
	row := d.db.QueryRowContext(ctx,
		"SELECT id FROM accepts WHERE object_id = ?", followID)

	accept := &domain.Accept{ObjectID: followID}
	if err := row.Scan(&accept.ID); err != nil {
		return nil, d.HandleError(err)
	}

	accept.Object = domain.DeferRef(func(ctx context.Context) (*domain.Follow, error) {
		return d.SelectFollowIncludingActorAndObjectByID(ctx, followID)
	})
	return accept, nil
}

func (d *dbImpl) SelectFollowersOf(ctx context.Context, object *domain.Actor) ([]*domain.Actor, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT actor_id FROM follows WHERE object_id = ?", object.ID)
	if err != nil {
		return nil, d.HandleError(err)
	}

	var ids []int64
	for rows.Next() {
		var id int64
		if err = rows.Scan(&id); err != nil {
			rows.Close()
			return nil, d.HandleError(err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		rows.Close()
		return nil, d.HandleError(err)
	}
	rows.Close()

	followers := make([]*domain.Actor, 0, len(ids))
	for _, id := range ids {
		follower, err := d.SelectActorByID(ctx, id)
		if err != nil {
			return nil, err
		}
		followers = append(followers, follower)
	}
	return followers, nil
}

func (d *dbImpl) InsertLike(ctx context.Context, actor *domain.Actor, object *domain.Note) (*domain.Like, error) {
	like := &domain.Like{
		ActorID:  actor.ID,
		ObjectID: object.Status().ID,
		Actor:    domain.NewRef(actor),
		Object:   domain.NewRef(object),
	}

	res, err := d.db.ExecContext(ctx,
		"INSERT INTO likes (actor_id, object_id) VALUES (?, ?)", like.ActorID, like.ObjectID)
	if err != nil {
		return nil, d.HandleError(err)
	}
	if like.ID, err = res.LastInsertId(); err != nil {
		return nil, d.HandleError(err)
	}
	return like, nil
}

func (d *dbImpl) DeleteLikeByActorAndObject(ctx context.Context, actor *domain.Actor, object *domain.Note) error {
	res, err := d.db.ExecContext(ctx,
		"DELETE FROM likes WHERE actor_id = ? AND object_id = ?", actor.ID, object.Status().ID)
	if err != nil {
		return d.HandleError(err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return d.HandleError(err)
	}
	if affected == 0 {
		return db.ErrNotFound
	}
	return nil
}
