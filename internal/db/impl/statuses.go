package impl

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/feather/internal/db"
	"github.com/sidereusnuntius/feather/internal/domain"
)

func (d *dbImpl) InsertNote(ctx context.Context, seed db.NoteSeed) (*domain.Note, error) {
	status := &domain.Status{
		ID:        uuid.NewString(),
		Published: seed.Published,
		ActorID:   seed.Actor.ID,
		Actor:     domain.NewRef(seed.Actor),
	}

	note, err := domain.NewNote(status, &domain.Note{
		InReplyToID:  seed.InReplyToID,
		InReplyToURI: seed.InReplyToURI,
		Summary:      seed.Summary,
		Content:      seed.Content,
		Attachments:  domain.NewRef(seed.Attachments),
		Hashtags:     domain.NewRef(seed.Hashtags),
		Mentions:     domain.NewRef(seed.Mentions),
	})
	if err != nil {
		return nil, err
	}
	if err = note.Validate(); err != nil {
		return nil, err
	}

	err = d.WithTx(ctx, func(tx *sql.Tx) error {
		if err := d.insertStatusTx(ctx, tx, status, seed.URI); err != nil {
			return err
		}

		var summary sql.NullString
		if seed.Summary != nil {
			summary = sql.NullString{Valid: true, String: *seed.Summary}
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO notes (id, in_reply_to_id, in_reply_to_uri, summary, content)
			 VALUES (?, ?, ?, ?, ?)`,
			status.ID, nullString(seed.InReplyToID), nullString(seed.InReplyToURI), summary, seed.Content)
		if err != nil {
			return err
		}

		for _, a := range seed.Attachments {
			if _, err = tx.ExecContext(ctx,
				"INSERT INTO attachments (note_id, url, media_type) VALUES (?, ?, ?)",
				status.ID, a.URL, a.MediaType); err != nil {
				return err
			}
		}
		for _, name := range seed.Hashtags {
			if _, err = tx.ExecContext(ctx,
				"INSERT INTO hashtags (note_id, name) VALUES (?, ?)", status.ID, name); err != nil {
				return err
			}
		}
		for _, mention := range seed.Mentions {
			if _, err = tx.ExecContext(ctx,
				"INSERT INTO mentions (note_id, actor_id) VALUES (?, ?)", status.ID, mention.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return note, nil
}

func (d *dbImpl) InsertAnnounce(ctx context.Context, seed db.AnnounceSeed) (*domain.Announce, error) {
	status := &domain.Status{
		ID:        uuid.NewString(),
		Published: seed.Published,
		ActorID:   seed.Actor.ID,
		Actor:     domain.NewRef(seed.Actor),
	}

	announce, err := domain.NewAnnounce(status, &domain.Announce{
		ObjectID: seed.Object.Status().ID,
		Object:   domain.NewRef(seed.Object),
	})
	if err != nil {
		return nil, err
	}

	err = d.WithTx(ctx, func(tx *sql.Tx) error {
		if err := d.insertStatusTx(ctx, tx, status, seed.URI); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx,
			"INSERT INTO announces (id, object_id) VALUES (?, ?)",
			status.ID, announce.ObjectID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return announce, nil
}

func (d *dbImpl) insertStatusTx(ctx context.Context, tx *sql.Tx, status *domain.Status, uri string) error {
	var uriID sql.NullInt64
	if uri != "" {
		id, err := allocateURI(ctx, tx, uri)
		if err != nil {
			return err
		}
		uriID = sql.NullInt64{Valid: true, Int64: id}
		status.URI = &domain.URI{ID: id, URI: uri, Allocated: true}
	}

	_, err := tx.ExecContext(ctx,
		"INSERT INTO statuses (id, published, actor_id, uri_id) VALUES (?, ?, ?, ?)",
		status.ID, status.Published.Unix(), status.ActorID, uriID)
	return err
}

func (d *dbImpl) SelectNoteByID(ctx context.Context, id string) (*domain.Note, error) {
	_, note, _, err := d.selectStatusRow(ctx, id)
	if err != nil {
		return nil, err
	}
	if note == nil {
		return nil, db.ErrNotFound
	}
	return note, nil
}

func (d *dbImpl) SelectNoteByURI(ctx context.Context, uri *domain.URI) (*domain.Note, error) {
	var id string
	err := d.db.QueryRowContext(ctx,
		"SELECT id FROM statuses WHERE uri_id = ?", uri.ID).Scan(&id)
	if err != nil {
		return nil, d.HandleError(err)
	}
	return d.SelectNoteByID(ctx, id)
}

func (d *dbImpl) SelectStatusByID(ctx context.Context, id string) (*domain.Status, error) {
	status, _, _, err := d.selectStatusRow(ctx, id)
	return status, err
}

func (d *dbImpl) selectStatusRow(ctx context.Context, id string) (*domain.Status, *domain.Note, *domain.Announce, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT s.published, s.actor_id, s.uri_id, u.uri,
		        n.in_reply_to_id, n.in_reply_to_uri, n.summary, n.content,
		        a.object_id
		 FROM statuses s
		 LEFT JOIN uris u ON u.id = s.uri_id
		 LEFT JOIN notes n ON n.id = s.id
		 LEFT JOIN announces a ON a.id = s.id
		 WHERE s.id = ?`, id)

	var published int64
	var uriID sql.NullInt64
	var uri, inReplyToID, inReplyToURI, summary, content, announceObject sql.NullString
	status := &domain.Status{ID: id}
	err := row.Scan(&published, &status.ActorID, &uriID, &uri,
		&inReplyToID, &inReplyToURI, &summary, &content, &announceObject)
	if err != nil {
		return nil, nil, nil, d.HandleError(err)
	}

	status.Published = time.Unix(published, 0)
	if uriID.Valid {
		status.URI = &domain.URI{ID: uriID.Int64, URI: uri.String, Allocated: true}
	}
	status.Actor = domain.DeferRef(func(ctx context.Context) (*domain.Actor, error) {
		return d.SelectActorByID(ctx, status.ActorID)
	})

	switch {
	case content.Valid:
		var summaryPtr *string
		if summary.Valid {
			s := summary.String
			summaryPtr = &s
		}
		note, err := domain.NewNote(status, &domain.Note{
			InReplyToID:  inReplyToID.String,
			InReplyToURI: inReplyToURI.String,
			Summary:      summaryPtr,
			Content:      content.String,
			Attachments:  d.attachmentsRef(id),
			Hashtags:     d.hashtagsRef(id),
			Mentions:     d.mentionsRef(id),
		})
		return status, note, nil, err
	case announceObject.Valid:
		announce, err := domain.NewAnnounce(status, &domain.Announce{
			ObjectID: announceObject.String,
			Object: domain.DeferRef(func(ctx context.Context) (*domain.Note, error) {
				return d.SelectNoteByID(ctx, announceObject.String)
			}),
		})
		return status, nil, announce, err
	default:
		return nil, nil, nil, errors.New("status has no extension row")
	}
}

func (d *dbImpl) attachmentsRef(noteID string) *domain.Ref[[]domain.Attachment] {
	return domain.DeferRef(func(ctx context.Context) ([]domain.Attachment, error) {
		rows, err := d.db.QueryContext(ctx,
			"SELECT url, media_type FROM attachments WHERE note_id = ?", noteID)
		if err != nil {
			return nil, d.HandleError(err)
		}
		defer rows.Close()

		var attachments []domain.Attachment
		for rows.Next() {
			var a domain.Attachment
			if err = rows.Scan(&a.URL, &a.MediaType); err != nil {
				return nil, d.HandleError(err)
			}
			attachments = append(attachments, a)
		}
		return attachments, d.HandleError(rows.Err())
	})
}

func (d *dbImpl) hashtagsRef(noteID string) *domain.Ref[[]string] {
	return domain.DeferRef(func(ctx context.Context) ([]string, error) {
		rows, err := d.db.QueryContext(ctx,
			"SELECT name FROM hashtags WHERE note_id = ?", noteID)
		if err != nil {
			return nil, d.HandleError(err)
		}
		defer rows.Close()

		var names []string
		for rows.Next() {
			var name string
			if err = rows.Scan(&name); err != nil {
				return nil, d.HandleError(err)
			}
			names = append(names, name)
		}
		return names, d.HandleError(rows.Err())
	})
}

func (d *dbImpl) mentionsRef(noteID string) *domain.Ref[[]*domain.Actor] {
	return domain.DeferRef(func(ctx context.Context) ([]*domain.Actor, error) {
		rows, err := d.db.QueryContext(ctx,
			"SELECT actor_id FROM mentions WHERE note_id = ?", noteID)
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

		actors := make([]*domain.Actor, 0, len(ids))
		for _, id := range ids {
			actor, err := d.SelectActorByID(ctx, id)
			if err != nil {
				return nil, err
			}
			actors = append(actors, actor)
		}
		return actors, nil
	})
}

func (d *dbImpl) DeleteStatusByURIAndActor(ctx context.Context, uri *domain.URI, actor *domain.Actor) error {
	return d.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"DELETE FROM statuses WHERE uri_id = ? AND actor_id = ?", uri.ID, actor.ID)
		if err != nil {
			return err
		}

		affected, err := res.RowsAffected()
		if err != nil || affected == 0 {
			return err
		}

		// Release the allocation along with the resource it identified.
		_, err = tx.ExecContext(ctx, "DELETE FROM uris WHERE id = ?", uri.ID)
		return err
	})
}

func (d *dbImpl) InsertIntoInboxes(ctx context.Context, recipients []*domain.Actor, status *domain.Status) error {
	err := d.WithTx(ctx, func(tx *sql.Tx) error {
		for _, recipient := range recipients {
			_, err := tx.ExecContext(ctx,
				"INSERT INTO inbox_entries (actor_id, status_id) VALUES (?, ?) ON CONFLICT (actor_id, status_id) DO NOTHING",
				recipient.ID, status.ID)
			if err != nil {
				return err
			}

			_, err = tx.ExecContext(ctx,
				`DELETE FROM inbox_entries WHERE actor_id = ? AND position NOT IN (
				    SELECT position FROM inbox_entries WHERE actor_id = ?
				    ORDER BY position DESC LIMIT ?)`,
				recipient.ID, recipient.ID, d.Config.InboxSize)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	message, err := json.Marshal(map[string]any{
		"id":        status.ID,
		"published": status.Published.Unix(),
	})
	if err != nil {
		log.Error().Err(err).Str("status", status.ID).Msg("failed to encode inbox notification")
		return nil
	}
	for _, recipient := range recipients {
		d.hub.Publish(db.InboxChannel(recipient.ID), message)
	}
	return nil
}

func (d *dbImpl) SelectInbox(ctx context.Context, actorID int64, limit int) ([]*domain.Status, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT status_id FROM inbox_entries WHERE actor_id = ?
		 ORDER BY position DESC LIMIT ?`, actorID, limit)
	if err != nil {
		return nil, d.HandleError(err)
	}

	var ids []string
	for rows.Next() {
		var id string
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

	statuses := make([]*domain.Status, 0, len(ids))
	for _, id := range ids {
		status, err := d.SelectStatusByID(ctx, id)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{Valid: s != "", String: s}
}
