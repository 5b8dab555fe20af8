package activity

import (
	"context"
	"time"

	"github.com/sidereusnuntius/feather/internal/db"
	"github.com/sidereusnuntius/feather/internal/domain"
)

// NoteOptions carries the optional properties of a locally authored note.
type NoteOptions struct {
	Summary     *string
	InReplyToID string
	Attachments []domain.Attachment
	Hashtags    []string
	Mentions    []*domain.Actor
}

// CreateLocalNote stores a note authored on this server and fans it out.
// Local notes carry no allocation; their URI is minted from their id.
func (m *Machine) CreateLocalNote(ctx context.Context, actor *domain.Actor, content string, opts NoteOptions) (*domain.Note, error) {
	note, err := m.db.InsertNote(ctx, db.NoteSeed{
		Published:   time.Now(),
		Actor:       actor,
		InReplyToID: opts.InReplyToID,
		Summary:     opts.Summary,
		Content:     content,
		Attachments: opts.Attachments,
		Hashtags:    opts.Hashtags,
		Mentions:    opts.Mentions,
	})
	if err != nil {
		return nil, err
	}

	if err = m.PostStatus(ctx, note); err != nil {
		return nil, err
	}
	return note, nil
}

// CreateLocalAnnounce stores a local actor's announce of a known note and
// fans it out.
func (m *Machine) CreateLocalAnnounce(ctx context.Context, actor *domain.Actor, object *domain.Note) (*domain.Announce, error) {
	announce, err := m.db.InsertAnnounce(ctx, db.AnnounceSeed{
		Published: time.Now(),
		Actor:     actor,
		Object:    object,
	})
	if err != nil {
		return nil, err
	}

	if err = m.PostStatus(ctx, announce); err != nil {
		return nil, err
	}
	return announce, nil
}
