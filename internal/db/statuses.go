package db

import (
	"context"
	"strconv"
	"time"

	"github.com/sidereusnuntius/feather/internal/domain"
)

// InboxChannel names the pub/sub channel carrying a recipient's live inbox
// events.
func InboxChannel(actorID int64) string {
	return "inbox:" + strconv.FormatInt(actorID, 10)
}

// NoteSeed is everything needed to persist a note and its status in one
// transaction. URI is empty for purely local notes; when set it is allocated
// alongside the status row.
type NoteSeed struct {
	Published    time.Time
	Actor        *domain.Actor
	URI          string
	InReplyToID  string
	InReplyToURI string
	Summary      *string
	Content      string
	Attachments  []domain.Attachment
	Hashtags     []string
	Mentions     []*domain.Actor
}

// AnnounceSeed is everything needed to persist an announce and its status.
type AnnounceSeed struct {
	Published time.Time
	Actor     *domain.Actor
	URI       string
	Object    *domain.Note
}

type Statuses interface {
	// InsertNote persists seed atomically: status row, note row, tag rows and,
	// when seed.URI is set, the URI allocation. A URI collision surfaces as
	// ErrConflict with nothing persisted.
	InsertNote(ctx context.Context, seed NoteSeed) (*domain.Note, error)

	// InsertAnnounce persists seed the same way InsertNote does.
	InsertAnnounce(ctx context.Context, seed AnnounceSeed) (*domain.Announce, error)

	SelectNoteByID(ctx context.Context, id string) (*domain.Note, error)

	// SelectNoteByURI returns the note persisted under an allocated URI.
	SelectNoteByURI(ctx context.Context, uri *domain.URI) (*domain.Note, error)
	SelectStatusByID(ctx context.Context, id string) (*domain.Status, error)

	// DeleteStatusByURIAndActor removes the status allocated under uri if it
	// is attributed to actor, releasing the allocation. A status owned by a
	// different actor is left untouched.
	DeleteStatusByURIAndActor(ctx context.Context, uri *domain.URI, actor *domain.Actor) error

	// InsertIntoInboxes appends status to every recipient's inbox, prunes each
	// past the configured bound and publishes a notification per recipient.
	// The whole batch is one transaction; a failure rolls all of it back.
	InsertIntoInboxes(ctx context.Context, recipients []*domain.Actor, status *domain.Status) error

	// SelectInbox returns up to limit of actorID's inbox statuses, most
	// recent first.
	SelectInbox(ctx context.Context, actorID int64, limit int) ([]*domain.Status, error)
}
