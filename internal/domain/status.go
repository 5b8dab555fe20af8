package domain

import (
	"errors"
	"time"
)

// ErrAlreadyExtended is returned when a second extension is attached to a
// status.
var ErrAlreadyExtended = errors.New("status already has an extension")

// ErrEmptySummary rejects a note whose summary is present but empty.
var ErrEmptySummary = errors.New("summary empty")

// Status is the common base of anything with a timeline position. Exactly
// one of Note or Announce extends it; the extension is fixed at
// construction.
type Status struct {
	ID        string
	Published time.Time
	ActorID   int64
	Actor     *Ref[*Actor]
	// URI is set only when the status is remote or explicitly addressed.
	URI *URI

	ext Extension
}

// Extension is the Note-or-Announce side of a status.
type Extension interface {
	Status() *Status
	TypeName() string
}

func (s *Status) Extension() Extension { return s.ext }

func (s *Status) attach(e Extension) error {
	if s.ext != nil {
		return ErrAlreadyExtended
	}
	s.ext = e
	return nil
}

// Attachment is a media document attached to a note. Transcoding and object
// storage happen outside the engine; only the reference is kept.
type Attachment struct {
	URL       string
	MediaType string
}

// Note is a piece of authored content.
type Note struct {
	status *Status
	// InReplyToID is set when the parent status is known locally;
	// InReplyToURI keeps a forward reference to a not-yet-fetched thread.
	InReplyToID  string
	InReplyToURI string
	// Summary is nil when absent. An explicitly empty summary is invalid.
	Summary     *string
	Content     string
	Attachments *Ref[[]Attachment]
	Hashtags    *Ref[[]string]
	Mentions    *Ref[[]*Actor]
}

func (n *Note) Status() *Status  { return n.status }
func (n *Note) TypeName() string { return "Note" }

func (n *Note) Validate() error {
	if n.Summary != nil && *n.Summary == "" {
		return ErrEmptySummary
	}
	return nil
}

// NewNote attaches a note extension to status.
func NewNote(status *Status, note *Note) (*Note, error) {
	if err := status.attach(note); err != nil {
		return nil, err
	}
	note.status = status
	return note, nil
}

// Announce is a repetition of a note, carrying its own timeline position.
type Announce struct {
	status   *Status
	ObjectID string
	Object   *Ref[*Note]
}

func (a *Announce) Status() *Status  { return a.status }
func (a *Announce) TypeName() string { return "Announce" }

// NewAnnounce attaches an announce extension to status.
func NewAnnounce(status *Status, announce *Announce) (*Announce, error) {
	if err := status.attach(announce); err != nil {
		return nil, err
	}
	announce.status = status
	return announce, nil
}
