package activity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/sidereusnuntius/feather/internal/apdoc"
	"github.com/sidereusnuntius/feather/internal/db"
	"github.com/sidereusnuntius/feather/internal/domain"
	"github.com/sidereusnuntius/feather/internal/federation"
)

// NoteFromDocument resolves a note document to a stored note, creating it
// when unknown. attributedTo, when non-nil, overrides the document's own
// attribution. A non-public note resolves to nil with no error.
func (m *Machine) NoteFromDocument(ctx context.Context, doc *apdoc.Document, attributedTo *domain.Actor) (*domain.Note, error) {
	uri, err := doc.ID(ctx)
	if err == nil && uri != "" {
		note, err := m.resolveLocalNoteByURI(ctx, uri)
		if err != nil || note != nil {
			return note, err
		}

		entity, err := m.db.SelectAllocatedURI(ctx, uri)
		if err != nil {
			return nil, err
		}
		if entity != nil {
			return m.db.SelectNoteByURI(ctx, entity)
		}
	}

	return m.createNoteFromDocument(ctx, doc, attributedTo)
}

// resolveLocalNoteByURI answers URIs minted by this server from the
// database, verifying that the addressed username matches the note's actual
// author. Returns nil when uri is not local or names nothing.
func (m *Machine) resolveLocalNoteByURI(ctx context.Context, uri string) (*domain.Note, error) {
	username, id, ok := domain.LocalStatusFromURI(m.config.Url, uri)
	if !ok {
		return nil, nil
	}

	note, err := m.db.SelectNoteByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	actor, err := note.Status().Actor.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	if actor.Acct() != username {
		return nil, nil
	}
	return note, nil
}

func (m *Machine) createNoteFromDocument(ctx context.Context, doc *apdoc.Document, attributedTo *domain.Actor) (*domain.Note, error) {
	ok, err := doc.HasType(ctx, "Note")
	if err != nil {
		return nil, err
	}
	if !ok {
		types, _ := doc.Type(ctx)
		return nil, fmt.Errorf("%w: expected Note, got %v", federation.ErrUnsupported, types)
	}

	var (
		uri          string
		published    time.Time
		public       bool
		inReplyToID  string
		inReplyToURI string
		summary      *string
		content      string
		attachments  []domain.Attachment
		hashtags     []string
		mentions     []*domain.Actor
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		uri, err = doc.ID(gctx)
		if errors.Is(err, federation.ErrMissingProperty) {
			err = nil
		}
		return
	})
	g.Go(func() (err error) {
		published, err = doc.Published(gctx)
		if err == nil && published.IsZero() {
			err = fmt.Errorf("%w: published", federation.ErrMissingProperty)
		}
		return
	})
	g.Go(func() (err error) {
		public, err = isPublic(gctx, doc)
		return
	})
	g.Go(func() (err error) {
		inReplyToID, inReplyToURI, err = m.inReplyTo(gctx, doc)
		return
	})
	g.Go(func() (err error) {
		summary, err = doc.Summary(gctx)
		return
	})
	g.Go(func() (err error) {
		content, err = doc.Content(gctx)
		return
	})
	g.Go(func() (err error) {
		attachments, err = m.noteAttachments(gctx, doc)
		return
	})
	g.Go(func() (err error) {
		hashtags, mentions, err = m.noteTags(gctx, doc)
		return
	})
	if attributedTo == nil {
		g.Go(func() error {
			author, err := doc.AttributedTo(gctx)
			if err != nil {
				return err
			}
			if author == nil {
				return fmt.Errorf("%w: attributedTo", federation.ErrMissingProperty)
			}
			attributedTo, err = m.resolver.ActorFromDocument(gctx, author)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Notes not addressed to the public collection are acknowledged but
	// never stored.
	if !public {
		log.Debug().Str("uri", uri).Msg("dropping non-public note")
		return nil, nil
	}

	note, err := m.db.InsertNote(ctx, db.NoteSeed{
		Published:    published,
		Actor:        attributedTo,
		URI:          uri,
		InReplyToID:  inReplyToID,
		InReplyToURI: inReplyToURI,
		Summary:      summary,
		Content:      content,
		Attachments:  attachments,
		Hashtags:     hashtags,
		Mentions:     mentions,
	})
	if err != nil {
		return nil, err
	}

	if err = m.PostStatus(ctx, note); err != nil {
		return nil, err
	}

	if inReplyToID == "" && inReplyToURI != "" {
		if err = m.queue.Fetch(inReplyToURI); err != nil {
			log.Error().Err(err).Str("uri", inReplyToURI).Msg("failed to enqueue parent fetch")
		}
	}
	return note, nil
}

// inReplyTo splits the parent reference into a local status id when the
// thread is already known here, or a bare URI kept as a forward reference.
// A malformed parent never fails the note.
func (m *Machine) inReplyTo(ctx context.Context, doc *apdoc.Document) (id, uri string, err error) {
	parent, err := doc.InReplyTo(ctx)
	if err != nil || parent == nil {
		return "", "", err
	}

	parentURI, err := parent.ID(ctx)
	if err != nil || parentURI == "" {
		return "", "", nil
	}

	local, err := m.resolveLocalNoteByURI(ctx, parentURI)
	if err != nil {
		return "", "", err
	}
	if local != nil {
		return local.Status().ID, parentURI, nil
	}

	entity, err := m.db.SelectAllocatedURI(ctx, parentURI)
	if err != nil {
		return "", "", err
	}
	if entity != nil {
		note, err := m.db.SelectNoteByURI(ctx, entity)
		if err == nil {
			return note.Status().ID, parentURI, nil
		}
		if !errors.Is(err, db.ErrNotFound) {
			return "", "", err
		}
	}
	return "", parentURI, nil
}

// noteAttachments keeps Document-typed attachments carrying a url; anything
// else is skipped rather than failing the note.
func (m *Machine) noteAttachments(ctx context.Context, doc *apdoc.Document) ([]domain.Attachment, error) {
	elements, err := doc.Attachment(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("skipping unreadable attachments")
		return nil, nil
	}

	var attachments []domain.Attachment
	for _, element := range elements {
		if element == nil {
			continue
		}
		ok, err := element.HasType(ctx, "Document")
		if err != nil || !ok {
			continue
		}

		u, err := element.URL(ctx)
		if err != nil || u == "" {
			continue
		}
		mediaType, _ := element.MediaType(ctx)
		attachments = append(attachments, domain.Attachment{URL: u, MediaType: mediaType})
	}
	return attachments, nil
}

// noteTags sorts tag entries into hashtag names and mentioned actors.
// Unresolvable entries are dropped; a note survives its broken tags.
func (m *Machine) noteTags(ctx context.Context, doc *apdoc.Document) ([]string, []*domain.Actor, error) {
	elements, err := doc.Tag(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("skipping unreadable tags")
		return nil, nil, nil
	}

	var hashtags []string
	var mentions []*domain.Actor
	for _, element := range elements {
		if element == nil {
			continue
		}
		types, err := element.Type(ctx)
		if err != nil {
			continue
		}

		for _, t := range types {
			switch t {
			case "Hashtag":
				name, err := element.Name(ctx)
				if err != nil || name == "" {
					continue
				}
				hashtags = append(hashtags, strings.TrimPrefix(name, "#"))
			case "Mention":
				href, err := element.Href(ctx)
				if err != nil || href == "" {
					continue
				}

				mentioned, err := m.resolver.ActorFromDocument(ctx, apdoc.New(m.client, href, ""))
				if err != nil {
					log.Debug().Err(err).Str("href", href).Msg("skipping unresolvable mention")
					continue
				}
				mentions = append(mentions, mentioned)
			}
		}
	}
	return hashtags, mentions, nil
}
