package activity

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/sidereusnuntius/feather/internal/conversions"
	"github.com/sidereusnuntius/feather/internal/domain"
)

// PostStatus fans a freshly stored status out: local followers (and a local
// author) get inbox entries in one transaction, and a local author's remote
// followers each get one queued delivery per distinct inbox.
func (m *Machine) PostStatus(ctx context.Context, ext domain.Extension) error {
	status := ext.Status()
	actor, err := status.Actor.Resolve(ctx)
	if err != nil {
		return err
	}

	followers, err := m.db.SelectFollowersOf(ctx, actor)
	if err != nil {
		return err
	}

	locals := lo.Filter(followers, func(follower *domain.Actor, _ int) bool {
		return follower.Local()
	})
	if actor.Local() {
		locals = append(locals, actor)
	}
	if err = m.db.InsertIntoInboxes(ctx, locals, status); err != nil {
		return err
	}

	if !actor.Local() {
		return nil
	}

	remotes := lo.Filter(followers, func(follower *domain.Actor, _ int) bool {
		return !follower.Local()
	})
	if len(remotes) == 0 {
		return nil
	}

	var inboxes []string
	for _, follower := range remotes {
		account, err := follower.Account.Resolve(ctx)
		if err != nil {
			return err
		}
		remote, ok := account.(*domain.RemoteAccount)
		if !ok {
			return fmt.Errorf("follower %s has no remote account", follower.Acct())
		}
		inboxes = append(inboxes, remote.InboxURI.URI)
	}

	body, err := m.renderStatus(ctx, ext)
	if err != nil {
		return err
	}

	// Shared inboxes collapse into one delivery.
	for _, inbox := range lo.Uniq(inboxes) {
		if err = m.queue.Deliver(ctx, body, inbox, actor); err != nil {
			log.Error().Err(err).Str("inbox", inbox).Msg("failed to enqueue delivery job")
			return err
		}
	}
	return nil
}

func (m *Machine) renderStatus(ctx context.Context, ext domain.Extension) (map[string]any, error) {
	switch e := ext.(type) {
	case *domain.Note:
		inReplyTo, err := m.parentURI(ctx, e)
		if err != nil {
			return nil, err
		}
		create, err := conversions.NewCreate(m.config, ctx, e, inReplyTo)
		if err != nil {
			return nil, err
		}
		return conversions.Serialize(create)
	case *domain.Announce:
		announce, err := conversions.AnnounceToActivity(m.config, ctx, e)
		if err != nil {
			return nil, err
		}
		return conversions.Serialize(announce)
	default:
		return nil, fmt.Errorf("unrenderable status extension %s", ext.TypeName())
	}
}

// parentURI renders the inReplyTo reference of a note: the parent's URI when
// the thread is known, otherwise whatever forward reference was kept.
func (m *Machine) parentURI(ctx context.Context, note *domain.Note) (string, error) {
	if note.InReplyToID == "" {
		return note.InReplyToURI, nil
	}

	parent, err := m.db.SelectStatusByID(ctx, note.InReplyToID)
	if err != nil {
		return "", err
	}
	uri, err := conversions.StatusURI(m.config, ctx, parent)
	if err != nil {
		return "", err
	}
	return uri.String(), nil
}
