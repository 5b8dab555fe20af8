package web

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sidereusnuntius/feather/internal/conversions"
	"github.com/sidereusnuntius/feather/internal/domain"
)

// ActorDocument serves a local actor's public profile document.
func ActorDocument(h *Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		name := chi.URLParam(r, "name")

		actor, err := h.DB.SelectActorByUsernameAndHost(ctx, name, "")
		if err != nil {
			respondError(w, err, "unknown actor")
			return
		}

		person, err := conversions.LocalActorToPerson(h.Config, ctx, actor)
		if err != nil {
			respondError(w, err, "failed to render actor")
			return
		}
		body, err := conversions.Serialize(person)
		if err != nil {
			respondError(w, err, "failed to render actor")
			return
		}
		respondJSON(w, http.StatusOK, ActivityJSON, body)
	}
}

// StatusDocument serves a locally addressed status as its canonical object,
// a Note or an Announce depending on what the id names.
func StatusDocument(h *Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		name := chi.URLParam(r, "name")
		id := chi.URLParam(r, "id")

		status, err := h.DB.SelectStatusByID(ctx, id)
		if err != nil {
			respondError(w, err, "unknown status")
			return
		}
		actor, err := status.Actor.Resolve(ctx)
		if err != nil {
			respondError(w, err, "failed to load status author")
			return
		}
		if actor.Acct() != name {
			http.Error(w, "unknown status", http.StatusNotFound)
			return
		}

		body, err := h.renderStatus(ctx, status)
		if err != nil {
			respondError(w, err, "failed to render status")
			return
		}
		respondJSON(w, http.StatusOK, ActivityJSON, body)
	}
}

func (h *Handler) renderStatus(ctx context.Context, status *domain.Status) (map[string]any, error) {
	switch ext := status.Extension().(type) {
	case *domain.Note:
		parent, err := h.parentURI(ctx, ext)
		if err != nil {
			return nil, err
		}
		note, err := conversions.NoteToObject(h.Config, ctx, ext, parent)
		if err != nil {
			return nil, err
		}
		return conversions.Serialize(note)
	case *domain.Announce:
		announce, err := conversions.AnnounceToActivity(h.Config, ctx, ext)
		if err != nil {
			return nil, err
		}
		return conversions.Serialize(announce)
	default:
		return nil, fmt.Errorf("status %s has no renderable extension", status.ID)
	}
}

func (h *Handler) parentURI(ctx context.Context, note *domain.Note) (string, error) {
	if note.InReplyToID != "" {
		parent, err := h.DB.SelectStatusByID(ctx, note.InReplyToID)
		if err != nil {
			return "", err
		}
		uri, err := conversions.StatusURI(h.Config, ctx, parent)
		if err != nil {
			return "", err
		}
		return uri.String(), nil
	}
	return note.InReplyToURI, nil
}
