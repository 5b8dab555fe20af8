package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/sidereusnuntius/feather/internal/activity"
	"github.com/sidereusnuntius/feather/internal/domain"
)

type signUpRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Summary  string `json:"summary"`
}

func SignUp(h *Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req signUpRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "malformed request body", http.StatusBadRequest)
			return
		}
		if req.Username == "" || req.Password == "" {
			http.Error(w, "username and password are required", http.StatusBadRequest)
			return
		}

		actor, err := h.DB.InsertLocalAccount(ctx, req.Username, req.Password, req.Name, req.Summary, false)
		if err != nil {
			respondError(w, err, "failed to create account")
			return
		}

		respondJSON(w, http.StatusCreated, "application/json", map[string]any{
			"acct": actor.Acct(),
			"uri":  domain.LocalActorURI(h.Config.Url, actor.Username).String(),
		})
	}
}

type noteRequest struct {
	Content     string   `json:"content"`
	Summary     *string  `json:"summary"`
	InReplyTo   string   `json:"in_reply_to"`
	Hashtags    []string `json:"hashtags"`
	Mentions    []string `json:"mentions"`
	Attachments []struct {
		URL       string `json:"url"`
		MediaType string `json:"media_type"`
	} `json:"attachments"`
}

func PostNote(h *Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor, ok := h.authenticated(w, r)
		if !ok {
			return
		}

		var req noteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "malformed request body", http.StatusBadRequest)
			return
		}
		if req.Content == "" {
			http.Error(w, "content is required", http.StatusBadRequest)
			return
		}

		opts := activity.NoteOptions{
			Summary:     req.Summary,
			InReplyToID: req.InReplyTo,
			Hashtags:    req.Hashtags,
		}
		for _, a := range req.Attachments {
			opts.Attachments = append(opts.Attachments, domain.Attachment{
				URL:       a.URL,
				MediaType: a.MediaType,
			})
		}
		for _, acct := range req.Mentions {
			username, host := splitAcct(acct)
			mentioned, err := h.Resolver.ActorByAcct(ctx, username, host)
			if err != nil {
				http.Error(w, "cannot resolve mention "+acct, http.StatusUnprocessableEntity)
				return
			}
			opts.Mentions = append(opts.Mentions, mentioned)
		}

		note, err := h.Machine.CreateLocalNote(ctx, actor, req.Content, opts)
		if err != nil {
			respondError(w, err, "failed to create note")
			return
		}

		respondJSON(w, http.StatusCreated, "application/json", map[string]any{
			"id":  note.Status().ID,
			"uri": domain.LocalStatusURI(h.Config.Url, actor.Acct(), note.Status().ID).String(),
		})
	}
}

func PostAnnounce(h *Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor, ok := h.authenticated(w, r)
		if !ok {
			return
		}

		var req struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
			http.Error(w, "malformed request body", http.StatusBadRequest)
			return
		}

		note, err := h.DB.SelectNoteByID(ctx, req.ID)
		if err != nil {
			respondError(w, err, "unknown note")
			return
		}

		announce, err := h.Machine.CreateLocalAnnounce(ctx, actor, note)
		if err != nil {
			respondError(w, err, "failed to announce")
			return
		}
		respondJSON(w, http.StatusCreated, "application/json", map[string]any{
			"id": announce.Status().ID,
		})
	}
}

func PostFollow(h *Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor, ok := h.authenticated(w, r)
		if !ok {
			return
		}

		var req struct {
			Acct string `json:"acct"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Acct == "" {
			http.Error(w, "malformed request body", http.StatusBadRequest)
			return
		}

		username, host := splitAcct(req.Acct)
		object, err := h.Resolver.ActorByAcct(ctx, username, host)
		if err != nil {
			respondError(w, err, "cannot resolve actor")
			return
		}

		follow, err := h.Machine.CreateFollow(ctx, actor, object)
		if err != nil {
			respondError(w, err, "failed to follow")
			return
		}
		respondJSON(w, http.StatusCreated, "application/json", map[string]any{
			"id":     follow.ID,
			"object": object.Acct(),
		})
	}
}

func GetInbox(h *Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor, ok := h.authenticated(w, r)
		if !ok {
			return
		}

		limit := 40
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				limit = n
			}
		}

		statuses, err := h.DB.SelectInbox(ctx, actor.ID, limit)
		if err != nil {
			respondError(w, err, "failed to load inbox")
			return
		}

		items := make([]map[string]any, 0, len(statuses))
		for _, status := range statuses {
			item, err := inboxItem(ctx, status)
			if err != nil {
				respondError(w, err, "failed to load inbox")
				return
			}
			items = append(items, item)
		}
		respondJSON(w, http.StatusOK, "application/json", map[string]any{"items": items})
	}
}

func inboxItem(ctx context.Context, status *domain.Status) (map[string]any, error) {
	actor, err := status.Actor.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	item := map[string]any{
		"id":        status.ID,
		"acct":      actor.Acct(),
		"published": status.Published,
	}
	switch ext := status.Extension().(type) {
	case *domain.Note:
		item["type"] = "Note"
		item["content"] = ext.Content
		if ext.Summary != nil {
			item["summary"] = *ext.Summary
		}
	case *domain.Announce:
		item["type"] = "Announce"
		item["object"] = ext.ObjectID
	}
	return item, nil
}

// splitAcct breaks user[@host] into its parts. A bare username names a local
// actor. A leading @ is tolerated.
func splitAcct(acct string) (username, host string) {
	acct = strings.TrimPrefix(acct, "@")
	username, host, _ = strings.Cut(acct, "@")
	return username, host
}
