// Package web exposes the HTTP surface: the federation endpoints remote
// servers talk to and a small JSON API for local clients.
package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/feather/internal/activity"
	"github.com/sidereusnuntius/feather/internal/apdoc"
	"github.com/sidereusnuntius/feather/internal/config"
	"github.com/sidereusnuntius/feather/internal/db"
	"github.com/sidereusnuntius/feather/internal/domain"
	"github.com/sidereusnuntius/feather/internal/notify"
	"github.com/sidereusnuntius/feather/internal/resolver"
)

const ActivityJSON = "application/activity+json"

type Handler struct {
	Config   config.Configuration
	DB       db.DB
	Machine  *activity.Machine
	Resolver *resolver.Resolver
	Client   apdoc.Fetcher
	Hub      *notify.Hub
}

func New(cfg config.Configuration, database db.DB, machine *activity.Machine, res *resolver.Resolver, client apdoc.Fetcher, hub *notify.Hub) Handler {
	return Handler{
		Config:   cfg,
		DB:       database,
		Machine:  machine,
		Resolver: res,
		Client:   client,
		Hub:      hub,
	}
}

// GetCode maps storage and validation errors to HTTP status codes for the
// client API.
func GetCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, db.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrEmptySummary):
		return http.StatusUnprocessableEntity
	case errors.Is(err, db.ErrAborted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, code int, contentType string, body any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to write response body")
	}
}

func respondError(w http.ResponseWriter, err error, msg string) {
	log.Error().Err(err).Msg(msg)
	http.Error(w, msg, GetCode(err))
}
