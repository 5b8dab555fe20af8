package web

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/feather/internal/db"
)

// LiveInbox streams new inbox entries to the authenticated actor as
// server-sent events. Events a slow client cannot keep up with are dropped;
// the durable copy stays in the inbox.
func LiveInbox(h *Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := h.authenticated(w, r)
		if !ok {
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		events := make(chan []byte, 16)
		unsubscribe := h.Hub.Subscribe(db.InboxChannel(actor.ID), func(channel string, message []byte) {
			select {
			case events <- message:
			default:
			}
		})
		defer unsubscribe()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case message := <-events:
				if _, err := fmt.Fprintf(w, "data: %s\n\n", message); err != nil {
					log.Debug().Err(err).Str("actor", actor.Acct()).Msg("live inbox listener went away")
					return
				}
				flusher.Flush()
			}
		}
	}
}
