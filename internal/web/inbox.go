package web

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/feather/internal/apdoc"
	"github.com/sidereusnuntius/feather/internal/federation"
)

// Inbox receives a signed activity from a remote server. The document is
// pinned to the signer's host, so any object claiming an id elsewhere is
// fetched back from its own origin before it is believed.
func Inbox(h *Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		actor, err := h.Resolver.VerifyRequest(ctx, r)
		if err != nil {
			log.Warn().Err(err).Msg("rejected inbox request")
			http.Error(w, "signature verification failed", federation.StatusCode(err))
			return
		}

		var body map[string]any
		if err = json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "malformed activity", http.StatusBadRequest)
			return
		}

		pin := actor.Host
		if actor.Local() {
			pin = h.Config.Host
		}
		doc := apdoc.New(h.Client, body, pin)

		if err = h.Machine.Act(ctx, doc, actor); err != nil {
			log.Warn().Err(err).Str("actor", actor.Acct()).Msg("activity rejected")
		}
		w.WriteHeader(federation.StatusCode(err))
	}
}
