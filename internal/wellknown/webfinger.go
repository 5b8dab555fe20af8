package wellknown

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/feather/internal/config"
	"github.com/sidereusnuntius/feather/internal/db"
	"github.com/sidereusnuntius/feather/internal/domain"
)

type WebfingerLink struct {
	Rel  string `json:"rel"`
	Type string `json:"type"`
	Href string `json:"href"`
}

type WebfingerResponse struct {
	Subject string          `json:"subject"`
	Links   []WebfingerLink `json:"links"`
}

// Self returns the href of the self link carrying an ActivityStreams
// document, or an empty string when the description has none.
func (r *WebfingerResponse) Self() string {
	for _, link := range r.Links {
		if link.Rel == "self" && link.Type == "application/activity+json" {
			return link.Href
		}
	}
	return ""
}

// Acct splits the subject into its username and host. The leading acct:
// scheme is optional; fingered servers answer with either form.
func (r *WebfingerResponse) Acct() (username, host string, err error) {
	subject := strings.TrimPrefix(r.Subject, "acct:")
	username, host, found := strings.Cut(subject, "@")
	if !found || username == "" || host == "" {
		return "", "", errors.New("malformed webfinger subject: " + r.Subject)
	}
	return username, host, nil
}

func Mount(config config.Configuration, database db.DB, r chi.Router) {
	r.Route("/.well-known", func(r chi.Router) {
		r.Get("/webfinger", WebfingerEndpoint(config, database))
	})
}

func WebfingerEndpoint(config config.Configuration, database db.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resource := r.URL.Query().Get("resource")
		uri, err := url.Parse(strings.Replace(resource, "acct:", "acct://", 1))
		if err != nil || uri.User == nil {
			http.Error(w, "failed to parse resource", http.StatusBadRequest)
			return
		}
		if uri.Host != config.Host {
			http.Error(w, "unknown host", http.StatusNotFound)
			return
		}

		actor, err := database.SelectActorByUsernameAndHost(r.Context(), uri.User.Username(), "")
		if err != nil {
			http.Error(w, "", handleErr(err))
			return
		}

		res := WebfingerResponse{
			Subject: "acct:" + actor.Username + "@" + config.Host,
			Links: []WebfingerLink{
				{Rel: "self", Type: "application/activity+json", Href: domain.LocalActorURI(config.Url, actor.Username).String()},
			},
		}

		w.Header().Set("Content-Type", "application/jrd+json")
		if err = json.NewEncoder(w).Encode(res); err != nil {
			log.Error().Err(err).Msg("unable to marshal webfinger response")
		}
	}
}

func handleErr(err error) int {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
