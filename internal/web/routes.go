package web

import (
	"github.com/go-chi/chi/v5"
)

func (h *Handler) Mount(r chi.Router) {
	r.Post("/inbox", Inbox(h))
	r.Post("/@{name}/inbox", Inbox(h))

	r.Get("/@{name}", ActorDocument(h))
	r.Get("/@{name}/{id}", StatusDocument(h))

	r.Post("/signup", SignUp(h))

	r.Route("/api", func(r chi.Router) {
		r.Post("/notes", PostNote(h))
		r.Post("/announces", PostAnnounce(h))
		r.Post("/follows", PostFollow(h))
		r.Get("/inbox", GetInbox(h))
		r.Get("/inbox/live", LiveInbox(h))
	})
}
