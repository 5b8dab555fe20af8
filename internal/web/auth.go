package web

import (
	"errors"
	"net/http"

	"github.com/sidereusnuntius/feather/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// authenticate resolves the local account behind a request's basic auth
// credentials.
func (h *Handler) authenticate(r *http.Request) (*domain.Actor, error) {
	username, password, ok := r.BasicAuth()
	if !ok {
		return nil, ErrUnauthenticated
	}

	ctx := r.Context()
	actor, err := h.DB.SelectActorByUsernameAndHost(ctx, username, "")
	if err != nil {
		return nil, ErrUnauthenticated
	}
	account, err := h.DB.SelectLocalAccountByActorID(ctx, actor.ID)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	if bcrypt.CompareHashAndPassword(account.PasswordHash, []byte(password)) != nil {
		return nil, ErrUnauthenticated
	}
	return actor, nil
}

func (h *Handler) authenticated(w http.ResponseWriter, r *http.Request) (*domain.Actor, bool) {
	actor, err := h.authenticate(r)
	if err != nil {
		w.Header().Set("WWW-Authenticate", `Basic realm="restricted"`)
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return nil, false
	}
	return actor, true
}
