package client

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"code.superseriousbusiness.org/httpsig"
	"github.com/sidereusnuntius/feather/internal/config"
	"github.com/sidereusnuntius/feather/internal/federation"
)

var (
	key  *rsa.PrivateKey
	algo = httpsig.RSA_SHA256
	ctx  = context.Background()
)

func TestMain(m *testing.M) {
	var err error
	key, err = rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		return
	}
	m.Run()
}

func newClient(t *testing.T) *HttpClient {
	t.Helper()
	base, _ := url.Parse("http://feather.test")
	keyId, _ := url.Parse("http://feather.test/@feather#main-key")
	c, err := New(config.Configuration{
		Name:  "feather",
		Host:  "feather.test",
		Url:   base,
		Https: false,
	}, &http.Client{}, key, keyId)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func verify(t *testing.T, keyId string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		verifier, err := httpsig.NewVerifier(r)
		if err != nil {
			t.Error(err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if verifier.KeyId() != keyId {
			t.Errorf("expected keyId %s, got %s", keyId, verifier.KeyId())
		}
		if err = verifier.Verify(&key.PublicKey, algo); err != nil {
			t.Error("signature validation error:", err)
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"hello": "world"}`))
	})
}

func TestGet(t *testing.T) {
	server := httptest.NewServer(verify(t, "http://feather.test/@feather#main-key"))
	defer server.Close()

	c := newClient(t)
	iri, _ := url.Parse(server.URL + "/someguy")
	body, err := c.Get(ctx, iri)
	if err != nil {
		t.Fatal(err)
	}
	if body["hello"] != "world" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestDeliver(t *testing.T) {
	server := httptest.NewServer(verify(t, "http://feather.test/@feather#main-key"))
	defer server.Close()

	c := newClient(t)
	inbox, _ := url.Parse(server.URL + "/inbox")
	if err := c.Deliver(ctx, map[string]any{"type": "Like"}, inbox); err != nil {
		t.Fatal(err)
	}
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, federation.ErrFatal},
		{http.StatusGone, federation.ErrFatal},
		{http.StatusTooManyRequests, federation.ErrTemporary},
		{http.StatusInternalServerError, federation.ErrTemporary},
	}

	for _, c := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "", c.status)
		}))

		cl := newClient(t)
		iri, _ := url.Parse(server.URL)
		_, err := cl.Get(ctx, iri)
		if !errors.Is(err, c.want) {
			t.Errorf("status %d: expected %v, got %v", c.status, c.want, err)
		}
		server.Close()
	}
}

func TestFinger(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/webfinger" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("resource"); got != "acct:bob@remote.test" {
			t.Errorf("unexpected resource %q", got)
		}
		w.Header().Set("Content-Type", "application/jrd+json")
		w.Write([]byte(`{"subject": "acct:bob@remote.test", "links": [
			{"rel": "self", "type": "application/activity+json", "href": "https://remote.test/users/bob"}
		]}`))
	}))
	defer server.Close()

	c := newClient(t)
	u, _ := url.Parse(server.URL)
	res, err := c.Finger(ctx, u.Host, "acct:bob@remote.test")
	if err != nil {
		t.Fatal(err)
	}
	if res.Subject != "acct:bob@remote.test" {
		t.Errorf("unexpected subject %q", res.Subject)
	}
	if res.Self() != "https://remote.test/users/bob" {
		t.Errorf("unexpected self link %q", res.Self())
	}
}
