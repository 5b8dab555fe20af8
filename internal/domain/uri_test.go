package domain

import (
	"net/url"
	"testing"
)

var base, _ = url.Parse("https://feather.test")

func TestLocalActorURI(t *testing.T) {
	if got := LocalActorURI(base, "alice").String(); got != "https://feather.test/@alice" {
		t.Errorf("unexpected uri %s", got)
	}
}

func TestLocalKeyURI(t *testing.T) {
	if got := LocalKeyURI(base, "alice").String(); got != "https://feather.test/@alice#main-key" {
		t.Errorf("unexpected uri %s", got)
	}
}

func TestLocalStatusURI(t *testing.T) {
	cases := []struct {
		acct string
		id   string
		want string
	}{
		{"alice", "abc", "https://feather.test/@alice/abc"},
		{"bob@remote.test", "def", "https://feather.test/@bob@remote.test/def"},
	}
	for _, c := range cases {
		if got := LocalStatusURI(base, c.acct, c.id).String(); got != c.want {
			t.Errorf("acct %s: expected %s, got %s", c.acct, c.want, got)
		}
	}
}

func TestLocalUsernameFromURI(t *testing.T) {
	cases := []struct {
		uri      string
		username string
		ok       bool
	}{
		{"https://feather.test/@alice", "alice", true},
		{"https://feather.test/@alice/abc", "", false},
		{"https://feather.test/@", "", false},
		{"https://elsewhere.test/@alice", "", false},
		{"https://feather.test/inbox", "", false},
	}
	for _, c := range cases {
		username, ok := LocalUsernameFromURI(base, c.uri)
		if ok != c.ok || username != c.username {
			t.Errorf("uri %s: got %q, %v", c.uri, username, ok)
		}
	}
}

func TestLocalStatusFromURI(t *testing.T) {
	cases := []struct {
		uri      string
		username string
		id       string
		ok       bool
	}{
		{"https://feather.test/@alice/abc", "alice", "abc", true},
		{"https://feather.test/@alice", "", "", false},
		{"https://feather.test/@alice/", "", "", false},
		{"https://elsewhere.test/@alice/abc", "", "", false},
	}
	for _, c := range cases {
		username, id, ok := LocalStatusFromURI(base, c.uri)
		if ok != c.ok || username != c.username || id != c.id {
			t.Errorf("uri %s: got %q, %q, %v", c.uri, username, id, ok)
		}
	}
}

func TestActorAcct(t *testing.T) {
	local := &Actor{Username: "alice"}
	if !local.Local() || local.Acct() != "alice" {
		t.Errorf("unexpected local acct %q", local.Acct())
	}

	remote := &Actor{Username: "bob", Host: "remote.test"}
	if remote.Local() || remote.Acct() != "bob@remote.test" {
		t.Errorf("unexpected remote acct %q", remote.Acct())
	}
}

func TestStatusSingleExtension(t *testing.T) {
	status := &Status{ID: "abc"}
	if _, err := NewNote(status, &Note{Content: "hi"}); err != nil {
		t.Fatal(err)
	}
	if _, err := NewAnnounce(status, &Announce{ObjectID: "abc"}); err != ErrAlreadyExtended {
		t.Errorf("expected ErrAlreadyExtended, got %v", err)
	}
}

func TestNoteValidateRejectsEmptySummary(t *testing.T) {
	empty := ""
	note := &Note{Summary: &empty}
	if err := note.Validate(); err != ErrEmptySummary {
		t.Errorf("expected ErrEmptySummary, got %v", err)
	}

	note.Summary = nil
	if err := note.Validate(); err != nil {
		t.Errorf("expected an absent summary to be valid, got %v", err)
	}
}
