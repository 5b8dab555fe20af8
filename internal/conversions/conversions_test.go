package conversions

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sidereusnuntius/feather/internal/config"
	"github.com/sidereusnuntius/feather/internal/domain"
)

var ctx = context.Background()

func testConfig() config.Configuration {
	base, _ := url.Parse("https://feather.test")
	return config.Configuration{
		Name: "feather",
		Host: "feather.test",
		Url:  base,
	}
}

func localActor(username string) *domain.Actor {
	return domain.NewLocalActor(username, "", "", &domain.LocalAccount{})
}

func remoteActor(username, host string) *domain.Actor {
	return domain.NewRemoteActor(username, host, "", "", &domain.RemoteAccount{
		URI: &domain.URI{URI: "https://" + host + "/users/" + username, Allocated: true},
	})
}

func localNote(t *testing.T, actor *domain.Actor, id, content string) *domain.Note {
	t.Helper()
	status := &domain.Status{
		ID:        id,
		Published: time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC),
		Actor:     domain.NewRef(actor),
	}
	note, err := domain.NewNote(status, &domain.Note{Content: content})
	if err != nil {
		t.Fatal(err)
	}
	return note
}

func TestNoteToObject(t *testing.T) {
	cfg := testConfig()
	alice := localActor("alice")

	summary := "cw"
	note := localNote(t, alice, "abc123", "hello fediverse")
	note.Summary = &summary
	note.Hashtags = domain.NewRef([]string{"go"})
	note.Mentions = domain.NewRef([]*domain.Actor{remoteActor("bob", "remote.test")})
	note.Attachments = domain.NewRef([]domain.Attachment{
		{URL: "https://cdn.feather.test/pic.png", MediaType: "image/png"},
	})

	object, err := NoteToObject(cfg, ctx, note, "https://remote.test/notes/7")
	if err != nil {
		t.Fatal(err)
	}
	serialized, err := Serialize(object)
	if err != nil {
		t.Fatal(err)
	}

	want := map[string]any{
		"id":           "https://feather.test/@alice/abc123",
		"type":         "Note",
		"attributedTo": "https://feather.test/@alice",
		"to":           config.PublicAudience,
		"inReplyTo":    "https://remote.test/notes/7",
		"published":    "2026-03-14T15:09:26Z",
		"summary":      "cw",
		"content":      "hello fediverse",
		"attachment": map[string]any{
			"type":      "Document",
			"url":       "https://cdn.feather.test/pic.png",
			"mediaType": "image/png",
		},
		"tag": []any{
			map[string]any{"type": "Hashtag", "name": "#go"},
			map[string]any{
				"type": "Mention",
				"href": "https://remote.test/users/bob",
				"name": "@bob@remote.test",
			},
		},
	}

	delete(serialized, "@context")
	if diff := cmp.Diff(want, serialized); diff != "" {
		t.Errorf("unexpected serialization (-want +got):\n%s", diff)
	}
}

func TestNewCreate(t *testing.T) {
	cfg := testConfig()
	note := localNote(t, localActor("alice"), "abc123", "hello")

	create, err := NewCreate(cfg, ctx, note, "")
	if err != nil {
		t.Fatal(err)
	}
	serialized, err := Serialize(create)
	if err != nil {
		t.Fatal(err)
	}

	if serialized["id"] != "https://feather.test/@alice/abc123/create" {
		t.Errorf("unexpected id %v", serialized["id"])
	}
	if serialized["actor"] != "https://feather.test/@alice" {
		t.Errorf("unexpected actor %v", serialized["actor"])
	}
	object, ok := serialized["object"].(map[string]any)
	if !ok {
		t.Fatalf("expected an embedded object, got %v", serialized["object"])
	}
	if object["content"] != "hello" {
		t.Errorf("unexpected content %v", object["content"])
	}
}

func TestAnnounceToActivity(t *testing.T) {
	cfg := testConfig()
	bob := remoteActor("bob", "remote.test")
	note := localNote(t, localActor("alice"), "abc123", "hello")

	status := &domain.Status{
		ID:        "def456",
		Published: time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		Actor:     domain.NewRef(bob),
		URI:       &domain.URI{URI: "https://remote.test/activities/1", Allocated: true},
	}
	announce, err := domain.NewAnnounce(status, &domain.Announce{
		ObjectID: note.Status().ID,
		Object:   domain.NewRef(note),
	})
	if err != nil {
		t.Fatal(err)
	}

	activity, err := AnnounceToActivity(cfg, ctx, announce)
	if err != nil {
		t.Fatal(err)
	}
	serialized, err := Serialize(activity)
	if err != nil {
		t.Fatal(err)
	}

	if serialized["id"] != "https://remote.test/activities/1" {
		t.Errorf("expected the allocated uri, got %v", serialized["id"])
	}
	if serialized["actor"] != "https://remote.test/users/bob" {
		t.Errorf("unexpected actor %v", serialized["actor"])
	}
	if serialized["object"] != "https://feather.test/@alice/abc123" {
		t.Errorf("unexpected object %v", serialized["object"])
	}
}

func TestAcceptToActivity(t *testing.T) {
	cfg := testConfig()
	bob := remoteActor("bob", "remote.test")
	alice := localActor("alice")

	follow := &domain.Follow{
		ID:     1,
		Actor:  domain.NewRef(bob),
		Object: domain.NewRef(alice),
	}
	accept := &domain.Accept{ID: 1, ObjectID: 1, Object: domain.NewRef(follow)}

	activity, err := AcceptToActivity(cfg, ctx, accept)
	if err != nil {
		t.Fatal(err)
	}
	serialized, err := Serialize(activity)
	if err != nil {
		t.Fatal(err)
	}

	if serialized["actor"] != "https://feather.test/@alice" {
		t.Errorf("expected the followed actor to accept, got %v", serialized["actor"])
	}
	object, ok := serialized["object"].(map[string]any)
	if !ok {
		t.Fatalf("expected the follow to be embedded, got %v", serialized["object"])
	}
	if object["type"] != "Follow" {
		t.Errorf("unexpected embedded type %v", object["type"])
	}
	if object["actor"] != "https://remote.test/users/bob" {
		t.Errorf("unexpected follow actor %v", object["actor"])
	}
}
