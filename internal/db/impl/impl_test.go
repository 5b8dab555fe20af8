package impl

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/sidereusnuntius/feather/internal/config"
	"github.com/sidereusnuntius/feather/internal/db"
	"github.com/sidereusnuntius/feather/internal/domain"
	"github.com/sidereusnuntius/feather/internal/initialization"
	"github.com/sidereusnuntius/feather/internal/notify"
)

var DB db.DB
var hub *notify.Hub
var ctx = context.Background()

func TestMain(m *testing.M) {
	hostname, _ := url.Parse("https://feather.test")
	cfg := config.Configuration{
		Name:       "feather",
		Host:       "feather.test",
		Url:        hostname,
		RsaKeySize: 1024,
		InboxSize:  3,
	}

	d, err := initialization.OpenDB("file:temp?mode=memory&cache=shared")
	if err != nil {
		return
	}
	if err = initialization.SetupDB(&cfg, d, "../../../migrations", "temp"); err != nil {
		return
	}

	hub = notify.NewHub()
	DB = New(cfg, d, hub)
	m.Run()
}

func mustLocal(t *testing.T, username string) *domain.Actor {
	t.Helper()
	actor, err := DB.InsertLocalAccount(ctx, username, "hunter2", username, "", false)
	if err != nil {
		t.Fatal(err)
	}
	return actor
}

func mustRemote(t *testing.T, username, host, inbox string) *domain.Actor {
	t.Helper()
	base := "https://" + host + "/users/" + username
	if inbox == "" {
		inbox = base + "/inbox"
	}
	actor, err := DB.InsertRemoteAccount(ctx, db.RemoteSeed{
		Username:     username,
		Host:         host,
		URI:          base,
		InboxURI:     inbox,
		KeyURI:       base + "#main-key",
		PublicKeyPem: "pem",
	})
	if err != nil {
		t.Fatal(err)
	}
	return actor
}

func TestInsertLocalAccount(t *testing.T) {
	actor := mustLocal(t, "alice")
	if !actor.Local() {
		t.Error("expected a local actor")
	}

	got, err := DB.SelectActorByUsernameAndHost(ctx, "alice", "")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != actor.ID {
		t.Errorf("expected actor %d, got %d", actor.ID, got.ID)
	}

	account, err := DB.SelectLocalAccountByActorID(ctx, actor.ID)
	if err != nil {
		t.Fatal(err)
	}
	if account.PrivateKeyPem == "" || len(account.PasswordHash) == 0 {
		t.Error("expected key material and a password hash")
	}

	_, err = DB.InsertLocalAccount(ctx, "alice", "other", "", "", false)
	if !errors.Is(err, db.ErrConflict) {
		t.Errorf("expected a conflict, got %v", err)
	}
}

func TestInsertRemoteAccountConflict(t *testing.T) {
	mustRemote(t, "bob", "remote.test", "")

	// A different username claiming the same URI must be rejected with no
	// partial rows left behind.
	_, err := DB.InsertRemoteAccount(ctx, db.RemoteSeed{
		Username:     "mallory",
		Host:         "remote.test",
		URI:          "https://remote.test/users/bob",
		InboxURI:     "https://remote.test/users/mallory/inbox",
		KeyURI:       "https://remote.test/users/mallory#main-key",
		PublicKeyPem: "pem",
	})
	if !errors.Is(err, db.ErrConflict) {
		t.Fatalf("expected a conflict, got %v", err)
	}
	_, err = DB.SelectActorByUsernameAndHost(ctx, "mallory", "remote.test")
	if !errors.Is(err, db.ErrNotFound) {
		t.Errorf("expected no mallory row, got %v", err)
	}
}

func TestSharedInboxIsReused(t *testing.T) {
	shared := "https://remote.test/inbox"
	first := mustRemote(t, "carol", "remote.test", shared)
	second := mustRemote(t, "dave", "remote.test", shared)

	a1, err := DB.SelectRemoteAccountByURI(ctx, "https://remote.test/users/carol")
	if err != nil {
		t.Fatal(err)
	}
	a2, err := DB.SelectRemoteAccountByURI(ctx, "https://remote.test/users/dave")
	if err != nil {
		t.Fatal(err)
	}
	if a1.InboxURI.ID != a2.InboxURI.ID {
		t.Errorf("expected actors %d and %d to share an inbox allocation", first.ID, second.ID)
	}
}

func TestNoteAllocation(t *testing.T) {
	author := mustRemote(t, "erin", "remote.test", "")
	uri := "https://remote.test/notes/1"

	note, err := DB.InsertNote(ctx, db.NoteSeed{
		Published: time.Now(),
		Actor:     author,
		URI:       uri,
		Content:   "first",
	})
	if err != nil {
		t.Fatal(err)
	}

	allocation, err := DB.SelectAllocatedURI(ctx, uri)
	if err != nil {
		t.Fatal(err)
	}
	if allocation == nil {
		t.Fatal("expected the uri to be allocated")
	}

	got, err := DB.SelectNoteByURI(ctx, allocation)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status().ID != note.Status().ID || got.Content != "first" {
		t.Errorf("unexpected note %+v", got)
	}

	// The allocation is taken; a second note under the same URI is rejected.
	_, err = DB.InsertNote(ctx, db.NoteSeed{
		Published: time.Now(),
		Actor:     author,
		URI:       uri,
		Content:   "second",
	})
	if !errors.Is(err, db.ErrConflict) {
		t.Errorf("expected a conflict, got %v", err)
	}
}

func TestDeleteStatusReleasesURI(t *testing.T) {
	author := mustRemote(t, "frank", "remote.test", "")
	other := mustRemote(t, "grace", "remote.test", "")
	uri := "https://remote.test/notes/2"

	note, err := DB.InsertNote(ctx, db.NoteSeed{
		Published: time.Now(),
		Actor:     author,
		URI:       uri,
		Content:   "doomed",
	})
	if err != nil {
		t.Fatal(err)
	}
	allocation, err := DB.SelectAllocatedURI(ctx, uri)
	if err != nil || allocation == nil {
		t.Fatal(err)
	}

	// Someone else's delete must not touch the status.
	if err = DB.DeleteStatusByURIAndActor(ctx, allocation, other); err != nil {
		t.Fatal(err)
	}
	if _, err = DB.SelectNoteByID(ctx, note.Status().ID); err != nil {
		t.Fatalf("expected the note to survive, got %v", err)
	}

	if err = DB.DeleteStatusByURIAndActor(ctx, allocation, author); err != nil {
		t.Fatal(err)
	}
	if _, err = DB.SelectNoteByID(ctx, note.Status().ID); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("expected the note to be gone, got %v", err)
	}

	released, err := DB.SelectAllocatedURI(ctx, uri)
	if err != nil {
		t.Fatal(err)
	}
	if released != nil {
		t.Error("expected the allocation to be released")
	}
}

func TestFollowCarriesAccept(t *testing.T) {
	actor := mustLocal(t, "heidi")
	object := mustRemote(t, "ivan", "remote.test", "")

	follow, err := DB.InsertFollow(ctx, actor, object)
	if err != nil {
		t.Fatal(err)
	}

	accept, err := DB.SelectAcceptByFollowID(ctx, follow.ID)
	if err != nil {
		t.Fatal(err)
	}
	if accept.ObjectID != follow.ID {
		t.Errorf("expected the accept to wrap follow %d, got %d", follow.ID, accept.ObjectID)
	}

	_, err = DB.InsertFollow(ctx, actor, object)
	if !errors.Is(err, db.ErrConflict) {
		t.Errorf("expected a conflict, got %v", err)
	}

	followers, err := DB.SelectFollowersOf(ctx, object)
	if err != nil {
		t.Fatal(err)
	}
	if len(followers) != 1 || followers[0].ID != actor.ID {
		t.Errorf("unexpected followers %v", followers)
	}

	if err = DB.DeleteFollowByActorAndObject(ctx, actor, object); err != nil {
		t.Fatal(err)
	}
	if err = DB.DeleteFollowByActorAndObject(ctx, actor, object); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("expected not found on a second undo, got %v", err)
	}
}

func TestLikes(t *testing.T) {
	actor := mustLocal(t, "judy")
	author := mustRemote(t, "ken", "remote.test", "")
	note, err := DB.InsertNote(ctx, db.NoteSeed{
		Published: time.Now(),
		Actor:     author,
		URI:       "https://remote.test/notes/3",
		Content:   "likeable",
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err = DB.InsertLike(ctx, actor, note); err != nil {
		t.Fatal(err)
	}
	if _, err = DB.InsertLike(ctx, actor, note); !errors.Is(err, db.ErrConflict) {
		t.Errorf("expected a conflict, got %v", err)
	}

	if err = DB.DeleteLikeByActorAndObject(ctx, actor, note); err != nil {
		t.Fatal(err)
	}
	if err = DB.DeleteLikeByActorAndObject(ctx, actor, note); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("expected not found on a second undo, got %v", err)
	}
}

func TestInboxBoundAndOrder(t *testing.T) {
	recipient := mustLocal(t, "leo")
	author := mustLocal(t, "mia")

	notified := 0
	unsubscribe := hub.Subscribe(db.InboxChannel(recipient.ID), func(channel string, message []byte) {
		notified++
	})
	defer unsubscribe()

	var last string
	for i := 0; i < 5; i++ {
		note, err := DB.InsertNote(ctx, db.NoteSeed{
			Published: time.Now(),
			Actor:     author,
			Content:   "post",
		})
		if err != nil {
			t.Fatal(err)
		}
		last = note.Status().ID
		if err = DB.InsertIntoInboxes(ctx, []*domain.Actor{recipient}, note.Status()); err != nil {
			t.Fatal(err)
		}
	}

	// The bound is 3; only the newest entries survive, newest first.
	statuses, err := DB.SelectInbox(ctx, recipient.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(statuses) != 3 {
		t.Fatalf("expected 3 inbox entries, got %d", len(statuses))
	}
	if statuses[0].ID != last {
		t.Errorf("expected the newest status first, got %s", statuses[0].ID)
	}
	if notified != 5 {
		t.Errorf("expected 5 notifications, got %d", notified)
	}
}
