package activity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/sidereusnuntius/feather/internal/apdoc"
	"github.com/sidereusnuntius/feather/internal/config"
	"github.com/sidereusnuntius/feather/internal/db"
	db_impl "github.com/sidereusnuntius/feather/internal/db/impl"
	"github.com/sidereusnuntius/feather/internal/domain"
	"github.com/sidereusnuntius/feather/internal/federation"
	"github.com/sidereusnuntius/feather/internal/initialization"
	"github.com/sidereusnuntius/feather/internal/notify"
	"github.com/sidereusnuntius/feather/internal/resolver"
	"github.com/sidereusnuntius/feather/internal/utils"
	"github.com/sidereusnuntius/feather/internal/wellknown"
)

const remoteHost = "remote.test"

var (
	ctx     = context.Background()
	DB      db.DB
	machine *Machine
	q       *fakeQueue
	peer    *fakePeer
	bob     *domain.Actor
	alice   *domain.Actor
)

type fakePeer struct {
	docs map[string]map[string]any
}

func (f *fakePeer) Get(ctx context.Context, iri *url.URL) (map[string]any, error) {
	if doc, ok := f.docs[iri.String()]; ok {
		return doc, nil
	}
	return nil, fmt.Errorf("%w: 404", federation.ErrFatal)
}

func (f *fakePeer) Finger(ctx context.Context, host, resource string) (*wellknown.WebfingerResponse, error) {
	return nil, fmt.Errorf("%w: no webfinger here", federation.ErrFatal)
}

type delivery struct {
	body  map[string]any
	inbox string
	from  string
}

type fakeQueue struct {
	deliveries []delivery
	fetched    []string
}

func (f *fakeQueue) Deliver(ctx context.Context, body map[string]any, inbox string, from *domain.Actor) error {
	f.deliveries = append(f.deliveries, delivery{body, inbox, from.Username})
	return nil
}

func (f *fakeQueue) Fetch(iri string) error {
	f.fetched = append(f.fetched, iri)
	return nil
}

func TestMain(m *testing.M) {
	base, _ := url.Parse("http://feather.test")
	cfg := config.Configuration{
		Name:       "feather",
		Host:       "feather.test",
		Url:        base,
		RsaKeySize: 1024,
		InboxSize:  100,
	}

	d, err := initialization.OpenDB("file:activity?mode=memory&cache=shared")
	if err != nil {
		return
	}
	if err = initialization.SetupDB(&cfg, d, "../../../migrations", "activity"); err != nil {
		return
	}
	DB = db_impl.New(cfg, d, notify.NewHub())

	pubPem, _, err := utils.GenerateKeysPem(1024)
	if err != nil {
		return
	}

	alice, err = DB.InsertLocalAccount(ctx, "alice", "hunter2", "Alice", "", false)
	if err != nil {
		return
	}
	bob, err = DB.InsertRemoteAccount(ctx, db.RemoteSeed{
		Username:     "bob",
		Host:         remoteHost,
		URI:          remoteURI("users/bob"),
		InboxURI:     remoteURI("inbox"),
		KeyURI:       remoteURI("users/bob#main-key"),
		PublicKeyPem: pubPem,
	})
	if err != nil {
		return
	}

	peer = &fakePeer{docs: map[string]map[string]any{}}
	res, err := resolver.New(cfg, DB, peer)
	if err != nil {
		return
	}
	q = &fakeQueue{}
	machine = New(cfg, DB, peer, res, q)
	m.Run()
}

func remoteURI(path string) string {
	return "https://" + remoteHost + "/" + path
}

func localNoteURI(note *domain.Note) string {
	return "http://feather.test/@alice/" + note.Status().ID
}

// act wraps the body into a pinned document the way the inbox endpoint does.
func act(t *testing.T, actor *domain.Actor, body map[string]any) error {
	t.Helper()
	return machine.Act(ctx, apdoc.New(peer, body, remoteHost), actor)
}

func publicNote(id, attributedTo, content string) map[string]any {
	return map[string]any{
		"id":           id,
		"type":         "Note",
		"attributedTo": attributedTo,
		"published":    time.Now().UTC().Format(time.RFC3339),
		"to":           []any{config.PublicAudience},
		"content":      content,
	}
}

func TestCreateNote(t *testing.T) {
	noteURI := remoteURI("notes/1")
	create := map[string]any{
		"id":     remoteURI("activities/1"),
		"type":   "Create",
		"actor":  remoteURI("users/bob"),
		"object": publicNote(noteURI, remoteURI("users/bob"), "hello"),
	}

	if err := act(t, bob, create); err != nil {
		t.Fatal(err)
	}

	allocation, err := DB.SelectAllocatedURI(ctx, noteURI)
	if err != nil {
		t.Fatal(err)
	}
	if allocation == nil {
		t.Fatal("expected the note's uri to be allocated")
	}
	note, err := DB.SelectNoteByURI(ctx, allocation)
	if err != nil {
		t.Fatal(err)
	}
	if note.Content != "hello" {
		t.Errorf("unexpected content %q", note.Content)
	}

	// Redelivery must acknowledge without creating anything.
	if err = act(t, bob, create); err != nil {
		t.Fatal(err)
	}
	again, err := DB.SelectNoteByURI(ctx, allocation)
	if err != nil {
		t.Fatal(err)
	}
	if again.Status().ID != note.Status().ID {
		t.Error("expected the redelivered note to resolve to the same row")
	}
}

func TestCreateAttributionMismatch(t *testing.T) {
	create := map[string]any{
		"id":     remoteURI("activities/2"),
		"type":   "Create",
		"actor":  remoteURI("users/bob"),
		"object": publicNote(remoteURI("notes/2"), remoteURI("users/mallory"), "forged"),
	}

	err := act(t, bob, create)
	if !errors.Is(err, federation.ErrVerification) {
		t.Fatalf("expected a verification error, got %v", err)
	}
	allocation, err := DB.SelectAllocatedURI(ctx, remoteURI("notes/2"))
	if err != nil {
		t.Fatal(err)
	}
	if allocation != nil {
		t.Error("expected the forged note to stay out of the database")
	}
}

func TestClaimedActorMismatch(t *testing.T) {
	create := map[string]any{
		"id":     remoteURI("activities/3"),
		"type":   "Create",
		"actor":  remoteURI("users/mallory"),
		"object": publicNote(remoteURI("notes/3"), remoteURI("users/mallory"), "spoofed"),
	}

	err := act(t, bob, create)
	if !errors.Is(err, federation.ErrVerification) {
		t.Fatalf("expected a verification error, got %v", err)
	}
}

func TestNonPublicNoteDropped(t *testing.T) {
	noteURI := remoteURI("notes/4")
	note := publicNote(noteURI, remoteURI("users/bob"), "whisper")
	delete(note, "to")
	create := map[string]any{
		"id":     remoteURI("activities/4"),
		"type":   "Create",
		"actor":  remoteURI("users/bob"),
		"object": note,
	}

	if err := act(t, bob, create); err != nil {
		t.Fatal(err)
	}
	allocation, err := DB.SelectAllocatedURI(ctx, noteURI)
	if err != nil {
		t.Fatal(err)
	}
	if allocation != nil {
		t.Error("expected the non-public note to be dropped")
	}
}

func TestFollowersOnlyNoteDropped(t *testing.T) {
	// Addressed to a followers collection the peer would not even serve.
	// The audience check must read the id and drop the note without
	// dereferencing the collection.
	noteURI := remoteURI("notes/13")
	note := publicNote(noteURI, remoteURI("users/bob"), "for followers")
	note["to"] = remoteURI("users/bob/followers")
	create := map[string]any{
		"id":     remoteURI("activities/13"),
		"type":   "Create",
		"actor":  remoteURI("users/bob"),
		"object": note,
	}

	if err := act(t, bob, create); err != nil {
		t.Fatal(err)
	}
	allocation, err := DB.SelectAllocatedURI(ctx, noteURI)
	if err != nil {
		t.Fatal(err)
	}
	if allocation != nil {
		t.Error("expected the followers-only note to be dropped")
	}
}

func TestExplicitlyEmptySummaryRejected(t *testing.T) {
	noteURI := remoteURI("notes/14")
	note := publicNote(noteURI, remoteURI("users/bob"), "summarized")
	note["summary"] = ""
	create := map[string]any{
		"id":     remoteURI("activities/14"),
		"type":   "Create",
		"actor":  remoteURI("users/bob"),
		"object": note,
	}

	err := act(t, bob, create)
	if !errors.Is(err, domain.ErrEmptySummary) {
		t.Fatalf("expected an empty summary error, got %v", err)
	}
	if code := federation.StatusCode(err); code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for a malformed note, got %d", code)
	}
	if federation.Retryable(err) {
		t.Error("redelivering a malformed note cannot succeed")
	}
	allocation, err := DB.SelectAllocatedURI(ctx, noteURI)
	if err != nil {
		t.Fatal(err)
	}
	if allocation != nil {
		t.Error("expected the malformed note to stay out of the database")
	}
}

func TestReplyKeepsForwardReference(t *testing.T) {
	parent := "https://elsewhere.test/notes/7"
	noteURI := remoteURI("notes/5")
	note := publicNote(noteURI, remoteURI("users/bob"), "a reply")
	note["inReplyTo"] = parent
	create := map[string]any{
		"id":     remoteURI("activities/5"),
		"type":   "Create",
		"actor":  remoteURI("users/bob"),
		"object": note,
	}

	if err := act(t, bob, create); err != nil {
		t.Fatal(err)
	}

	allocation, err := DB.SelectAllocatedURI(ctx, noteURI)
	if err != nil || allocation == nil {
		t.Fatal(err)
	}
	stored, err := DB.SelectNoteByURI(ctx, allocation)
	if err != nil {
		t.Fatal(err)
	}
	if stored.InReplyToID != "" || stored.InReplyToURI != parent {
		t.Errorf("expected a forward reference to %s, got id %q uri %q",
			parent, stored.InReplyToID, stored.InReplyToURI)
	}

	var queued bool
	for _, iri := range q.fetched {
		if iri == parent {
			queued = true
		}
	}
	if !queued {
		t.Error("expected the parent to be queued for fetching")
	}
}

func TestFollowDeliversAccept(t *testing.T) {
	follow := map[string]any{
		"id":     remoteURI("activities/6"),
		"type":   "Follow",
		"actor":  remoteURI("users/bob"),
		"object": "http://feather.test/@alice",
	}

	before := len(q.deliveries)
	if err := act(t, bob, follow); err != nil {
		t.Fatal(err)
	}

	followers, err := DB.SelectFollowersOf(ctx, alice)
	if err != nil {
		t.Fatal(err)
	}
	if len(followers) != 1 || followers[0].ID != bob.ID {
		t.Fatalf("unexpected followers %v", followers)
	}

	accepts := q.deliveries[before:]
	if len(accepts) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(accepts))
	}
	if accepts[0].body["type"] != "Accept" {
		t.Errorf("expected an Accept, got %v", accepts[0].body["type"])
	}
	if accepts[0].inbox != remoteURI("inbox") {
		t.Errorf("expected delivery to bob's inbox, got %s", accepts[0].inbox)
	}
	if accepts[0].from != "alice" {
		t.Errorf("expected the accept to be sent as alice, got %s", accepts[0].from)
	}
}

func TestAnnounceAndUndo(t *testing.T) {
	note, err := machine.CreateLocalNote(ctx, alice, "announce me", NoteOptions{})
	if err != nil {
		t.Fatal(err)
	}

	announceURI := remoteURI("activities/7")
	announce := map[string]any{
		"id":        announceURI,
		"type":      "Announce",
		"actor":     remoteURI("users/bob"),
		"published": time.Now().UTC().Format(time.RFC3339),
		"to":        []any{config.PublicAudience},
		"object":    localNoteURI(note),
	}
	if err = act(t, bob, announce); err != nil {
		t.Fatal(err)
	}

	allocation, err := DB.SelectAllocatedURI(ctx, announceURI)
	if err != nil {
		t.Fatal(err)
	}
	if allocation == nil {
		t.Fatal("expected the announce to be allocated under the activity id")
	}

	// A redelivered announce is recognized by its allocated id.
	if err = act(t, bob, announce); err != nil {
		t.Fatal(err)
	}

	undo := map[string]any{
		"id":     remoteURI("activities/8"),
		"type":   "Undo",
		"actor":  remoteURI("users/bob"),
		"object": map[string]any{"id": announceURI, "type": "Announce"},
	}
	if err = act(t, bob, undo); err != nil {
		t.Fatal(err)
	}
	released, err := DB.SelectAllocatedURI(ctx, announceURI)
	if err != nil {
		t.Fatal(err)
	}
	if released != nil {
		t.Error("expected the undone announce to release its allocation")
	}
}

func TestLikeAndUndo(t *testing.T) {
	note, err := machine.CreateLocalNote(ctx, alice, "like me", NoteOptions{})
	if err != nil {
		t.Fatal(err)
	}

	like := map[string]any{
		"id":     remoteURI("activities/9"),
		"type":   "Like",
		"actor":  remoteURI("users/bob"),
		"object": localNoteURI(note),
	}
	if err = act(t, bob, like); err != nil {
		t.Fatal(err)
	}

	undo := map[string]any{
		"id":    remoteURI("activities/10"),
		"type":  "Undo",
		"actor": remoteURI("users/bob"),
		"object": map[string]any{
			"type":   "Like",
			"actor":  remoteURI("users/bob"),
			"object": localNoteURI(note),
		},
	}
	if err = act(t, bob, undo); err != nil {
		t.Fatal(err)
	}

	// Undoing something no longer there is a hard error.
	err = act(t, bob, undo)
	if !errors.Is(err, db.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestUndoUnknownKindUnsupported(t *testing.T) {
	undo := map[string]any{
		"id":     remoteURI("activities/11"),
		"type":   "Undo",
		"actor":  remoteURI("users/bob"),
		"object": map[string]any{"id": remoteURI("blocks/1"), "type": "Block"},
	}
	err := act(t, bob, undo)
	if !errors.Is(err, federation.ErrUnsupported) {
		t.Errorf("expected unsupported, got %v", err)
	}
}

func TestDeleteUnknownIsNoop(t *testing.T) {
	del := map[string]any{
		"id":     remoteURI("activities/12"),
		"type":   "Delete",
		"actor":  remoteURI("users/bob"),
		"object": remoteURI("notes/never-seen"),
	}
	if err := act(t, bob, del); err != nil {
		t.Errorf("expected a tombstone for an unknown object to succeed, got %v", err)
	}
}
