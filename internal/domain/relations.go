package domain

// Follow records that actor requested to follow object. It is deleted on
// Undo.
type Follow struct {
	ID       int64
	ActorID  int64
	ObjectID int64
	Actor    *Ref[*Actor]
	Object   *Ref[*Actor]
}

// Accept wraps a follow; its presence signals the follow is confirmed. One
// is created whenever a follow is.
type Accept struct {
	ID       int64
	ObjectID int64
	Object   *Ref[*Follow]
}

// Like marks actor's appreciation of a note.
type Like struct {
	ID       int64
	ActorID  int64
	ObjectID string
	Actor    *Ref[*Actor]
	Object   *Ref[*Note]
}
