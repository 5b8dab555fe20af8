package queue

import (
	"time"

	"github.com/mikestefanello/backlite"
)

const (
	FetchQueue = "Fetch"
	PostQueue  = "Post"
)

// FetchJob dereferences a forward-referenced object, such as the parent of a
// reply that arrived before the thread it belongs to.
type FetchJob struct {
	Iri string
}

func (j FetchJob) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        FetchQueue,
		MaxAttempts: 5,
		Backoff:     5 * time.Second,
		Timeout:     10 * time.Second,
		Retention: &backlite.Retention{
			Duration:   12 * time.Hour,
			OnlyFailed: false,
			Data: &backlite.RetainData{
				OnlyFailed: true,
			},
		},
	}
}

// PostJob delivers a serialized activity to a remote inbox, signed as the
// local actor named by From.
type PostJob struct {
	To   string
	From string
	Body map[string]any
}

func (j PostJob) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        PostQueue,
		MaxAttempts: 5,
		Backoff:     5 * time.Second,
		Timeout:     10 * time.Second,
		Retention: &backlite.Retention{
			Duration:   12 * time.Hour,
			OnlyFailed: false,
			Data: &backlite.RetainData{
				OnlyFailed: true,
			},
		},
	}
}
