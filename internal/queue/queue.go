package queue

import (
	"context"

	"github.com/mikestefanello/backlite"
	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/feather/internal/client"
	"github.com/sidereusnuntius/feather/internal/db"
	"github.com/sidereusnuntius/feather/internal/domain"
)

//go:generate mockgen -destination ../mocks/ingester.go -package mocks github.com/sidereusnuntius/feather/internal/queue Ingester

// Ingester turns a fetched forward reference into local rows. Implemented by
// the activity layer; injected at Start to keep the queue free of ingestion
// logic.
type Ingester interface {
	IngestNoteByURI(ctx context.Context, iri string) error
}

type ApQueue interface {
	// Deliver enqueues a signed post of body to a remote inbox on behalf of
	// from. Delivery happens asynchronously with retries.
	Deliver(ctx context.Context, body map[string]any, inbox string, from *domain.Actor) error

	// Fetch enqueues a dereference of iri, ingesting the result.
	Fetch(iri string) error
}

type apQueueImpl struct {
	db       db.DB
	queues   *backlite.Client
	client   *client.HttpClient
	ingester Ingester
}

func New(db db.DB, client *client.HttpClient, blClient *backlite.Client) *apQueueImpl {
	return &apQueueImpl{
		db:     db,
		queues: blClient,
		client: client,
	}
}

// Start registers the processors and begins dispatching. The ingester is
// supplied here because it is constructed after the queue itself.
func (q *apQueueImpl) Start(ctx context.Context, ingester Ingester) {
	q.ingester = ingester
	q.register()
	q.queues.Start(ctx)
	log.Info().Msg("started task queue")
}

func (q *apQueueImpl) Deliver(ctx context.Context, body map[string]any, inbox string, from *domain.Actor) error {
	log.Debug().Str("inbox", inbox).Str("from", from.Acct()).Msg("enqueueing delivery job")
	task := PostJob{
		To:   inbox,
		From: from.Username,
		Body: body,
	}
	_, err := q.queues.Add(task).Save()
	return err
}

func (q *apQueueImpl) Fetch(iri string) error {
	log.Debug().Str("iri", iri).Msg("enqueueing fetch task")
	task := FetchJob{
		Iri: iri,
	}
	_, err := q.queues.Add(task).Save()
	return err
}
