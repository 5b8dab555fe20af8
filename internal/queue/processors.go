package queue

import (
	"context"
	"net/url"

	"github.com/mikestefanello/backlite"
	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/feather/internal/federation"
)

func (q *apQueueImpl) register() {
	fetchQueue := backlite.NewQueue[FetchJob](q.fetch())
	deliveryQueue := backlite.NewQueue[PostJob](q.deliver())

	q.queues.Register(fetchQueue)
	q.queues.Register(deliveryQueue)
}

func (q *apQueueImpl) fetch() func(context.Context, FetchJob) error {
	return func(ctx context.Context, task FetchJob) error {
		log.Debug().Str("iri", task.Iri).Msg("fetching IRI")

		err := q.ingester.IngestNoteByURI(ctx, task.Iri)
		if err != nil && !federation.Retryable(err) {
			log.Warn().Err(err).Str("iri", task.Iri).Msg("dropping unfetchable reference")
			return nil
		}
		return err
	}
}

func (q *apQueueImpl) deliver() func(context.Context, PostJob) error {
	return func(ctx context.Context, pj PostJob) error {
		to, err := url.Parse(pj.To)
		if err != nil {
			log.Error().Err(err).Str("to", pj.To).Msg("undeliverable inbox")
			return nil
		}

		log.Debug().Str("inbox", pj.To).Str("from", pj.From).Msg("delivering activity")

		from, err := q.db.SelectActorByUsernameAndHost(ctx, pj.From, "")
		if err != nil {
			log.Error().Err(err).Str("from", pj.From).Msg("delivery sender not found")
			return err
		}

		err = q.client.DeliverAs(ctx, pj.Body, to, from)
		if err != nil && !federation.Retryable(err) {
			log.Warn().Err(err).Str("inbox", pj.To).Msg("dropping rejected delivery")
			return nil
		}
		return err
	}
}
