package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scrumscope/go/internal/models"
	"github.com/mcdev12/scrumscope/go/internal/store"
)

var _ store.ChangeFeed = (*Feed)(nil)

// Feed serves room subscriptions from the change stream. Each subscription
// is an ordered consumer filtered to one room and table, starting at the
// first change published after it was opened.
type Feed struct {
	js  jetstream.JetStream
	cfg JetStreamConfig
}

func NewFeed(js jetstream.JetStream, cfg JetStreamConfig) *Feed {
	return &Feed{js: js, cfg: cfg}
}

func (f *Feed) SubscribePlayers(ctx context.Context, roomID uuid.UUID) (store.Subscription[models.Player], error) {
	return subscribe[models.Player](ctx, f, roomID, store.TablePlayers)
}

func (f *Feed) SubscribeTasks(ctx context.Context, roomID uuid.UUID) (store.Subscription[models.Task], error) {
	return subscribe[models.Task](ctx, f, roomID, store.TableTasks)
}

func subscribe[T any](ctx context.Context, f *Feed, roomID uuid.UUID, table string) (store.Subscription[T], error) {
	subject := Subject(f.cfg.SubjectPrefix, roomID, table)
	cons, err := f.js.OrderedConsumer(ctx, f.cfg.StreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{subject},
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create consumer for %s: %w", subject, err)
	}

	logger := log.With().Str("subject", subject).Logger()
	events := make(chan store.Change[T], f.cfg.BufferSize)

	var (
		mu     sync.Mutex
		closed bool
		cc     jetstream.ConsumeContext
	)
	shut := func() {
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			close(events)
		}
	}

	consumeCtx, err := cons.Consume(func(msg jetstream.Msg) {
		var env store.Envelope
		if err := json.Unmarshal(msg.Data(), &env); err != nil {
			logger.Error().Err(err).Msg("malformed change")
			return
		}
		change, err := store.DecodeChange[T](env)
		if err != nil {
			logger.Error().Err(err).Str("event_id", env.ID).Msg("undecodable change")
			return
		}

		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case events <- change:
		default:
			logger.Warn().Msg("subscriber buffer full, closing subscription")
			closed = true
			close(events)
			if cc != nil {
				go cc.Stop()
			}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", subject, err)
	}
	mu.Lock()
	cc = consumeCtx
	mu.Unlock()

	return store.NewSubscription[T](events, func() error {
		consumeCtx.Stop()
		shut()
		return nil
	}), nil
}
