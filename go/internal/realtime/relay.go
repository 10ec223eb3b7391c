package realtime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/lib/pq"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scrumscope/go/internal/migrations"
)

type RelayConfig struct {
	FallbackInterval time.Duration // How often to sweep for changes missed by NOTIFY
	MaxRetries       int
	RetryDelay       time.Duration
	PingInterval     time.Duration
	BatchSize        int // Max changes per sweep
}

func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		FallbackInterval: 10 * time.Second,
		MaxRetries:       5,
		RetryDelay:       200 * time.Millisecond,
		PingInterval:     90 * time.Second,
		BatchSize:        100,
	}
}

// Notifier yields the change ids announced by the database.
type Notifier interface {
	Notifications() <-chan *pq.Notification
	Ping() error
	Close() error
}

// PQNotifier LISTENs on a Postgres channel.
type PQNotifier struct {
	listener *pq.Listener
}

func NewPQNotifier(dsn, channel string) (*PQNotifier, error) {
	l := pq.NewListener(
		dsn,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(channel); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}
	log.Info().Str("channel", channel).Msg("listening for notifications")
	return &PQNotifier{listener: l}, nil
}

func (n *PQNotifier) Notifications() <-chan *pq.Notification {
	return n.listener.Notify
}

func (n *PQNotifier) Ping() error {
	return n.listener.Ping()
}

func (n *PQNotifier) Close() error {
	return n.listener.Close()
}

// Relay moves room_changes rows onto the bus. NOTIFY gives low latency; the
// periodic sweep picks up anything missed while disconnected or after a
// failed publish.
type Relay struct {
	outbox    Outbox
	notifier  Notifier
	publisher Publisher
	clock     clockwork.Clock
	cfg       RelayConfig

	running     atomic.Bool
	processed   atomic.Uint64
	lastPublish atomic.Int64 // unix nanos
}

func NewRelay(outbox Outbox, notifier Notifier, publisher Publisher, clock clockwork.Clock, cfg RelayConfig) *Relay {
	return &Relay{
		outbox:    outbox,
		notifier:  notifier,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
	}
}

func (r *Relay) Start(ctx context.Context) error {
	r.running.Store(true)
	defer r.running.Store(false)

	log.Info().
		Dur("ping_interval", r.cfg.PingInterval).
		Dur("fallback_interval", r.cfg.FallbackInterval).
		Msg("relay started")

	if err := r.processUnsent(ctx); err != nil {
		log.Error().Err(err).Msg("failed to process unsent changes")
	}

	pingTicker := r.clock.NewTicker(r.cfg.PingInterval)
	fallbackTicker := r.clock.NewTicker(r.cfg.FallbackInterval)
	defer pingTicker.Stop()
	defer fallbackTicker.Stop()

	notes := r.notifier.Notifications()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("relay shutting down")
			return r.notifier.Close()
		case note, ok := <-notes:
			if !ok {
				return errors.New("notification channel closed")
			}
			if note == nil {
				// connection was re-established; NOTIFYs may have been lost
				if err := r.processUnsent(ctx); err != nil {
					log.Error().Err(err).Msg("failed to process unsent changes")
				}
				continue
			}
			if err := r.handleNotification(ctx, note.Extra); err != nil {
				log.Error().Err(err).Msg("failed to handle notification")
			}
		case <-fallbackTicker.Chan():
			if err := r.processUnsent(ctx); err != nil {
				log.Error().Err(err).Msg("failed to process unsent changes")
			}
		case <-pingTicker.Chan():
			if err := r.notifier.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

// handleNotification publishes the change whose id is the notification
// payload. If an older change is still waiting, it sweeps instead so the bus
// keeps commit order.
func (r *Relay) handleNotification(ctx context.Context, extra string) error {
	id, err := uuid.Parse(extra)
	if err != nil {
		return fmt.Errorf("invalid change id in notification: %w", err)
	}

	change, err := r.outbox.Fetch(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to fetch change: %w", err)
	}
	if change.Sent {
		return nil
	}

	behind, err := r.outbox.HasUnsentBefore(ctx, change.Seq)
	if err != nil {
		return fmt.Errorf("failed to check for older changes: %w", err)
	}
	if behind {
		log.Debug().
			Str("event_id", change.ID).
			Int64("seq", change.Seq).
			Msg("older changes unsent, sweeping")
		return r.processUnsent(ctx)
	}

	if err := r.publishWithRetry(ctx, change); err != nil {
		return err
	}
	if err := r.outbox.MarkSent(ctx, id); err != nil {
		return fmt.Errorf("failed to mark change %s sent: %w", id, err)
	}

	log.Debug().
		Str("event_id", change.ID).
		Str("room_id", change.RoomID).
		Str("table", change.Table).
		Str("event_type", string(change.Type)).
		Msg("relayed change")
	return nil
}

func (r *Relay) processUnsent(ctx context.Context) error {
	sent, err := r.outbox.ProcessUnsent(ctx, r.cfg.BatchSize, func(c PendingChange) error {
		return r.publishWithRetry(ctx, c)
	})
	if err != nil {
		return err
	}
	if sent > 0 {
		log.Info().Int("count", sent).Msg("relayed unsent changes")
	}
	return nil
}

// publishWithRetry publishes with a linearly growing delay between attempts.
func (r *Relay) publishWithRetry(ctx context.Context, change PendingChange) error {
	var lastErr error

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-r.clock.After(r.cfg.RetryDelay * time.Duration(attempt)):
			}
		}

		if err := r.publisher.Publish(ctx, change.Envelope); err != nil {
			lastErr = err
			log.Error().
				Err(err).
				Int("attempt", attempt+1).
				Str("event_id", change.ID).
				Msg("failed to publish, retrying")
			continue
		}

		r.processed.Add(1)
		r.lastPublish.Store(r.clock.Now().UnixNano())
		if attempt > 0 {
			log.Info().
				Int("attempt", attempt+1).
				Str("event_id", change.ID).
				Msg("publish succeeded after retry")
		}
		return nil
	}

	return fmt.Errorf("publish failed after %d attempts: %w", r.cfg.MaxRetries+1, lastErr)
}

// Stats returns how many changes were published and when the last one was.
func (r *Relay) Stats() (uint64, time.Time) {
	var last time.Time
	if ns := r.lastPublish.Load(); ns != 0 {
		last = time.Unix(0, ns)
	}
	return r.processed.Load(), last
}

func (r *Relay) Running() bool {
	return r.running.Load()
}

// NewPostgresRelay wires a Relay that drains the room_changes table of db
// onto js.
func NewPostgresRelay(db *sql.DB, dsn string, js jetstream.JetStream, jsCfg JetStreamConfig, cfg RelayConfig, clock clockwork.Clock) (*Relay, error) {
	notifier, err := NewPQNotifier(dsn, migrations.NotifyChannel)
	if err != nil {
		return nil, fmt.Errorf("create notifier: %w", err)
	}
	return NewRelay(NewSQLOutbox(db), notifier, NewJetStreamPublisher(js, jsCfg), clock, cfg), nil
}
