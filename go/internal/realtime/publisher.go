package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scrumscope/go/internal/store"
)

// Publisher delivers a change to the bus.
type Publisher interface {
	Publish(ctx context.Context, env store.Envelope) error
}

// JetStreamPublisher publishes changes with the change id as message id, so
// a change relayed twice is stored once.
type JetStreamPublisher struct {
	js  jetstream.JetStream
	cfg JetStreamConfig
}

func NewJetStreamPublisher(js jetstream.JetStream, cfg JetStreamConfig) *JetStreamPublisher {
	return &JetStreamPublisher{js: js, cfg: cfg}
}

func (p *JetStreamPublisher) Publish(ctx context.Context, env store.Envelope) error {
	roomID, err := uuid.Parse(env.RoomID)
	if err != nil {
		return fmt.Errorf("change %s: invalid room id: %w", env.ID, err)
	}
	subject := Subject(p.cfg.SubjectPrefix, roomID, env.Table)

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}

	ack, err := p.js.PublishMsg(ctx, &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"Event-Type": []string{string(env.Type)},
			"Room-ID":    []string{env.RoomID},
			"Event-ID":   []string{env.ID},
		},
	},
		jetstream.WithMsgID(env.ID),
		jetstream.WithExpectStream(p.cfg.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Debug().
		Str("subject", subject).
		Str("event_id", env.ID).
		Uint64("sequence", ack.Sequence).
		Bool("duplicate", ack.Duplicate).
		Msg("published change")
	return nil
}
