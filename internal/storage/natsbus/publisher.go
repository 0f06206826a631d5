package natsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"aaveCustody/internal/model"
)

// StreamName is the JetStream stream holding custody events.
const StreamName = "CUSTODY_EVENTS"

// Publisher publishes custody events to JetStream under
// {prefix}.{kind}, deduplicated by event id.
type Publisher struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	prefix string
}

// Connect dials NATS and prepares the custody stream.
func Connect(ctx context.Context, url, prefix string) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("custody"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	p := NewPublisher(js, prefix)
	p.conn = nc
	if err := p.EnsureStream(ctx); err != nil {
		nc.Close()
		return nil, err
	}
	return p, nil
}

// NewPublisher wraps an existing JetStream handle.
func NewPublisher(js jetstream.JetStream, prefix string) *Publisher {
	if prefix == "" {
		prefix = "custody.events"
	}
	return &Publisher{js: js, prefix: prefix}
}

// EnsureStream creates or updates the custody events stream.
func (p *Publisher) EnsureStream(ctx context.Context) error {
	_, err := p.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       StreamName,
		Subjects:   []string{p.prefix + ".>"},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     30 * 24 * time.Hour,
		Duplicates: 10 * time.Minute,
		Replicas:   1,
	})
	if err != nil {
		return fmt.Errorf("create custody stream: %w", err)
	}
	return nil
}

// Subject returns the subject an event is published on.
func (p *Publisher) Subject(event model.CustodyEvent) string {
	return fmt.Sprintf("%s.%s", p.prefix, event.Kind)
}

// PutEventBatch publishes each event and waits for the stream ack.
func (p *Publisher) PutEventBatch(ctx context.Context, events []model.CustodyEvent) error {
	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		msg := &nats.Msg{
			Subject: p.Subject(event),
			Data:    data,
			Header:  nats.Header{},
		}
		// the stream drops a repeated id within its duplicate window
		msg.Header.Set(nats.MsgIdHdr, event.ID)
		if _, err := p.js.PublishMsg(ctx, msg); err != nil {
			return fmt.Errorf("publish %s: %w", event.ID, err)
		}
	}
	return nil
}

// Close drains the connection if the publisher owns it.
func (p *Publisher) Close() {
	if p.conn != nil {
		_ = p.conn.Drain()
	}
}
