package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	"aaveCustody/internal/model"
)

// fakeJetStream records stream setup and published messages. Methods it
// does not override panic through the nil embedded interface.
type fakeJetStream struct {
	jetstream.JetStream

	streams    []jetstream.StreamConfig
	streamErr  error
	published  []*nats.Msg
	publishErr error
}

func (f *fakeJetStream) CreateOrUpdateStream(_ context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	f.streams = append(f.streams, cfg)
	return nil, f.streamErr
}

func (f *fakeJetStream) PublishMsg(_ context.Context, msg *nats.Msg, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	if f.publishErr != nil {
		return nil, f.publishErr
	}
	f.published = append(f.published, msg)
	return &jetstream.PubAck{Stream: StreamName, Sequence: uint64(len(f.published))}, nil
}

func TestSubject(t *testing.T) {
	p := NewPublisher(nil, "")
	require.Equal(t, "custody.events.SupplyLiquidity", p.Subject(model.CustodyEvent{Kind: model.EventSupplyLiquidity}))

	p = NewPublisher(nil, "vault.prod")
	require.Equal(t, "vault.prod.Withdraw", p.Subject(model.CustodyEvent{Kind: model.EventWithdraw}))
}

func TestEnsureStream(t *testing.T) {
	js := &fakeJetStream{}
	require.NoError(t, NewPublisher(js, "vault.prod").EnsureStream(context.Background()))

	require.Len(t, js.streams, 1)
	cfg := js.streams[0]
	require.Equal(t, StreamName, cfg.Name)
	require.Equal(t, []string{"vault.prod.>"}, cfg.Subjects)
	require.Equal(t, jetstream.FileStorage, cfg.Storage)
	require.Equal(t, 10*time.Minute, cfg.Duplicates)
}

func TestEnsureStreamError(t *testing.T) {
	js := &fakeJetStream{streamErr: errors.New("jetstream not enabled")}
	err := NewPublisher(js, "").EnsureStream(context.Background())
	require.ErrorIs(t, err, js.streamErr)
}

func TestPutEventBatchPublishesWithMsgID(t *testing.T) {
	js := &fakeJetStream{}
	p := NewPublisher(js, "")
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	events := []model.CustodyEvent{
		{ID: "6f1c2b7e-0000-4000-8000-000000000001", Kind: model.EventSupplyLiquidity, Token: "0x03", Amount: "100", Timestamp: ts},
		{ID: "6f1c2b7e-0000-4000-8000-000000000002", Kind: model.EventWithdraw, Token: "0x03", Timestamp: ts},
	}
	require.NoError(t, p.PutEventBatch(context.Background(), events))

	require.Len(t, js.published, 2)
	for i, msg := range js.published {
		require.Equal(t, "custody.events."+events[i].Kind, msg.Subject)
		require.Equal(t, events[i].ID, msg.Header.Get(nats.MsgIdHdr))

		var got model.CustodyEvent
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		require.True(t, events[i].Timestamp.Equal(got.Timestamp))
		got.Timestamp = events[i].Timestamp
		require.Equal(t, events[i], got)
	}
}

func TestPutEventBatchStopsOnPublishError(t *testing.T) {
	js := &fakeJetStream{publishErr: errors.New("nats: timeout")}
	err := NewPublisher(js, "").PutEventBatch(context.Background(), []model.CustodyEvent{{ID: "a", Kind: model.EventWithdraw}})
	require.ErrorIs(t, err, js.publishErr)
	require.Empty(t, js.published)
}
