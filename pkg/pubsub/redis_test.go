package pubsub

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"soundwork/pkg/ledger"
)

type recordingSink struct {
	mu     sync.Mutex
	events []ledger.Event
}

func (s *recordingSink) Publish(_ context.Context, ev ledger.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) seqs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Seq)
	}
	return out
}

func TestEnvelopeRoundTrip(t *testing.T) {
	ev := ledger.Event{Seq: 7, Type: ledger.EventBidPlaced, AssetID: 3, Amount: 500}
	payload, err := Encode("node-a", ev)
	require.NoError(t, err)

	env, err := Decode(payload)
	require.NoError(t, err)
	require.Equal(t, "node-a", env.Origin)
	require.Equal(t, ev.Seq, env.Event.Seq)
	require.Equal(t, ev.Type, env.Event.Type)
}

func TestDecode_Rejects(t *testing.T) {
	_, err := Decode([]byte("not json"))
	require.Error(t, err)

	_, err = Decode([]byte(`{"event":{"seq":1}}`))
	require.ErrorContains(t, err, "missing origin")
}

func TestRelay_SkipsOwnOrigin(t *testing.T) {
	sink := &recordingSink{}
	r := NewRelay(nil, "", "self", sink, zap.NewNop())

	own, _ := Encode("self", ledger.Event{Seq: 1})
	other, _ := Encode("peer", ledger.Event{Seq: 2})

	r.handle(context.Background(), own)
	r.handle(context.Background(), []byte("garbage"))
	r.handle(context.Background(), other)

	require.Equal(t, []int64{2}, sink.seqs())
}

func TestRedisRelay_CrossInstance(t *testing.T) {
	url := os.Getenv("REDIS_URL_FOR_TEST")
	if url == "" {
		t.Skip("REDIS_URL_FOR_TEST not set; skipping redis tests")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := Connect(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	channel := "soundwork:test:" + time.Now().Format("150405.000000")
	local := NewRedisPublisher(client, channel)
	remote := NewRedisPublisher(client, channel)

	sink := &recordingSink{}
	relay := NewRelay(client, channel, local.Origin(), sink, zap.NewNop())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	// Wait for the subscription before publishing.
	require.Eventually(t, func() bool {
		n, err := client.PubSubNumSub(ctx, channel).Result()
		return err == nil && n[channel] > 0
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, local.Publish(ctx, ledger.Event{Seq: 1}))
	require.NoError(t, remote.Publish(ctx, ledger.Event{Seq: 2}))

	require.Eventually(t, func() bool {
		return len(sink.seqs()) == 1
	}, 5*time.Second, 20*time.Millisecond)
	require.Equal(t, []int64{2}, sink.seqs())

	cancel()
	require.NoError(t, <-done)
}
