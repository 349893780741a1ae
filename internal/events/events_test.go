package events

import (
	"context"
	"os"
	"testing"
	"time"

	"docspace/internal/document/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collectSink struct {
	events chan model.Event
}

func newCollectSink() *collectSink {
	return &collectSink{events: make(chan model.Event, 16)}
}

func (c *collectSink) Publish(_ context.Context, ev model.Event) {
	c.events <- ev
}

func TestFanoutSkipsNilSinks(t *testing.T) {
	a, b := newCollectSink(), newCollectSink()
	f := Fanout{a, nil, b}

	f.Publish(context.Background(), model.Event{Type: model.EventCreated, DocumentID: "d"})

	assert.Equal(t, "d", (<-a.events).DocumentID)
	assert.Equal(t, "d", (<-b.events).DocumentID)
}

func TestHandleDropsOwnEchoes(t *testing.T) {
	bus := &RedisBus{origin: "me", channel: Channel}
	sink := newCollectSink()

	bus.handle(context.Background(), `{"type":"updated","documentId":"d1","origin":"me"}`, sink)
	bus.handle(context.Background(), `not json`, sink)
	bus.handle(context.Background(), `{"type":"removed","documentId":"d2","origin":"other"}`, sink)

	require.Len(t, sink.events, 1)
	ev := <-sink.events
	assert.Equal(t, model.EventRemoved, ev.Type)
	assert.Equal(t, "d2", ev.DocumentID)
}

// Needs a running server: DOCSPACE_TEST_REDIS_ADDR=localhost:6379.
func TestRedisRelayBetweenInstances(t *testing.T) {
	addr := os.Getenv("DOCSPACE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("DOCSPACE_TEST_REDIS_ADDR not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := ConnectRedis(ctx, RedisOptions{Addr: addr})
	require.NoError(t, err)
	defer client.Close()

	sender := NewRedisBus(client, "instance-a")
	receiver := NewRedisBus(client, "instance-b")
	sink := newCollectSink()

	relayCtx, stop := context.WithCancel(ctx)
	defer stop()
	go receiver.Relay(relayCtx, sink)

	// Give the subscription a moment to register before publishing.
	time.Sleep(100 * time.Millisecond)
	sender.Publish(ctx, model.Event{Type: model.EventArchived, DocumentID: "doc-1"})

	select {
	case ev := <-sink.events:
		assert.Equal(t, "doc-1", ev.DocumentID)
		assert.Equal(t, "instance-a", ev.Origin)
	case <-ctx.Done():
		t.Fatal("event was not relayed")
	}
}
