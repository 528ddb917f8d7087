package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisher_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	p := NewPublisher(rdb)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := p.Subscribe(ctx)
	require.NoError(t, err)

	p.Publish(ctx, EventBulkEmailProgress, map[string]interface{}{"job_id": "j1", "progress": 50})

	select {
	case msg := <-msgs:
		assert.Equal(t, EventBulkEmailProgress, msg.Event)
		var data map[string]interface{}
		require.NoError(t, json.Unmarshal(msg.Data, &data))
		assert.Equal(t, "j1", data["job_id"])
		assert.EqualValues(t, 50, data["progress"])
	case <-time.After(2 * time.Second):
		t.Fatal("no realtime message received")
	}

	cancel()
	// The channel closes once the context ends.
	for range msgs {
	}
}

func TestPublisher_PublishFailureIsSwallowed(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	p := NewPublisher(rdb)
	assert.NotPanics(t, func() {
		p.Publish(context.Background(), EventBulkEmailError, map[string]string{"error": "boom"})
	})
}
