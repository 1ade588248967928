package server

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newValkeyBroker connects to VALKEY_ADDR, skipping the test when unset.
func newValkeyBroker(t *testing.T) *ValkeyBroker {
	t.Helper()
	addr := os.Getenv("VALKEY_ADDR")
	if addr == "" {
		t.Skip("VALKEY_ADDR not set")
	}

	client, err := NewValkeyClient(addr)
	require.NoError(t, err)

	broker := NewValkeyBroker(client, "rosweb-test:"+uuid.NewString()+":", zap.NewNop())
	t.Cleanup(func() { broker.Close() })
	return broker
}

func TestValkeyBrokerPublishSubscribe(t *testing.T) {
	broker := newValkeyBroker(t)
	ctx := context.Background()

	msgs, cancel, err := broker.Subscribe(ctx, "/chatter")
	require.NoError(t, err)
	defer cancel()

	require.Eventually(t, func() bool {
		if err := broker.Publish(ctx, "/chatter", "hello"); err != nil {
			return false
		}
		select {
		case msg := <-msgs:
			return msg.Payload == "hello" && msg.Topic == "/chatter"
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
}

func TestValkeyBrokerTransformsAndAnnounce(t *testing.T) {
	broker := newValkeyBroker(t)
	ctx := context.Background()

	_, err := broker.Transform(ctx, "/base_link")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, broker.SetTransform(ctx, "/base_link", `{"x": 1}`))
	value, err := broker.Transform(ctx, "/base_link")
	require.NoError(t, err)
	assert.Equal(t, `{"x": 1}`, value)

	require.NoError(t, broker.Announce(ctx, "/cmd_vel"))
	announced, err := broker.Announced(ctx)
	require.NoError(t, err)
	assert.Contains(t, announced, "/cmd_vel")
}

func TestValkeyBrokerClosed(t *testing.T) {
	broker := newValkeyBroker(t)
	require.NoError(t, broker.Close())

	require.ErrorIs(t, broker.Publish(context.Background(), "/a", "x"), ErrBrokerClosed)
	_, _, err := broker.Subscribe(context.Background(), "/a")
	require.ErrorIs(t, err, ErrBrokerClosed)
}
