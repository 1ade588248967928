package rosweb

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBridgePublishIsFireAndForget(t *testing.T) {
	transport := NewMockTransport()
	bridge := NewBridge(transport)
	defer bridge.Close()

	require.NoError(t, bridge.Publish(context.Background(), "/cmd_vel", `/{"linear": 0.5}`))
	waitForCount(t, transport, `/ros/pub/cmd_vel/{"linear": 0.5}`, 1)

	require.NoError(t, bridge.Announce(context.Background(), "/cmd_vel"))
	waitForCount(t, transport, "/ros/announce/cmd_vel", 1)
}

func TestTopicPublishUsesSeparateChannel(t *testing.T) {
	transport := NewMockTransport()
	transport.SetResponder(func(ctx context.Context, path string, n int) (string, error) {
		if path == "/ros/get/chat" {
			return blockUntilCancel(ctx)
		}
		return "", nil
	})
	bridge := NewBridge(transport)
	defer bridge.Close()

	topic := bridge.Topic("/chat")
	require.NoError(t, topic.SetCallback(context.Background(), func(ctx context.Context, msg Message) {}))
	waitForCount(t, transport, "/ros/get/chat", 1)

	require.NoError(t, topic.Announce(context.Background()))
	require.NoError(t, topic.Publish(context.Background(), "/hello"))
	waitForCount(t, transport, "/ros/pub/chat/hello", 1)
	waitForCount(t, transport, "/ros/announce/chat", 1)
	assert.True(t, topic.Channel().InFlight())
}

func TestBridgeStartupShutdown(t *testing.T) {
	transport := NewMockTransport()
	transport.SetResponder(func(ctx context.Context, path string, n int) (string, error) {
		switch path {
		case "/ros/startup":
			return "started", nil
		case "/ros/shutdown":
			return "", &StatusError{Code: http.StatusConflict, Path: path}
		}
		return "", nil
	})
	bridge := NewBridge(transport)
	defer bridge.Close()

	res, err := bridge.Startup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "started", res.Payload)

	res, err = bridge.Shutdown(context.Background())
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, ErrorSentinel, res.Raw())
}

func TestBridgeDuplicateSubscriptionsAreIndependent(t *testing.T) {
	transport := NewMockTransport()
	transport.SetResponder(func(ctx context.Context, path string, n int) (string, error) {
		if path == "/ros/get/dup" && n > 2 {
			return blockUntilCancel(ctx)
		}
		return "", nil
	})
	bridge := NewBridge(transport)
	defer bridge.Close()

	a := bridge.Topic("/dup")
	b := bridge.Topic("/dup")
	require.NotEqual(t, a.ID(), b.ID())

	handler := func(ctx context.Context, msg Message) {}
	require.NoError(t, a.SetCallback(context.Background(), handler))
	require.NoError(t, b.SetCallback(context.Background(), handler))

	waitForCount(t, transport, "/ros/subscribe/dup", 2)
	assert.NotSame(t, a.Channel(), b.Channel())
}

func TestBridgeCloseStopsSubscriptions(t *testing.T) {
	transport := NewMockTransport()
	transport.SetResponder(func(ctx context.Context, path string, n int) (string, error) {
		if path == "/ros/get/a" {
			return blockUntilCancel(ctx)
		}
		return "", nil
	})
	bridge := NewBridge(transport, WithTfInterval(time.Hour))

	topic := bridge.Topic("/a")
	tf := bridge.Tf("/b")
	require.NoError(t, topic.SetCallback(context.Background(), func(ctx context.Context, msg Message) {}))
	require.NoError(t, tf.SetCallback(context.Background(), nil, 0))
	waitForCount(t, transport, "/ros/get/a", 1)
	waitForCount(t, transport, "/ros/tfget/b", 1)

	require.NoError(t, bridge.Close())
	assert.True(t, bridge.IsClosed())

	waitDone(t, topic.Done())
	waitDone(t, tf.Done())

	require.ErrorIs(t, bridge.Publish(context.Background(), "/a", "/x"), ErrBridgeClosed)
	_, err := bridge.Startup(context.Background())
	require.ErrorIs(t, err, ErrBridgeClosed)
	require.NoError(t, bridge.Close())
}

func TestBridgeMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	transport := NewMockTransport()
	transport.SetResponder(func(ctx context.Context, path string, n int) (string, error) {
		if path == "/ros/shutdown" {
			return "", errors.New("unreachable")
		}
		return "ok", nil
	})

	bridge := NewBridge(transport, WithRegisterer(reg))
	defer bridge.Close()
	second := NewBridge(transport, WithRegisterer(reg))
	defer second.Close()

	_, err := bridge.Startup(context.Background())
	require.NoError(t, err)
	_, err = second.Shutdown(context.Background())
	require.Error(t, err)

	m := newMetrics(reg)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("startup", "none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("shutdown", "transport")))
}

func TestBridgeForgetsExitedLoops(t *testing.T) {
	transport := NewMockTransport()
	transport.SetResponder(func(ctx context.Context, path string, n int) (string, error) {
		if strings.HasPrefix(path, "/ros/get/") {
			return blockUntilCancel(ctx)
		}
		return "", nil
	})
	bridge := NewBridge(transport)
	impl := bridge.(*bridgeImpl)

	handler := func(ctx context.Context, msg Message) {}
	for i := 0; i < 20; i++ {
		topic := bridge.Topic("/churn")
		require.NoError(t, topic.SetCallback(context.Background(), handler))
		topic.Stop()
		waitDone(t, topic.Done())
	}
	assert.Equal(t, 0, impl.activeLoops())

	bridge.Topic("/never_started")
	assert.Equal(t, 0, impl.activeLoops())

	running := bridge.Topic("/running")
	require.NoError(t, running.SetCallback(context.Background(), handler))
	assert.Equal(t, 1, impl.activeLoops())

	require.NoError(t, bridge.Close())
	waitDone(t, running.Done())
	assert.Equal(t, 0, impl.activeLoops())
}

func TestTopicPublishAfterCloseFails(t *testing.T) {
	transport := NewMockTransport()
	bridge := NewBridge(transport)
	topic := bridge.Topic("/cmd")
	require.NoError(t, bridge.Close())

	require.ErrorIs(t, topic.Publish(context.Background(), "/go"), ErrBridgeClosed)
	require.ErrorIs(t, topic.Announce(context.Background()), ErrBridgeClosed)
	assert.Empty(t, transport.Calls())
}
