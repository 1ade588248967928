package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/valkey-io/valkey-go"
	"go.uber.org/zap"
)

// ValkeyBroker fronts a valkey server. Topics map to pub/sub channels,
// transforms and the robot run state to plain keys.
type ValkeyBroker struct {
	client     valkey.Client
	prefix     string
	logger     *zap.Logger
	bufferSize int
	ctx        context.Context
	cancel     context.CancelFunc
	mu         sync.RWMutex
	connected  bool
	closedChan chan struct{}
	once       sync.Once
}

func (v *ValkeyBroker) topicChannel(topic string) string { return v.prefix + "topic:" + topic }
func (v *ValkeyBroker) transformKey(name string) string  { return v.prefix + "tf:" + name }
func (v *ValkeyBroker) announcedKey() string             { return v.prefix + "announced" }
func (v *ValkeyBroker) tfSubscribedKey() string          { return v.prefix + "tf:subscribed" }
func (v *ValkeyBroker) robotStateKey() string            { return v.prefix + "robot:state" }

// Publish publishes payload on the valkey channel of topic.
func (v *ValkeyBroker) Publish(ctx context.Context, topic, payload string) error {
	if !v.isConnected() {
		return ErrBrokerClosed
	}

	cmd := v.client.B().Publish().Channel(v.topicChannel(topic)).Message(payload).Build()
	if err := v.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe starts a receive loop on the valkey channel of topic.
func (v *ValkeyBroker) Subscribe(ctx context.Context, topic string) (<-chan Message, func(), error) {
	if !v.isConnected() {
		return nil, nil, ErrBrokerClosed
	}

	subCtx, cancel := context.WithCancel(v.ctx)
	out := make(chan Message, v.bufferSize)
	go v.subscriptionLoop(subCtx, topic, out)

	return out, cancel, nil
}

// subscriptionLoop keeps a SUBSCRIBE open, reconnecting with backoff, until
// ctx is cancelled or the broker closes.
func (v *ValkeyBroker) subscriptionLoop(ctx context.Context, topic string, out chan<- Message) {
	defer close(out)

	retryDelay := 100 * time.Millisecond
	maxRetryDelay := 30 * time.Second
	channel := v.topicChannel(topic)
	subscriber := v.client.B().Subscribe().Channel(channel).Build()

	for {
		if v.shouldStop(ctx) {
			return
		}

		// Blocks until an error occurs or ctx is cancelled.
		err := v.client.Receive(ctx, subscriber, func(msg valkey.PubSubMessage) {
			v.handleMessage(ctx, topic, channel, msg, out)
		})

		if v.shouldStop(ctx) {
			return
		}

		if err != nil {
			v.logger.Warn("valkey subscription lost, retrying",
				zap.String("topic", topic),
				zap.Duration("retry_in", retryDelay),
				zap.Error(err))

			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return
			}
			retryDelay *= 2
			if retryDelay > maxRetryDelay {
				retryDelay = maxRetryDelay
			}
			continue
		}

		retryDelay = 100 * time.Millisecond

		select {
		case <-time.After(100 * time.Millisecond):
		case <-ctx.Done():
			return
		}
	}
}

func (v *ValkeyBroker) handleMessage(ctx context.Context, topic, channel string, msg valkey.PubSubMessage, out chan<- Message) {
	if msg.Channel != channel {
		return
	}

	select {
	case out <- Message{Topic: topic, Payload: msg.Message}:
	case <-v.closedChan:
	case <-ctx.Done():
	default:
		v.logger.Warn("subscriber buffer full, dropping message", zap.String("topic", topic))
	}
}

// Announce adds topic to the set of announced publishers.
func (v *ValkeyBroker) Announce(ctx context.Context, topic string) error {
	cmd := v.client.B().Sadd().Key(v.announcedKey()).Member(topic).Build()
	if err := v.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("announce %s: %w", topic, err)
	}
	return nil
}

// Announced lists every announced topic.
func (v *ValkeyBroker) Announced(ctx context.Context) ([]string, error) {
	cmd := v.client.B().Smembers().Key(v.announcedKey()).Build()
	return v.client.Do(ctx, cmd).AsStrSlice()
}

func (v *ValkeyBroker) SubscribeTransform(ctx context.Context, name string) error {
	cmd := v.client.B().Sadd().Key(v.tfSubscribedKey()).Member(name).Build()
	if err := v.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("subscribe transform %s: %w", name, err)
	}
	return nil
}

func (v *ValkeyBroker) SetTransform(ctx context.Context, name, value string) error {
	cmd := v.client.B().Set().Key(v.transformKey(name)).Value(value).Build()
	if err := v.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("set transform %s: %w", name, err)
	}
	return nil
}

func (v *ValkeyBroker) Transform(ctx context.Context, name string) (string, error) {
	cmd := v.client.B().Get().Key(v.transformKey(name)).Build()
	value, err := v.client.Do(ctx, cmd).ToString()
	if valkey.IsValkeyNil(err) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get transform %s: %w", name, err)
	}
	return value, nil
}

func (v *ValkeyBroker) SetRobotState(ctx context.Context, state RobotState) error {
	cmd := v.client.B().Set().Key(v.robotStateKey()).Value(string(state)).Build()
	if err := v.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("set robot state: %w", err)
	}
	return v.Publish(ctx, ControlTopic, string(state))
}

// Close shuts down every receive loop and the valkey client.
func (v *ValkeyBroker) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.connected {
		return nil
	}

	v.once.Do(func() {
		close(v.closedChan)
		v.cancel()
		v.client.Close()
		v.connected = false
	})

	return nil
}

func (v *ValkeyBroker) isConnected() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.connected
}

func (v *ValkeyBroker) shouldStop(ctx context.Context) bool {
	select {
	case <-v.closedChan:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// NewValkeyClient creates a valkey client. The first option, if any, is used
// as is with address filled in when it has no InitAddress.
func NewValkeyClient(address string, options ...valkey.ClientOption) (valkey.Client, error) {
	clientOption := valkey.ClientOption{InitAddress: []string{address}}
	if len(options) > 0 {
		clientOption = options[0]
		if len(clientOption.InitAddress) == 0 {
			clientOption.InitAddress = []string{address}
		}
	}

	client, err := valkey.NewClient(clientOption)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// NewValkeyBroker wraps client. Keys and channels are namespaced by prefix.
func NewValkeyBroker(client valkey.Client, prefix string, logger *zap.Logger) *ValkeyBroker {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ValkeyBroker{
		client:     client,
		prefix:     prefix,
		logger:     logger.With(zap.String("broker", "valkey")),
		bufferSize: 64,
		ctx:        ctx,
		cancel:     cancel,
		connected:  true,
		closedChan: make(chan struct{}),
	}
}
