package server

import (
	"context"
	"errors"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrBrokerClosed = errors.New("broker is closed")
)

// RobotState is the run state recorded by startup and shutdown.
type RobotState string

const (
	RobotRunning RobotState = "running"
	RobotStopped RobotState = "stopped"
)

// ControlTopic carries robot run state changes.
const ControlTopic = "/robot/control"

// Message is one payload received on a topic.
type Message struct {
	Topic   string
	Payload string
}

// Broker is the pub/sub system the bridge fronts.
type Broker interface {
	// Publish sends payload to every subscriber of topic.
	Publish(ctx context.Context, topic, payload string) error
	// Subscribe delivers messages published on topic until cancel is called.
	// The channel is closed once delivery has stopped.
	Subscribe(ctx context.Context, topic string) (msgs <-chan Message, cancel func(), err error)
	// Announce records a publisher for topic.
	Announce(ctx context.Context, topic string) error

	// SubscribeTransform records interest in a transform.
	SubscribeTransform(ctx context.Context, name string) error
	// SetTransform stores the latest value of a transform.
	SetTransform(ctx context.Context, name, value string) error
	// Transform returns the latest value of a transform, or ErrNotFound.
	Transform(ctx context.Context, name string) (string, error)

	// SetRobotState records the run state and publishes it on ControlTopic.
	SetRobotState(ctx context.Context, state RobotState) error

	Close() error
}
