package rosweb

import "context"

// Client maps bridge operations onto a single Channel. It performs no
// validation: a malformed name produces a malformed request that the bridge
// rejects.
type Client struct {
	ch *Channel
}

func NewClient(ch *Channel) *Client {
	return &Client{ch: ch}
}

// Channel returns the channel the client sends on.
func (c *Client) Channel() *Channel {
	return c.ch
}

// Subscribe registers interest in a topic.
func (c *Client) Subscribe(ctx context.Context, topic string, done Completion) error {
	return c.ch.Send(ctx, Request{Op: OpSubscribe, Name: topic}, done)
}

// Get fetches the latest value of a topic.
func (c *Client) Get(ctx context.Context, topic string, done Completion) error {
	return c.ch.Send(ctx, Request{Op: OpGet, Name: topic}, done)
}

// Publish sends msg on a topic. done is usually nil.
func (c *Client) Publish(ctx context.Context, topic, msg string, done Completion) error {
	return c.ch.Send(ctx, Request{Op: OpPublish, Name: topic, Payload: msg}, done)
}

// Unsubscribe deregisters interest in a topic on the bridge. Clearing any
// local callback is up to the caller.
func (c *Client) Unsubscribe(ctx context.Context, topic string, done Completion) error {
	return c.ch.Send(ctx, Request{Op: OpUnsubscribe, Name: topic}, done)
}

// Announce advertises a publisher for a topic.
func (c *Client) Announce(ctx context.Context, topic string, done Completion) error {
	return c.ch.Send(ctx, Request{Op: OpAnnounce, Name: topic}, done)
}

func (c *Client) TfSubscribe(ctx context.Context, tf string, done Completion) error {
	return c.ch.Send(ctx, Request{Op: OpTfSubscribe, Name: tf}, done)
}

func (c *Client) TfGet(ctx context.Context, tf string, done Completion) error {
	return c.ch.Send(ctx, Request{Op: OpTfGet, Name: tf}, done)
}

// Startup asks the bridge to bring the robot up.
func (c *Client) Startup(ctx context.Context, done Completion) error {
	return c.ch.Send(ctx, Request{Op: OpStartup}, done)
}

// Shutdown asks the bridge to stop the robot.
func (c *Client) Shutdown(ctx context.Context, done Completion) error {
	return c.ch.Send(ctx, Request{Op: OpShutdown}, done)
}
