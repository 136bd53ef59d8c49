package mqtt

import (
	"bytes"
	"context"
	"fmt"
)

// Publish sends a message to the specified MQTT topic.
//
// The payload is copied, so the caller may reuse its buffer as soon as
// Publish returns.
//
// Parameters:
//   - ctx: Cancels the wait for completion
//   - topic: The topic to publish to
//   - payload: The message payload
//   - qos: Quality of Service level (0, 1, or 2)
//   - retained: Whether the broker should retain the message for new subscribers
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *Client) Publish(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}

	client := c.session()
	if client == nil || !client.IsConnectionOpen() {
		return ErrNotConnected
	}

	token := client.Publish(topic, qos, retained, bytes.Clone(payload))
	if err := waitToken(ctx, token, defaultPublishTimeout); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}
