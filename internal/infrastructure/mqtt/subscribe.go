package mqtt

import (
	"context"
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Subscribe subscribes the current session to topic. Matching messages are
// queued for Loop.
//
// Subscriptions belong to the session: after a reconnect the caller
// subscribes again.
//
// Parameters:
//   - ctx: Cancels the wait for the broker's acknowledgement
//   - topic: The topic pattern to subscribe to; wildcards allowed
//   - qos: Maximum QoS level for received messages (0, 1, or 2)
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *Client) Subscribe(ctx context.Context, topic string, qos byte) error {
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

	token := client.Subscribe(topic, qos, c.enqueue)
	if err := waitToken(ctx, token, defaultPublishTimeout); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

// enqueue runs on paho's goroutine. It never blocks: when the inbox is
// full the delivery is dropped.
func (c *Client) enqueue(_ pahomqtt.Client, msg pahomqtt.Message) {
	select {
	case c.inbox <- inbound{topic: msg.Topic(), payload: msg.Payload()}:
	default:
		n := c.dropped.Add(1)
		if logger := c.getLogger(); logger != nil {
			logger.Warn("MQTT inbox full, dropping message",
				"topic", msg.Topic(),
				"dropped_total", n,
			)
		}
	}
}

// Loop hands at most one queued delivery to the handler and returns
// whether it did.
func (c *Client) Loop() bool {
	select {
	case in := <-c.inbox:
		c.dispatch(in)
		return true
	default:
		return false
	}
}

// Pending returns the number of queued deliveries.
func (c *Client) Pending() int {
	return len(c.inbox)
}

// Dropped returns how many deliveries were dropped on a full inbox.
func (c *Client) Dropped() uint64 {
	return c.dropped.Load()
}

// dispatch calls the handler with panic recovery and optional logging.
func (c *Client) dispatch(in inbound) {
	c.handlerMu.RLock()
	handler := c.handler
	c.handlerMu.RUnlock()
	if handler == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Error("MQTT handler panic recovered",
					"topic", in.topic,
					"panic", r,
				)
			}
		}
	}()

	if err := handler(in.topic, in.payload); err != nil {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("MQTT handler returned error",
				"topic", in.topic,
				"error", err,
			)
		}
	}
}
