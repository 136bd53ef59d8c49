package gateway

import (
	"context"
	"fmt"

	"github.com/grote-beer/MySensors/internal/protocol"
)

// gatewayReadyMessage is announced by Init.
const gatewayReadyMessage = "Gateway startup complete."

// SessionTransport is the transport for links that keep their own broker
// session alive, reconnecting and restoring subscriptions internally.
//
// It has no connection state machine. Deliveries arrive on the link's
// goroutine and go straight into the mailbox.
type SessionTransport struct {
	link   SessionLink
	cfg    Config
	retain func(protocol.Message) bool

	presenter Presenter
	indicator Indicator
	logger    Logger
	observer  Observer

	codec   protocol.Codec
	mailbox Mailbox
}

// NewSessionTransport creates a transport over a self-managing link. The
// network option and ReconnectDelay are not used.
func NewSessionTransport(link SessionLink, cfg Config, opts ...Option) *SessionTransport {
	o := buildOptions(opts)
	return &SessionTransport{
		link:      link,
		cfg:       cfg,
		retain:    RetainPolicy(cfg.Retain),
		presenter: o.presenter,
		indicator: o.indicator,
		logger:    o.logger,
		observer:  noopObserver{},
	}
}

// Init registers the inbound handler, subscribes to the inbound topic,
// announces that the gateway is ready, and presents the node.
//
// Only a failed subscription is returned. Announce and presentation
// failures are logged.
func (t *SessionTransport) Init(ctx context.Context) error {
	if t.link == nil {
		return ErrNoLink
	}
	t.link.SetInboundHandler(t.Deliver)

	pattern := protocol.SubscriptionPattern(t.cfg.SubscribePrefix)
	if err := t.link.Subscribe(ctx, pattern); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, pattern, err)
	}

	ready := protocol.NewInternal(protocol.GatewayAddress, protocol.NodeSensorID, protocol.InternalGatewayReady, gatewayReadyMessage)
	if err := t.Send(ctx, ready); err != nil {
		t.logger.Warn("announcing gateway ready", "error", err)
	}

	if err := t.presenter.PresentNode(ctx, t); err != nil {
		t.logger.Warn("presenting node", "error", err)
	}
	return nil
}

// Send implements Transport. Sends are not gated on the session state:
// the message is encoded and handed to the link, and the link's error is
// returned when the session is down.
func (t *SessionTransport) Send(ctx context.Context, msg protocol.Message) error {
	t.indicator.Transmitted(msg.Command.String())

	topic, payload, truncated := t.codec.Encode(t.cfg.PublishPrefix, msg)
	if truncated {
		t.indicator.Truncated()
		t.logger.Warn("payload truncated", "topic", topic, "limit", protocol.MaxPayloadSize)
	}

	if err := t.link.Publish(ctx, topic, payload, t.retain(msg)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	t.observer.ObserveOutbound(ctx, msg)
	return nil
}

func (t *SessionTransport) setObserver(o Observer) { t.observer = o }

// Available implements Transport.
func (t *SessionTransport) Available(context.Context) bool {
	connected := t.link.Connected()
	t.indicator.SetConnected(connected)
	return connected && t.mailbox.Available()
}

// Deliver feeds one inbound delivery to the transport. Safe to call from
// the link's goroutine.
func (t *SessionTransport) Deliver(topic string, payload []byte) {
	deliver(t.cfg.SubscribePrefix, &t.mailbox, t.indicator, t.logger, topic, payload)
}

// Receive implements Transport.
func (t *SessionTransport) Receive() protocol.Message {
	return t.mailbox.Take()
}
