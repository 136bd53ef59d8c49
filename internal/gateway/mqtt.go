package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/grote-beer/MySensors/internal/protocol"
)

// MQTTTransport drives a Link through the connection state machine.
//
// Each Available call makes at most one connect attempt. After a successful
// connect it presents the node, subscribes to the inbound wildcard topic,
// and reports nothing available for that cycle. While connected it pumps
// the link and reports the mailbox.
type MQTTTransport struct {
	link   Link
	cfg    Config
	retain func(protocol.Message) bool

	presenter Presenter
	network   Network
	indicator Indicator
	logger    Logger
	observer  Observer

	// sleep waits out the reconnect delay; replaced in tests.
	sleep func(ctx context.Context, d time.Duration)

	codec   protocol.Codec
	mailbox Mailbox
	state   *connectionFSM

	// networkDown suppresses repeated warnings while the network is down.
	networkDown bool
}

// NewMQTTTransport creates a transport over link.
//
// Parameters:
//   - link: Broker connection (see the mqtt infrastructure package)
//   - cfg: Prefixes, credentials, retain policy, and reconnect delay
//   - opts: Optional collaborators
//
// Returns:
//   - *MQTTTransport: Transport in StateDisconnected; call Init before use
func NewMQTTTransport(link Link, cfg Config, opts ...Option) *MQTTTransport {
	o := buildOptions(opts)
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}

	t := &MQTTTransport{
		link:      link,
		cfg:       cfg,
		retain:    RetainPolicy(cfg.Retain),
		presenter: o.presenter,
		network:   o.network,
		indicator: o.indicator,
		logger:    o.logger,
		observer:  noopObserver{},
		sleep:     sleepContext,
	}
	t.state = newConnectionFSM(t.onStateChange)
	return t
}

func (t *MQTTTransport) onStateChange(from, to State) {
	t.indicator.SetConnected(to == StateConnected)
	t.logger.Debug("connection state changed", "from", from, "to", to)
}

// Init registers the inbound handler and puts the machine back into
// StateDisconnected. It does not connect.
func (t *MQTTTransport) Init(ctx context.Context) error {
	if t.link == nil {
		return ErrNoLink
	}
	t.link.SetInboundHandler(t.Deliver)
	return t.state.reset(ctx)
}

// State returns the current connection state.
func (t *MQTTTransport) State() State {
	return t.state.state()
}

// Available implements Transport.
func (t *MQTTTransport) Available(ctx context.Context) bool {
	if t.state.state() == StateConnecting {
		return false
	}

	if t.network != nil && !t.network.Up() {
		t.handleNetworkDown(ctx)
		return false
	}
	if t.networkDown {
		t.logger.Info("network is back up")
		t.networkDown = false
	}

	if !t.link.Connected() || t.state.state() != StateConnected {
		if t.state.state() == StateConnected {
			t.logger.Warn("broker session lost")
			t.fire(ctx, eventLost)
		}
		t.reconnect(ctx)
		return false
	}

	t.link.Loop()
	return t.mailbox.Available()
}

func (t *MQTTTransport) handleNetworkDown(ctx context.Context) {
	if !t.networkDown {
		t.logger.Warn("network is down, broker unreachable")
		t.networkDown = true
	}
	if t.cfg.ReinitOnNetworkLoss {
		if err := t.Init(ctx); err != nil {
			t.logger.Error("re-initialising transport", "error", err)
		}
		return
	}
	if t.state.state() == StateConnected {
		t.fire(ctx, eventLost)
	}
}

// reconnect makes one connect attempt and runs the handshake on success.
func (t *MQTTTransport) reconnect(ctx context.Context) bool {
	t.fire(ctx, eventDial)
	t.logger.Info("connecting to broker", "client_id", t.cfg.Credentials.ClientID)

	if err := t.link.Connect(ctx, t.cfg.Credentials); err != nil {
		t.indicator.ConnectAttempt(false)
		t.fire(ctx, eventFail)
		t.logger.Warn("broker connect failed",
			"error", err,
			"retry_in", t.cfg.ReconnectDelay,
		)
		t.sleep(ctx, t.cfg.ReconnectDelay)
		return false
	}

	t.indicator.ConnectAttempt(true)
	t.fire(ctx, eventEstablished)
	t.logger.Info("connected to broker", "client_id", t.cfg.Credentials.ClientID)

	t.handshake(ctx)
	return true
}

// handshake presents the node and subscribes to the inbound topic. The
// state is already StateConnected so presentation messages can be sent.
func (t *MQTTTransport) handshake(ctx context.Context) {
	if err := t.presenter.PresentNode(ctx, t); err != nil {
		t.logger.Warn("presenting node", "error", err)
	}

	pattern := protocol.SubscriptionPattern(t.cfg.SubscribePrefix)
	if err := t.link.Subscribe(ctx, pattern); err != nil {
		t.logger.Error("subscribing to inbound topic", "pattern", pattern, "error", err)
		return
	}
	t.logger.Info("subscribed to inbound topic", "pattern", pattern)
}

func (t *MQTTTransport) fire(ctx context.Context, event string) {
	if err := t.state.fire(ctx, event); err != nil {
		t.logger.Error("connection state transition rejected", "event", event, "state", t.state.state(), "error", err)
	}
}

// Send implements Transport. It fails with ErrNotConnected, before
// encoding anything, unless the session is established.
func (t *MQTTTransport) Send(ctx context.Context, msg protocol.Message) error {
	if t.state.state() != StateConnected || !t.link.Connected() {
		return ErrNotConnected
	}

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

func (t *MQTTTransport) setObserver(o Observer) { t.observer = o }

// Deliver feeds one inbound delivery to the transport, exactly as the link
// does from Loop.
func (t *MQTTTransport) Deliver(topic string, payload []byte) {
	deliver(t.cfg.SubscribePrefix, &t.mailbox, t.indicator, t.logger, topic, payload)
}

// Receive implements Transport.
func (t *MQTTTransport) Receive() protocol.Message {
	return t.mailbox.Take()
}
