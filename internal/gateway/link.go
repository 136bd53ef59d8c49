package gateway

import (
	"context"

	"github.com/grote-beer/MySensors/internal/protocol"
)

// Credentials identify the gateway to the broker.
type Credentials struct {
	ClientID string
	Username string
	Password string
}

// InboundHandler receives one MQTT delivery. The payload is only valid for
// the duration of the call.
type InboundHandler func(topic string, payload []byte)

// SessionLink is a broker connection that manages its own lifecycle.
type SessionLink interface {
	// Connected reports whether the broker session is currently up.
	Connected() bool

	// Publish sends payload on topic.
	Publish(ctx context.Context, topic string, payload []byte, retain bool) error

	// Subscribe registers a topic filter. Deliveries go to the inbound
	// handler.
	Subscribe(ctx context.Context, pattern string) error

	// SetInboundHandler registers the callback for deliveries.
	SetInboundHandler(h InboundHandler)
}

// Link is a broker connection driven from the outside: it only connects
// when told to and only dispatches deliveries from Loop.
type Link interface {
	SessionLink

	// Connect opens a new broker session.
	Connect(ctx context.Context, creds Credentials) error

	// Loop dispatches pending deliveries to the inbound handler on the
	// calling goroutine.
	Loop()
}

// Network reports whether the physical network below the broker link is
// usable.
type Network interface {
	Up() bool
}

// Sender sends one message towards the controller.
type Sender interface {
	Send(ctx context.Context, msg protocol.Message) error
}

// Presenter announces the gateway node and its local sensors. It is called
// once after every successful connect.
type Presenter interface {
	PresentNode(ctx context.Context, s Sender) error
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(ctx context.Context, s Sender) error

// PresentNode calls f(ctx, s).
func (f PresenterFunc) PresentNode(ctx context.Context, s Sender) error { return f(ctx, s) }

// Indicator receives diagnostic indications. Implementations must be safe
// for concurrent use.
type Indicator interface {
	Transmitted(command string)
	Received()
	DecodeFailed()
	Truncated()
	ConnectAttempt(success bool)
	SetConnected(connected bool)
}

// Logger defines the logging interface used by the transports.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopObserver struct{}

func (noopObserver) ObserveOutbound(context.Context, protocol.Message) {}

type noopIndicator struct{}

func (noopIndicator) Transmitted(string)  {}
func (noopIndicator) Received()           {}
func (noopIndicator) DecodeFailed()       {}
func (noopIndicator) Truncated()          {}
func (noopIndicator) ConnectAttempt(bool) {}
func (noopIndicator) SetConnected(bool)   {}
