package gateway

import (
	"context"
	"time"

	"github.com/grote-beer/MySensors/internal/protocol"
)

// DefaultReconnectDelay is the wait after a failed connect attempt.
const DefaultReconnectDelay = time.Second

// Transport moves messages between the sensor network and the controller.
//
// The driver loop calls Available repeatedly, and Receive whenever
// Available returned true. Send may be called between polls. None of the
// methods are safe for concurrent use; a Transport belongs to one driver
// goroutine (see Runner).
type Transport interface {
	// Init prepares the transport. It does not wait for the broker.
	Init(ctx context.Context) error

	// Send publishes msg. Messages are not queued: a send while the broker
	// is unreachable fails with ErrNotConnected.
	Send(ctx context.Context, msg protocol.Message) error

	// Available services the broker connection and reports whether an
	// inbound message is waiting.
	Available(ctx context.Context) bool

	// Receive returns the waiting inbound message and clears the
	// available flag.
	Receive() protocol.Message
}

// Config holds the transport settings shared by both backends.
type Config struct {
	// PublishPrefix is the topic prefix for outbound messages.
	PublishPrefix string

	// SubscribePrefix is the topic prefix for inbound messages.
	SubscribePrefix string

	// Credentials are passed to the link on every connect.
	Credentials Credentials

	// Retain enables the retain policy, see RetainPolicy.
	Retain bool

	// ReconnectDelay is the wait after a failed connect. Zero means
	// DefaultReconnectDelay.
	ReconnectDelay time.Duration

	// ReinitOnNetworkLoss re-runs Init when the network probe reports the
	// physical link down.
	ReinitOnNetworkLoss bool
}

// Option configures the optional collaborators of a transport.
type Option func(*options)

type options struct {
	presenter Presenter
	network   Network
	indicator Indicator
	logger    Logger
}

// WithPresenter sets the collaborator announcing the node after each
// connect.
func WithPresenter(p Presenter) Option {
	return func(o *options) { o.presenter = p }
}

// WithNetwork sets the physical network probe.
func WithNetwork(n Network) Option {
	return func(o *options) { o.network = n }
}

// WithIndicator sets the diagnostic indicator, typically the metrics
// collectors.
func WithIndicator(i Indicator) Option {
	return func(o *options) { o.indicator = i }
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{
		presenter: PresenterFunc(func(context.Context, Sender) error { return nil }),
		indicator: noopIndicator{},
		logger:    noopLogger{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// deliver decodes one inbound delivery into the mailbox. Malformed
// deliveries are dropped.
func deliver(prefix string, mb *Mailbox, ind Indicator, log Logger, topic string, payload []byte) {
	ind.Received()

	msg, ok := protocol.Decode(prefix, topic, payload)
	if !ok {
		ind.DecodeFailed()
		log.Debug("dropping malformed delivery", "topic", topic, "payload_len", len(payload))
		return
	}

	mb.Put(msg)
}
