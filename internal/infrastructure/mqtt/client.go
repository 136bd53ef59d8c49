package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/grote-beer/MySensors/internal/infrastructure/config"
)

// inboxSize is how many deliveries may wait for Loop before new ones are
// dropped.
const inboxSize = 64

// Client wraps paho.mqtt.golang as a pollable broker link.
//
// Unlike a plain paho client it never reconnects on its own and never runs
// message handlers on paho's goroutines. Deliveries are queued and handed
// to the handler one at a time by Loop, on the caller's goroutine.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - The handler only ever runs inside Loop.
type Client struct {
	cfg config.MQTTConfig

	client pahomqtt.Client
	mu     sync.RWMutex

	inbox   chan inbound
	dropped atomic.Uint64

	handler   MessageHandler
	handlerMu sync.RWMutex

	// onConnectionLost is optional, set via SetOnConnectionLost.
	onConnectionLost func(err error)
	callbackMu       sync.RWMutex

	// logger for error/panic logging (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler is the callback signature for received messages.
//
// Parameters:
//   - topic: The topic the message was received on (wildcards expanded)
//   - payload: The raw message payload
//
// Returns:
//   - error: Logged but does not affect message acknowledgment
type MessageHandler func(topic string, payload []byte) error

type inbound struct {
	topic   string
	payload []byte
}

// New creates a disconnected client for the broker in cfg.
func New(cfg config.MQTTConfig) *Client {
	return &Client{
		cfg:   cfg,
		inbox: make(chan inbound, inboxSize),
	}
}

// Connect opens a new broker session, replacing any existing one.
//
// Parameters:
//   - ctx: Cancels the attempt
//   - clientID, username, password: Session identity; empty username
//     connects anonymously
//
// Returns:
//   - error: ErrConnectionFailed wrapping the broker or network error
func (c *Client) Connect(ctx context.Context, clientID, username, password string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The old session goes first so the broker never sees two sessions
	// with one client id. mu is not held across network waits.
	c.mu.Lock()
	old := c.client
	c.client = nil
	c.mu.Unlock()
	if old != nil && old.IsConnectionOpen() {
		old.Disconnect(defaultDisconnectQuiesce)
	}

	opts := buildClientOptions(c.cfg, clientID, username, password)
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleConnectionLost(err)
	})

	client := pahomqtt.NewClient(opts)
	if err := waitToken(ctx, client.Connect(), connectTimeout(c.cfg)); err != nil {
		client.Disconnect(0)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c.mu.Lock()
	prev := c.client
	c.client = client
	c.mu.Unlock()
	if prev != nil {
		prev.Disconnect(0)
	}
	return nil
}

func (c *Client) handleConnectionLost(err error) {
	if logger := c.getLogger(); logger != nil {
		logger.Warn("MQTT connection lost", "error", err)
	}

	c.callbackMu.RLock()
	callback := c.onConnectionLost
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// Close disconnects from the broker.
//
// Returns:
//   - error: Always nil; closing a closed client is not an error
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	c.client = nil
	return nil
}

// HealthCheck verifies the MQTT connection is alive.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether a broker session is open.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client != nil && c.client.IsConnectionOpen()
}

// SetHandler sets the callback Loop hands deliveries to.
func (c *Client) SetHandler(handler MessageHandler) {
	c.handlerMu.Lock()
	c.handler = handler
	c.handlerMu.Unlock()
}

// SetOnConnectionLost sets a callback to be invoked when the session drops.
// It runs on a paho goroutine.
func (c *Client) SetOnConnectionLost(callback func(err error)) {
	c.callbackMu.Lock()
	c.onConnectionLost = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for error and panic logging.
// If not set, errors in handlers are silently ignored.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

func (c *Client) session() pahomqtt.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client
}
