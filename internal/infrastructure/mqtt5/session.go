package mqtt5

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/grote-beer/MySensors/internal/infrastructure/config"
)

const (
	defaultReconnectDelay = time.Second
	defaultKeepAlive      = 15
	defaultConnectTimeout = 5 * time.Second
)

// Errors returned by Session.
var (
	// ErrNotStarted is returned when the session is used before Start.
	ErrNotStarted = errors.New("mqtt5: session not started")

	// ErrNotConnected is returned by Publish while the connection is down.
	ErrNotConnected = errors.New("mqtt5: not connected")
)

// Logger interface for optional logging support.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MessageHandler receives inbound publishes on autopaho's goroutine.
type MessageHandler func(topic string, payload []byte)

// Session is an MQTT v5 connection managed by autopaho.
//
// It reconnects with a constant back-off and restores its subscriptions on
// every new connection.
type Session struct {
	cfg            config.MQTTConfig
	reconnectDelay time.Duration

	cm        *autopaho.ConnectionManager
	connected atomic.Bool

	// subscriptions maps topic filter to QoS.
	subscriptions sync.Map

	handler   MessageHandler
	handlerMu sync.RWMutex

	logger Logger
}

// New creates a session for the broker in cfg. A reconnectDelay of zero
// means one second.
func New(cfg config.MQTTConfig, reconnectDelay time.Duration) *Session {
	if reconnectDelay <= 0 {
		reconnectDelay = defaultReconnectDelay
	}
	return &Session{
		cfg:            cfg,
		reconnectDelay: reconnectDelay,
		logger:         noopLogger{},
	}
}

// SetLogger sets the logger. Call before Start.
func (s *Session) SetLogger(logger Logger) {
	s.logger = logger
}

// SetHandler sets the callback for inbound publishes.
func (s *Session) SetHandler(h MessageHandler) {
	s.handlerMu.Lock()
	s.handler = h
	s.handlerMu.Unlock()
}

// Start begins connecting in the background. The session keeps
// reconnecting until ctx is cancelled or Close is called.
func (s *Session) Start(ctx context.Context) error {
	scheme := "tcp"
	if s.cfg.Broker.TLS {
		scheme = "ssl"
	}
	brokerURL, err := url.Parse(fmt.Sprintf("%s://%s:%d", scheme, s.cfg.Broker.Host, s.cfg.Broker.Port))
	if err != nil {
		return fmt.Errorf("mqtt5: broker url: %w", err)
	}

	keepAlive := uint16(defaultKeepAlive)
	if s.cfg.KeepAlive > 0 {
		keepAlive = uint16(s.cfg.KeepAlive)
	}
	connectTimeout := defaultConnectTimeout
	if s.cfg.ConnectTimeout > 0 {
		connectTimeout = time.Duration(s.cfg.ConnectTimeout) * time.Second
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{brokerURL},
		KeepAlive:                     keepAlive,
		CleanStartOnInitialConnection: true,
		ReconnectBackoff:              autopaho.NewConstantBackoff(s.reconnectDelay),
		ConnectTimeout:                connectTimeout,
		WillMessage:                   s.willMessage(),
		ClientConfig: paho.ClientConfig{
			ClientID:           s.cfg.Broker.ClientID,
			OnClientError:      s.onClientError,
			OnServerDisconnect: s.onServerDisconnect,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				s.route,
			},
		},
		OnConnectionUp: s.onConnectionUp,
		OnConnectError: s.onConnectError,
	}
	if s.cfg.Auth.Username != "" {
		pahoCfg.ConnectUsername = s.cfg.Auth.Username
		pahoCfg.ConnectPassword = []byte(s.cfg.Auth.Password)
	}
	if s.cfg.Broker.TLS {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	s.logger.Info("starting MQTT v5 session", "broker", brokerURL.String(), "client_id", s.cfg.Broker.ClientID)

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt5: starting connection: %w", err)
	}
	s.cm = cm
	return nil
}

func (s *Session) willMessage() *paho.WillMessage {
	if !s.cfg.Will.Enabled {
		return nil
	}
	return &paho.WillMessage{
		Topic:   s.cfg.Will.Topic,
		Payload: []byte(s.cfg.Will.Payload),
		QoS:     byte(s.cfg.QoS),
		Retain:  s.cfg.Will.Retain,
	}
}

// AwaitConnection blocks until the session is connected or ctx ends.
func (s *Session) AwaitConnection(ctx context.Context) error {
	if s.cm == nil {
		return ErrNotStarted
	}
	return s.cm.AwaitConnection(ctx)
}

// Connected reports whether the session is currently up.
func (s *Session) Connected() bool {
	return s.connected.Load()
}

// Publish sends payload on topic. It fails fast while the connection is
// down instead of waiting for a reconnect.
func (s *Session) Publish(ctx context.Context, topic string, payload []byte, qos byte, retain bool) error {
	if s.cm == nil {
		return ErrNotStarted
	}
	if !s.Connected() {
		return ErrNotConnected
	}

	_, err := s.cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     qos,
		Retain:  retain,
		Payload: append([]byte(nil), payload...),
	})
	if err != nil {
		return fmt.Errorf("mqtt5: publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers topic. While connected the subscription is sent
// immediately; it is also restored on every reconnect.
func (s *Session) Subscribe(ctx context.Context, topic string, qos byte) error {
	if s.cm == nil {
		return ErrNotStarted
	}

	s.subscriptions.Store(topic, qos)
	if !s.Connected() {
		return nil
	}

	if err := s.subscribe(ctx, s.cm, topic, qos); err != nil {
		return err
	}
	s.logger.Info("subscribed to topic", "topic", topic)
	return nil
}

func (s *Session) subscribe(ctx context.Context, cm *autopaho.ConnectionManager, topic string, qos byte) error {
	_, err := cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{
			{Topic: topic, QoS: qos},
		},
	})
	if err != nil {
		return fmt.Errorf("mqtt5: subscribe %s: %w", topic, err)
	}
	return nil
}

// Close disconnects and stops reconnecting.
func (s *Session) Close(ctx context.Context) error {
	if s.cm == nil {
		return nil
	}
	s.connected.Store(false)
	if err := s.cm.Disconnect(ctx); err != nil {
		return fmt.Errorf("mqtt5: disconnect: %w", err)
	}
	return nil
}

// --- Internal Callbacks ---

// onConnectionUp is called when the connection is established or re-established.
func (s *Session) onConnectionUp(cm *autopaho.ConnectionManager, _ *paho.Connack) {
	s.logger.Info("MQTT v5 connection established")

	s.subscriptions.Range(func(key, value any) bool {
		topic := key.(string)
		if err := s.subscribe(context.Background(), cm, topic, value.(byte)); err != nil {
			s.logger.Error("restoring subscription", "topic", topic, "error", err)
		}
		return true
	})

	s.connected.Store(true)
}

func (s *Session) onConnectError(err error) {
	s.connected.Store(false)
	s.logger.Warn("MQTT v5 connect failed, retrying", "error", err, "retry_in", s.reconnectDelay)
}

func (s *Session) onClientError(err error) {
	s.connected.Store(false)
	s.logger.Error("MQTT v5 client error", "error", err)
}

func (s *Session) onServerDisconnect(d *paho.Disconnect) {
	s.connected.Store(false)
	s.logger.Warn("MQTT v5 server disconnected", "reason_code", d.ReasonCode)
}

func (s *Session) route(pr paho.PublishReceived) (bool, error) {
	s.handlerMu.RLock()
	h := s.handler
	s.handlerMu.RUnlock()

	if h != nil && pr.Packet != nil {
		h(pr.Packet.Topic, pr.Packet.Payload)
	}
	return true, nil
}
