package broker

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"

	"github.com/grote-beer/MySensors/internal/infrastructure/config"
)

// listenerID names the single TCP listener.
const listenerID = "mysgw-tcp"

// ErrNotRunning is returned when publishing on a broker that was never
// started or is already closed.
var ErrNotRunning = errors.New("broker: not running")

// Broker is an in-process MQTT broker for installations without an
// external one.
//
// It accepts every client. Deploy it on a trusted network only.
type Broker struct {
	server  *mochi.Server
	address string

	mu      sync.Mutex
	running bool
}

// New creates a broker listening on cfg.Address once started.
//
// Parameters:
//   - cfg: Embedded broker configuration
//   - logger: Logger for broker events (may be nil)
//
// Returns:
//   - *Broker: Broker ready to Start
//   - error: If the listener cannot be registered
func New(cfg config.BrokerConfig, logger *slog.Logger) (*Broker, error) {
	opts := &mochi.Options{InlineClient: true}
	if logger != nil {
		opts.Logger = logger
	}

	server := mochi.New(opts)
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, fmt.Errorf("broker: adding auth hook: %w", err)
	}

	tcp := listeners.NewTCP(listeners.Config{ID: listenerID, Address: cfg.Address})
	if err := server.AddListener(tcp); err != nil {
		return nil, fmt.Errorf("broker: adding listener on %s: %w", cfg.Address, err)
	}

	return &Broker{server: server, address: cfg.Address}, nil
}

// Start begins accepting connections. It does not block.
func (b *Broker) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.server.Serve(); err != nil {
		return fmt.Errorf("broker: serving on %s: %w", b.address, err)
	}
	b.running = true
	return nil
}

// Close disconnects all clients and stops the listener.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return nil
	}
	b.running = false
	return b.server.Close()
}

// Address returns the configured listen address.
func (b *Broker) Address() string {
	return b.address
}

// Publish injects a message as if a client had published it.
func (b *Broker) Publish(topic string, payload []byte, retain bool) error {
	b.mu.Lock()
	running := b.running
	b.mu.Unlock()
	if !running {
		return ErrNotRunning
	}
	return b.server.Publish(topic, payload, retain, 0)
}

// Subscribe calls fn for every message matching filter. id must be unique
// per subscription.
func (b *Broker) Subscribe(filter string, id int, fn func(topic string, payload []byte, retain bool)) error {
	return b.server.Subscribe(filter, id, func(_ *mochi.Client, _ packets.Subscription, pk packets.Packet) {
		fn(pk.TopicName, pk.Payload, pk.FixedHeader.Retain)
	})
}
