package node

import (
	"context"
	"sync"
	"time"

	"github.com/grote-beer/MySensors/internal/gateway"
	"github.com/grote-beer/MySensors/internal/protocol"
)

// Logger defines the logging interface used by this package.
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

// NodeCounter receives the number of known nodes whenever it changes.
type NodeCounter interface {
	SetNodes(n int)
}

// Registry records every node seen on the wire.
//
// It observes outbound messages (node to controller) and inbound ones
// (controller to node). Only outbound traffic counts as the node being
// seen; inbound set messages just record the commanded value.
type Registry struct {
	repo    Repository
	counter NodeCounter
	now     func() time.Time

	mu     sync.RWMutex
	logger Logger
}

// NewRegistry creates a registry on repo. counter may be nil.
func NewRegistry(repo Repository, counter NodeCounter) *Registry {
	return &Registry{
		repo:    repo,
		counter: counter,
		now:     time.Now,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for registry errors.
func (r *Registry) SetLogger(logger Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

func (r *Registry) getLogger() Logger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.logger
}

// Refresh publishes the current node count to the counter.
func (r *Registry) Refresh(ctx context.Context) error {
	if r.counter == nil {
		return nil
	}
	n, err := r.repo.Count(ctx)
	if err != nil {
		return err
	}
	r.counter.SetNodes(n)
	return nil
}

// ObserveOutbound records a message leaving the sensor network.
func (r *Registry) ObserveOutbound(ctx context.Context, msg protocol.Message) {
	if err := r.Record(ctx, msg, true); err != nil {
		r.getLogger().Warn("recording outbound message", "message", msg.Format(), "error", err)
	}
}

// HandleInbound records a message addressed to the sensor network.
func (r *Registry) HandleInbound(ctx context.Context, msg protocol.Message, _ gateway.Sender) {
	if err := r.Record(ctx, msg, false); err != nil {
		r.getLogger().Warn("recording inbound message", "message", msg.Format(), "error", err)
	}
}

// Record applies msg to the registry. outbound is true for messages sent
// by the node itself.
func (r *Registry) Record(ctx context.Context, msg protocol.Message, outbound bool) error {
	if msg.NodeID == protocol.BroadcastAddress {
		return nil
	}
	if !outbound && msg.Command != protocol.CommandSet {
		return nil
	}

	at := r.now()
	created, err := r.repo.TouchNode(ctx, msg.NodeID, at, outbound)
	if err != nil {
		return err
	}
	if created {
		r.getLogger().Info("new node", "node_id", msg.NodeID)
		if err := r.Refresh(ctx); err != nil {
			return err
		}
	}

	switch msg.Command {
	case protocol.CommandPresentation:
		if msg.SensorID == protocol.NodeSensorID {
			return r.repo.SetNodeType(ctx, msg.NodeID, msg.TypeName(), msg.String())
		}
		return r.repo.PresentSensor(ctx, Sensor{
			NodeID:      msg.NodeID,
			ID:          msg.SensorID,
			Type:        msg.TypeName(),
			Description: msg.String(),
			UpdatedAt:   at,
		})

	case protocol.CommandSet:
		return r.repo.SetSensorValue(ctx, Sensor{
			NodeID:    msg.NodeID,
			ID:        msg.SensorID,
			LastType:  msg.TypeName(),
			LastValue: msg.String(),
			UpdatedAt: at,
		})

	case protocol.CommandInternal:
		switch protocol.InternalType(msg.Type) {
		case protocol.InternalSketchName:
			return r.repo.SetSketchName(ctx, msg.NodeID, msg.String())
		case protocol.InternalSketchVersion:
			return r.repo.SetSketchVersion(ctx, msg.NodeID, msg.String())
		case protocol.InternalBatteryLevel:
			level, err := msg.Int()
			if err != nil {
				return err
			}
			return r.repo.SetBatteryLevel(ctx, msg.NodeID, int(min(max(level, 0), 100)))
		}
	}
	return nil
}

// Get returns one node with its sensors.
func (r *Registry) Get(ctx context.Context, id uint8) (*Node, error) {
	return r.repo.GetByID(ctx, id)
}

// List returns every known node.
func (r *Registry) List(ctx context.Context) ([]Node, error) {
	return r.repo.List(ctx)
}

// Forget removes a node and its sensors.
func (r *Registry) Forget(ctx context.Context, id uint8) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}
	return r.Refresh(ctx)
}
