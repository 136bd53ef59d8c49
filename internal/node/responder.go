package node

import (
	"context"
	"strconv"
	"time"

	"github.com/grote-beer/MySensors/internal/gateway"
	"github.com/grote-beer/MySensors/internal/protocol"
)

// Responder answers internal requests addressed to the gateway node.
//
// I_VERSION is answered with the library version, I_HEARTBEAT_REQUEST
// with I_HEARTBEAT_RESPONSE carrying the uptime in milliseconds and
// I_PRESENTATION by presenting the node again. Everything else goes to the
// next handler, if any.
type Responder struct {
	presenter gateway.Presenter
	next      gateway.Handler
	started   time.Time
	now       func() time.Time
	logger    Logger
}

// NewResponder creates a responder. next receives messages the responder
// does not handle and may be nil.
func NewResponder(presenter gateway.Presenter, next gateway.Handler) *Responder {
	now := time.Now
	return &Responder{
		presenter: presenter,
		next:      next,
		started:   now(),
		now:       now,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger.
func (r *Responder) SetLogger(logger Logger) {
	r.logger = logger
}

// HandleInbound implements gateway.Handler.
func (r *Responder) HandleInbound(ctx context.Context, msg protocol.Message, s gateway.Sender) {
	if msg.NodeID != protocol.GatewayAddress || msg.Command != protocol.CommandInternal {
		r.forward(ctx, msg, s)
		return
	}

	var err error
	switch protocol.InternalType(msg.Type) {
	case protocol.InternalVersion:
		err = s.Send(ctx, r.reply(protocol.InternalVersion, LibraryVersion))

	case protocol.InternalHeartbeatRequest:
		uptime := r.now().Sub(r.started).Milliseconds()
		err = s.Send(ctx, r.reply(protocol.InternalHeartbeatResponse, strconv.FormatInt(uptime, 10)))

	case protocol.InternalPresentation:
		if r.presenter != nil {
			err = r.presenter.PresentNode(ctx, s)
		}

	case protocol.InternalTime:
		// The gateway keeps no clock to set.

	default:
		r.forward(ctx, msg, s)
		return
	}

	if err != nil {
		r.logger.Warn("answering internal request", "type", msg.TypeName(), "error", err)
	}
}

func (r *Responder) reply(typ protocol.InternalType, payload string) protocol.Message {
	return protocol.NewInternal(protocol.GatewayAddress, protocol.NodeSensorID, typ, payload)
}

func (r *Responder) forward(ctx context.Context, msg protocol.Message, s gateway.Sender) {
	if r.next != nil {
		r.next.HandleInbound(ctx, msg, s)
		return
	}
	r.logger.Debug("inbound message", "message", msg.Format(), "type", msg.TypeName())
}
