package node

import (
	"context"
	"fmt"

	"github.com/grote-beer/MySensors/internal/gateway"
	"github.com/grote-beer/MySensors/internal/infrastructure/config"
	"github.com/grote-beer/MySensors/internal/protocol"
)

// Presenter announces the gateway node to the controller.
//
// The sequence is the node presentation (S_ARDUINO_NODE or
// S_ARDUINO_REPEATER_NODE carrying the library version), I_SKETCH_NAME,
// I_SKETCH_VERSION and then one presentation per configured sensor.
type Presenter struct {
	messages []protocol.Message
}

// NewPresenter builds the presentation sequence for cfg.
//
// Returns ErrUnknownSensorType if a sensor type is not a known S_ name.
func NewPresenter(cfg config.NodeConfig) (*Presenter, error) {
	nodeType := protocol.SensorArduinoNode
	if cfg.Repeater {
		nodeType = protocol.SensorArduinoRepeaterNode
	}

	const self = protocol.GatewayAddress
	msgs := []protocol.Message{
		protocol.NewPresentation(self, protocol.NodeSensorID, nodeType, LibraryVersion),
		protocol.NewInternal(self, protocol.NodeSensorID, protocol.InternalSketchName, cfg.SketchName),
		protocol.NewInternal(self, protocol.NodeSensorID, protocol.InternalSketchVersion, cfg.SketchVersion),
	}
	for _, s := range cfg.Sensors {
		typ, ok := protocol.ParseSensorType(s.Type)
		if !ok {
			return nil, fmt.Errorf("%w: sensor %d: %q", ErrUnknownSensorType, s.ID, s.Type)
		}
		msgs = append(msgs, protocol.NewPresentation(self, s.ID, typ, s.Description))
	}

	return &Presenter{messages: msgs}, nil
}

// Messages returns a copy of the presentation sequence.
func (p *Presenter) Messages() []protocol.Message {
	out := make([]protocol.Message, len(p.messages))
	for i, m := range p.messages {
		out[i] = m.Clone()
	}
	return out
}

// PresentNode sends the sequence through s, stopping at the first error.
// Observers learn about each message from the transport that sent it.
func (p *Presenter) PresentNode(ctx context.Context, s gateway.Sender) error {
	for _, msg := range p.messages {
		if err := s.Send(ctx, msg); err != nil {
			return fmt.Errorf("presenting %s: %w", msg.Format(), err)
		}
	}
	return nil
}
