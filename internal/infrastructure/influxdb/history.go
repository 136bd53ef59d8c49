package influxdb

import (
	"context"
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/grote-beer/MySensors/internal/protocol"
)

// Measurement is the InfluxDB measurement sensor readings are written to.
const Measurement = "sensor_readings"

// History records sensor readings passing through the gateway.
//
// Only C_SET messages and I_BATTERY_LEVEL reports are written. Numeric
// payloads are stored as float fields and everything else as strings.
type History struct {
	client *Client
	now    func() time.Time
}

// NewHistory returns a history writing through client.
func NewHistory(client *Client) *History {
	return &History{client: client, now: time.Now}
}

// ObserveOutbound writes msg if it carries a reading.
func (h *History) ObserveOutbound(_ context.Context, msg protocol.Message) {
	if p, ok := ReadingPoint(msg, h.now()); ok {
		h.client.WritePoint(p)
	}
}

// ReadingPoint converts msg to a point tagged with its node, sensor and
// type name. It reports false for messages that are not readings.
func ReadingPoint(msg protocol.Message, at time.Time) (*write.Point, bool) {
	switch {
	case msg.Command == protocol.CommandSet:
	case msg.IsInternal(protocol.InternalBatteryLevel):
	default:
		return nil, false
	}
	if len(msg.Payload) == 0 {
		return nil, false
	}

	var value any = msg.String()
	if f, err := msg.Float(); err == nil {
		value = f
	}

	tags := map[string]string{
		"node_id":   strconv.Itoa(int(msg.NodeID)),
		"sensor_id": strconv.Itoa(int(msg.SensorID)),
		"type":      msg.TypeName(),
	}
	return write.NewPoint(Measurement, tags, map[string]any{"value": value}, at), true
}
