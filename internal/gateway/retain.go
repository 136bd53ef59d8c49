package gateway

import "github.com/grote-beer/MySensors/internal/protocol"

// RetainPolicy returns the function deciding the retain flag of a publish.
//
// When enabled, set messages and battery level reports are retained so a
// controller that subscribes later sees the last known values. When
// disabled nothing is retained.
func RetainPolicy(enabled bool) func(protocol.Message) bool {
	if !enabled {
		return func(protocol.Message) bool { return false }
	}
	return func(msg protocol.Message) bool {
		return msg.Command == protocol.CommandSet || msg.IsInternal(protocol.InternalBatteryLevel)
	}
}
