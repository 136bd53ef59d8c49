package node

import "time"

// LibraryVersion is the MySensors library version the gateway presents.
const LibraryVersion = "2.3.2"

// Node is a MySensors node as recorded by the registry.
type Node struct {
	ID             uint8     `json:"id"`
	Type           string    `json:"type,omitempty"` // S_ARDUINO_NODE or S_ARDUINO_REPEATER_NODE
	LibraryVersion string    `json:"library_version,omitempty"`
	SketchName     string    `json:"sketch_name,omitempty"`
	SketchVersion  string    `json:"sketch_version,omitempty"`
	BatteryLevel   *int      `json:"battery_level,omitempty"`
	FirstSeen      time.Time `json:"first_seen"`
	LastSeen       time.Time `json:"last_seen"`
	Sensors        []Sensor  `json:"sensors,omitempty"`
}

// Sensor is one child sensor of a node.
type Sensor struct {
	NodeID      uint8     `json:"node_id"`
	ID          uint8     `json:"id"`
	Type        string    `json:"type,omitempty"`
	Description string    `json:"description,omitempty"`
	LastType    string    `json:"last_type,omitempty"`
	LastValue   string    `json:"last_value,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}
