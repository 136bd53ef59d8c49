package node

import "errors"

var (
	// ErrNodeNotFound is returned when a node id has never been seen.
	ErrNodeNotFound = errors.New("node not found")

	// ErrUnknownSensorType is returned for a configured sensor whose type
	// name is not a MySensors S_ constant.
	ErrUnknownSensorType = errors.New("unknown sensor type")
)
