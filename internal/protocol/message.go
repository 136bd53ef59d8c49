package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// MaxPayloadSize is the largest payload a message can carry, in bytes.
	MaxPayloadSize = 25

	// GatewayAddress is the node id of the gateway itself.
	GatewayAddress uint8 = 0

	// BroadcastAddress addresses every node in the network.
	BroadcastAddress uint8 = 255

	// NodeSensorID is the child sensor id that refers to the node itself
	// rather than one of its sensors.
	NodeSensorID uint8 = 255
)

// Message is one MySensors message.
//
// NodeID is the sending node for outbound messages and the addressed node
// for inbound ones. Type is interpreted according to Command, see TypeName.
// Payload holds text for every command except CommandStream, where it holds
// raw bytes. It is never longer than MaxPayloadSize when produced by this
// package.
type Message struct {
	NodeID   uint8
	SensorID uint8
	Command  Command
	Type     uint8
	Ack      bool
	Payload  []byte
}

// NewSet returns a set message carrying value as text.
func NewSet(node, sensor uint8, typ VariableType, value string) Message {
	m := Message{NodeID: node, SensorID: sensor, Command: CommandSet, Type: uint8(typ)}
	m.SetString(value)
	return m
}

// NewInternal returns an internal message carrying value as text.
func NewInternal(node, sensor uint8, typ InternalType, value string) Message {
	m := Message{NodeID: node, SensorID: sensor, Command: CommandInternal, Type: uint8(typ)}
	m.SetString(value)
	return m
}

// NewPresentation returns a presentation message with an optional
// description.
func NewPresentation(node, sensor uint8, typ SensorType, description string) Message {
	m := Message{NodeID: node, SensorID: sensor, Command: CommandPresentation, Type: uint8(typ)}
	m.SetString(description)
	return m
}

// SetString stores s as the payload, truncated to MaxPayloadSize.
func (m *Message) SetString(s string) {
	m.setPayload([]byte(s))
}

// SetBytes stores a copy of b as the payload, truncated to MaxPayloadSize.
func (m *Message) SetBytes(b []byte) {
	m.setPayload(b)
}

// SetBool stores "1" or "0".
func (m *Message) SetBool(v bool) {
	if v {
		m.SetString("1")
		return
	}
	m.SetString("0")
}

// SetInt stores v as decimal text.
func (m *Message) SetInt(v int64) {
	m.SetString(strconv.FormatInt(v, 10))
}

// SetUint stores v as decimal text.
func (m *Message) SetUint(v uint64) {
	m.SetString(strconv.FormatUint(v, 10))
}

// SetFloat stores v with a fixed number of decimals.
func (m *Message) SetFloat(v float64, decimals int) {
	m.SetString(strconv.FormatFloat(v, 'f', decimals, 64))
}

func (m *Message) setPayload(b []byte) {
	if len(b) == 0 {
		m.Payload = nil
		return
	}
	if len(b) > MaxPayloadSize {
		b = b[:MaxPayloadSize]
	}
	m.Payload = append([]byte(nil), b...)
}

// String returns the payload as text.
func (m Message) String() string {
	return string(m.Payload)
}

// Bool interprets the payload as a number and reports whether it is
// non-zero.
func (m Message) Bool() (bool, error) {
	v, err := m.Int()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// Int parses the payload as a signed decimal integer.
func (m Message) Int() (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(m.String()), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", ErrPayloadFormat, m.Payload)
	}
	return v, nil
}

// Uint parses the payload as an unsigned decimal integer.
func (m Message) Uint() (uint64, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(m.String()), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an unsigned integer", ErrPayloadFormat, m.Payload)
	}
	return v, nil
}

// Float parses the payload as a decimal number.
func (m Message) Float() (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(m.String()), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrPayloadFormat, m.Payload)
	}
	return v, nil
}

// Clone returns a copy of m that shares no memory with it.
func (m Message) Clone() Message {
	if m.Payload != nil {
		m.Payload = append([]byte(nil), m.Payload...)
	}
	return m
}

// IsInternal reports whether m is an internal message of type t.
func (m Message) IsInternal(t InternalType) bool {
	return m.Command == CommandInternal && m.Type == uint8(t)
}

// TypeName returns the constant name of the message type.
func (m Message) TypeName() string {
	return TypeName(m.Command, m.Type)
}

// Format renders m in the serial-gateway style used in logs:
// "node;sensor;command;ack;type;payload".
func (m Message) Format() string {
	ack := 0
	if m.Ack {
		ack = 1
	}
	payload := m.String()
	if m.Command == CommandStream {
		payload = strings.ToUpper(fmt.Sprintf("%x", m.Payload))
	}
	return fmt.Sprintf("%d;%d;%d;%d;%d;%s", m.NodeID, m.SensorID, m.Command, ack, m.Type, payload)
}
