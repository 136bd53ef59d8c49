package protocol

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// topicSegments is the number of topic segments after the prefix.
const topicSegments = 5

const hexDigits = "0123456789ABCDEF"

// Codec converts messages to MQTT topic and payload pairs.
//
// The zero value is ready to use. A Codec is not safe for concurrent use.
type Codec struct {
	// buf is large enough for MaxPayloadSize bytes rendered as hex.
	buf [2 * MaxPayloadSize]byte
}

// Encode renders msg as a topic under prefix and a payload.
//
// The payload aliases the codec's scratch buffer and is overwritten by the
// next Encode. Payloads longer than MaxPayloadSize are cut to that size and
// truncated reports it.
func (c *Codec) Encode(prefix string, msg Message) (topic string, payload []byte, truncated bool) {
	topic = Topic(prefix, msg)

	src := msg.Payload
	if len(src) > MaxPayloadSize {
		src = src[:MaxPayloadSize]
		truncated = true
	}

	if msg.Command != CommandStream {
		n := copy(c.buf[:], src)
		return topic, c.buf[:n], truncated
	}

	for i, b := range src {
		c.buf[2*i] = hexDigits[b>>4]
		c.buf[2*i+1] = hexDigits[b&0x0f]
	}
	return topic, c.buf[:2*len(src)], truncated
}

// Topic returns the topic msg is published on under prefix.
func Topic(prefix string, msg Message) string {
	var sb strings.Builder
	sb.Grow(len(prefix) + 18)
	sb.WriteString(prefix)
	sb.WriteByte('/')
	sb.WriteString(strconv.Itoa(int(msg.NodeID)))
	sb.WriteByte('/')
	sb.WriteString(strconv.Itoa(int(msg.SensorID)))
	sb.WriteByte('/')
	sb.WriteString(strconv.Itoa(int(msg.Command)))
	sb.WriteByte('/')
	if msg.Ack {
		sb.WriteByte('1')
	} else {
		sb.WriteByte('0')
	}
	sb.WriteByte('/')
	sb.WriteString(strconv.Itoa(int(msg.Type)))
	return sb.String()
}

// Decode parses an inbound topic and payload received under prefix.
//
// It returns false, and a zero Message, if the topic does not consist of
// prefix followed by exactly five well-formed segments, if the type is
// unknown for the decoded command, or if a stream payload is not valid hex.
// The returned message never shares memory with payload.
func Decode(prefix, topic string, payload []byte) (Message, bool) {
	rest, ok := strings.CutPrefix(topic, prefix+"/")
	if !ok || prefix == "" {
		return Message{}, false
	}

	seg := strings.Split(rest, "/")
	if len(seg) != topicSegments {
		return Message{}, false
	}

	node, ok := parseField(seg[0])
	if !ok {
		return Message{}, false
	}
	sensor, ok := parseField(seg[1])
	if !ok {
		return Message{}, false
	}
	cmd, ok := parseField(seg[2])
	if !ok || !Command(cmd).Valid() {
		return Message{}, false
	}

	var ack bool
	switch seg[3] {
	case "0":
	case "1":
		ack = true
	default:
		return Message{}, false
	}

	typ, ok := parseField(seg[4])
	if !ok || !ValidType(Command(cmd), typ) {
		return Message{}, false
	}

	msg := Message{
		NodeID:   node,
		SensorID: sensor,
		Command:  Command(cmd),
		Type:     typ,
		Ack:      ack,
	}

	if msg.Command == CommandStream {
		raw := make([]byte, hex.DecodedLen(len(payload)))
		if _, err := hex.Decode(raw, payload); err != nil {
			return Message{}, false
		}
		msg.SetBytes(raw)
	} else {
		msg.SetBytes(payload)
	}

	return msg, true
}

// parseField parses a decimal topic segment in the range 0-255.
func parseField(s string) (uint8, bool) {
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, false
	}
	return uint8(v), true
}

// SubscriptionPattern returns the topic filter that matches every message
// published under prefix.
func SubscriptionPattern(prefix string) string {
	return prefix + "/+/+/+/+/+"
}

// ValidPrefix checks that prefix can be used as a publish or subscribe
// prefix.
func ValidPrefix(prefix string) error {
	switch {
	case prefix == "":
		return fmt.Errorf("%w: empty", ErrInvalidPrefix)
	case strings.ContainsAny(prefix, "+#"):
		return fmt.Errorf("%w: %q contains a wildcard", ErrInvalidPrefix, prefix)
	case strings.HasPrefix(prefix, "/") || strings.HasSuffix(prefix, "/"):
		return fmt.Errorf("%w: %q has a leading or trailing separator", ErrInvalidPrefix, prefix)
	}
	return nil
}
