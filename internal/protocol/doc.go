// Package protocol implements the MySensors message model and its MQTT
// topic codec.
//
// A MySensors message travels over MQTT as a topic plus a payload:
//
//	<prefix>/<node-id>/<child-sensor-id>/<command>/<ack>/<type>
//
// Every numeric field is rendered as canonical decimal text and the ack flag
// as "0" or "1". The payload is the message value as text, except for stream
// messages (firmware, images, sound) whose raw bytes are hex encoded.
//
// # Encoding
//
// A Codec owns one bounded scratch buffer that every Encode call writes into.
// The payload slice returned by Encode is only valid until the next call on
// the same Codec:
//
//	var c protocol.Codec
//	topic, payload, _ := c.Encode("mygateway1-out", msg)
//	link.Publish(ctx, topic, payload, false)
//
// Payloads longer than MaxPayloadSize are truncated and reported through the
// third return value. Truncation is lossy but never an error.
//
// # Decoding
//
// Decode is strict: the topic must carry the expected prefix followed by
// exactly five segments, every segment must parse, and the type must be a
// known value for the decoded command. Anything else yields no message at
// all, so a malformed delivery can be dropped without further checks.
//
// # Thread Safety
//
// Message values and Decode are safe for concurrent use. A Codec is not: it
// belongs to whichever goroutine drives the transport.
package protocol
