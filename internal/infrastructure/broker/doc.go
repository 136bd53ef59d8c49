// Package broker embeds an MQTT broker (mochi-mqtt) in the gateway process.
//
// With broker.enabled the gateway and its controller can run without an
// external Mosquitto. The gateway's own MQTT client then connects to the
// embedded broker over loopback like any other client.
package broker
