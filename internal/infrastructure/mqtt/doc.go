// Package mqtt provides the broker link of the gateway on top of
// paho.mqtt.golang (MQTT 3.1.1).
//
// The client is built to be polled. It connects only when Connect is
// called, keeps no subscriptions across sessions, and hands inbound
// messages to its handler from Loop rather than from paho's goroutines:
//
//	client := mqtt.New(cfg.MQTT)
//	client.SetHandler(func(topic string, payload []byte) error { ... })
//	if err := client.Connect(ctx, "mysensors-1", "", ""); err != nil { ... }
//	_ = client.Subscribe(ctx, "mygateway1-in/+/+/+/+/+", 0)
//	for client.Loop() {
//	}
//
// # Security Considerations
//
//   - Set mqtt.broker.tls for brokers reachable beyond the local host
//   - Credentials should come from MYSGW_MQTT_USERNAME / MYSGW_MQTT_PASSWORD
//
// # Last Will
//
// With mqtt.will.enabled the broker publishes the configured will when the
// gateway disappears without disconnecting.
package mqtt
