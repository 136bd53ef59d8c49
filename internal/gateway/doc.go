// Package gateway implements the MySensors MQTT gateway transport.
//
// Two backends implement Transport:
//
//   - MQTTTransport drives a Link (a plain MQTT client) through a connection
//     state machine: disconnected, connecting, connected. Each call to
//     Available makes at most one connect attempt, waits a fixed delay
//     after a failure, and on success presents the node and subscribes to
//     <subscribe-prefix>/+/+/+/+/+ before any inbound delivery is pumped.
//   - SessionTransport sits on a SessionLink that reconnects by itself. It
//     subscribes, announces I_GATEWAY_READY, and presents the node once in
//     Init.
//
// Both share the protocol codec and a single-slot Mailbox. A newer inbound
// message overwrites an unread one; this is intentional.
//
// # Driver Loop
//
// Runner owns the transport on one goroutine:
//
//	transport := gateway.NewMQTTTransport(link, cfg,
//	    gateway.WithPresenter(presenter),
//	    gateway.WithIndicator(metrics),
//	)
//	runner := gateway.NewRunner(transport, 10*time.Millisecond)
//	runner.AddHandler(responder)
//	go runner.Run(ctx)
//
//	err := runner.Send(ctx, protocol.NewSet(5, 1, protocol.VarTemp, "21.5"))
//
// # Error Handling
//
// Send returns ErrNotConnected while the broker session is down; the
// message is not queued. Malformed inbound deliveries are dropped and only
// counted through the Indicator.
package gateway
