// Package api implements the gateway's status HTTP API and live message
// stream.
//
// This package provides:
//   - REST endpoints to list, inspect and forget nodes in the registry
//   - An endpoint that publishes a message as if a node had sent it
//   - A WebSocket hub streaming every inbound and outbound message
//   - An audit trail of the operator actions above
//   - Middleware stack (request ID, logging, recovery, CORS)
//
// # Architecture
//
// The hub plugs into the gateway runner twice: as an observer it sees each
// message published to the controller, as a handler it sees each message
// the controller addressed to the sensor network. Clients subscribe to the
// channels they want:
//
//	{"type":"subscribe","id":"1","payload":{"channels":["message.outbound"]}}
//
// # Graceful Degradation
//
// The server runs whether or not the broker is reachable. Reads and the
// stream keep working; message injection fails with 503 while the gateway
// is disconnected.
package api
