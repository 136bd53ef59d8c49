// Package mqtt5 provides a self-healing MQTT v5 session on top of
// paho.golang's autopaho connection manager.
//
// It backs the "session" gateway transport: the session connects, retries
// with a constant back-off, and restores subscriptions without any help
// from the caller. Inbound publishes are delivered on autopaho's goroutine.
package mqtt5
