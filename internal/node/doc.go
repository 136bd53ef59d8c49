// Package node holds the collaborators that give the gateway its identity
// as a MySensors node and remember the nodes it has seen.
//
//   - Presenter announces node 0 and its local sensors after every connect.
//   - Responder answers internal requests addressed to the gateway node.
//   - Registry persists every node and sensor seen on the wire in SQLite.
package node
