package gateway

import (
	"sync"

	"github.com/grote-beer/MySensors/internal/protocol"
)

// Mailbox holds the most recent inbound message.
//
// It has a single slot: Put always overwrites, whether or not the previous
// message was taken. Safe for concurrent use.
type Mailbox struct {
	mu        sync.Mutex
	msg       protocol.Message
	available bool
}

// Put stores msg and marks the mailbox available.
func (m *Mailbox) Put(msg protocol.Message) {
	m.mu.Lock()
	m.msg = msg
	m.available = true
	m.mu.Unlock()
}

// Take returns the stored message and clears the available flag. The slot
// keeps its contents, so a Take without a preceding Put returns the last
// message again (or the zero Message).
func (m *Mailbox) Take() protocol.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.available = false
	return m.msg
}

// Available reports whether a message arrived since the last Take.
func (m *Mailbox) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.available
}
