package gateway

import (
	"context"
	"sync"

	"github.com/grote-beer/MySensors/internal/protocol"
)

type delivery struct {
	topic   string
	payload []byte
}

type publishCall struct {
	topic   string
	payload string
	retain  bool
}

// mockLink is a Link that records every call in order.
type mockLink struct {
	mu         sync.Mutex
	connected  bool
	connectErr error
	publishErr error
	subErr     error

	calls     []string
	published []publishCall
	patterns  []string
	creds     []Credentials
	queue     []delivery
	handler   InboundHandler
}

func (m *mockLink) record(call string) {
	m.calls = append(m.calls, call)
}

func (m *mockLink) Connect(_ context.Context, creds Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("connect")
	m.creds = append(m.creds, creds)
	if m.connectErr != nil {
		return m.connectErr
	}
	m.connected = true
	return nil
}

func (m *mockLink) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockLink) Publish(_ context.Context, topic string, payload []byte, retain bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("publish")
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, publishCall{topic: topic, payload: string(payload), retain: retain})
	return nil
}

func (m *mockLink) Subscribe(_ context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("subscribe")
	m.patterns = append(m.patterns, pattern)
	return m.subErr
}

func (m *mockLink) SetInboundHandler(h InboundHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
}

func (m *mockLink) Loop() {
	m.mu.Lock()
	m.record("loop")
	queue := m.queue
	m.queue = nil
	h := m.handler
	m.mu.Unlock()

	for _, d := range queue {
		m.mu.Lock()
		m.record("deliver")
		m.mu.Unlock()
		h(d.topic, d.payload)
	}
}

func (m *mockLink) enqueue(topic, payload string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, delivery{topic: topic, payload: []byte(payload)})
}

func (m *mockLink) drop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
}

func (m *mockLink) callLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockLink) publishes() []publishCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]publishCall(nil), m.published...)
}

// recordingPresenter sends one presentation and records the call.
type recordingPresenter struct {
	link  *mockLink
	calls int
	err   error
}

func (p *recordingPresenter) PresentNode(ctx context.Context, s Sender) error {
	p.calls++
	if p.link != nil {
		p.link.mu.Lock()
		p.link.record("present")
		p.link.mu.Unlock()
	}
	if p.err != nil {
		return p.err
	}
	return s.Send(ctx, protocol.NewPresentation(0, protocol.NodeSensorID, protocol.SensorArduinoNode, "2.3.2"))
}

// countingIndicator counts indications.
type countingIndicator struct {
	mu             sync.Mutex
	tx             map[string]int
	rx             int
	decodeFailures int
	truncations    int
	attempts       map[bool]int
	connected      bool
}

func newCountingIndicator() *countingIndicator {
	return &countingIndicator{tx: map[string]int{}, attempts: map[bool]int{}}
}

func (c *countingIndicator) Transmitted(cmd string) {
	c.mu.Lock()
	c.tx[cmd]++
	c.mu.Unlock()
}

func (c *countingIndicator) Received() {
	c.mu.Lock()
	c.rx++
	c.mu.Unlock()
}

func (c *countingIndicator) DecodeFailed() {
	c.mu.Lock()
	c.decodeFailures++
	c.mu.Unlock()
}

func (c *countingIndicator) Truncated() {
	c.mu.Lock()
	c.truncations++
	c.mu.Unlock()
}

func (c *countingIndicator) ConnectAttempt(ok bool) {
	c.mu.Lock()
	c.attempts[ok]++
	c.mu.Unlock()
}

func (c *countingIndicator) SetConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

type fakeNetwork struct{ up bool }

func (n *fakeNetwork) Up() bool { return n.up }
