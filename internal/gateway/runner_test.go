package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grote-beer/MySensors/internal/protocol"
)

type recordingObserver struct {
	mu   sync.Mutex
	msgs []protocol.Message
}

func (o *recordingObserver) ObserveOutbound(_ context.Context, msg protocol.Message) {
	o.mu.Lock()
	o.msgs = append(o.msgs, msg)
	o.mu.Unlock()
}

func (o *recordingObserver) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.msgs)
}

func startRunner(t *testing.T, tr Transport) (*Runner, context.CancelFunc, chan error) {
	t.Helper()
	r := NewRunner(tr, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	t.Cleanup(cancel)
	return r, cancel, done
}

func TestRunner_DispatchesInbound(t *testing.T) {
	link := &mockLink{}
	tr := NewMQTTTransport(link, Config{PublishPrefix: "out", SubscribePrefix: "in"})
	tr.sleep = func(context.Context, time.Duration) {}

	got := make(chan protocol.Message, 1)
	r := NewRunner(tr, time.Millisecond)
	r.AddHandler(HandlerFunc(func(ctx context.Context, msg protocol.Message, s Sender) {
		// Replies from inside the loop must not deadlock.
		assert.NoError(t, s.Send(ctx, protocol.NewSet(0, 1, protocol.VarStatus, "1")))
		got <- msg
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	require.Eventually(t, func() bool { return link.Connected() }, time.Second, time.Millisecond)
	link.enqueue("in/7/1/1/0/2", "1")

	select {
	case msg := <-got:
		assert.Equal(t, uint8(7), msg.NodeID)
	case <-time.After(2 * time.Second):
		t.Fatal("inbound message not dispatched")
	}

	require.Eventually(t, func() bool { return len(link.publishes()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, "out/0/1/1/0/2", link.publishes()[0].topic)
}

func TestRunner_Send(t *testing.T) {
	link := &mockLink{}
	tr := NewMQTTTransport(link, Config{PublishPrefix: "out", SubscribePrefix: "in"})
	tr.sleep = func(context.Context, time.Duration) {}

	obs := &recordingObserver{}
	r, cancel, done := startRunner(t, tr)
	r.AddObserver(obs)

	ctx := context.Background()
	require.Eventually(t, func() bool { return tr.State() == StateConnected }, time.Second, time.Millisecond)

	require.NoError(t, r.Send(ctx, mustSet()))
	assert.Equal(t, 1, obs.count())

	link.publishErr = assert.AnError
	assert.ErrorIs(t, r.Send(ctx, mustSet()), ErrPublishFailed)
	assert.Equal(t, 1, obs.count(), "failed send reached observers")

	cancel()
	require.NoError(t, <-done)
	assert.ErrorIs(t, r.Send(ctx, mustSet()), ErrRunnerStopped)
}

func TestRunner_ObservesHandshakeAndReplies(t *testing.T) {
	link := &mockLink{}
	tr := NewMQTTTransport(link, Config{PublishPrefix: "out", SubscribePrefix: "in"},
		WithPresenter(&recordingPresenter{}))
	tr.sleep = func(context.Context, time.Duration) {}

	obs := &recordingObserver{}
	r := NewRunner(tr, time.Millisecond)
	r.AddObserver(obs)
	r.AddHandler(HandlerFunc(func(ctx context.Context, _ protocol.Message, s Sender) {
		assert.NoError(t, s.Send(ctx, mustSet()))
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	// The presentation after connect is sent by the transport itself.
	require.Eventually(t, func() bool { return obs.count() == 1 }, time.Second, time.Millisecond)
	obs.mu.Lock()
	assert.Equal(t, protocol.CommandPresentation, obs.msgs[0].Command)
	obs.mu.Unlock()

	// A reply from a handler is observed exactly once.
	link.enqueue("in/7/1/1/0/2", "1")
	require.Eventually(t, func() bool { return len(link.publishes()) == 2 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, obs.count())
}

func TestRunner_ObservesGatewayReady(t *testing.T) {
	link := &mockLink{connected: true}
	r := NewRunner(NewSessionTransport(link, Config{PublishPrefix: "out", SubscribePrefix: "in"}), time.Millisecond)
	obs := &recordingObserver{}
	r.AddObserver(obs)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	require.Eventually(t, func() bool { return obs.count() == 1 }, time.Second, time.Millisecond)
	obs.mu.Lock()
	assert.True(t, obs.msgs[0].IsInternal(protocol.InternalGatewayReady))
	obs.mu.Unlock()
}

// plainTransport is a Transport that does not report its own sends.
type plainTransport struct {
	mu   sync.Mutex
	sent int
}

func (p *plainTransport) Init(context.Context) error { return nil }

func (p *plainTransport) Send(context.Context, protocol.Message) error {
	p.mu.Lock()
	p.sent++
	p.mu.Unlock()
	return nil
}

func (p *plainTransport) Available(context.Context) bool { return false }

func (p *plainTransport) Receive() protocol.Message { return protocol.Message{} }

func TestRunner_ObservesPlainTransport(t *testing.T) {
	obs := &recordingObserver{}
	r, _, _ := startRunner(t, &plainTransport{})
	r.AddObserver(obs)

	require.NoError(t, r.Send(context.Background(), mustSet()))
	assert.Equal(t, 1, obs.count())
}

func TestRunner_SendContextCancelled(t *testing.T) {
	r := NewRunner(NewSessionTransport(&mockLink{}, Config{}), time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	// The loop is not running, so the hand-off never happens.
	assert.ErrorIs(t, r.Send(ctx, mustSet()), context.DeadlineExceeded)
}

func TestRunner_InitFailure(t *testing.T) {
	r := NewRunner(NewMQTTTransport(nil, Config{}), time.Millisecond)
	err := r.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoLink)
}
