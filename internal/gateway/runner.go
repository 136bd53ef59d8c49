package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/grote-beer/MySensors/internal/protocol"
)

const (
	// DefaultPollInterval is the driver loop cadence.
	DefaultPollInterval = 10 * time.Millisecond

	// maxReceivesPerTick bounds how many inbound messages one tick drains
	// before outbound sends get a turn.
	maxReceivesPerTick = 16
)

// Handler processes an inbound message. Replies go through s, which sends
// on the driver goroutine without queueing.
type Handler interface {
	HandleInbound(ctx context.Context, msg protocol.Message, s Sender)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg protocol.Message, s Sender)

// HandleInbound calls f(ctx, msg, s).
func (f HandlerFunc) HandleInbound(ctx context.Context, msg protocol.Message, s Sender) {
	f(ctx, msg, s)
}

// Observer is notified of every message the transport accepted for
// sending.
type Observer interface {
	ObserveOutbound(ctx context.Context, msg protocol.Message)
}

// observable is implemented by transports that report their own sends,
// including the ones they make without being asked (presentation after a
// connect, the gateway-ready announcement).
type observable interface {
	setObserver(o Observer)
}

type outbound struct {
	ctx    context.Context
	msg    protocol.Message
	result chan error
}

// Runner is the driver loop owning a Transport.
//
// All transport calls happen on the goroutine running Run. Other goroutines
// send through Runner.Send, which hands the message to that goroutine.
type Runner struct {
	transport    Transport
	pollInterval time.Duration

	mu        sync.RWMutex
	handlers  []Handler
	observers []Observer

	// reported is set when the transport notifies the runner itself.
	reported bool

	outbox chan outbound
	done   chan struct{}
	once   sync.Once

	logger Logger
}

// NewRunner creates a driver loop for transport. A pollInterval of zero
// means DefaultPollInterval.
func NewRunner(transport Transport, pollInterval time.Duration) *Runner {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	r := &Runner{
		transport:    transport,
		pollInterval: pollInterval,
		outbox:       make(chan outbound),
		done:         make(chan struct{}),
		logger:       noopLogger{},
	}
	if t, ok := transport.(observable); ok {
		t.setObserver(r)
		r.reported = true
	}
	return r
}

// SetLogger sets the logger for the runner.
func (r *Runner) SetLogger(logger Logger) {
	r.logger = logger
}

// AddHandler registers a handler for inbound messages. Handlers run in
// registration order.
func (r *Runner) AddHandler(h Handler) {
	r.mu.Lock()
	r.handlers = append(r.handlers, h)
	r.mu.Unlock()
}

// AddObserver registers an observer for outbound messages. Observers see
// every message the transport sent, whoever asked for it.
func (r *Runner) AddObserver(o Observer) {
	r.mu.Lock()
	r.observers = append(r.observers, o)
	r.mu.Unlock()
}

// ObserveOutbound fans msg out to the registered observers.
func (r *Runner) ObserveOutbound(ctx context.Context, msg protocol.Message) {
	r.mu.RLock()
	observers := r.observers
	r.mu.RUnlock()
	for _, o := range observers {
		o.ObserveOutbound(ctx, msg)
	}
}

// Run initialises the transport and polls it until ctx is cancelled.
//
// Returns:
//   - error: If Init fails; nil after cancellation
func (r *Runner) Run(ctx context.Context) error {
	defer r.once.Do(func() { close(r.done) })

	if err := r.transport.Init(ctx); err != nil {
		return fmt.Errorf("initialising transport: %w", err)
	}
	r.logger.Info("gateway transport running", "poll_interval", r.pollInterval)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("gateway transport stopping")
			return nil
		case req := <-r.outbox:
			req.result <- r.send(req.ctx, req.msg)
		case <-ticker.C:
			r.poll(ctx)
		}
	}
}

// poll runs one availability cycle and dispatches what arrived.
func (r *Runner) poll(ctx context.Context) {
	for range maxReceivesPerTick {
		if ctx.Err() != nil || !r.transport.Available(ctx) {
			return
		}
		msg := r.transport.Receive()
		r.dispatch(ctx, msg)
	}
}

func (r *Runner) dispatch(ctx context.Context, msg protocol.Message) {
	r.mu.RLock()
	handlers := r.handlers
	r.mu.RUnlock()

	if len(handlers) == 0 {
		r.logger.Debug("inbound message has no handler", "message", msg.Format())
		return
	}

	s := loopSender{r}
	for _, h := range handlers {
		h.HandleInbound(ctx, msg, s)
	}
}

// send runs on the driver goroutine.
func (r *Runner) send(ctx context.Context, msg protocol.Message) error {
	if err := r.transport.Send(ctx, msg); err != nil {
		return err
	}
	if !r.reported {
		r.ObserveOutbound(ctx, msg)
	}
	return nil
}

// Send hands msg to the driver goroutine and waits for the result.
//
// Returns:
//   - error: The transport's send result, ctx.Err() if ctx ends first,
//     or ErrRunnerStopped if the loop is not running
func (r *Runner) Send(ctx context.Context, msg protocol.Message) error {
	req := outbound{ctx: ctx, msg: msg, result: make(chan error, 1)}

	select {
	case r.outbox <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrRunnerStopped
	}

	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// loopSender sends directly on the driver goroutine. It is only handed to
// handlers running inside the loop.
type loopSender struct {
	r *Runner
}

func (s loopSender) Send(ctx context.Context, msg protocol.Message) error {
	return s.r.send(ctx, msg)
}
