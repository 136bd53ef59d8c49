package gateway

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
)

// State is the broker session state of an MQTTTransport.
type State string

// Connection states.
const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Connection events.
const (
	// eventDial starts a connect attempt.
	eventDial = "dial"
	// eventEstablished completes a connect attempt.
	eventEstablished = "established"
	// eventFail aborts a connect attempt.
	eventFail = "fail"
	// eventLost drops the session, e.g. on a broken link or re-init.
	eventLost = "lost"
)

// connectionFSM tracks the session state. Only MQTTTransport mutates it.
type connectionFSM struct {
	*fsm.FSM
}

// newConnectionFSM builds the state machine in StateDisconnected. onEnter
// runs after every transition, outside the machine's locks.
func newConnectionFSM(onEnter func(from, to State)) *connectionFSM {
	events := fsm.Events{
		{Name: eventDial, Src: []string{string(StateDisconnected)}, Dst: string(StateConnecting)},
		{Name: eventEstablished, Src: []string{string(StateConnecting)}, Dst: string(StateConnected)},
		{Name: eventFail, Src: []string{string(StateConnecting)}, Dst: string(StateDisconnected)},
		{Name: eventLost, Src: []string{string(StateConnecting), string(StateConnected)}, Dst: string(StateDisconnected)},
	}

	callbacks := fsm.Callbacks{
		"enter_state": func(_ context.Context, e *fsm.Event) {
			if onEnter != nil {
				onEnter(State(e.Src), State(e.Dst))
			}
		},
	}

	return &connectionFSM{FSM: fsm.NewFSM(string(StateDisconnected), events, callbacks)}
}

// fire triggers event. Firing an event that does not change the state is
// not an error.
func (c *connectionFSM) fire(ctx context.Context, event string) error {
	err := c.Event(ctx, event)
	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return nil
	}
	return err
}

func (c *connectionFSM) state() State {
	return State(c.Current())
}

// reset returns the machine to StateDisconnected from wherever it is.
func (c *connectionFSM) reset(ctx context.Context) error {
	if c.state() == StateDisconnected {
		return nil
	}
	return c.fire(ctx, eventLost)
}
