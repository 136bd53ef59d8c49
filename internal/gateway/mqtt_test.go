package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grote-beer/MySensors/internal/protocol"
)

func newTestTransport(t *testing.T, link *mockLink, cfg Config, opts ...Option) (*MQTTTransport, *[]time.Duration) {
	t.Helper()
	if cfg.PublishPrefix == "" {
		cfg.PublishPrefix = "gw-out"
	}
	if cfg.SubscribePrefix == "" {
		cfg.SubscribePrefix = "gw-in"
	}
	tr := NewMQTTTransport(link, cfg, opts...)

	var slept []time.Duration
	tr.sleep = func(_ context.Context, d time.Duration) { slept = append(slept, d) }

	require.NoError(t, tr.Init(context.Background()))
	return tr, &slept
}

func TestMQTTTransport_InitDoesNotConnect(t *testing.T) {
	link := &mockLink{}
	tr, _ := newTestTransport(t, link, Config{})

	assert.Equal(t, StateDisconnected, tr.State())
	assert.Empty(t, link.callLog())
	assert.NotNil(t, link.handler)
}

func TestMQTTTransport_InitWithoutLink(t *testing.T) {
	tr := NewMQTTTransport(nil, Config{})
	assert.ErrorIs(t, tr.Init(context.Background()), ErrNoLink)
}

func TestMQTTTransport_ConnectHandshake(t *testing.T) {
	ctx := context.Background()
	link := &mockLink{}
	presenter := &recordingPresenter{link: link}
	creds := Credentials{ClientID: "mysensors-1", Username: "u", Password: "p"}
	tr, _ := newTestTransport(t, link, Config{Credentials: creds}, WithPresenter(presenter))

	link.enqueue("gw-in/1/1/1/0/2", "1")

	// The connecting cycle never reports availability.
	assert.False(t, tr.Available(ctx))
	assert.Equal(t, StateConnected, tr.State())
	assert.Equal(t, []Credentials{creds}, link.creds)

	// Presentation, then subscribe, and no delivery pumped yet.
	assert.Equal(t, []string{"connect", "present", "publish", "subscribe"}, link.callLog())
	assert.Equal(t, []string{"gw-in/+/+/+/+/+"}, link.patterns)
	assert.Equal(t, 1, presenter.calls)

	// The next cycle pumps the link.
	assert.True(t, tr.Available(ctx))
	msg := tr.Receive()
	assert.Equal(t, uint8(1), msg.NodeID)
	assert.Equal(t, "1", msg.String())
}

func TestMQTTTransport_ConnectFailureWaitsAndRetries(t *testing.T) {
	ctx := context.Background()
	link := &mockLink{connectErr: errors.New("connection refused")}
	ind := newCountingIndicator()
	tr, slept := newTestTransport(t, link, Config{}, WithIndicator(ind))

	assert.False(t, tr.Available(ctx))
	assert.Equal(t, StateDisconnected, tr.State())
	assert.Equal(t, []time.Duration{DefaultReconnectDelay}, *slept)
	assert.NotContains(t, link.callLog(), "subscribe")

	link.connectErr = nil
	assert.False(t, tr.Available(ctx))
	assert.Equal(t, StateConnected, tr.State())
	assert.Equal(t, 1, ind.attempts[false])
	assert.Equal(t, 1, ind.attempts[true])
	assert.True(t, ind.connected)
}

func TestMQTTTransport_CustomReconnectDelay(t *testing.T) {
	link := &mockLink{connectErr: errors.New("refused")}
	tr, slept := newTestTransport(t, link, Config{ReconnectDelay: 250 * time.Millisecond})

	tr.Available(context.Background())
	assert.Equal(t, []time.Duration{250 * time.Millisecond}, *slept)
}

func TestMQTTTransport_ReconnectAfterLoss(t *testing.T) {
	ctx := context.Background()
	link := &mockLink{}
	presenter := &recordingPresenter{link: link}
	tr, _ := newTestTransport(t, link, Config{}, WithPresenter(presenter))

	tr.Available(ctx)
	require.Equal(t, StateConnected, tr.State())

	link.drop()
	assert.False(t, tr.Available(ctx))
	assert.Equal(t, StateConnected, tr.State())

	// Each successful connect is followed by exactly one presentation and
	// one subscribe.
	assert.Equal(t, 2, presenter.calls)
	assert.Len(t, link.patterns, 2)

	log := link.callLog()
	var sequence []string
	for _, c := range log {
		if c != "publish" {
			sequence = append(sequence, c)
		}
	}
	assert.Equal(t, []string{"connect", "present", "subscribe", "connect", "present", "subscribe"}, sequence)
}

func TestMQTTTransport_SendGating(t *testing.T) {
	ctx := context.Background()
	link := &mockLink{}
	ind := newCountingIndicator()
	tr, _ := newTestTransport(t, link, Config{}, WithIndicator(ind))

	before := tr.codec
	err := tr.Send(ctx, protocol.NewSet(5, 2, protocol.VarTemp, "21.5"))

	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Empty(t, link.publishes())
	assert.Equal(t, before, tr.codec, "scratch buffer touched while disconnected")
	assert.Empty(t, ind.tx)
}

func TestMQTTTransport_Send(t *testing.T) {
	ctx := context.Background()
	link := &mockLink{}
	ind := newCountingIndicator()
	tr, _ := newTestTransport(t, link, Config{PublishPrefix: "home"}, WithIndicator(ind))
	tr.Available(ctx)

	msg := protocol.Message{NodeID: 5, SensorID: 2, Command: protocol.CommandSet, Type: 12, Payload: []byte("37.5")}
	require.NoError(t, tr.Send(ctx, msg))

	assert.Equal(t, []publishCall{{topic: "home/5/2/1/0/12", payload: "37.5", retain: false}}, link.publishes())
	assert.Equal(t, 1, ind.tx["C_SET"])
}

func TestMQTTTransport_SendPublishFailure(t *testing.T) {
	ctx := context.Background()
	link := &mockLink{}
	tr, _ := newTestTransport(t, link, Config{})
	tr.Available(ctx)

	link.publishErr = errors.New("broker gone")
	err := tr.Send(ctx, protocol.NewSet(1, 1, protocol.VarStatus, "1"))
	assert.ErrorIs(t, err, ErrPublishFailed)
}

func TestMQTTTransport_SendTruncates(t *testing.T) {
	ctx := context.Background()
	link := &mockLink{}
	ind := newCountingIndicator()
	tr, _ := newTestTransport(t, link, Config{}, WithIndicator(ind))
	tr.Available(ctx)

	msg := protocol.Message{Command: protocol.CommandSet, Type: uint8(protocol.VarText), Payload: make([]byte, 40)}
	require.NoError(t, tr.Send(ctx, msg))

	pubs := link.publishes()
	require.Len(t, pubs, 1)
	assert.Len(t, pubs[0].payload, protocol.MaxPayloadSize)
	assert.Equal(t, 1, ind.truncations)
}

func TestMQTTTransport_RetainPolicy(t *testing.T) {
	ctx := context.Background()
	link := &mockLink{}
	tr, _ := newTestTransport(t, link, Config{Retain: true})
	tr.Available(ctx)

	require.NoError(t, tr.Send(ctx, protocol.NewSet(1, 1, protocol.VarTemp, "20")))
	require.NoError(t, tr.Send(ctx, protocol.NewInternal(1, 255, protocol.InternalBatteryLevel, "87")))
	require.NoError(t, tr.Send(ctx, protocol.NewInternal(1, 255, protocol.InternalSketchName, "x")))

	pubs := link.publishes()
	require.Len(t, pubs, 3)
	assert.True(t, pubs[0].retain)
	assert.True(t, pubs[1].retain)
	assert.False(t, pubs[2].retain)
}

func TestMQTTTransport_InboundDelivery(t *testing.T) {
	ctx := context.Background()
	link := &mockLink{}
	ind := newCountingIndicator()
	tr, _ := newTestTransport(t, link, Config{}, WithIndicator(ind))
	tr.Available(ctx)

	link.enqueue("gw-in/3/1/1/0/2", "1")
	link.enqueue("gw-in/4/1/1/0/2", "0")
	assert.True(t, tr.Available(ctx))

	// Second delivery overwrote the first.
	msg := tr.Receive()
	assert.Equal(t, uint8(4), msg.NodeID)
	assert.False(t, tr.Available(ctx))

	link.enqueue("other/4/1/1/0/2", "0")
	link.enqueue("gw-in/4/1/9/0/2", "0")
	assert.False(t, tr.Available(ctx))

	assert.Equal(t, 4, ind.rx)
	assert.Equal(t, 2, ind.decodeFailures)
}

func TestMQTTTransport_NetworkDown(t *testing.T) {
	ctx := context.Background()
	link := &mockLink{}
	network := &fakeNetwork{up: true}
	tr, _ := newTestTransport(t, link, Config{}, WithNetwork(network))

	tr.Available(ctx)
	require.Equal(t, StateConnected, tr.State())

	network.up = false
	assert.False(t, tr.Available(ctx))
	assert.Equal(t, StateDisconnected, tr.State())
	assert.Equal(t, 1, countCalls(link.callLog(), "connect"))

	// Sends are gated even though the link itself still reports a session.
	assert.ErrorIs(t, tr.Send(ctx, protocol.NewSet(1, 1, protocol.VarTemp, "1")), ErrNotConnected)

	network.up = true
	tr.Available(ctx)
	assert.Equal(t, StateConnected, tr.State())
	assert.Equal(t, 2, countCalls(link.callLog(), "connect"))
}

func TestMQTTTransport_NetworkDownReinit(t *testing.T) {
	ctx := context.Background()
	link := &mockLink{}
	network := &fakeNetwork{up: true}
	tr, _ := newTestTransport(t, link, Config{ReinitOnNetworkLoss: true}, WithNetwork(network))

	tr.Available(ctx)
	link.handler = nil

	network.up = false
	assert.False(t, tr.Available(ctx))
	assert.Equal(t, StateDisconnected, tr.State())
	assert.NotNil(t, link.handler, "Init did not re-register the inbound handler")
}

func TestMQTTTransport_SubscribeFailureKeepsSession(t *testing.T) {
	ctx := context.Background()
	link := &mockLink{subErr: errors.New("not authorised")}
	tr, _ := newTestTransport(t, link, Config{})

	assert.False(t, tr.Available(ctx))
	assert.Equal(t, StateConnected, tr.State())
}

func TestMQTTTransport_PresentFailureStillSubscribes(t *testing.T) {
	ctx := context.Background()
	link := &mockLink{}
	presenter := &recordingPresenter{link: link, err: errors.New("boom")}
	tr, _ := newTestTransport(t, link, Config{}, WithPresenter(presenter))

	tr.Available(ctx)
	assert.Equal(t, []string{"connect", "present", "subscribe"}, link.callLog())
}

func TestMQTTTransport_InitResetsState(t *testing.T) {
	ctx := context.Background()
	link := &mockLink{}
	tr, _ := newTestTransport(t, link, Config{})
	tr.Available(ctx)
	require.Equal(t, StateConnected, tr.State())

	require.NoError(t, tr.Init(ctx))
	assert.Equal(t, StateDisconnected, tr.State())
}

func countCalls(calls []string, name string) int {
	n := 0
	for _, c := range calls {
		if c == name {
			n++
		}
	}
	return n
}
