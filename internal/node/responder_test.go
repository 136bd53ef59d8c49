package node

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/grote-beer/MySensors/internal/gateway"
	"github.com/grote-beer/MySensors/internal/protocol"
)

func TestResponder(t *testing.T) {
	p, err := NewPresenter(testNodeConfig())
	if err != nil {
		t.Fatalf("NewPresenter() error = %v", err)
	}

	tests := []struct {
		name      string
		msg       protocol.Message
		want      []string
		forwarded bool
	}{
		{
			name: "version",
			msg:  protocol.NewInternal(0, 255, protocol.InternalVersion, ""),
			want: []string{"0;255;3;0;2;2.3.2"},
		},
		{
			name: "heartbeat",
			msg:  protocol.NewInternal(0, 255, protocol.InternalHeartbeatRequest, ""),
			want: []string{"0;255;3;0;22;1500"},
		},
		{
			name: "presentation request",
			msg:  protocol.NewInternal(0, 255, protocol.InternalPresentation, ""),
			want: []string{
				"0;255;0;0;17;2.3.2",
				"0;255;3;0;11;MySensors MQTT Gateway",
				"0;255;3;0;12;1.0",
				"0;1;0;0;6;Gateway temperature",
				"0;2;0;0;3;",
			},
		},
		{
			name: "time is ignored",
			msg:  protocol.NewInternal(0, 255, protocol.InternalTime, "1700000000"),
		},
		{
			name:      "other internal is forwarded",
			msg:       protocol.NewInternal(0, 255, protocol.InternalReboot, ""),
			forwarded: true,
		},
		{
			name:      "set for gateway is forwarded",
			msg:       protocol.NewSet(0, 1, protocol.VarStatus, "1"),
			forwarded: true,
		},
		{
			name:      "other node is forwarded",
			msg:       protocol.NewInternal(5, 255, protocol.InternalVersion, ""),
			forwarded: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var forwarded []protocol.Message
			next := gateway.HandlerFunc(func(_ context.Context, msg protocol.Message, _ gateway.Sender) {
				forwarded = append(forwarded, msg)
			})

			r := NewResponder(p, next)
			start := time.Unix(1000, 0)
			r.started = start
			r.now = func() time.Time { return start.Add(1500 * time.Millisecond) }

			var s recordingSender
			r.HandleInbound(context.Background(), tt.msg, &s)

			if len(s.sent) != len(tt.want) {
				t.Fatalf("sent %d messages, want %d", len(s.sent), len(tt.want))
			}
			for i, w := range tt.want {
				if got := s.sent[i].Format(); got != w {
					t.Errorf("reply %d = %q, want %q", i, got, w)
				}
			}
			if tt.forwarded != (len(forwarded) == 1) {
				t.Errorf("forwarded = %d messages, want forwarded=%v", len(forwarded), tt.forwarded)
			}
		})
	}
}

func TestResponder_NoNextHandler(t *testing.T) {
	r := NewResponder(nil, nil)

	var s recordingSender
	r.HandleInbound(context.Background(), protocol.NewSet(3, 1, protocol.VarStatus, "1"), &s)
	r.HandleInbound(context.Background(), protocol.NewInternal(0, 255, protocol.InternalPresentation, ""), &s)

	if len(s.sent) != 0 {
		t.Errorf("sent %d messages, want 0", len(s.sent))
	}
}

func TestResponder_SendFailureIsLogged(t *testing.T) {
	r := NewResponder(nil, nil)
	log := &captureLogger{}
	r.SetLogger(log)

	s := &recordingSender{failErr: errors.New("down")}
	r.HandleInbound(context.Background(), protocol.NewInternal(0, 255, protocol.InternalVersion, ""), s)

	if len(log.warns) != 1 {
		t.Errorf("warns = %d, want 1", len(log.warns))
	}
}

type captureLogger struct {
	noopLogger
	warns []string
}

func (l *captureLogger) Warn(msg string, _ ...any) {
	l.warns = append(l.warns, msg)
}
