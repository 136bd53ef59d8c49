package main

import (
	"context"
	"net"

	"github.com/grote-beer/MySensors/internal/gateway"
	"github.com/grote-beer/MySensors/internal/infrastructure/mqtt"
	"github.com/grote-beer/MySensors/internal/infrastructure/mqtt5"
)

// mqttLink adapts the paho client to gateway.Link. The gateway picks the
// retain flag per message; the QoS is fixed by configuration.
type mqttLink struct {
	client *mqtt.Client
	qos    byte
}

// Connected implements gateway.Link.
func (l *mqttLink) Connected() bool {
	return l.client.IsConnected()
}

// Connect implements gateway.Link.
func (l *mqttLink) Connect(ctx context.Context, creds gateway.Credentials) error {
	return l.client.Connect(ctx, creds.ClientID, creds.Username, creds.Password)
}

// Publish implements gateway.Link.
func (l *mqttLink) Publish(ctx context.Context, topic string, payload []byte, retain bool) error {
	return l.client.Publish(ctx, topic, payload, l.qos, retain)
}

// Subscribe implements gateway.Link.
func (l *mqttLink) Subscribe(ctx context.Context, pattern string) error {
	return l.client.Subscribe(ctx, pattern, l.qos)
}

// SetInboundHandler implements gateway.Link.
func (l *mqttLink) SetInboundHandler(h gateway.InboundHandler) {
	l.client.SetHandler(func(topic string, payload []byte) error {
		h(topic, payload)
		return nil
	})
}

// Loop implements gateway.Link. One delivery per call, so each one gets
// a chance to be received before the next overwrites the mailbox.
func (l *mqttLink) Loop() {
	l.client.Loop()
}

// sessionLink adapts the autopaho session to gateway.SessionLink.
type sessionLink struct {
	session *mqtt5.Session
	qos     byte
}

// Connected implements gateway.SessionLink.
func (l *sessionLink) Connected() bool {
	return l.session.Connected()
}

// Publish implements gateway.SessionLink.
func (l *sessionLink) Publish(ctx context.Context, topic string, payload []byte, retain bool) error {
	return l.session.Publish(ctx, topic, payload, l.qos, retain)
}

// Subscribe implements gateway.SessionLink.
func (l *sessionLink) Subscribe(ctx context.Context, pattern string) error {
	return l.session.Subscribe(ctx, pattern, l.qos)
}

// SetInboundHandler implements gateway.SessionLink.
func (l *sessionLink) SetInboundHandler(h gateway.InboundHandler) {
	l.session.SetHandler(mqtt5.MessageHandler(h))
}

// interfaceProbe reports a network interface as up when it is
// administratively up and has at least one address.
type interfaceProbe struct {
	name string
}

// Up implements gateway.Network.
func (p interfaceProbe) Up() bool {
	iface, err := net.InterfaceByName(p.name)
	if err != nil || iface.Flags&net.FlagUp == 0 {
		return false
	}
	addrs, err := iface.Addrs()
	return err == nil && len(addrs) > 0
}
