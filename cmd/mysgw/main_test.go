package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grote-beer/MySensors/internal/api"
	"github.com/grote-beer/MySensors/internal/infrastructure/broker"
	"github.com/grote-beer/MySensors/internal/infrastructure/config"
	"github.com/grote-beer/MySensors/internal/infrastructure/database"
	"github.com/grote-beer/MySensors/internal/infrastructure/mqtt"
	"github.com/grote-beer/MySensors/migrations"
)

func TestGetConfigPath(t *testing.T) {
	t.Setenv("MYSGW_CONFIG", "")
	assert.Equal(t, defaultConfigPath, getConfigPath(""))

	t.Setenv("MYSGW_CONFIG", "/etc/mysgw/config.yaml")
	assert.Equal(t, "/etc/mysgw/config.yaml", getConfigPath(""))
	assert.Equal(t, "./local.yaml", getConfigPath("./local.yaml"))
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("MYSGW_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.Error(t, run(ctx, getConfigPath("")))
}

func TestRun_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
gateway:
  transport: serial
database:
  path: ":memory:"
`)
	err := run(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway.transport")
}

// ─── Command Tests ─────────────────────────────────────────────────

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "mysgw "+version)
}

func TestMigrateCommands(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nodes.db")
	path := writeConfig(t, fmt.Sprintf("database:\n  path: %q\n", dbPath))

	out, err := execute(t, "migrate", "status", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "create_audit_log")

	// Apply everything the way the gateway does on startup.
	db, err := database.Open(config.DatabaseConfig{Path: dbPath})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background(), migrations.FS))
	require.NoError(t, db.Close())

	out, err = execute(t, "migrate", "status", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, "up to date")

	out, err = execute(t, "migrate", "down", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, "rolled back")

	out, err = execute(t, "migrate", "status", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, "create_audit_log")
	assert.NotContains(t, out, "up to date")
}

func TestMigrateCommands_MemoryDatabase(t *testing.T) {
	path := writeConfig(t, "database:\n  path: \":memory:\"\n")

	_, err := execute(t, "migrate", "status", "-c", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to migrate")
}

func TestInterfaceProbe(t *testing.T) {
	assert.False(t, interfaceProbe{name: "does-not-exist0"}.Up())

	ifaces, err := net.Interfaces()
	require.NoError(t, err)
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 && iface.Flags&net.FlagUp != 0 {
			assert.True(t, interfaceProbe{name: iface.Name}.Up())
			return
		}
	}
	t.Skip("no loopback interface to probe")
}

// TestRun_EndToEnd starts the gateway with its embedded broker and asks
// the gateway node for its library version over MQTT.
func TestRun_EndToEnd(t *testing.T) {
	for _, transport := range []string{config.TransportMQTT, config.TransportSession} {
		t.Run(transport, func(t *testing.T) {
			port := freePort(t)
			apiPort := freePort(t)
			path := writeConfig(t, fmt.Sprintf(`
gateway:
  transport: %s
  publish_prefix: e2e-out
  subscribe_prefix: e2e-in
  reconnect_delay_ms: 100
node:
  sensors:
    - id: 1
      type: S_TEMP
mqtt:
  broker:
    host: 127.0.0.1
    port: %d
    client_id: e2e-gateway
  connect_timeout: 2
broker:
  enabled: true
  address: 127.0.0.1:%d
database:
  path: ":memory:"
api:
  enabled: true
  address: 127.0.0.1:%d
logging:
  level: error
`, transport, port, port, apiPort))
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- run(ctx, path) }()

			controller := mqtt.New(config.MQTTConfig{
				Broker:         config.MQTTBrokerConfig{Host: "127.0.0.1", Port: port},
				ConnectTimeout: 1,
			})
			defer controller.Close() //nolint:errcheck // Test cleanup

			var (
				mu      sync.Mutex
				replies = map[string]string{}
			)
			controller.SetHandler(func(topic string, payload []byte) error {
				mu.Lock()
				replies[topic] = string(payload)
				mu.Unlock()
				return nil
			})

			require.Eventually(t, func() bool {
				return controller.Connect(ctx, "e2e-controller", "", "") == nil
			}, 5*time.Second, 50*time.Millisecond, "embedded broker never came up")
			require.NoError(t, controller.Subscribe(ctx, "e2e-out/#", 0))

			require.Eventually(t, func() bool {
				_ = controller.Publish(ctx, "e2e-in/0/255/3/0/2", nil, 0, false)
				for controller.Loop() {
				}
				mu.Lock()
				defer mu.Unlock()
				return replies["e2e-out/0/255/3/0/2"] == "2.3.2"
			}, 10*time.Second, 100*time.Millisecond, "no I_VERSION reply")

			// The gateway's own presentation lands in the registry.
			apiURL := fmt.Sprintf("http://127.0.0.1:%d/api/v1", apiPort)
			resp, err := http.Get(apiURL + "/nodes/0")
			require.NoError(t, err)
			var gw struct {
				SketchName string `json:"sketch_name"`
			}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&gw))
			resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "MySensors MQTT Gateway", gw.SketchName)

			// Injected messages reach the controller.
			resp, err = http.Post(apiURL+"/messages", "application/json",
				strings.NewReader(`{"node_id":4,"sensor_id":1,"command":1,"type":0,"payload":"19.5"}`))
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode)

			require.Eventually(t, func() bool {
				for controller.Loop() {
				}
				mu.Lock()
				defer mu.Unlock()
				return replies["e2e-out/4/1/1/0/0"] == "19.5"
			}, 5*time.Second, 50*time.Millisecond, "injected message never published")

			cancel()
			select {
			case err := <-done:
				assert.NoError(t, err)
			case <-time.After(10 * time.Second):
				t.Fatal("run did not return after cancellation")
			}
		})
	}
}

// TestRun_PresentationReachesStream subscribes to the live stream while the
// broker is still down and expects the node presentation sent right after
// the gateway connects.
func TestRun_PresentationReachesStream(t *testing.T) {
	port := freePort(t)
	apiPort := freePort(t)
	path := writeConfig(t, fmt.Sprintf(`
gateway:
  publish_prefix: ws-out
  subscribe_prefix: ws-in
  reconnect_delay_ms: 100
mqtt:
  broker:
    host: 127.0.0.1
    port: %d
    client_id: ws-gateway
  connect_timeout: 1
database:
  path: ":memory:"
api:
  enabled: true
  address: 127.0.0.1:%d
logging:
  level: error
`, port, apiPort))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- run(ctx, path) }()

	var conn *websocket.Conn
	require.Eventually(t, func() bool {
		c, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://127.0.0.1:%d/api/v1/ws", apiPort), nil)
		if err != nil {
			return false
		}
		conn = c
		return true
	}, 5*time.Second, 50*time.Millisecond, "API never came up")
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"subscribe","id":"1","payload":{"channels":["message.outbound"]}}`)))
	var resp api.WSMessage
	require.NoError(t, conn.ReadJSON(&resp))
	require.Equal(t, api.WSTypeResponse, resp.Type)

	b, err := broker.New(config.BrokerConfig{Enabled: true, Address: fmt.Sprintf("127.0.0.1:%d", port)}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Start())
	defer b.Close() //nolint:errcheck // Test cleanup

	var event struct {
		EventType string          `json:"event_type"`
		Payload   api.MessageView `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, api.ChannelOutbound, event.EventType)
	assert.Equal(t, uint8(0), event.Payload.NodeID)
	assert.Equal(t, uint8(255), event.Payload.SensorID)
	assert.Equal(t, "S_ARDUINO_NODE", event.Payload.TypeName)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after cancellation")
	}
}

// TestRun_StartFailureStopsGoroutines fails the API start after the
// metrics server was launched and expects its listener to be gone once run
// returns.
func TestRun_StartFailureStopsGoroutines(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	metricsPort := freePort(t)
	path := writeConfig(t, fmt.Sprintf(`
database:
  path: ":memory:"
metrics:
  enabled: true
  address: 127.0.0.1:%d
  path: /metrics
api:
  enabled: true
  address: %s
logging:
  level: error
`, metricsPort, busy.Addr().String()))

	err = run(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "starting API server")

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", metricsPort))
	require.NoError(t, err, "metrics listener outlived run")
	require.NoError(t, ln.Close())
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}
