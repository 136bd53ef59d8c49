package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/grote-beer/MySensors/internal/protocol"
)

// Transport backends selectable with gateway.transport.
const (
	// TransportMQTT drives a plain MQTT 3.1.1 client through the
	// connection state machine.
	TransportMQTT = "mqtt"

	// TransportSession uses an MQTT v5 session that reconnects by itself.
	TransportSession = "session"
)

// Config is the root configuration structure for the gateway.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway"`
	Node     NodeConfig     `yaml:"node"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Broker   BrokerConfig   `yaml:"broker"`
	Database DatabaseConfig `yaml:"database"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	API      APIConfig      `yaml:"api"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// GatewayConfig contains the MQTT gateway transport settings.
type GatewayConfig struct {
	// Transport selects the backend: "mqtt" or "session".
	Transport string `yaml:"transport"`

	// PublishPrefix is the topic prefix for messages leaving the sensor
	// network. Default: "mygateway1-out"
	PublishPrefix string `yaml:"publish_prefix"`

	// SubscribePrefix is the topic prefix for messages addressed to the
	// sensor network. Default: "mygateway1-in"
	SubscribePrefix string `yaml:"subscribe_prefix"`

	// Retain publishes set messages and battery levels as retained.
	Retain bool `yaml:"retain"`

	// ReconnectDelay is the wait after a failed connect, in milliseconds.
	// Default: 1000
	ReconnectDelay int `yaml:"reconnect_delay_ms"`

	// PollInterval is the driver loop cadence, in milliseconds.
	// Default: 10
	PollInterval int `yaml:"poll_interval_ms"`

	Network NetworkConfig `yaml:"network"`
}

// NetworkConfig configures the physical link probe.
type NetworkConfig struct {
	// Interface is the network interface that must be up before the
	// gateway connects. Empty disables the probe.
	Interface string `yaml:"interface"`

	// ReinitOnLoss re-initialises the transport when the interface goes
	// down.
	ReinitOnLoss bool `yaml:"reinit_on_loss"`
}

// NodeConfig describes the gateway node as presented to the controller.
type NodeConfig struct {
	SketchName    string         `yaml:"sketch_name"`
	SketchVersion string         `yaml:"sketch_version"`
	Repeater      bool           `yaml:"repeater"`
	Sensors       []SensorConfig `yaml:"sensors"`
}

// SensorConfig is a child sensor attached to the gateway itself.
type SensorConfig struct {
	ID          uint8  `yaml:"id"`
	Type        string `yaml:"type"` // e.g. "S_TEMP"
	Description string `yaml:"description"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker MQTTBrokerConfig `yaml:"broker"`
	Auth   MQTTAuthConfig   `yaml:"auth"`
	QoS    int              `yaml:"qos"`

	// KeepAlive is the MQTT keep-alive interval in seconds.
	KeepAlive int `yaml:"keep_alive"`

	// ConnectTimeout bounds one connect attempt, in seconds.
	ConnectTimeout int `yaml:"connect_timeout"`

	Will MQTTWillConfig `yaml:"will"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTWillConfig is the last will published by the broker when the
// gateway drops off without disconnecting.
type MQTTWillConfig struct {
	Enabled bool   `yaml:"enabled"`
	Topic   string `yaml:"topic"`
	Payload string `yaml:"payload"`
	Retain  bool   `yaml:"retain"`
}

// BrokerConfig enables the embedded MQTT broker.
type BrokerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// MetricsConfig contains the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

// APIConfig contains the status API settings.
type APIConfig struct {
	Enabled   bool            `yaml:"enabled"`
	Address   string          `yaml:"address"`
	CORS      CORSConfig      `yaml:"cors"`
	WebSocket WebSocketConfig `yaml:"websocket"`
}

// CORSConfig lists the origins allowed to call the API. An empty list
// allows every origin.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains the live message stream settings.
type WebSocketConfig struct {
	PingInterval   int `yaml:"ping_interval"` // seconds
	PongTimeout    int `yaml:"pong_timeout"`  // seconds
	MaxMessageSize int `yaml:"max_message_size"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: MYSGW_SECTION_KEY
// For example: MYSGW_MQTT_HOST, MYSGW_DATABASE_PATH
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if cfg.MQTT.Broker.ClientID == "" {
		cfg.MQTT.Broker.ClientID = generateClientID()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Transport:       TransportMQTT,
			PublishPrefix:   "mygateway1-out",
			SubscribePrefix: "mygateway1-in",
			ReconnectDelay:  1000,
			PollInterval:    10,
		},
		Node: NodeConfig{
			SketchName:    "MySensors MQTT Gateway",
			SketchVersion: "1.0",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "mysensors-1",
			},
			QoS:            0,
			KeepAlive:      15,
			ConnectTimeout: 5,
		},
		Broker: BrokerConfig{
			Address: ":1883",
		},
		Database: DatabaseConfig{
			Path:        "./data/mysgw.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Metrics: MetricsConfig{
			Address: ":9108",
			Path:    "/metrics",
		},
		API: APIConfig{
			Address: ":8080",
			WebSocket: WebSocketConfig{
				PingInterval:   30,
				PongTimeout:    10,
				MaxMessageSize: 4096,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: MYSGW_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Gateway
	if v := os.Getenv("MYSGW_GATEWAY_TRANSPORT"); v != "" {
		cfg.Gateway.Transport = v
	}

	// MQTT
	if v := os.Getenv("MYSGW_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("MYSGW_MQTT_CLIENT_ID"); v != "" {
		cfg.MQTT.Broker.ClientID = v
	}
	if v := os.Getenv("MYSGW_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("MYSGW_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Database
	if v := os.Getenv("MYSGW_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// API
	if v := os.Getenv("MYSGW_API_ADDRESS"); v != "" {
		cfg.API.Address = v
	}

	// InfluxDB
	if v := os.Getenv("MYSGW_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// generateClientID returns a client id unique to this process.
func generateClientID() string {
	return "mysgw-" + uuid.NewString()[:8]
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Gateway validation
	switch c.Gateway.Transport {
	case TransportMQTT, TransportSession:
	default:
		errs = append(errs, fmt.Sprintf("gateway.transport must be %q or %q", TransportMQTT, TransportSession))
	}
	if err := protocol.ValidPrefix(c.Gateway.PublishPrefix); err != nil {
		errs = append(errs, "gateway.publish_prefix: "+err.Error())
	}
	if err := protocol.ValidPrefix(c.Gateway.SubscribePrefix); err != nil {
		errs = append(errs, "gateway.subscribe_prefix: "+err.Error())
	}
	if c.Gateway.ReconnectDelay < 0 {
		errs = append(errs, "gateway.reconnect_delay_ms must not be negative")
	}
	if c.Gateway.PollInterval < 1 {
		errs = append(errs, "gateway.poll_interval_ms must be at least 1")
	}

	// Node validation
	seen := make(map[uint8]bool, len(c.Node.Sensors))
	for _, s := range c.Node.Sensors {
		if s.ID == protocol.NodeSensorID {
			errs = append(errs, "node.sensors: id 255 is reserved for the node itself")
		}
		if seen[s.ID] {
			errs = append(errs, fmt.Sprintf("node.sensors: duplicate id %d", s.ID))
		}
		seen[s.ID] = true
		if _, ok := protocol.ParseSensorType(s.Type); !ok {
			errs = append(errs, fmt.Sprintf("node.sensors: unknown type %q for id %d", s.Type, s.ID))
		}
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.Broker.ClientID == "" {
		errs = append(errs, "mqtt.broker.client_id is required")
	}
	if c.MQTT.Will.Enabled && c.MQTT.Will.Topic == "" {
		errs = append(errs, "mqtt.will.topic is required when the will is enabled")
	}

	// Embedded broker validation
	if c.Broker.Enabled && c.Broker.Address == "" {
		errs = append(errs, "broker.address is required when the embedded broker is enabled")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	// Metrics validation
	if c.Metrics.Enabled && c.Metrics.Address == "" {
		errs = append(errs, "metrics.address is required when metrics are enabled")
	}

	// API validation
	if c.API.Enabled {
		if c.API.Address == "" {
			errs = append(errs, "api.address is required when the api is enabled")
		}
		if c.API.WebSocket.PingInterval < 1 || c.API.WebSocket.PongTimeout < 1 {
			errs = append(errs, "api.websocket.ping_interval and pong_timeout must be at least 1")
		}
		if c.API.WebSocket.MaxMessageSize < 1 {
			errs = append(errs, "api.websocket.max_message_size must be at least 1")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReconnectDelay returns the wait after a failed connect as a Duration.
func (c *Config) GetReconnectDelay() time.Duration {
	return time.Duration(c.Gateway.ReconnectDelay) * time.Millisecond
}

// GetPollInterval returns the driver loop cadence as a Duration.
func (c *Config) GetPollInterval() time.Duration {
	return time.Duration(c.Gateway.PollInterval) * time.Millisecond
}

// GetKeepAlive returns the MQTT keep-alive interval as a Duration.
func (c *Config) GetKeepAlive() time.Duration {
	return time.Duration(c.MQTT.KeepAlive) * time.Second
}

// GetConnectTimeout returns the MQTT connect timeout as a Duration.
func (c *Config) GetConnectTimeout() time.Duration {
	return time.Duration(c.MQTT.ConnectTimeout) * time.Second
}
