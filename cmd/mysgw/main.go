// mysgw - MySensors MQTT gateway
//
// This is the main entry point of the gateway. It bridges MySensors
// messages to an MQTT broker: messages leaving the sensor network are
// published under the publish prefix and messages published under the
// subscribe prefix are handed to the sensor network.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/grote-beer/MySensors/internal/api"
	"github.com/grote-beer/MySensors/internal/audit"
	"github.com/grote-beer/MySensors/internal/gateway"
	"github.com/grote-beer/MySensors/internal/infrastructure/broker"
	"github.com/grote-beer/MySensors/internal/infrastructure/config"
	"github.com/grote-beer/MySensors/internal/infrastructure/database"
	"github.com/grote-beer/MySensors/internal/infrastructure/influxdb"
	"github.com/grote-beer/MySensors/internal/infrastructure/logging"
	"github.com/grote-beer/MySensors/internal/infrastructure/metrics"
	"github.com/grote-beer/MySensors/internal/infrastructure/mqtt"
	"github.com/grote-beer/MySensors/internal/infrastructure/mqtt5"
	"github.com/grote-beer/MySensors/internal/node"
	"github.com/grote-beer/MySensors/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"
	shutdownTimeout   = 5 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the gateway process, separated from main for testability.
//
// Parameters:
//   - ctx: Cancelling it shuts the gateway down
//   - configPath: YAML configuration file
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, configPath string) error {
	log := logging.Default()
	log.Info("starting mysgw", "version", version, "commit", commit, "build_date", date)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "transport", cfg.Gateway.Transport)

	undo, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		log.Debug(fmt.Sprintf(format, args...))
	}))
	if err != nil {
		log.Warn("setting GOMAXPROCS", "error", err)
	}
	defer undo()

	m := metrics.New()

	// Early returns below must not leave group goroutines running.
	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	defer func() {
		cancel()
		_ = g.Wait()
	}()

	// Embedded broker
	if cfg.Broker.Enabled {
		b, brokerErr := startBroker(cfg.Broker, log)
		if brokerErr != nil {
			return brokerErr
		}
		defer func() {
			log.Info("stopping embedded broker")
			if closeErr := b.Close(); closeErr != nil {
				log.Error("error stopping broker", "error", closeErr)
			}
		}()
	}

	// Node registry
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	pending, err := db.PendingMigrations(ctx, migrations.FS)
	if err != nil {
		return fmt.Errorf("checking migrations: %w", err)
	}
	if len(pending) > 0 {
		log.Info("applying database migrations", "pending", len(pending))
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	registry := node.NewRegistry(node.NewSQLiteRepository(db.DB), m)
	registry.SetLogger(log.With("component", "registry"))
	if err := registry.Refresh(ctx); err != nil {
		return fmt.Errorf("loading node registry: %w", err)
	}
	log.Info("node registry ready", "path", cfg.Database.Path)

	presenter, err := node.NewPresenter(cfg.Node)
	if err != nil {
		return fmt.Errorf("building node presentation: %w", err)
	}

	checks := map[string]api.HealthChecker{"database": db}

	// Sensor history
	var history *influxdb.History
	if cfg.InfluxDB.Enabled {
		influx, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB")
			if closeErr := influx.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influx.SetOnError(func(err error) {
			log.Warn("InfluxDB write failed", "error", err)
		})
		history = influxdb.NewHistory(influx)
		checks["influxdb"] = influx
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	if cfg.Metrics.Enabled {
		g.Go(func() error {
			log.Info("metrics endpoint listening", "address", cfg.Metrics.Address, "path", cfg.Metrics.Path)
			return m.Serve(gctx, cfg.Metrics.Address, cfg.Metrics.Path)
		})
	}

	transport, connected, closeTransport, err := buildTransport(gctx, cfg, log, m, presenter)
	if err != nil {
		return err
	}
	defer closeTransport()

	runner := gateway.NewRunner(transport, cfg.GetPollInterval())
	runner.SetLogger(log.With("component", "gateway"))

	responder := node.NewResponder(presenter, nil)
	responder.SetLogger(log.With("component", "responder"))
	runner.AddHandler(registry)
	runner.AddHandler(responder)
	runner.AddObserver(registry)
	if history != nil {
		runner.AddObserver(history)
	}

	// Status API
	if cfg.API.Enabled {
		srv, apiErr := api.New(api.Deps{
			Config:    cfg.API,
			Logger:    log.With("component", "api"),
			Nodes:     registry,
			Sender:    runner,
			Connected: connected,
			Checks:    checks,
			Audit:     audit.NewSQLiteRepository(db.DB),
			Metrics:   m.Handler(),
			Version:   version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		runner.AddObserver(srv.Hub())
		runner.AddHandler(srv.Hub())
		if err := srv.Start(gctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error stopping API server", "error", closeErr)
			}
		}()
	}

	g.Go(func() error {
		return runner.Run(gctx)
	})

	log.Info("mysgw started",
		"publish_prefix", cfg.Gateway.PublishPrefix,
		"subscribe_prefix", cfg.Gateway.SubscribePrefix,
	)

	err = g.Wait()
	log.Info("shutting down")
	return err
}

func startBroker(cfg config.BrokerConfig, log *logging.Logger) (*broker.Broker, error) {
	b, err := broker.New(cfg, log.With("component", "broker").Logger)
	if err != nil {
		return nil, fmt.Errorf("creating embedded broker: %w", err)
	}
	if err := b.Start(); err != nil {
		return nil, fmt.Errorf("starting embedded broker: %w", err)
	}
	log.Info("embedded broker listening", "address", b.Address())
	return b, nil
}

// buildTransport creates the configured gateway backend. It also returns
// a probe of the broker connection and a function releasing it.
func buildTransport(ctx context.Context, cfg *config.Config, log *logging.Logger, m *metrics.Metrics,
	presenter gateway.Presenter) (gateway.Transport, func() bool, func(), error) {
	tcfg := gateway.Config{
		PublishPrefix:   cfg.Gateway.PublishPrefix,
		SubscribePrefix: cfg.Gateway.SubscribePrefix,
		Credentials: gateway.Credentials{
			ClientID: cfg.MQTT.Broker.ClientID,
			Username: cfg.MQTT.Auth.Username,
			Password: cfg.MQTT.Auth.Password,
		},
		Retain:              cfg.Gateway.Retain,
		ReconnectDelay:      cfg.GetReconnectDelay(),
		ReinitOnNetworkLoss: cfg.Gateway.Network.ReinitOnLoss,
	}
	opts := []gateway.Option{
		gateway.WithPresenter(presenter),
		gateway.WithIndicator(m),
		gateway.WithLogger(log.With("component", "transport")),
	}
	if cfg.Gateway.Network.Interface != "" {
		opts = append(opts, gateway.WithNetwork(interfaceProbe{name: cfg.Gateway.Network.Interface}))
	}
	qos := byte(cfg.MQTT.QoS)

	switch cfg.Gateway.Transport {
	case config.TransportSession:
		session := mqtt5.New(cfg.MQTT, cfg.GetReconnectDelay())
		session.SetLogger(log.With("component", "mqtt5"))
		if err := session.Start(ctx); err != nil {
			return nil, nil, nil, fmt.Errorf("starting MQTT session: %w", err)
		}

		// Init announces the gateway right away, so give the session one
		// connect timeout to come up first.
		awaitCtx, cancel := context.WithTimeout(ctx, cfg.GetConnectTimeout())
		if err := session.AwaitConnection(awaitCtx); err != nil {
			log.Warn("MQTT session not connected yet, gateway ready announcement may be lost", "error", err)
		}
		cancel()

		closeFn := func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := session.Close(closeCtx); err != nil {
				log.Error("error closing MQTT session", "error", err)
			}
		}
		link := &sessionLink{session: session, qos: qos}
		return gateway.NewSessionTransport(link, tcfg, opts...), link.Connected, closeFn, nil

	default:
		client := mqtt.New(cfg.MQTT)
		client.SetLogger(log.With("component", "mqtt"))
		client.SetOnConnectionLost(func(error) { m.ConnectionLost() })
		m.TrackInboxDrops(client.Dropped)
		closeFn := func() {
			log.Info("disconnecting from MQTT")
			if err := client.Close(); err != nil {
				log.Error("error closing MQTT", "error", err)
			}
		}
		link := &mqttLink{client: client, qos: qos}
		return gateway.NewMQTTTransport(link, tcfg, opts...), link.Connected, closeFn, nil
	}
}

// getConfigPath returns the configuration file path: the --config flag
// when given, then the MYSGW_CONFIG environment variable, then the default.
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv("MYSGW_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
