// Package metrics exposes gateway counters to Prometheus.
//
// The collectors live on a private registry rather than the global default
// so tests can create independent instances.
//
//	m := metrics.New()
//	transport := gateway.NewMQTTTransport(link, cfg, gateway.WithIndicator(m))
//	go m.Serve(ctx, ":9108", "/metrics")
package metrics
