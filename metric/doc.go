// Package metric wires RefreshKit's Prometheus instrumentation: one shared
// registry holding the core platform metrics and every component-registered
// metric, plus the HTTP server that exposes them all on a single endpoint.
//
// # Registry
//
// NewMetricsRegistry builds a registry with the core platform metrics
// already installed. Everything lives in the "refreshkit" namespace:
//
//   - refreshkit_service_status{service} - lifecycle gauge (0=stopped,
//     1=starting, 2=running, 3=stopping)
//   - refreshkit_errors_total{service,type} and refreshkit_panics_total{service}
//   - refreshkit_health_status{service}
//   - refreshkit_nats_connected, refreshkit_nats_rtt_milliseconds,
//     refreshkit_nats_reconnects_total, refreshkit_nats_circuit_breaker
//
// Core metrics are recorded through typed helpers rather than raw
// collectors:
//
//	registry := metric.NewMetricsRegistry()
//	core := registry.CoreMetrics()
//
//	core.RecordServiceStatus("refresh-scheduler", 2)
//	core.RecordError("refresh-fetcher", "timeout")
//	core.RecordNATSStatus(true)
//	core.RecordNATSRTT(3 * time.Millisecond)
//
// Components own their domain metrics and hand them to the registry under
// a (component, name) key. The fetch, scheduler, and cache packages all
// register this way:
//
//	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
//	    Name: "fetch_attempts_total",
//	    Help: "Fetch attempts by target and result",
//	}, []string{"target", "result"})
//
//	if err := registry.RegisterCounterVec("fetcher", "fetch_attempts_total", attempts); err != nil {
//	    return err
//	}
//	attempts.WithLabelValues("revenue", "ok").Inc()
//
// RegisterCounter, RegisterGauge, RegisterHistogram and their Vec variants
// cover the collector types the platform uses. Registration fails on a nil
// collector, on a (component, name) pair already taken, and on conflicts
// reported by the underlying Prometheus registry. A scrape therefore never
// sees two collectors fighting over one series.
//
// Constructors that need metrics accept the MetricsRegistrar interface, so
// tests can hand in a fresh registry (or none at all) without touching
// global state. Registration takes the registry mutex; recording on the
// collectors afterwards is the Prometheus client's concern and needs no
// locking here.
//
// # Serving /metrics
//
// Server exposes the registry over HTTP:
//
//	server := metric.NewServer(cfg.Metrics.Port, "/metrics", registry, securityCfg)
//	go func() {
//	    if err := server.Start(); err != nil && err != http.ErrServerClosed {
//	        logger.Error("metrics server", "error", err)
//	    }
//	}()
//	defer server.Stop()
//
// Port 0 and an empty path fall back to 9090 and "/metrics". Three routes
// are served: "/" links to the other two, the metrics path serves the
// Prometheus exposition, and "/health" answers plain text for liveness
// probes. When the security config enables TLS the same listener serves
// HTTPS instead.
//
// A matching scrape job:
//
//	scrape_configs:
//	  - job_name: 'refreshkit'
//	    static_configs:
//	      - targets: ['localhost:9090']
//	    scrape_interval: 15s
//
// Start blocks until the listener closes; Stop shuts it down gracefully
// from another goroutine. Start also refuses to run twice concurrently and
// rejects a nil registry.
package metric
