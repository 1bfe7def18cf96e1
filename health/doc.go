// Package health tracks component health for the refresh pipeline and rolls
// it up into system-wide status for the gateway's health endpoints.
//
// Components report one of three states. Healthy means the component is doing
// its job. Degraded means it is still serving but on reduced terms, such as a
// refresh tier answering from fallback snapshots while its upstream is down.
// Unhealthy means the component is not functioning and has nothing to serve.
// The third state is what lets operators tell "stale but alive" apart from
// "dead", which is the distinction that matters when deciding whether to page.
//
// # Tracking Components
//
// A Monitor holds the latest Status per component name and is safe for
// concurrent use:
//
//	monitor := health.NewMonitor()
//
//	monitor.UpdateHealthy("tier:critical", "Refreshing on cadence")
//	monitor.UpdateDegraded("tier:background", "Serving fallback data")
//	monitor.UpdateUnhealthy("nats", "Connection lost")
//
//	if status, ok := monitor.Get("nats"); ok && status.IsUnhealthy() {
//	    // suspend publishes until the connection returns
//	}
//
// Update stamps the current time on statuses that arrive without one and
// files the status under the name the caller passed, regardless of what the
// status payload claims its component is. GetAll returns a copy, so callers
// can range over it without holding the monitor's lock or corrupting its
// state.
//
// # Aggregation
//
// AggregateHealth folds every tracked component into one Status using
// worst-state-wins rules: any unhealthy component makes the system
// unhealthy; otherwise any degraded component makes it degraded; only a
// fully healthy set reports healthy. An empty monitor aggregates healthy.
//
//	system := monitor.AggregateHealth("refreshkit")
//	if system.IsUnhealthy() {
//	    // the gateway answers 503 on /healthz
//	}
//
// The same rules are available on a plain slice via Aggregate, and a Status
// can carry its inputs as SubStatuses so dashboards can show the tree:
//
//	storage := health.Aggregate("storage", []health.Status{
//	    health.NewHealthy("cache", "Cache operational"),
//	    health.NewDegraded("fallback", "KV bucket reconnecting"),
//	})
//
// # Probe Results
//
// Connection probes (the NATS client's health check, for one) accumulate a
// CheckResult rather than a Status. FromCheckResult converts, mapping a
// failing probe to unhealthy and attaching uptime and error counts as
// Metrics:
//
//	status := health.FromCheckResult("nats", health.CheckResult{
//	    Healthy:    false,
//	    LastError:  "dial tcp 10.0.0.5:4222: connection refused",
//	    LastCheck:  time.Now(),
//	    ErrorCount: 3,
//	    Uptime:     45 * time.Minute,
//	})
//
// Error messages pass through sanitization on the way in. URLs become [URL],
// filesystem paths become [PATH], IP addresses become [IP], port suffixes
// become :[PORT], and anything shaped like password=, token=, key= or
// secret= becomes [REDACTED]. Health statuses end up on dashboards and in
// log aggregators, so the raw error text never does. There is no opt-out.
//
// # Immutability
//
// Status is a value type. WithMetrics and WithSubStatus return modified
// copies, so a Status handed to the Monitor or a dashboard cannot be changed
// out from under it. The Monitor itself serializes writes behind an RWMutex
// and allows unlimited concurrent reads.
//
// Health reporting never returns errors: it is where errors end up, not a
// step they pass through. Components wrap their failures with the errors
// package and hand the resulting message here for sanitized display.
package health
