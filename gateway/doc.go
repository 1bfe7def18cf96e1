// Package gateway is the HTTP and WebSocket read surface over the refresh
// pipeline.
//
// # Overview
//
// A Server subscribes to the scheduler like any other listener and keeps
// the latest update per tier/target pair in an in-memory snapshot. Three
// endpoints serve it:
//
//   - /healthz reports the aggregated health of every registered component
//     as JSON. Healthy and degraded answer 200; unhealthy answers 503.
//   - /kpis returns the whole snapshot keyed by "<tier>/<target>", or one
//     pair's latest update with ?tier= and ?target=. A pair nothing has
//     arrived for yet answers 404.
//   - /ws streams updates over a gorilla WebSocket. On connect the client
//     receives one frame per snapshot entry, then every subsequent update
//     as it lands. Each frame is one update as JSON.
//
// # Loss Model
//
// Scheduler listeners run on the tier goroutines, so Record must never
// block. Each WebSocket client gets a buffered send queue drained by its
// own writer goroutine; a client that falls behind its queue depth loses
// updates and catches up on each pair's next tick. Drops are counted, not
// retried.
//
// # Wiring
//
//	gw, err := gateway.New(gateway.Config{}, monitor)
//	if err != nil {
//		return err
//	}
//	if err := gw.Start(ctx); err != nil {
//		return err
//	}
//	defer gw.Stop()
//
//	sched.Subscribe(gw.Record)
//
// The snapshot belongs to the pipeline rather than the HTTP lifecycle:
// Record works before Start, and accumulated state survives Stop and a
// restart.
package gateway
