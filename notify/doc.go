// Package notify fans refresh updates out to NATS so other services can
// follow the dashboard's data without polling it.
//
// # Overview
//
// A Publisher subscribes to the scheduler like any other listener and
// republishes every update as JSON on "<prefix>.<tier>.<target>" (prefix
// "refresh" by default). A metrics consolidator interested in critical-tier
// values subscribes to "refresh.critical.*"; an auditor takes "refresh.>".
//
// # Loss Model
//
// Scheduler listeners run on the tier goroutines, so the publisher must
// never block: Enqueue hands the update to a bounded queue and returns,
// and a single writer goroutine drains the queue onto the connection. When
// NATS is slow enough to fill the queue, new updates are dropped and
// counted rather than queued without bound. Each tick supersedes the last
// for its tier/target pair, so a drop costs one cadence of staleness
// downstream and nothing upstream.
//
// # Wiring
//
//	publisher, err := notify.New(notify.Config{}, natsClient)
//	if err != nil {
//		return err
//	}
//	if err := publisher.Start(ctx); err != nil {
//		return err
//	}
//	defer publisher.Stop()
//
//	sched.Subscribe(publisher.Enqueue)
//
// Tier and target names are mapped onto the NATS subject token charset
// before publishing; Subject reports the exact subject for a pair.
package notify
