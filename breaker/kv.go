package breaker

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/refreshkit/errors"
)

// KVGateway reads breaker status from a JetStream KV key where the breaker
// owner publishes Status documents. A watcher keeps a local copy current so
// Status() never touches the network.
//
// The gateway fails open: an absent, deleted, or unreadable status reads as
// a closed breaker. Fetches then proceed and real upstream errors surface
// through the fetch path instead of being masked by a stale suspension.
type KVGateway struct {
	bucket  jetstream.KeyValue
	key     string
	logger  *slog.Logger
	watcher jetstream.KeyWatcher

	status atomic.Value // Status

	// Watcher goroutine coordination
	shutdown chan struct{}
	done     chan struct{}
}

// KVGatewayOption configures a KVGateway.
type KVGatewayOption func(*KVGateway)

// WithLogger sets the logger used for watch events. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) KVGatewayOption {
	return func(g *KVGateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewKVGateway creates a gateway watching the given KV key. The context
// governs the watcher goroutine: cancel it or call Close to stop watching.
func NewKVGateway(ctx context.Context, bucket jetstream.KeyValue, key string, opts ...KVGatewayOption) (*KVGateway, error) {
	if bucket == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "breaker", "NewKVGateway", "kv bucket is required")
	}
	if key == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "breaker", "NewKVGateway", "status key is required")
	}

	g := &KVGateway{
		bucket:   bucket,
		key:      key,
		logger:   slog.Default(),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	// Seed from the current value so Status() is meaningful before the
	// watcher delivers its first update
	if entry, err := bucket.Get(ctx, key); err == nil {
		if status, perr := ParseStatus(entry.Value()); perr == nil {
			g.status.Store(status)
		} else {
			g.logger.Warn("breaker status unreadable, treating as closed",
				"key", key, "error", perr)
		}
	}

	watcher, err := bucket.Watch(ctx, key)
	if err != nil {
		return nil, errors.WrapTransient(err, "breaker", "NewKVGateway", "kv watch")
	}
	g.watcher = watcher

	go g.run(ctx)

	return g, nil
}

// Status implements Gateway. Returns the most recently observed status, or
// a closed breaker if none has been observed.
func (g *KVGateway) Status() Status {
	if v := g.status.Load(); v != nil {
		return v.(Status)
	}
	return Status{State: StateClosed}
}

// Close stops the watcher and waits for the watch goroutine to finish.
func (g *KVGateway) Close() error {
	select {
	case <-g.shutdown:
		// Already shutting down
	default:
		close(g.shutdown)
	}

	_ = g.watcher.Stop()

	select {
	case <-g.done:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for breaker watcher to finish")
	}
}

// run consumes watcher updates and keeps the local status current.
func (g *KVGateway) run(ctx context.Context) {
	defer close(g.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-g.shutdown:
			return
		case entry, ok := <-g.watcher.Updates():
			if !ok {
				return
			}
			if entry == nil {
				// End-of-initial-values marker
				continue
			}
			g.apply(entry)
		}
	}
}

// apply folds a single KV update into the local status.
func (g *KVGateway) apply(entry jetstream.KeyValueEntry) {
	switch entry.Operation() {
	case jetstream.KeyValuePut:
		status, err := ParseStatus(entry.Value())
		if err != nil {
			g.logger.Warn("breaker status unreadable, treating as closed",
				"key", g.key, "revision", entry.Revision(), "error", err)
			g.status.Store(Status{State: StateClosed})
			return
		}
		g.logger.Debug("breaker status updated",
			"key", g.key, "state", status.State, "failure_count", status.FailureCount)
		g.status.Store(status)

	case jetstream.KeyValueDelete, jetstream.KeyValuePurge:
		g.logger.Info("breaker status removed, treating as closed", "key", g.key)
		g.status.Store(Status{State: StateClosed})
	}
}
