package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/c360/refreshkit/errors"
	"github.com/c360/refreshkit/types"
)

// Defaults for the subject space and queue depth.
const (
	DefaultPrefix    = "refresh"
	DefaultQueueSize = 256
)

// stopTimeout bounds how long Stop waits for the writer to exit.
const stopTimeout = 5 * time.Second

// Config tunes the publisher's subject space and queue depth.
type Config struct {
	// Prefix is the leading subject segment. Updates for tier T and
	// target G publish on "<Prefix>.<T>.<G>". Empty selects "refresh".
	// A multi-token prefix like "corp.refresh" is allowed.
	Prefix string `json:"prefix,omitempty"`

	// QueueSize bounds the queue between the scheduler and the writer
	// goroutine. Zero selects the default. A full queue drops new
	// updates rather than blocking the refresh loop.
	QueueSize int `json:"queue_size,omitempty"`
}

// Validate ensures the configuration can drive publishing
func (c Config) Validate() error {
	if c.QueueSize < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "notify", "Validate",
			fmt.Sprintf("queue_size cannot be negative, got %d", c.QueueSize))
	}
	if c.Prefix != "" {
		if strings.ContainsAny(c.Prefix, " \t*>") {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "notify", "Validate",
				fmt.Sprintf("prefix %q contains characters not valid in NATS subjects", c.Prefix))
		}
		if strings.HasPrefix(c.Prefix, ".") || strings.HasSuffix(c.Prefix, ".") ||
			strings.Contains(c.Prefix, "..") {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "notify", "Validate",
				fmt.Sprintf("prefix %q has an empty subject token", c.Prefix))
		}
	}
	return nil
}

// prefix returns the configured prefix or the default.
func (c Config) prefix() string {
	if c.Prefix != "" {
		return c.Prefix
	}
	return DefaultPrefix
}

// queueSize returns the configured depth or the default.
func (c Config) queueSize() int {
	if c.QueueSize > 0 {
		return c.QueueSize
	}
	return DefaultQueueSize
}

// Conn is the slice of the NATS client the publisher writes through.
// *natsclient.Client satisfies it.
type Conn interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Publisher forwards refresh updates onto NATS subjects so other services
// can follow the dashboard's data without polling it.
//
// The publisher is deliberately lossy: updates flow through a bounded queue
// drained by a single writer goroutine, and when the queue is full the
// newest update is dropped and counted. Every tier's next tick supersedes
// the last one anyway, so a dropped update costs one cadence of staleness
// on the NATS side while the refresh loop itself never blocks.
type Publisher struct {
	cfg     Config
	conn    Conn
	prefix  string
	logger  *slog.Logger
	metrics *publisherMetrics

	mu      sync.RWMutex
	started bool
	queue   chan types.Update
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a Publisher over the given connection.
func New(cfg Config, conn Conn, opts ...Option) (*Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Publisher", "New",
			"NATS connection is required")
	}

	p := &Publisher{
		cfg:    cfg,
		conn:   conn,
		prefix: cfg.prefix(),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(p); err != nil {
			return nil, errors.WrapTransient(err, "Publisher", "New", "applying option")
		}
	}

	return p, nil
}

// Start launches the writer goroutine. The supplied context is the session
// root: cancelling it stops the writer the same way Stop does. Each Start
// begins with an empty queue; updates queued before a previous Stop are
// not replayed.
func (p *Publisher) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Publisher", "Start",
			"publisher already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.queue = make(chan types.Update, p.cfg.queueSize())

	p.wg.Add(1)
	go func(queue chan types.Update) {
		defer p.wg.Done()
		p.run(runCtx, queue)
	}(p.queue)

	p.started = true
	p.logger.Info("Notify publisher started",
		"prefix", p.prefix,
		"queue_size", cap(p.queue))
	return nil
}

// Stop halts the writer and discards anything still queued. Draining the
// queue through a slow connection would hold up teardown, and the data is
// superseded on the next tick of whatever scheduler comes back.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return errors.WrapInvalid(errors.ErrNotStarted, "Publisher", "Stop",
			"publisher not running")
	}

	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(stopTimeout):
		return errors.WrapTransient(errors.ErrTimeout, "Publisher", "Stop",
			"waiting for the writer to exit")
	}

	p.started = false
	if discarded := len(p.queue); discarded > 0 {
		p.logger.Warn("Notify publisher stopped", "discarded", discarded)
	} else {
		p.logger.Info("Notify publisher stopped")
	}
	if p.metrics != nil {
		p.metrics.recordDepth(0)
	}
	return nil
}

// Enqueue accepts one update for publication and returns immediately. It
// matches the scheduler's listener signature, so wiring is just
//
//	sched.Subscribe(publisher.Enqueue)
//
// When the publisher is stopped or the queue is full the update is dropped
// and counted; the refresh loop is never blocked.
func (p *Publisher) Enqueue(update types.Update) {
	p.mu.RLock()
	started := p.started
	queue := p.queue
	p.mu.RUnlock()

	if !started {
		p.drop(update, "stopped")
		return
	}

	select {
	case queue <- update:
		if p.metrics != nil {
			p.metrics.recordDepth(len(queue))
		}
	default:
		p.drop(update, "full")
	}
}

// Subject returns the subject an update for the tier/target pair publishes
// on. Consumers typically subscribe with "<prefix>.<tier>.*" or
// "<prefix>.>".
func (p *Publisher) Subject(tier types.Tier, target string) string {
	return p.prefix + "." + subjectToken(string(tier)) + "." + subjectToken(target)
}

func (p *Publisher) drop(update types.Update, reason string) {
	if p.metrics != nil {
		p.metrics.recordDrop(update.Tier, reason)
	}
	p.logger.Debug("Dropped update",
		"tier", update.Tier,
		"target", update.Target,
		"reason", reason)
}

// run is the single writer: it serializes every publish so a slow NATS
// connection backs up the queue, not the tier goroutines.
func (p *Publisher) run(ctx context.Context, queue chan types.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case update := <-queue:
			if p.metrics != nil {
				p.metrics.recordDepth(len(queue))
			}
			p.publish(ctx, update)
		}
	}
}

func (p *Publisher) publish(ctx context.Context, update types.Update) {
	data, err := json.Marshal(update)
	if err != nil {
		if p.metrics != nil {
			p.metrics.recordError()
		}
		p.logger.Error("Failed to encode update",
			"tier", update.Tier,
			"target", update.Target,
			"error", err)
		return
	}

	subject := p.Subject(update.Tier, update.Target)
	if err := p.conn.Publish(ctx, subject, data); err != nil {
		if p.metrics != nil {
			p.metrics.recordError()
		}
		p.logger.Warn("Failed to publish update",
			"subject", subject,
			"error", err)
		return
	}

	if p.metrics != nil {
		p.metrics.recordPublish(update.Tier)
	}
	p.logger.Debug("Published update",
		"subject", subject,
		"degraded", update.Degraded,
		"bytes", len(data))
}

// tokenStrip matches everything outside the subject token charset. Dots are
// excluded too: a dot inside a tier or target name would split the token
// and shift every consumer's wildcard.
var tokenStrip = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// subjectToken maps an arbitrary tier or target name onto one NATS subject
// token. Spaces become underscores to stay readable; other invalid
// characters are stripped; a name with nothing left publishes under "_".
func subjectToken(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = tokenStrip.ReplaceAllString(s, "")
	if s == "" {
		return "_"
	}
	return s
}
