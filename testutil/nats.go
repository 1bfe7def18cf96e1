package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// errConnClosed is returned by every operation once Close has been called.
var errConnClosed = errors.New("connection is closed")

// MockNATSConn is an in-memory NATS connection for unit tests. It mirrors
// the natsclient.Client signatures for Publish, Subscribe, and Request, so
// it drops in wherever a component accepts one of those as an interface.
// Thread-safe for concurrent use from multiple goroutines.
type MockNATSConn struct {
	mu            sync.RWMutex
	messages      map[string][][]byte
	requests      map[string][][]byte
	subscriptions map[string][]func(context.Context, []byte)
	responders    map[string]func([]byte) ([]byte, error)
	publishErr    error
	requestErr    error
	closed        bool
}

// NewMockNATSConn creates a new mock connection.
func NewMockNATSConn() *MockNATSConn {
	return &MockNATSConn{
		messages:      make(map[string][][]byte),
		requests:      make(map[string][][]byte),
		subscriptions: make(map[string][]func(context.Context, []byte)),
		responders:    make(map[string]func([]byte) ([]byte, error)),
	}
}

// Publish records the message and delivers it to subscribers on the
// subject.
func (c *MockNATSConn) Publish(ctx context.Context, subject string, data []byte) error {
	handlers, err := c.recordMessage(subject, data)
	if err != nil {
		return err
	}

	// Handlers run outside the lock, each under the same 30s per-message
	// budget the real client applies.
	for _, handler := range handlers {
		msgCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		handler(msgCtx, data)
		cancel()
	}
	return nil
}

// recordMessage appends the message under the lock and returns a snapshot
// of the subject's handlers for delivery outside it.
func (c *MockNATSConn) recordMessage(subject string, data []byte) ([]func(context.Context, []byte), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.closed:
		return nil, errConnClosed
	case c.publishErr != nil:
		return nil, c.publishErr
	}

	c.messages[subject] = append(c.messages[subject], data)

	handlers := make([]func(context.Context, []byte), len(c.subscriptions[subject]))
	copy(handlers, c.subscriptions[subject])
	return handlers, nil
}

// Subscribe registers a handler for a subject.
func (c *MockNATSConn) Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errConnClosed
	}
	c.subscriptions[subject] = append(c.subscriptions[subject], handler)
	return nil
}

// Request records the request payload and invokes the responder registered
// for the subject. With no responder the call fails immediately rather than
// waiting out the context, which keeps misconfigured tests fast.
func (c *MockNATSConn) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	responder, err := c.recordRequest(subject, data)
	if err != nil {
		return nil, err
	}
	if responder == nil {
		return nil, fmt.Errorf("no responders on subject %q", subject)
	}
	return responder(data)
}

func (c *MockNATSConn) recordRequest(subject string, data []byte) (func([]byte) ([]byte, error), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.closed:
		return nil, errConnClosed
	case c.requestErr != nil:
		return nil, c.requestErr
	}

	c.requests[subject] = append(c.requests[subject], data)
	return c.responders[subject], nil
}

// RespondTo registers a responder for request/reply on a subject. A later
// registration for the same subject replaces the earlier one.
func (c *MockNATSConn) RespondTo(subject string, responder func(data []byte) ([]byte, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responders[subject] = responder
}

// SetPublishError makes every subsequent Publish fail with err without
// recording or delivering the message. Pass nil to clear.
func (c *MockNATSConn) SetPublishError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishErr = err
}

// SetRequestError makes every subsequent Request fail with err. Pass nil
// to clear.
func (c *MockNATSConn) SetRequestError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestErr = err
}

// GetMessages returns a copy of all messages published to a subject.
func (c *MockNATSConn) GetMessages(subject string) [][]byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyPayloads(c.messages[subject])
}

// GetMessageCount returns the number of messages published to a subject.
func (c *MockNATSConn) GetMessageCount(subject string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages[subject])
}

// GetRequests returns a copy of all request payloads sent to a subject.
func (c *MockNATSConn) GetRequests(subject string) [][]byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyPayloads(c.requests[subject])
}

// copyPayloads snapshots a recorded payload slice so callers cannot race
// with later appends.
func copyPayloads(stored [][]byte) [][]byte {
	if stored == nil {
		return nil
	}
	out := make([][]byte, len(stored))
	copy(out, stored)
	return out
}

// Clear removes all recorded messages for a subject.
func (c *MockNATSConn) Clear(subject string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.messages, subject)
	delete(c.requests, subject)
}

// ClearAll removes all recorded messages on all subjects.
func (c *MockNATSConn) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = make(map[string][][]byte)
	c.requests = make(map[string][][]byte)
}

// Close marks the connection closed. Publish, Subscribe, and Request fail
// afterwards.
func (c *MockNATSConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// IsClosed reports whether Close has been called.
func (c *MockNATSConn) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// WaitForMessage polls until a message arrives on the subject, returning
// the latest one. Fails the test after timeout.
func WaitForMessage(t *testing.T, conn *MockNATSConn, subject string, timeout time.Duration) []byte {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if msgs := conn.GetMessages(subject); len(msgs) > 0 {
			return msgs[len(msgs)-1]
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for message on subject %s", subject)
	return nil
}

// WaitForMessageCount polls until at least count messages have arrived on
// the subject. Fails the test after timeout.
func WaitForMessageCount(t *testing.T, conn *MockNATSConn, subject string, count int, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if conn.GetMessageCount(subject) >= count {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %d messages on subject %s (got %d)",
		count, subject, conn.GetMessageCount(subject))
}

// AssertMessageReceived checks that at least one message was published to a
// subject.
func AssertMessageReceived(t *testing.T, conn *MockNATSConn, subject string) {
	t.Helper()

	if conn.GetMessageCount(subject) == 0 {
		t.Fatalf("expected message on subject %s, got none", subject)
	}
}

// AssertNoMessages checks that no messages were published to a subject.
func AssertNoMessages(t *testing.T, conn *MockNATSConn, subject string) {
	t.Helper()

	if count := conn.GetMessageCount(subject); count > 0 {
		t.Fatalf("expected no messages on subject %s, got %d", subject, count)
	}
}
