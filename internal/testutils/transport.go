package testutils

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// ErrTransportClosed is returned by FakeTransport after Close.
var ErrTransportClosed = errors.New("fake transport closed")

// Frame is a decoded outbound envelope.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// FakeTransport is an in-memory transport. Tests push inbound frames with
// Push and inspect what the session wrote with Frames.
type FakeTransport struct {
	mu        sync.Mutex
	inbound   chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	written   [][]byte
	writeErr  error
	block     bool
	reason    string
}

// NewFakeTransport returns an open transport.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{
		inbound: make(chan []byte, 64),
		closed:  make(chan struct{}),
	}
}

// FailWrites makes every subsequent Write return err.
func (f *FakeTransport) FailWrites(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErr = err
}

// BlockWrites makes every subsequent Write wait for its context or Close.
func (f *FakeTransport) BlockWrites() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.block = true
}

func (f *FakeTransport) Read(ctx context.Context) ([]byte, error) {
	select {
	case b := <-f.inbound:
		return b, nil
	case <-f.closed:
		return nil, ErrTransportClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *FakeTransport) Write(ctx context.Context, data []byte) error {
	f.mu.Lock()
	block, writeErr := f.block, f.writeErr
	f.mu.Unlock()

	if block {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.closed:
			return ErrTransportClosed
		}
	}
	if writeErr != nil {
		return writeErr
	}
	select {
	case <-f.closed:
		return ErrTransportClosed
	default:
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, append([]byte(nil), data...))
	return nil
}

func (f *FakeTransport) Close(reason string) error {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.reason = reason
		f.mu.Unlock()
		close(f.closed)
	})
	return nil
}

// Closed reports whether Close has been called.
func (f *FakeTransport) Closed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

// CloseReason returns the reason passed to Close.
func (f *FakeTransport) CloseReason() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reason
}

// Push queues a raw inbound frame.
func (f *FakeTransport) Push(frame []byte) {
	f.inbound <- frame
}

// PushEvent queues an inbound envelope built from event, id and data.
func (f *FakeTransport) PushEvent(t *testing.T, event, id string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	env := map[string]any{"event": event, "data": json.RawMessage(raw)}
	if id != "" {
		env["id"] = id
	}
	b, err := json.Marshal(env)
	require.NoError(t, err)
	f.Push(b)
}

// Frames returns every frame written so far.
func (f *FakeTransport) Frames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.written))
	copy(out, f.written)
	return out
}

// Events decodes the written frames whose event name is one of names, or all
// frames when names is empty.
func (f *FakeTransport) Events(t *testing.T, names ...string) []Frame {
	t.Helper()
	var out []Frame
	for _, raw := range f.Frames() {
		var fr Frame
		require.NoError(t, json.Unmarshal(raw, &fr))
		if len(names) == 0 || contains(names, fr.Event) {
			out = append(out, fr)
		}
	}
	return out
}

// WaitForEvents waits until at least n frames named event were written and
// returns them.
func (f *FakeTransport) WaitForEvents(t *testing.T, event string, n int) []Frame {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(f.Events(t, event)) >= n
	}, 2*time.Second, 5*time.Millisecond, "waiting for %d %q events", n, event)
	return f.Events(t, event)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
