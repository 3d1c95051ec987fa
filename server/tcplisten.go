package server

import (
	"context"
	"log/slog"
	"net"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/lgili/modbuscore/diag"
	"github.com/lgili/modbuscore/observer"
	"github.com/lgili/modbuscore/transport"
)

// DefaultMaxConnections bounds concurrent MBAP/TCP client slots a Listener
// accepts, per spec.md §2 "Integration glue (multi-TCP)": per-connection
// slot management, the 12%-share component the single-connection pack
// server code (maling6-modbus-1) never bounds.
const DefaultMaxConnections = 32

// ListenerOption configures a Listener at construction time.
type ListenerOption func(*Listener)

// WithMaxConnections overrides DefaultMaxConnections.
func WithMaxConnections(n int) ListenerOption {
	return func(l *Listener) { l.sem = semaphore.NewWeighted(int64(n)) }
}

// WithListenerLogger attaches a structured logger for accept/connection
// lifecycle events.
func WithListenerLogger(log *slog.Logger) ListenerOption {
	return func(l *Listener) { l.logger = log }
}

// WithListenerObserver attaches a shared observer every per-connection
// Pipeline notifies.
func WithListenerObserver(o observer.Observer) ListenerOption {
	return func(l *Listener) { l.obs = o }
}

// WithListenerDiag attaches a shared diagnostics sink every per-connection
// Pipeline records into.
func WithListenerDiag(d *diag.Diag) ListenerOption {
	return func(l *Listener) { l.diag = d }
}

// Listener accepts MBAP/TCP client connections, bounding concurrent slots
// with a weighted semaphore and running one Pipeline per connection until
// it closes or Listener.Close is called, per spec.md §2's "Integration
// glue (multi-TCP)" component.
type Listener struct {
	unitID  byte
	mapping *Mapping
	opts    []Option

	sem    *semaphore.Weighted
	logger *slog.Logger
	obs    observer.Observer
	diag   *diag.Diag

	mu     sync.Mutex
	active map[net.Conn]struct{}
	ln     net.Listener
}

// NewListener builds a Listener dispatching accepted connections to
// per-connection Pipelines serving unitID against mapping. pipelineOpts are
// forwarded to each connection's server.New call (e.g. WithDeviceIdentity).
func NewListener(unitID byte, mapping *Mapping, pipelineOpts []Option, opts ...ListenerOption) *Listener {
	l := &Listener{
		unitID:  unitID,
		mapping: mapping,
		opts:    pipelineOpts,
		sem:     semaphore.NewWeighted(DefaultMaxConnections),
		active:  make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Serve accepts connections on ln until Accept fails. ctx is checked only
// after Accept returns, so a Serve blocked in Accept returns once ln is
// closed (as Close does) or the next connection arrives.
// Each accepted connection blocks on the slot semaphore before being handed
// a Pipeline; over-capacity connections wait rather than being dropped.
func (l *Listener) Serve(ctx context.Context, ln net.Listener) error {
	l.mu.Lock()
	l.ln = ln
	l.mu.Unlock()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				return err
			}
		}

		if err := l.sem.Acquire(ctx, 1); err != nil {
			conn.Close()
			return err
		}

		l.mu.Lock()
		l.active[conn] = struct{}{}
		l.mu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer l.sem.Release(1)
			defer func() {
				l.mu.Lock()
				delete(l.active, conn)
				l.mu.Unlock()
				conn.Close()
			}()
			l.serveConn(ctx, conn)
		}()
	}
}

func (l *Listener) serveConn(ctx context.Context, conn net.Conn) {
	if l.logger != nil {
		l.logger.Info("server: accepted connection", "remote", conn.RemoteAddr())
	}

	t := transport.NewTCPFromConn(conn, l.logger)
	framer := NewMBAPFramer(512)

	opts := append([]Option{}, l.opts...)
	if l.obs != nil {
		opts = append(opts, WithObserver(l.obs))
	}
	if l.diag != nil {
		opts = append(opts, WithDiag(l.diag))
	}

	p := New(t, framer, l.unitID, l.mapping, opts...)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		p.Poll()
		if p.Done() {
			return
		}
	}
}

// Close closes the listening socket and every currently-active connection.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var err error
	if l.ln != nil {
		err = l.ln.Close()
	}
	for conn := range l.active {
		conn.Close()
	}
	return err
}

// ActiveConnections returns the number of connections currently being
// served.
func (l *Listener) ActiveConnections() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.active)
}
