package transport

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// Default TCP timeouts, grounded on grid-x-modbus/tcpclient.go's
// tcpTransporter.
const (
	DefaultTCPReadTimeout = 50 * time.Millisecond
	DefaultTCPIdleTimeout = 60 * time.Second
)

// TCP is a Transport backed by a single TCP connection, used for MBAP
// (Modbus TCP) traffic. Like SerialPort, it approximates the non-blocking
// Recv contract with a short read deadline rather than a real async I/O
// layer.
type TCP struct {
	Address     string
	DialTimeout time.Duration
	ReadTimeout time.Duration
	IdleTimeout time.Duration
	Logger      *slog.Logger

	mu           sync.Mutex
	conn         net.Conn
	lastActivity time.Time
	closeTimer   *time.Timer
}

// NewTCP builds a TCP transport targeting address ("host:port"). The
// connection is dialed lazily on first Send/Recv, or eagerly via Connect.
func NewTCP(address string, logger *slog.Logger) *TCP {
	return &TCP{
		Address:     address,
		DialTimeout: DefaultTCPReadTimeout * 100,
		ReadTimeout: DefaultTCPReadTimeout,
		IdleTimeout: DefaultTCPIdleTimeout,
		Logger:      logger,
	}
}

// NewTCPFromConn wraps an already-accepted connection (the server side of a
// listener's Accept loop) in the same non-blocking Transport contract NewTCP
// gives the client side, per spec.md §2 "Integration glue (multi-TCP)".
func NewTCPFromConn(conn net.Conn, logger *slog.Logger) *TCP {
	return &TCP{
		Address:     conn.RemoteAddr().String(),
		ReadTimeout: DefaultTCPReadTimeout,
		IdleTimeout: DefaultTCPIdleTimeout,
		Logger:      logger,
		conn:        conn,
	}
}

// Connect dials the target if not already connected.
func (t *TCP) Connect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connect()
}

func (t *TCP) connect() error {
	if t.conn != nil {
		return nil
	}
	conn, err := net.DialTimeout("tcp", t.Address, t.DialTimeout)
	if err != nil {
		return fmt.Errorf("transport: dial %s: %w", t.Address, err)
	}
	t.conn = conn
	return nil
}

// Close implements Closer.
func (t *TCP) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.close()
}

func (t *TCP) close() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

// Send implements Transport.
func (t *TCP) Send(data []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.connect(); err != nil {
		return 0, err
	}
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.ReadTimeout)); err != nil {
		return 0, err
	}
	n, err := t.conn.Write(data)
	if n > 0 {
		t.lastActivity = time.Now()
		t.startCloseTimer()
	}
	if err != nil && isTimeout(err) {
		return n, nil
	}
	return n, err
}

// Recv implements Transport, translating a read-deadline timeout into
// "no progress" rather than an error.
func (t *TCP) Recv(buf []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.connect(); err != nil {
		return 0, err
	}
	if err := t.conn.SetReadDeadline(time.Now().Add(t.ReadTimeout)); err != nil {
		return 0, err
	}
	n, err := t.conn.Read(buf)
	if n > 0 {
		t.lastActivity = time.Now()
		t.startCloseTimer()
	}
	if err != nil && isTimeout(err) {
		return n, nil
	}
	return n, err
}

// Now implements Transport using the wall clock.
func (t *TCP) Now() time.Time { return time.Now() }

// Yield implements Transport by sleeping a fraction of the read timeout.
func (t *TCP) Yield() {
	d := t.ReadTimeout / 10
	if d <= 0 {
		d = time.Millisecond
	}
	time.Sleep(d)
}

func (t *TCP) startCloseTimer() {
	if t.IdleTimeout <= 0 {
		return
	}
	if t.closeTimer == nil {
		t.closeTimer = time.AfterFunc(t.IdleTimeout, t.closeIdle)
	} else {
		t.closeTimer.Reset(t.IdleTimeout)
	}
}

func (t *TCP) closeIdle() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.IdleTimeout <= 0 {
		return
	}
	if idle := time.Since(t.lastActivity); idle >= t.IdleTimeout {
		if t.Logger != nil {
			t.Logger.Debug("transport: closing idle tcp connection", "idle", idle)
		}
		t.close()
	}
}
