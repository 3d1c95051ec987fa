package transport

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/grid-x/serial"
)

// Default serial timeouts, grounded on grid-x-modbus/serial.go.
const (
	DefaultSerialReadTimeout = 50 * time.Millisecond
	DefaultIdleTimeout       = 60 * time.Second
)

// SerialPort is a Transport backed by a real RS-232/RS-485 serial line via
// github.com/grid-x/serial. Recv honors the non-blocking contract of
// spec.md §4.7 by giving the underlying read a short deadline
// (ReadTimeout): if nothing arrives within it, Recv returns (0, nil) rather
// than blocking the caller's poll loop.
type SerialPort struct {
	serial.Config

	Logger      *slog.Logger
	IdleTimeout time.Duration
	ReadTimeout time.Duration

	mu           sync.Mutex
	port         io.ReadWriteCloser
	lastActivity time.Time
	closeTimer   *time.Timer
}

// NewSerialPort builds a SerialPort from a grid-x/serial.Config. The
// returned transport is not yet connected; call Connect (or rely on the
// first Send/Recv to dial lazily) before use.
func NewSerialPort(cfg serial.Config, logger *slog.Logger) *SerialPort {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultSerialReadTimeout
	}
	return &SerialPort{
		Config:      cfg,
		Logger:      logger,
		IdleTimeout: DefaultIdleTimeout,
		ReadTimeout: cfg.Timeout,
	}
}

// Connect opens the serial port if it is not already open.
func (s *SerialPort) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connect()
}

func (s *SerialPort) connect() error {
	if s.port != nil {
		return nil
	}
	port, err := serial.Open(&s.Config)
	if err != nil {
		return fmt.Errorf("transport: open %s: %w", s.Config.Address, err)
	}
	s.port = port
	return nil
}

// Close implements Closer.
func (s *SerialPort) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.close()
}

func (s *SerialPort) close() error {
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}

// Send implements Transport. A read/write timeout is already configured on
// the underlying port, so Write returns promptly on a stalled line.
func (s *SerialPort) Send(data []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.connect(); err != nil {
		return 0, err
	}
	n, err := s.port.Write(data)
	if n > 0 {
		s.lastActivity = time.Now()
		s.startCloseTimer()
	}
	return n, err
}

// Recv implements Transport. It reads with the port's configured timeout;
// a timeout is translated into "no progress" (0, nil) rather than an error,
// matching the non-blocking contract.
func (s *SerialPort) Recv(buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.connect(); err != nil {
		return 0, err
	}
	n, err := s.port.Read(buf)
	if n > 0 {
		s.lastActivity = time.Now()
		s.startCloseTimer()
	}
	if err != nil && isTimeout(err) {
		return n, nil
	}
	return n, err
}

// Now implements Transport using the wall clock.
func (s *SerialPort) Now() time.Time { return time.Now() }

// Yield implements Transport by sleeping a fraction of the configured read
// timeout, giving other goroutines a chance to run between polls.
func (s *SerialPort) Yield() {
	d := s.ReadTimeout / 10
	if d <= 0 {
		d = time.Millisecond
	}
	time.Sleep(d)
}

func (s *SerialPort) startCloseTimer() {
	if s.IdleTimeout <= 0 {
		return
	}
	if s.closeTimer == nil {
		s.closeTimer = time.AfterFunc(s.IdleTimeout, s.closeIdle)
	} else {
		s.closeTimer.Reset(s.IdleTimeout)
	}
}

// closeIdle closes the port if no activity has occurred for IdleTimeout,
// grounded on grid-x-modbus/rtuactivity.go's idle-close pattern.
func (s *SerialPort) closeIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.IdleTimeout <= 0 {
		return
	}
	if idle := time.Since(s.lastActivity); idle >= s.IdleTimeout {
		if s.Logger != nil {
			s.Logger.Debug("transport: closing idle serial port", "idle", idle)
		}
		s.close()
	}
}

type timeouter interface {
	Timeout() bool
}

func isTimeout(err error) bool {
	var t timeouter
	if errors.As(err, &t) {
		return t.Timeout()
	}
	return false
}
