// Package serial is the byte transport to the external controller.
//
// The scheduler never blocks on the link: a background goroutine drains the
// tty into a bounded buffer that tasks poll with Available/ReadNonblocking.
package serial

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	goserial "go.bug.st/serial"
	"go.uber.org/zap"
)

// DefaultBufferSize bounds the bytes held between polls.
const DefaultBufferSize = 8 * 1024

// readTimeout lets the reader goroutine notice Close.
const readTimeout = 100 * time.Millisecond

// Port is the transport consumed by the protocol tasks.
type Port interface {
	// Write sends bytes to the controller.
	Write(p []byte) (int, error)

	// Available returns the number of buffered inbound bytes.
	Available() int

	// ReadNonblocking returns and consumes every buffered inbound byte, or
	// nil when none are waiting.
	ReadNonblocking() []byte

	// Close releases the port.
	Close() error
}

// Health describes the inbound side of a port.
type Health struct {
	// Dropped counts inbound bytes discarded on overflow.
	Dropped uint64
	// ReadErrors counts failed reads since open.
	ReadErrors uint64
	// Err is the most recent read error, nil while reads succeed.
	Err error
}

// HealthReporter is implemented by ports that can report reader health.
type HealthReporter interface {
	Health() Health
}

// UART is a Port backed by a real serial device.
type UART struct {
	conn io.ReadWriteCloser
	log  *zap.SugaredLogger
	max  int

	mu      sync.Mutex
	buf     []byte
	dropped    uint64
	readErrors uint64
	err        error

	closeOnce sync.Once
	done      chan struct{}
}

// Open opens name at baud 8N1 and starts the background reader.
func Open(name string, baud int, log *zap.SugaredLogger) (*UART, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	conn, err := goserial.Open(name, &goserial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   goserial.NoParity,
		StopBits: goserial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", name, err)
	}
	if err := conn.SetReadTimeout(readTimeout); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", name, err)
	}
	if err := conn.ResetInputBuffer(); err != nil {
		log.Warnw("could not flush serial input", "port", name, "err", err)
	}
	return newUART(conn, DefaultBufferSize, log), nil
}

func newUART(conn io.ReadWriteCloser, max int, log *zap.SugaredLogger) *UART {
	u := &UART{
		conn: conn,
		log:  log,
		max:  max,
		done: make(chan struct{}),
	}
	go u.readLoop()
	return u
}

// readLoop runs until Close. A read error is recorded and retried after
// readTimeout; only a closed port ends the loop.
func (u *UART) readLoop() {
	chunk := make([]byte, 256)
	failing := false
	for {
		n, err := u.conn.Read(chunk)
		if n > 0 {
			u.push(chunk[:n])
		}
		if u.stopped() {
			return
		}
		if err == nil {
			// n == 0 with nil error is a read timeout.
			if failing {
				failing = false
				u.setErr(nil)
				u.log.Infow("serial read resumed")
			}
			continue
		}
		if isClosed(err) {
			u.setErr(err)
			return
		}
		u.recordReadError(err)
		if !failing {
			failing = true
			u.log.Warnw("serial read failed, retrying", "err", err, "retry_in", readTimeout)
		}
		select {
		case <-u.done:
			return
		case <-time.After(readTimeout):
		}
	}
}

func (u *UART) stopped() bool {
	select {
	case <-u.done:
		return true
	default:
		return false
	}
}

func isClosed(err error) bool {
	var pe *goserial.PortError
	return errors.As(err, &pe) && pe.Code() == goserial.PortClosed
}

// push appends to the buffer, discarding the oldest bytes on overflow. The
// protocol framer resynchronizes on the next newline.
func (u *UART) push(p []byte) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.buf = append(u.buf, p...)
	if over := len(u.buf) - u.max; over > 0 {
		u.buf = append(u.buf[:0], u.buf[over:]...)
		u.dropped += uint64(over)
	}
}

func (u *UART) setErr(err error) {
	u.mu.Lock()
	u.err = err
	u.mu.Unlock()
}

func (u *UART) recordReadError(err error) {
	u.mu.Lock()
	u.err = err
	u.readErrors++
	u.mu.Unlock()
}

// Write sends p to the device.
func (u *UART) Write(p []byte) (int, error) {
	n, err := u.conn.Write(p)
	if err != nil {
		return n, fmt.Errorf("serial write: %w", err)
	}
	return n, nil
}

// Available returns the number of buffered inbound bytes.
func (u *UART) Available() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.buf)
}

// ReadNonblocking returns and consumes every buffered inbound byte.
func (u *UART) ReadNonblocking() []byte {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.buf) == 0 {
		return nil
	}
	out := make([]byte, len(u.buf))
	copy(out, u.buf)
	u.buf = u.buf[:0]
	return out
}

// Dropped returns the number of inbound bytes discarded on overflow.
func (u *UART) Dropped() uint64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.dropped
}

// Err returns the most recent read error. It is cleared once a read
// succeeds again.
func (u *UART) Err() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.err
}

// Health reports the background reader's counters.
func (u *UART) Health() Health {
	u.mu.Lock()
	defer u.mu.Unlock()
	return Health{Dropped: u.dropped, ReadErrors: u.readErrors, Err: u.err}
}

// Close stops the reader and closes the device.
func (u *UART) Close() error {
	var err error
	u.closeOnce.Do(func() {
		close(u.done)
		err = u.conn.Close()
	})
	return err
}

var (
	_ Port           = (*UART)(nil)
	_ HealthReporter = (*UART)(nil)
)
