// Package transport implements protocol.Callback against a real UART,
// the same role pkg/usock played for the teacher's nRF52 link, adapted to a
// half-duplex single-wire accessory port that the engine renegotiates the
// baud rate and TX direction of at runtime.
package transport

import (
	"fmt"
	"log"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Serial drives a single-wire UART accessory port through go.bug.st/serial,
// which — unlike github.com/tarm/serial — can reconfigure an already-open
// port's mode in place, which the baud-renegotiation handshake requires.
type Serial struct {
	mu   sync.Mutex
	port serial.Port
	name string

	txEnabled bool
}

// Open opens devicePath at 9600 baud, 8 data bits, no parity, one stop bit —
// the fixed bring-up configuration every accessory link starts from.
func Open(devicePath string) (*Serial, error) {
	mode := &serial.Mode{
		BaudRate: 9600,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(devicePath, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", devicePath, err)
	}
	if err := port.SetReadTimeout(100 * time.Millisecond); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", devicePath, err)
	}
	return &Serial{port: port, name: devicePath}, nil
}

// Close releases the underlying port.
func (s *Serial) Close() error {
	return s.port.Close()
}

// SetBaudRate implements protocol.Callback by reconfiguring the open port's
// mode without closing it, matching the link manager's expectation that a
// baud change takes effect for the very next byte.
func (s *Serial) SetBaudRate(baud int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	if err := s.port.SetMode(mode); err != nil {
		log.Printf("transport: set baud rate to %d on %s: %v", baud, s.name, err)
	}
}

// SetTxEnabled switches the half-duplex direction by driving RTS as the
// line's transmit-enable signal: asserted while the accessory drives the
// wire, released (after draining any buffered output) so the host can
// drive it back.
func (s *Serial) SetTxEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txEnabled = enabled
	if !enabled {
		if err := s.port.Drain(); err != nil {
			log.Printf("transport: drain %s: %v", s.name, err)
		}
	}
	if err := s.port.SetRTS(enabled); err != nil {
		log.Printf("transport: set RTS on %s: %v", s.name, err)
	}
}

// WriteByte emits one byte. Errors are logged rather than returned because
// protocol.Callback has no error channel — a dead link surfaces instead as
// the engine's own inactivity timeout.
func (s *Serial) WriteByte(b byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.port.Write([]byte{b}); err != nil {
		log.Printf("transport: write byte on %s: %v", s.name, err)
	}
}

// WriteBreak emits a break condition long enough to wake a sleeping host,
// per spec.md §4.5's three-break notification burst.
func (s *Serial) WriteBreak() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.port.Break(4 * time.Millisecond); err != nil {
		log.Printf("transport: write break on %s: %v", s.name, err)
	}
}

// ReadLoop blocks reading bytes off the port and invokes onByte for each
// one, in the same one-byte-at-a-time style as pkg/usock's original
// readLoop, until stop is closed.
func (s *Serial) ReadLoop(stop <-chan struct{}, onByte func(byte)) error {
	buf := make([]byte, 1)
	for {
		select {
		case <-stop:
			return nil
		default:
		}
		n, err := s.port.Read(buf)
		if err != nil {
			return fmt.Errorf("read from %s: %w", s.name, err)
		}
		if n == 0 {
			continue
		}
		onByte(buf[0])
	}
}
