package transport

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
)

// Serial talks to an instrument over an RS-232/USB serial port.
type Serial struct {
	path string
	baud int
	port serial.Port
}

// NewSerial returns an unconnected serial transport. baud of zero defaults
// to 115200.
func NewSerial(path string, baud int) *Serial {
	if baud == 0 {
		baud = 115200
	}
	return &Serial{path: path, baud: baud}
}

func (s *Serial) Connect(ctx context.Context) error {
	if s.port != nil {
		s.Close()
	}
	mode := &serial.Mode{
		BaudRate: s.baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(s.path, mode)
	if err != nil {
		return fmt.Errorf("transport: open %s: %w", s.path, err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return fmt.Errorf("transport: reset %s: %w", s.path, err)
	}
	if err := ctx.Err(); err != nil {
		port.Close()
		return err
	}
	s.port = port
	return nil
}

func (s *Serial) WriteLine(line string) error {
	if s.port == nil {
		return ErrClosed
	}
	if _, err := s.port.Write([]byte(line)); err != nil {
		return fmt.Errorf("%w: write: %w", ErrLink, err)
	}
	return nil
}

// ReadLine accumulates bytes until a newline or the deadline. The port read
// timeout is kept short so a slow trickle of bytes still completes within
// the overall budget.
func (s *Serial) ReadLine(timeout time.Duration) (string, error) {
	if s.port == nil {
		return "", ErrClosed
	}
	chunk := timeout / 4
	if chunk > 250*time.Millisecond {
		chunk = 250 * time.Millisecond
	}
	if err := s.port.SetReadTimeout(chunk); err != nil {
		return "", fmt.Errorf("%w: set timeout: %w", ErrLink, err)
	}

	var sb strings.Builder
	buf := make([]byte, 64)
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		n, err := s.port.Read(buf)
		if err != nil {
			return "", fmt.Errorf("%w: read: %w", ErrLink, err)
		}
		for i := 0; i < n; i++ {
			if buf[i] == '\n' {
				return strings.TrimRight(sb.String(), "\r"), nil
			}
			sb.WriteByte(buf[i])
		}
	}
	return "", ErrTimeout
}

func (s *Serial) Close() error {
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}
