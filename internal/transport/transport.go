// Package transport provides the line-oriented link to the instrument. The
// engine owns the transport exclusively while connected and speaks a strict
// one-command one-response protocol over it.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimeout marks a read that produced no complete line in time.
	ErrTimeout = errors.New("transport: read timeout")
	// ErrClosed marks use of a transport that is not connected.
	ErrClosed = errors.New("transport: not connected")
	// ErrLink marks an I/O failure on an established link. Implementations
	// wrap it around the underlying error so callers can classify with
	// errors.Is.
	ErrLink = errors.New("transport: link failure")
)

// Transport is a point-to-point line channel. Implementations are not safe
// for concurrent use; the device serializes all access behind its execution
// lock.
type Transport interface {
	// Connect establishes the link. It respects ctx for timeout and
	// cancellation and may be called again after a failure or Close.
	Connect(ctx context.Context) error
	// WriteLine sends one command string exactly as rendered by the codec.
	WriteLine(line string) error
	// ReadLine reads one response line, stripped of terminators, waiting at
	// most timeout. Returns ErrTimeout when no full line arrives.
	ReadLine(timeout time.Duration) (string, error)
	Close() error
}

// Config selects and parameterizes a transport.
type Config struct {
	Type     string `yaml:"type" json:"type"`          // "tcp", "serial" or "sim"
	Addr     string `yaml:"addr" json:"addr"`          // tcp host:port, e.g. 10.0.0.5:5025
	PortPath string `yaml:"port_path" json:"portPath"` // serial device path
	BaudRate int    `yaml:"baud_rate" json:"baudRate"` // serial baud, default 115200
}

// New builds a transport from config. The "sim" type is resolved by the
// caller (it needs a schema) and rejected here.
func New(cfg Config) (Transport, error) {
	switch cfg.Type {
	case "tcp":
		if cfg.Addr == "" {
			return nil, fmt.Errorf("transport: tcp requires addr")
		}
		return NewTCP(cfg.Addr), nil
	case "serial":
		if cfg.PortPath == "" {
			return nil, fmt.Errorf("transport: serial requires port_path")
		}
		return NewSerial(cfg.PortPath, cfg.BaudRate), nil
	default:
		return nil, fmt.Errorf("transport: unknown type %q", cfg.Type)
	}
}
