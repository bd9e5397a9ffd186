package transport

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"time"
)

// TCP connects to an instrument's raw socket port (5025 on most SCPI gear).
type TCP struct {
	addr   string
	conn   net.Conn
	reader *bufio.Reader
}

// NewTCP returns an unconnected TCP transport for addr.
func NewTCP(addr string) *TCP {
	return &TCP{addr: addr}
}

func (t *TCP) Connect(ctx context.Context) error {
	if t.conn != nil {
		t.Close()
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return fmt.Errorf("transport: dial %s: %w", t.addr, err)
	}
	t.conn = conn
	t.reader = bufio.NewReader(conn)
	return nil
}

func (t *TCP) WriteLine(line string) error {
	if t.conn == nil {
		return ErrClosed
	}
	if _, err := t.conn.Write([]byte(line)); err != nil {
		return fmt.Errorf("%w: write: %w", ErrLink, err)
	}
	return nil
}

func (t *TCP) ReadLine(timeout time.Duration) (string, error) {
	if t.conn == nil {
		return "", ErrClosed
	}
	if err := t.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return "", fmt.Errorf("%w: deadline: %w", ErrLink, err)
	}
	line, err := t.reader.ReadString('\n')
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return "", ErrTimeout
		}
		return "", fmt.Errorf("%w: read: %w", ErrLink, err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (t *TCP) Close() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	t.reader = nil
	return err
}
