package transport

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/European-XFEL/FunctionGenerator/internal/schema"
)

// echoInstrument accepts one connection and answers every "X?" line with the
// register value, mimicking a raw-socket SCPI port.
func echoInstrument(t *testing.T, regs map[string]string) net.Addr {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimRight(line, "\r\n")
			if strings.HasSuffix(line, "?") {
				conn.Write([]byte(regs[strings.TrimSuffix(line, "?")] + "\r\n"))
			}
		}
	}()
	return ln.Addr()
}

func TestTCPRoundTrip(t *testing.T) {
	addr := echoInstrument(t, map[string]string{
		"*IDN": "Keysight Technologies,33512B,MY0,1.0",
	})

	tr := NewTCP(addr.String())
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer tr.Close()

	if err := tr.WriteLine("*IDN?\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := tr.ReadLine(time.Second)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != "Keysight Technologies,33512B,MY0,1.0" {
		t.Errorf("got %q", got)
	}
}

func TestTCPReadTimeout(t *testing.T) {
	addr := echoInstrument(t, nil)

	tr := NewTCP(addr.String())
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer tr.Close()

	// a SET produces no response; the next read must time out cleanly
	if err := tr.WriteLine("DISPlay OFF\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := tr.ReadLine(50 * time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestTCPLinkError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	tr := NewTCP(ln.Addr().String())
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer tr.Close()

	// the peer hangs up; the failed read must classify as a link error so the
	// supervisor reconnects instead of treating it like a slow response
	_, err = tr.ReadLine(time.Second)
	if !errors.Is(err, ErrLink) {
		t.Fatalf("err = %v, want ErrLink", err)
	}
	if errors.Is(err, ErrTimeout) {
		t.Errorf("hangup misreported as timeout: %v", err)
	}
}

func TestTCPConnectFailure(t *testing.T) {
	tr := NewTCP("127.0.0.1:1") // nothing listens here
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := tr.Connect(ctx); err == nil {
		tr.Close()
		t.Fatal("connect to a dead port succeeded")
	}
}

func TestTCPClosedUse(t *testing.T) {
	tr := NewTCP("127.0.0.1:1")
	if err := tr.WriteLine("*IDN?\n"); !errors.Is(err, ErrClosed) {
		t.Errorf("write: err = %v, want ErrClosed", err)
	}
	if _, err := tr.ReadLine(time.Millisecond); !errors.Is(err, ErrClosed) {
		t.Errorf("read: err = %v, want ErrClosed", err)
	}
}

func TestNewDispatch(t *testing.T) {
	if _, err := New(Config{Type: "tcp", Addr: "localhost:5025"}); err != nil {
		t.Errorf("tcp: %v", err)
	}
	if _, err := New(Config{Type: "tcp"}); err == nil {
		t.Error("tcp without addr accepted")
	}
	if _, err := New(Config{Type: "serial", PortPath: "/dev/ttyUSB0"}); err != nil {
		t.Errorf("serial: %v", err)
	}
	if _, err := New(Config{Type: "serial"}); err == nil {
		t.Error("serial without port accepted")
	}
	if _, err := New(Config{Type: "gpib"}); err == nil {
		t.Error("unknown type accepted")
	}
}

func simSchema(t *testing.T) *schema.Schema {
	t.Helper()
	b := schema.NewBuilder("sim-test")
	b.Device(schema.Descriptor{
		Key: "display", Kind: schema.KindEnum, Alias: "DISPlay",
		Options: []string{"ON", "OFF"}, Default: "OFF",
	})
	b.Channel("channel_1", "1",
		schema.Descriptor{Key: "offset", Kind: schema.KindNumber, Alias: "SOURce{channel}:VOLT:OFFS"},
		schema.Descriptor{
			Key: "functionShape", Kind: schema.KindEnum, Alias: "SOURce{channel}:FUNCtion",
			Options:   []string{"SIN", "SQU"},
			Default:   "Sine",
			EncodeMap: map[string]string{"Sine": "SIN", "Square": "SQU"},
			DecodeMap: map[string]string{"SIN": "Sine", "SQU": "Square"},
		},
	)
	sch, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return sch
}

func TestSimSeeding(t *testing.T) {
	sim := NewSim(simSchema(t))
	if err := sim.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	// defaults land in the registers, translated to device tokens
	if v, ok := sim.Get("DISPlay", ""); !ok || v != "OFF" {
		t.Errorf("DISPlay = %q, %v", v, ok)
	}
	if v, ok := sim.Get("SOURce{channel}:FUNCtion", "1"); !ok || v != "SIN" {
		t.Errorf("FUNCtion = %q, %v", v, ok)
	}
	if v, ok := sim.Get("SOURce{channel}:VOLT:OFFS", "1"); !ok || v != "0" {
		t.Errorf("OFFS = %q, %v", v, ok)
	}
}

func TestSimProtocol(t *testing.T) {
	sim := NewSim(simSchema(t))
	if err := sim.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	// SET with unit suffix, then read it back
	if err := sim.WriteLine("SOURce1:VOLT:OFFS 1.5 V\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := sim.WriteLine("SOURce1:VOLT:OFFS?\n"); err != nil {
		t.Fatalf("query: %v", err)
	}
	got, err := sim.ReadLine(time.Second)
	if err != nil || got != "1.5" {
		t.Errorf("read back = %q, %v", got, err)
	}

	// no pending response means timeout, like real hardware
	if _, err := sim.ReadLine(time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Errorf("err = %v, want ErrTimeout", err)
	}

	// catalog request with argument
	if err := sim.WriteLine("MMEMory:CAT:DATA:ARB? \"INT:\\BUILTIN\"\n"); err != nil {
		t.Fatalf("catalog query: %v", err)
	}
	if got, err := sim.ReadLine(time.Second); err != nil || !strings.Contains(got, ".arb") {
		t.Errorf("catalog = %q, %v", got, err)
	}

	sim.Close()
	if err := sim.WriteLine("DISPlay ON\n"); !errors.Is(err, ErrClosed) {
		t.Errorf("closed write: err = %v", err)
	}
}
