package transport

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/European-XFEL/FunctionGenerator/internal/schema"
)

// Sim is a simulated instrument for development and testing. It keeps a
// register of values keyed by resolved wire address, answers queries from it
// and accepts commands into it, so the engine can run without hardware.
type Sim struct {
	regs    map[string]string
	pending []string
	open    bool
}

// NewSim builds a simulator pre-seeded with every aliased descriptor's
// default value across all channels of the schema.
func NewSim(s *schema.Schema) *Sim {
	regs := map[string]string{
		"*IDN": "FunctionGenerator,SIM,0,1.0",
	}
	for _, b := range s.Bindings() {
		if b.Descriptor.Local() {
			continue
		}
		addr := strings.ReplaceAll(b.Descriptor.Alias, "{channel}", b.ChannelAlias())
		v := b.Descriptor.Default
		if v == "" {
			switch b.Descriptor.Kind {
			case schema.KindNumber:
				v = "0"
			case schema.KindEnum:
				if len(b.Descriptor.Options) > 0 {
					v = b.Descriptor.Options[0]
				}
			}
		}
		if tok, ok := b.Descriptor.EncodeMap[v]; ok {
			v = tok
		}
		regs[addr] = v
	}
	regs["SYSTem:ERRor"] = `0,"No error"`
	regs["MMEMory:CAT:DATA:ARB"] = `"sine.arb","pulse_train.arb","scan.seq"`
	return &Sim{regs: regs}
}

func (s *Sim) Connect(ctx context.Context) error {
	s.open = true
	s.pending = nil
	return nil
}

// WriteLine parses one command or query line the way the instrument's
// command parser would and queues any response.
func (s *Sim) WriteLine(line string) error {
	if !s.open {
		return ErrClosed
	}
	line = strings.TrimRight(line, "\r\n")
	if addr, arg, ok := splitQuery(line); ok {
		// queries with an argument (catalog requests) ignore the argument
		_ = arg
		v, found := s.regs[addr]
		if !found {
			v = ""
		}
		s.pending = append(s.pending, v)
		return nil
	}
	// SET: "<addr> <value...>", value may carry a unit suffix
	addr, val, found := strings.Cut(line, " ")
	if !found {
		return nil
	}
	if fields := strings.Fields(val); len(fields) > 1 {
		val = fields[0] // drop unit suffix
	}
	s.regs[addr] = val
	return nil
}

func (s *Sim) ReadLine(timeout time.Duration) (string, error) {
	if !s.open {
		return "", ErrClosed
	}
	if len(s.pending) == 0 {
		return "", ErrTimeout
	}
	v := s.pending[0]
	s.pending = s.pending[1:]
	return v, nil
}

func (s *Sim) Close() error {
	s.open = false
	return nil
}

// Set overrides a register, resolving {channel} in the alias. Tests use it
// to stage responses.
func (s *Sim) Set(alias, channel, value string) {
	addr := strings.ReplaceAll(alias, "{channel}", channel)
	s.regs[addr] = value
}

// Get reads a register back for assertions.
func (s *Sim) Get(alias, channel string) (string, bool) {
	addr := strings.ReplaceAll(alias, "{channel}", channel)
	v, ok := s.regs[addr]
	return v, ok
}

func splitQuery(line string) (addr, arg string, ok bool) {
	i := strings.Index(line, "?")
	if i < 0 {
		return "", "", false
	}
	return line[:i], strings.TrimSpace(line[i+1:]), true
}

var _ Transport = (*Sim)(nil)

// String aids connection logs.
func (s *Sim) String() string { return fmt.Sprintf("sim(%d regs)", len(s.regs)) }
