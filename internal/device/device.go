// Package device binds a parameter schema to a transport. It owns the
// connection state machine, serializes every command/query over the single
// request/response link, enforces read-back verification, and keeps the
// last-known value of every parameter.
package device

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/European-XFEL/FunctionGenerator/internal/schema"
	"github.com/European-XFEL/FunctionGenerator/internal/scpi"
	"github.com/European-XFEL/FunctionGenerator/internal/transport"
)

// ErrNotConnected is returned for wire operations while the link is down.
var ErrNotConnected = errors.New("device: not connected")

// Config tunes the supervisor and poller.
type Config struct {
	// ConnectTimeout bounds one handshake attempt. Default 10s.
	ConnectTimeout time.Duration
	// ReadTimeout bounds one response line. Default 2s.
	ReadTimeout time.Duration
	// RetryDelay between failed connect attempts. The retry loop is constant
	// interval, never capped. Default 1s.
	RetryDelay time.Duration
	// PollInterval is the device-global minimum polling interval, clamped to
	// [50ms, 1000s]. Default 5s.
	PollInterval time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.ConnectTimeout <= 0 {
		out.ConnectTimeout = 10 * time.Second
	}
	if out.ReadTimeout <= 0 {
		out.ReadTimeout = 2 * time.Second
	}
	if out.RetryDelay <= 0 {
		out.RetryDelay = time.Second
	}
	if out.PollInterval <= 0 {
		out.PollInterval = 5 * time.Second
	}
	if out.PollInterval < 50*time.Millisecond {
		out.PollInterval = 50 * time.Millisecond
	}
	if out.PollInterval > 1000*time.Second {
		out.PollInterval = 1000 * time.Second
	}
	return out
}

// ParamValue is the last known state of one parameter instance.
type ParamValue struct {
	Raw     string     `json:"raw"`
	Value   scpi.Value `json:"-"`
	Text    string     `json:"value"`
	Updated time.Time  `json:"updated"`
	Pending bool       `json:"pending"`
}

// SetResult reports the outcome of a write. Value is what the hardware
// reports after the write (the request itself when no read-back is
// configured); Mismatch flags a read-back that disagreed with the request.
type SetResult struct {
	Value    scpi.Value
	Mismatch bool
}

// Event is one entry of the device's status stream, consumed by the journal
// and the server.
type Event struct {
	Time    time.Time `json:"time"`
	Kind    string    `json:"kind"`
	Key     string    `json:"key,omitempty"`
	Channel string    `json:"channel,omitempty"`
	Value   string    `json:"value,omitempty"`
	Message string    `json:"message,omitempty"`
}

// Device operates one instrument.
type Device struct {
	sch *schema.Schema
	tr  transport.Transport
	cfg Config

	// mu is the per-device execution lock. Every transport touch (connect
	// handshake, sweep item, user write/query, poll query) happens under it,
	// so at most one command is in flight and responses cannot misalign.
	mu sync.Mutex

	stateMu    sync.RWMutex
	state      ConnState
	status     string
	lastStatus string

	valMu  sync.RWMutex
	values map[string]ParamValue
	arbs   []string

	lifeMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	events  chan Event
	faults  chan error
	onState func(ConnState)
}

// New creates a device for the given schema over the given transport. The
// device starts Disconnected; call Connect to bring it up.
func New(sch *schema.Schema, tr transport.Transport, cfg Config) *Device {
	return &Device{
		sch:    sch,
		tr:     tr,
		cfg:    cfg.withDefaults(),
		state:  StateDisconnected,
		values: make(map[string]ParamValue),
		events: make(chan Event, 256),
		faults: make(chan error, 1),
	}
}

// Schema returns the immutable parameter schema.
func (d *Device) Schema() *schema.Schema { return d.sch }

// Events exposes the status stream. Slow consumers lose events rather than
// blocking the engine.
func (d *Device) Events() <-chan Event { return d.events }

// OnStateChange registers a callback invoked on every connection state
// transition. Must be set before Connect.
func (d *Device) OnStateChange(fn func(ConnState)) { d.onState = fn }

// State returns the current connection state.
func (d *Device) State() ConnState {
	d.stateMu.RLock()
	defer d.stateMu.RUnlock()
	return d.state
}

// Status returns the latest human-readable status message.
func (d *Device) Status() string {
	d.stateMu.RLock()
	defer d.stateMu.RUnlock()
	return d.status
}

// Connect triggers connection supervision. It returns immediately; the
// outcome is observable through State and the event stream. Calling it again
// cancels any in-flight attempt and starts over.
func (d *Device) Connect(ctx context.Context) {
	d.lifeMu.Lock()
	defer d.lifeMu.Unlock()
	if d.cancel != nil {
		d.cancel()
		<-d.done
	}
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	go d.run(runCtx, d.done)
}

// Close tears the device down: stops the supervisor and poller, closes the
// transport and enters the terminal Disconnected state.
func (d *Device) Close() error {
	d.lifeMu.Lock()
	defer d.lifeMu.Unlock()
	if d.cancel != nil {
		d.cancel()
		<-d.done
		d.cancel = nil
	}
	d.mu.Lock()
	err := d.tr.Close()
	d.mu.Unlock()
	d.setState(StateDisconnected)
	return err
}

// run is the connection supervisor: one long-lived goroutine per Connect
// call that establishes the link, primes parameters, hands off to the
// poller, and recovers from faults until ctx is cancelled.
func (d *Device) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		if ctx.Err() != nil {
			return
		}
		d.setState(StateConnecting)

		d.mu.Lock()
		cctx, cancel := context.WithTimeout(ctx, d.cfg.ConnectTimeout)
		err := d.tr.Connect(cctx)
		cancel()
		d.mu.Unlock()

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.setState(StateFaulted)
			d.setStatus(fmt.Sprintf("connect failed: %v", err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(d.cfg.RetryDelay):
			}
			continue
		}

		d.setStatus("connected")
		if err := d.sweep(ctx); err != nil {
			// transport died mid-sweep
			d.dropLink(err)
			continue
		}
		d.setState(StateConnected)

		// drop any fault left over from a previous session
		select {
		case <-d.faults:
		default:
		}
		err = d.poll(ctx)
		if ctx.Err() != nil {
			return
		}
		d.dropLink(err)
	}
}

func (d *Device) dropLink(err error) {
	d.setState(StateFaulted)
	if err != nil {
		d.setStatus(fmt.Sprintf("link lost: %v", err))
	}
	d.mu.Lock()
	d.tr.Close()
	d.mu.Unlock()
}

// sweep performs the connect-time pass: writeOnConnect parameters are primed
// with their default (verified like any other write), readOnConnect ones are
// queried. Parameter-level failures are recorded and skipped; transport
// failures abort the sweep.
func (d *Device) sweep(ctx context.Context) error {
	for _, b := range d.sch.ConnectBindings() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var err error
		if b.Descriptor.WriteOnConnect {
			_, err = d.write(b, scpi.Text(b.Descriptor.Default))
		} else {
			_, err = d.Query(b.Descriptor.Key, channelOf(b))
		}
		if err == nil {
			continue
		}
		if isTransportErr(err) {
			return err
		}
		msg := fmt.Sprintf("connect sweep: %s: %v", b.ID(), err)
		d.setStatus(msg)
		d.publish(Event{Kind: EventSweep, Key: b.Descriptor.Key, Channel: channelOf(b), Message: msg})
	}
	return nil
}

// Set validates, encodes and writes one parameter. With commandReadBack the
// verifying query is issued before any other traffic touches the link; a
// disagreeing read-back is reported, not failed; the hardware stays the
// source of truth.
func (d *Device) Set(key, channel string, v scpi.Value) (SetResult, error) {
	b, err := d.sch.Lookup(key, channel)
	if err != nil {
		return SetResult{}, err
	}
	if b.Descriptor.ReadOnly {
		return SetResult{}, fmt.Errorf("device: %s is read only", b.ID())
	}
	return d.write(b, v)
}

func (d *Device) write(b schema.Binding, v scpi.Value) (SetResult, error) {
	desc := b.Descriptor

	if desc.Policy == schema.PolicyUpperBound {
		norm, err := scpi.Normalize(desc, v)
		if err != nil {
			d.setStatus(err.Error())
			return SetResult{}, err
		}
		if err := scpi.CheckUpperBound(desc, norm, d.current(b, desc.Bound)); err != nil {
			d.setStatus(err.Error())
			return SetResult{}, err
		}
	}
	if desc.Policy == schema.PolicyCatalog {
		if err := d.checkCatalog(desc, v); err != nil {
			d.setStatus(err.Error())
			return SetResult{}, err
		}
	}

	if desc.Local() {
		norm, err := scpi.Normalize(desc, v)
		if err != nil {
			d.setStatus(err.Error())
			return SetResult{}, err
		}
		d.store(b, norm, norm.String())
		return SetResult{Value: norm}, nil
	}

	cmd, norm, err := scpi.Command(b, v)
	if err != nil {
		d.setStatus(err.Error())
		return SetResult{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.State() != StateConnected && d.State() != StateConnecting {
		return SetResult{}, ErrNotConnected
	}

	d.markPending(b, true)
	if err := d.tr.WriteLine(cmd); err != nil {
		d.markPending(b, false)
		d.fault(err)
		return SetResult{}, err
	}

	if !desc.CommandReadBack {
		d.store(b, norm, "")
		return SetResult{Value: norm}, nil
	}

	got, raw, err := d.queryLocked(b)
	if err != nil {
		d.markPending(b, false)
		return SetResult{}, err
	}
	res := SetResult{Value: got}
	if !norm.Equal(got) {
		res.Mismatch = true
		msg := fmt.Sprintf("read-back mismatch on %s: wrote %s, hardware reports %s",
			b.ID(), norm, got)
		d.setStatus(msg)
		d.publish(Event{Kind: EventMismatch, Key: desc.Key, Channel: channelOf(b),
			Value: got.String(), Message: msg})
	}
	d.store(b, got, raw)
	return res, nil
}

// Query issues the GET for one parameter and updates its stored value.
func (d *Device) Query(key, channel string) (scpi.Value, error) {
	b, err := d.sch.Lookup(key, channel)
	if err != nil {
		return scpi.Value{}, err
	}
	if b.Descriptor.Local() {
		return d.current(b, key), nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	v, raw, err := d.queryLocked(b)
	if err != nil {
		return scpi.Value{}, err
	}
	if discard(b.Descriptor, raw) {
		return d.current(b, key), nil
	}
	d.store(b, v, raw)
	return v, nil
}

// Get returns the last known value without touching the wire.
func (d *Device) Get(key, channel string) (scpi.Value, error) {
	b, err := d.sch.Lookup(key, channel)
	if err != nil {
		return scpi.Value{}, err
	}
	return d.current(b, key), nil
}

// queryLocked runs one query round trip. Callers hold d.mu.
func (d *Device) queryLocked(b schema.Binding) (scpi.Value, string, error) {
	if err := d.tr.WriteLine(scpi.Query(b)); err != nil {
		d.fault(err)
		return scpi.Value{}, "", err
	}
	raw, err := d.tr.ReadLine(d.cfg.ReadTimeout)
	if err != nil {
		d.fault(err)
		return scpi.Value{}, "", err
	}
	v, err := scpi.Decode(b, raw)
	if err != nil {
		// protocol-level, local to this parameter
		d.setStatus(err.Error())
		return scpi.Value{}, raw, err
	}
	return v, raw, nil
}

// Values returns a snapshot of all known parameter values keyed by binding
// ID ("channel_1.offset", "identification", ...).
func (d *Device) Values() map[string]ParamValue {
	d.valMu.RLock()
	defer d.valMu.RUnlock()
	out := make(map[string]ParamValue, len(d.values))
	for k, v := range d.values {
		out[k] = v
	}
	return out
}

// RefreshCatalog asks the hardware for its arbitrary-waveform catalog using
// the named catalog parameter and path, and replaces the device's discovered
// option list with the .arb/.seq entries of the reply.
func (d *Device) RefreshCatalog(key, path string) ([]string, error) {
	b, err := d.sch.Lookup(key, "")
	if err != nil {
		return nil, err
	}
	// the path needs explicit quotation on the wire
	cmd := scpi.QueryArg(b, `"`+path+`"`)

	d.mu.Lock()
	if err := d.tr.WriteLine(cmd); err != nil {
		d.fault(err)
		d.mu.Unlock()
		return nil, err
	}
	raw, err := d.tr.ReadLine(d.cfg.ReadTimeout)
	if err != nil {
		d.fault(err)
		d.mu.Unlock()
		return nil, err
	}
	d.mu.Unlock()

	arbs := parseCatalog(raw)
	d.valMu.Lock()
	d.arbs = arbs
	d.valMu.Unlock()
	d.store(b, scpi.Text(raw), raw)
	d.publish(Event{Kind: EventCatalog, Key: key, Value: strings.Join(arbs, ",")})
	log.Printf("[device] catalog refresh: %d waveforms", len(arbs))
	return arbs, nil
}

// Catalog returns the waveform names discovered by the last RefreshCatalog.
func (d *Device) Catalog() []string {
	d.valMu.RLock()
	defer d.valMu.RUnlock()
	return append([]string(nil), d.arbs...)
}

func (d *Device) checkCatalog(desc *schema.Descriptor, v scpi.Value) error {
	d.valMu.RLock()
	arbs := d.arbs
	d.valMu.RUnlock()
	if len(arbs) == 0 {
		return fmt.Errorf("device: %s: waveform catalog not loaded", desc.Key)
	}
	want := v.String()
	for _, a := range arbs {
		if a == want {
			return nil
		}
	}
	return fmt.Errorf("%w: %q not in discovered catalog", scpi.ErrInvalidOption, want)
}

// current returns the stored value of key within b's scope.
func (d *Device) current(b schema.Binding, key string) scpi.Value {
	id := key
	if b.Channel != nil {
		id = b.Channel.Name + "." + key
	}
	d.valMu.RLock()
	defer d.valMu.RUnlock()
	return d.values[id].Value
}

func (d *Device) store(b schema.Binding, v scpi.Value, raw string) {
	d.valMu.Lock()
	d.values[b.ID()] = ParamValue{
		Raw:     raw,
		Value:   v,
		Text:    v.String(),
		Updated: time.Now(),
	}
	d.valMu.Unlock()
}

func (d *Device) markPending(b schema.Binding, pending bool) {
	d.valMu.Lock()
	pv := d.values[b.ID()]
	pv.Pending = pending
	d.values[b.ID()] = pv
	d.valMu.Unlock()
}

func (d *Device) setState(s ConnState) {
	d.stateMu.Lock()
	if d.state == s {
		d.stateMu.Unlock()
		return
	}
	d.state = s
	d.stateMu.Unlock()
	log.Printf("[device] %s: state -> %s", d.sch.Model, s)
	d.publish(Event{Kind: EventState, Value: s.String()})
	if d.onState != nil {
		d.onState(s)
	}
}

// setStatus records a status message, suppressing consecutive duplicates so
// a fault loop does not flood the log or the journal.
func (d *Device) setStatus(msg string) {
	d.stateMu.Lock()
	if msg == d.lastStatus {
		d.stateMu.Unlock()
		return
	}
	d.lastStatus = msg
	d.status = msg
	d.stateMu.Unlock()
	log.Printf("[device] %s: %s", d.sch.Model, msg)
	d.publish(Event{Kind: EventStatus, Message: msg})
}

func (d *Device) publish(ev Event) {
	ev.Time = time.Now()
	select {
	case d.events <- ev:
	default:
	}
}

// fault signals the supervisor that the link died under a dispatcher call.
// Connection-level recovery happens on the supervisor goroutine.
func (d *Device) fault(err error) {
	select {
	case d.faults <- err:
	default:
	}
}

func channelOf(b schema.Binding) string {
	if b.Channel == nil {
		return ""
	}
	return b.Channel.Name
}

func discard(desc *schema.Descriptor, raw string) bool {
	for _, s := range desc.DiscardResponses {
		if strings.Contains(raw, s) {
			return true
		}
	}
	return false
}

func isTransportErr(err error) bool {
	return errors.Is(err, transport.ErrTimeout) ||
		errors.Is(err, transport.ErrClosed) ||
		errors.Is(err, transport.ErrLink)
}

func parseCatalog(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		name := strings.Trim(strings.TrimSpace(part), `"`)
		if strings.Contains(name, ".arb") || strings.Contains(name, ".seq") {
			out = append(out, name)
		}
	}
	return out
}
