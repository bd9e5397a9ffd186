// Package schema describes the controllable surface of one instrument model:
// every parameter, its wire alias, its value policies, and the per-channel
// grouping. A Schema is assembled once by a Builder before the device is
// created and never mutated afterwards.
package schema

import (
	"fmt"
	"time"
)

// Kind is the value type of a parameter.
type Kind int

const (
	// KindEnum restricts values to a fixed option set of device tokens.
	KindEnum Kind = iota
	// KindNumber holds a float with an optional min/max range.
	KindNumber
	// KindString passes values through untyped.
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindEnum:
		return "enum"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Access is the operator level required to touch a parameter.
type Access int

const (
	AccessNormal Access = iota
	AccessExpert
)

// Policy selects how the codec validates a value before it goes on the wire.
// This is a closed set; instrument tables pick a variant instead of attaching
// ad hoc setter callbacks.
type Policy int

const (
	// PolicyNone accepts anything (free strings).
	PolicyNone Policy = iota
	// PolicyEnum requires a literal option or an encode-map key.
	PolicyEnum
	// PolicyBool normalizes 0/1/"0"/"1"/ON/OFF to ON or OFF.
	PolicyBool
	// PolicyRange requires a float within the descriptor's min/max.
	PolicyRange
	// PolicyUpperBound requires a float no greater than the current value of
	// the sibling parameter named in Bound. While that sibling is unknown the
	// value is accepted provisionally.
	PolicyUpperBound
	// PolicyCatalog validates against the device's discovered waveform
	// catalog instead of a static option set.
	PolicyCatalog
)

// Default wire formats. A descriptor may override CommandFormat to carry a
// unit suffix ("{alias} {value} s") or the query-with-argument form
// ("{alias}? {value}\n") used for catalog requests.
const (
	DefaultCommandFormat = "{alias} {value}\n"
	DefaultQueryFormat   = "{alias}?\n"
)

// Descriptor is the immutable definition of one instrument parameter.
type Descriptor struct {
	// Key is unique within the owning scope (device or channel node).
	Key         string
	Name        string
	Description string
	Kind        Kind

	// Alias is the wire address fragment, optionally containing the
	// {channel} placeholder. An empty alias marks a host-local parameter
	// that never generates traffic.
	Alias         string
	CommandFormat string
	QueryFormat   string

	Options  []string
	Min, Max *float64
	Unit     string
	Default  string

	ReadOnConnect   bool
	WriteOnConnect  bool
	CommandReadBack bool
	// PollInterval of zero means the parameter is not polled.
	PollInterval time.Duration
	Access       Access
	ReadOnly     bool

	// EncodeMap translates human-readable values to device tokens before
	// formatting; DecodeMap is its inverse. The Builder enforces the
	// round-trip law between the two.
	EncodeMap map[string]string
	DecodeMap map[string]string

	Policy Policy
	// Bound names the sibling parameter for PolicyUpperBound.
	Bound string

	// DiscardResponses lists substrings whose presence in a query response
	// makes the dispatcher drop the value (e.g. "No error" from SYSTem:ERRor?).
	DiscardResponses []string
}

// HasOption reports whether tok is a literal member of the option set.
func (d *Descriptor) HasOption(tok string) bool {
	for _, o := range d.Options {
		if o == tok {
			return true
		}
	}
	return false
}

// Local reports whether the parameter lives only on the host side.
func (d *Descriptor) Local() bool { return d.Alias == "" }

// ChannelNode groups the descriptors replicated for one physical output
// channel. Alias is the {channel} substitution value.
type ChannelNode struct {
	Name        string
	Alias       string
	Descriptors []Descriptor
}

// Binding is one addressable parameter instance: a descriptor plus the
// channel it is scoped to (nil for device scope).
type Binding struct {
	Descriptor *Descriptor
	Channel    *ChannelNode
}

// ChannelAlias returns the {channel} substitution value, or "" for
// device-scoped bindings.
func (b Binding) ChannelAlias() string {
	if b.Channel == nil {
		return ""
	}
	return b.Channel.Alias
}

// ID uniquely identifies the binding within a device instance.
func (b Binding) ID() string {
	if b.Channel == nil {
		return b.Descriptor.Key
	}
	return b.Channel.Name + "." + b.Descriptor.Key
}

// Schema is the full parameter surface of one instrument model. Device-scoped
// descriptors come first in declaration order, then each channel node in
// declaration order; the connect-time sweep and the poller both honor this
// ordering.
type Schema struct {
	Model    string
	Device   []Descriptor
	Channels []ChannelNode
}

// Lookup resolves a parameter key in the given channel scope. An empty
// channel addresses the device scope.
func (s *Schema) Lookup(key, channel string) (Binding, error) {
	if channel == "" {
		for i := range s.Device {
			if s.Device[i].Key == key {
				return Binding{Descriptor: &s.Device[i]}, nil
			}
		}
		return Binding{}, fmt.Errorf("%s: no such parameter %q", s.Model, key)
	}
	for i := range s.Channels {
		ch := &s.Channels[i]
		if ch.Name != channel && ch.Alias != channel {
			continue
		}
		for j := range ch.Descriptors {
			if ch.Descriptors[j].Key == key {
				return Binding{Descriptor: &ch.Descriptors[j], Channel: ch}, nil
			}
		}
		return Binding{}, fmt.Errorf("%s: channel %q has no parameter %q", s.Model, channel, key)
	}
	return Binding{}, fmt.Errorf("%s: no such channel %q", s.Model, channel)
}

// Bindings returns every parameter instance in declaration order.
func (s *Schema) Bindings() []Binding {
	var out []Binding
	for i := range s.Device {
		out = append(out, Binding{Descriptor: &s.Device[i]})
	}
	for i := range s.Channels {
		ch := &s.Channels[i]
		for j := range ch.Descriptors {
			out = append(out, Binding{Descriptor: &ch.Descriptors[j], Channel: ch})
		}
	}
	return out
}

// ConnectBindings returns the bindings touched by the connect-time sweep:
// everything flagged readOnConnect or writeOnConnect, in declaration order.
func (s *Schema) ConnectBindings() []Binding {
	var out []Binding
	for _, b := range s.Bindings() {
		if b.Descriptor.Local() {
			continue
		}
		if b.Descriptor.ReadOnConnect || b.Descriptor.WriteOnConnect {
			out = append(out, b)
		}
	}
	return out
}

// PollBindings returns the bindings refreshed by the poller.
func (s *Schema) PollBindings() []Binding {
	var out []Binding
	for _, b := range s.Bindings() {
		if !b.Descriptor.Local() && b.Descriptor.PollInterval > 0 {
			out = append(out, b)
		}
	}
	return out
}
