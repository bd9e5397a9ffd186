package schema

import "fmt"

// Builder assembles a Schema from a base descriptor set plus model-specific
// additions. Composition happens here, at build time; nothing injects
// parameters into a live schema afterwards.
type Builder struct {
	model    string
	device   []Descriptor
	channels []ChannelNode
}

// NewBuilder starts a schema for the named instrument model.
func NewBuilder(model string) *Builder {
	return &Builder{model: model}
}

// Device appends device-scoped descriptors in declaration order.
func (b *Builder) Device(ds ...Descriptor) *Builder {
	b.device = append(b.device, ds...)
	return b
}

// Channel appends a channel node. alias is the {channel} substitution value
// ("1", "2", ...). Descriptor slices from shared tables are copied so models
// never alias each other's storage.
func (b *Builder) Channel(name, alias string, ds ...Descriptor) *Builder {
	node := ChannelNode{Name: name, Alias: alias}
	node.Descriptors = append(node.Descriptors, ds...)
	b.channels = append(b.channels, node)
	return b
}

// Build validates the assembled schema and freezes it.
func (b *Builder) Build() (*Schema, error) {
	if err := checkScope(b.model, "device", b.device); err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	for i := range b.channels {
		ch := &b.channels[i]
		if seen[ch.Name] {
			return nil, fmt.Errorf("%s: duplicate channel %q", b.model, ch.Name)
		}
		seen[ch.Name] = true
		if ch.Alias == "" {
			return nil, fmt.Errorf("%s: channel %q has no alias", b.model, ch.Name)
		}
		if err := checkScope(b.model, ch.Name, ch.Descriptors); err != nil {
			return nil, err
		}
	}
	return &Schema{Model: b.model, Device: b.device, Channels: b.channels}, nil
}

func checkScope(model, scope string, ds []Descriptor) error {
	seen := map[string]bool{}
	for i := range ds {
		d := &ds[i]
		if d.Key == "" {
			return fmt.Errorf("%s/%s: descriptor %d has no key", model, scope, i)
		}
		if seen[d.Key] {
			return fmt.Errorf("%s/%s: duplicate parameter %q", model, scope, d.Key)
		}
		seen[d.Key] = true
		applyDefaults(d)
		if err := checkDescriptor(d); err != nil {
			return fmt.Errorf("%s/%s/%s: %w", model, scope, d.Key, err)
		}
	}
	// upper bounds must name a sibling in the same scope
	for i := range ds {
		d := &ds[i]
		if d.Policy != PolicyUpperBound {
			continue
		}
		if !seen[d.Bound] {
			return fmt.Errorf("%s/%s/%s: bound parameter %q not in scope",
				model, scope, d.Key, d.Bound)
		}
	}
	return nil
}

func applyDefaults(d *Descriptor) {
	if d.CommandFormat == "" {
		d.CommandFormat = DefaultCommandFormat
	}
	if d.QueryFormat == "" {
		d.QueryFormat = DefaultQueryFormat
	}
	if d.Policy == PolicyNone {
		switch {
		case len(d.Options) > 0:
			d.Policy = PolicyEnum
		case d.Kind == KindNumber && (d.Min != nil || d.Max != nil):
			d.Policy = PolicyRange
		}
	}
}

func checkDescriptor(d *Descriptor) error {
	if d.Min != nil && d.Max != nil && *d.Min > *d.Max {
		return fmt.Errorf("min %v greater than max %v", *d.Min, *d.Max)
	}
	if d.Policy == PolicyBool {
		if !d.HasOption("ON") || !d.HasOption("OFF") {
			return fmt.Errorf("bool policy requires ON/OFF options")
		}
	}
	if d.Policy == PolicyUpperBound && d.Bound == "" {
		return fmt.Errorf("upper-bound policy without bound key")
	}
	// Encode and decode maps must round-trip: every human value maps to an
	// option token that decodes back to the same human value.
	for human, tok := range d.EncodeMap {
		if len(d.Options) > 0 && !d.HasOption(tok) {
			return fmt.Errorf("encode map target %q not an option", tok)
		}
		back, ok := d.DecodeMap[tok]
		if !ok || back != human {
			return fmt.Errorf("encode/decode maps are not inverse for %q", human)
		}
	}
	for tok, human := range d.DecodeMap {
		if fwd, ok := d.EncodeMap[human]; !ok || fwd != tok {
			return fmt.Errorf("decode map entry %q -> %q has no inverse", tok, human)
		}
	}
	return nil
}

// Inverse returns the inverted map; instrument tables keep one direction of
// the token translation and derive the other from it.
func Inverse(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

// F is a convenience for optional numeric limits in instrument tables.
func F(v float64) *float64 { return &v }
