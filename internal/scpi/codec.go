// Package scpi converts between typed parameter values and wire-protocol
// text. It is purely functional: everything it needs comes from the
// descriptor and the channel alias, and nothing here touches the transport.
package scpi

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/European-XFEL/FunctionGenerator/internal/schema"
)

var (
	// ErrInvalidOption marks a value outside the descriptor's option set or
	// numeric range. Never retried.
	ErrInvalidOption = errors.New("scpi: value is not a valid option")
	// ErrMalformedResponse marks a device reply that does not parse into the
	// expected type.
	ErrMalformedResponse = errors.New("scpi: malformed response")
)

// Address returns the wire alias with the {channel} placeholder substituted.
func Address(b schema.Binding) string {
	return strings.ReplaceAll(b.Descriptor.Alias, "{channel}", b.ChannelAlias())
}

// Command renders the SET wire string for a binding and value. The value is
// normalized and validated first, so the returned normalized Value is what a
// read-back should report.
func Command(b schema.Binding, v Value) (string, Value, error) {
	norm, err := Normalize(b.Descriptor, v)
	if err != nil {
		return "", Value{}, err
	}
	cmd := strings.ReplaceAll(b.Descriptor.CommandFormat, "{alias}", Address(b))
	cmd = strings.ReplaceAll(cmd, "{value}", encodeToken(b.Descriptor, norm))
	return cmd, norm, nil
}

// Query renders the GET wire string.
func Query(b schema.Binding) string {
	return strings.ReplaceAll(b.Descriptor.QueryFormat, "{alias}", Address(b))
}

// QueryArg renders a query carrying an argument, e.g. the catalog request
// "MMEMory:CAT:DATA:ARB? \"INT:\\BUILTIN\"". The descriptor's QueryFormat
// must hold the "{alias}? {value}" form.
func QueryArg(b schema.Binding, arg string) string {
	cmd := strings.ReplaceAll(b.Descriptor.QueryFormat, "{alias}", Address(b))
	return strings.ReplaceAll(cmd, "{value}", arg)
}

// Normalize validates a value against the descriptor's policy and returns
// its canonical form. The hardware-facing token translation happens later,
// in encodeToken; Normalize stays in the human-readable domain.
func Normalize(d *schema.Descriptor, v Value) (Value, error) {
	switch d.Policy {
	case schema.PolicyBool:
		tok, err := normalizeOnOff(v)
		if err != nil {
			return Value{}, err
		}
		return Text(tok), nil

	case schema.PolicyEnum:
		s := v.String()
		if d.HasOption(s) {
			return Text(s), nil
		}
		if _, ok := d.EncodeMap[s]; ok {
			return Text(s), nil
		}
		return Value{}, fmt.Errorf("%w: %q not in %v for %s", ErrInvalidOption, s, d.Options, d.Key)

	case schema.PolicyRange:
		f, err := floatOf(v)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %s needs a number, got %q", ErrInvalidOption, d.Key, v.String())
		}
		if d.Min != nil && f < *d.Min {
			return Value{}, fmt.Errorf("%w: %v below minimum %v for %s", ErrInvalidOption, f, *d.Min, d.Key)
		}
		if d.Max != nil && f > *d.Max {
			return Value{}, fmt.Errorf("%w: %v above maximum %v for %s", ErrInvalidOption, f, *d.Max, d.Key)
		}
		return Number(f), nil

	default:
		if d.Kind == schema.KindNumber {
			f, err := floatOf(v)
			if err != nil {
				return Value{}, fmt.Errorf("%w: %s needs a number, got %q", ErrInvalidOption, d.Key, v.String())
			}
			return Number(f), nil
		}
		return Text(v.String()), nil
	}
}

// CheckUpperBound applies the two-phase dependent-bound rule: while the
// bounding parameter is unknown the value passes, otherwise it must not
// exceed the bound. Used for pulse width against pulse period.
func CheckUpperBound(d *schema.Descriptor, v, bound Value) error {
	if !bound.Known() {
		return nil
	}
	f, ok := v.Float()
	if !ok {
		return nil
	}
	bf, ok := bound.Float()
	if !ok {
		return nil
	}
	if f > bf {
		return fmt.Errorf("%w: %s %v exceeds %s %v", ErrInvalidOption, d.Key, f, d.Bound, bf)
	}
	return nil
}

// Decode parses a raw response line into a typed value. Line terminators are
// stripped; device tokens are translated back through the decode map, falling
// back to the raw token when it is itself a legal option.
func Decode(b schema.Binding, raw string) (Value, error) {
	d := b.Descriptor
	tok := strings.TrimRight(raw, "\r\n")
	switch d.Kind {
	case schema.KindNumber:
		f, err := strconv.ParseFloat(strings.TrimSpace(tok), 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %s: %q is not a number", ErrMalformedResponse, d.Key, tok)
		}
		return Number(f), nil

	case schema.KindEnum:
		tok = strings.TrimSpace(tok)
		// boolean parameters answer 0/1 on most instruments
		if d.Policy == schema.PolicyBool {
			if state, err := normalizeOnOff(Text(tok)); err == nil {
				return Text(state), nil
			}
		}
		if human, ok := d.DecodeMap[tok]; ok {
			return Text(human), nil
		}
		if d.HasOption(tok) {
			return Text(tok), nil
		}
		return Value{}, fmt.Errorf("%w: %s: %q not in %v", ErrMalformedResponse, d.Key, tok, d.Options)

	default:
		return Text(tok), nil
	}
}

// encodeToken maps a normalized human value to the device token placed in the
// command string.
func encodeToken(d *schema.Descriptor, v Value) string {
	s := v.String()
	if tok, ok := d.EncodeMap[s]; ok {
		return tok
	}
	return s
}

// normalizeOnOff folds 0/1 spellings into ON/OFF. Anything outside the
// accepted set is rejected.
func normalizeOnOff(v Value) (string, error) {
	if f, ok := v.Float(); ok {
		switch f {
		case 0:
			return "OFF", nil
		case 1:
			return "ON", nil
		}
		return "", fmt.Errorf("%w: %v is not a boolean state", ErrInvalidOption, f)
	}
	switch strings.ToUpper(strings.TrimSpace(v.String())) {
	case "0", "OFF":
		return "OFF", nil
	case "1", "ON":
		return "ON", nil
	}
	return "", fmt.Errorf("%w: %q is not a boolean state", ErrInvalidOption, v.String())
}

func floatOf(v Value) (float64, error) {
	if f, ok := v.Float(); ok {
		return f, nil
	}
	return strconv.ParseFloat(strings.TrimSpace(v.String()), 64)
}
