package scpi

import (
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/European-XFEL/FunctionGenerator/internal/schema"
)

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	b := schema.NewBuilder("codec-test")
	b.Device(
		schema.Descriptor{
			Key:   "triggerTime",
			Kind:  schema.KindNumber,
			Alias: "TRIG:TIM",
			Min:   schema.F(1e-6),
			Max:   schema.F(500),
		},
		schema.Descriptor{
			Key:         "arbs",
			Kind:        schema.KindString,
			Alias:       "MMEMory:CAT:DATA:ARB",
			QueryFormat: "{alias}? {value}\n",
			ReadOnly:    true,
		},
	)
	b.Channel("channel_2", "2",
		schema.Descriptor{
			Key:   "offset",
			Kind:  schema.KindNumber,
			Alias: "SOURce{channel}:VOLT:OFFS",
		},
		schema.Descriptor{
			Key:     "outputState",
			Kind:    schema.KindEnum,
			Alias:   "OUTPut{channel}",
			Options: []string{"ON", "OFF"},
			Policy:  schema.PolicyBool,
		},
		schema.Descriptor{
			Key:     "functionShape",
			Kind:    schema.KindEnum,
			Alias:   "SOURce{channel}:FUNCtion",
			Options: []string{"SIN", "SQU", "RAMP"},
			DecodeMap: map[string]string{
				"SIN": "Sine", "SQU": "Square", "RAMP": "Ramp",
			},
			EncodeMap: map[string]string{
				"Sine": "SIN", "Square": "SQU", "Ramp": "RAMP",
			},
		},
		schema.Descriptor{
			Key:           "pulseWidth",
			Kind:          schema.KindNumber,
			Alias:         "SOURce{channel}:FUNC:PULS:WIDT",
			CommandFormat: "{alias} {value} s\n",
			Policy:        schema.PolicyUpperBound,
			Bound:         "pulsePeriod",
		},
		schema.Descriptor{
			Key:   "pulsePeriod",
			Kind:  schema.KindNumber,
			Alias: "SOURce{channel}:FUNC:PULS:PER",
		},
	)
	sch, err := b.Build()
	if err != nil {
		t.Fatalf("build schema: %v", err)
	}
	return sch
}

func mustLookup(t *testing.T, sch *schema.Schema, key, channel string) schema.Binding {
	t.Helper()
	b, err := sch.Lookup(key, channel)
	if err != nil {
		t.Fatalf("lookup %s/%s: %v", key, channel, err)
	}
	return b
}

func TestAddress(t *testing.T) {
	sch := testSchema(t)

	Convey("channel placeholders resolve through the node alias", t, func() {
		So(Address(mustLookup(t, sch, "offset", "channel_2")), ShouldEqual, "SOURce2:VOLT:OFFS")
		So(Address(mustLookup(t, sch, "outputState", "2")), ShouldEqual, "OUTPut2")
		So(Address(mustLookup(t, sch, "triggerTime", "")), ShouldEqual, "TRIG:TIM")
	})
}

func TestCommand(t *testing.T) {
	sch := testSchema(t)

	Convey("SET lines follow the command format", t, func() {
		offset := mustLookup(t, sch, "offset", "channel_2")

		Convey("numbers render canonically", func() {
			cmd, norm, err := Command(offset, Text("1.50"))
			So(err, ShouldBeNil)
			So(cmd, ShouldEqual, "SOURce2:VOLT:OFFS 1.5\n")
			f, ok := norm.Float()
			So(ok, ShouldBeTrue)
			So(f, ShouldEqual, 1.5)
		})

		Convey("non-numbers are rejected for numeric parameters", func() {
			_, _, err := Command(offset, Text("lots"))
			So(errors.Is(err, ErrInvalidOption), ShouldBeTrue)
		})

		Convey("unit suffixes survive formatting", func() {
			width := mustLookup(t, sch, "pulseWidth", "channel_2")
			cmd, _, err := Command(width, Number(2e-6))
			So(err, ShouldBeNil)
			So(cmd, ShouldEqual, "SOURce2:FUNC:PULS:WIDT 2e-06 s\n")
		})

		Convey("human enum names encode to device tokens", func() {
			shape := mustLookup(t, sch, "functionShape", "channel_2")
			cmd, norm, err := Command(shape, Text("Sine"))
			So(err, ShouldBeNil)
			So(cmd, ShouldEqual, "SOURce2:FUNCtion SIN\n")
			So(norm.String(), ShouldEqual, "Sine")

			cmd, _, err = Command(shape, Text("SQU"))
			So(err, ShouldBeNil)
			So(cmd, ShouldEqual, "SOURce2:FUNCtion SQU\n")

			_, _, err = Command(shape, Text("Sawtooth"))
			So(errors.Is(err, ErrInvalidOption), ShouldBeTrue)
		})
	})
}

func TestQuery(t *testing.T) {
	sch := testSchema(t)

	Convey("GET lines follow the query format", t, func() {
		So(Query(mustLookup(t, sch, "offset", "channel_2")), ShouldEqual, "SOURce2:VOLT:OFFS?\n")
		So(Query(mustLookup(t, sch, "triggerTime", "")), ShouldEqual, "TRIG:TIM?\n")
	})

	Convey("catalog requests carry their argument", t, func() {
		arbs := mustLookup(t, sch, "arbs", "")
		line := QueryArg(arbs, `"INT:\BUILTIN"`)
		So(line, ShouldEqual, "MMEMory:CAT:DATA:ARB? \"INT:\\BUILTIN\"\n")
	})
}

func TestNormalizeOnOff(t *testing.T) {
	sch := testSchema(t)
	state := mustLookup(t, sch, "outputState", "channel_2")

	Convey("boolean spellings fold to ON/OFF", t, func() {
		cases := map[string]string{
			"ON": "ON", "on": "ON", "1": "ON",
			"OFF": "OFF", "off": "OFF", "0": "OFF",
		}
		for in, want := range cases {
			norm, err := Normalize(state.Descriptor, Text(in))
			So(err, ShouldBeNil)
			So(norm.String(), ShouldEqual, want)
		}

		norm, err := Normalize(state.Descriptor, Number(1))
		So(err, ShouldBeNil)
		So(norm.String(), ShouldEqual, "ON")
	})

	Convey("anything else is an invalid option", t, func() {
		for _, in := range []string{"2", "maybe", "TRUE"} {
			_, err := Normalize(state.Descriptor, Text(in))
			So(errors.Is(err, ErrInvalidOption), ShouldBeTrue)
		}
		_, err := Normalize(state.Descriptor, Number(0.5))
		So(errors.Is(err, ErrInvalidOption), ShouldBeTrue)
	})
}

func TestNormalizeRange(t *testing.T) {
	sch := testSchema(t)
	trig := mustLookup(t, sch, "triggerTime", "")

	Convey("range limits are enforced inclusively", t, func() {
		for _, ok := range []float64{1e-6, 10, 500} {
			_, err := Normalize(trig.Descriptor, Number(ok))
			So(err, ShouldBeNil)
		}
		for _, bad := range []float64{1e-7, 600} {
			_, err := Normalize(trig.Descriptor, Number(bad))
			So(errors.Is(err, ErrInvalidOption), ShouldBeTrue)
		}
	})
}

func TestCheckUpperBound(t *testing.T) {
	sch := testSchema(t)
	width := mustLookup(t, sch, "pulseWidth", "channel_2")

	Convey("an unknown bound passes everything", t, func() {
		So(CheckUpperBound(width.Descriptor, Number(10), Value{}), ShouldBeNil)
	})

	Convey("a known bound caps the value", t, func() {
		So(CheckUpperBound(width.Descriptor, Number(1e-6), Number(1e-3)), ShouldBeNil)
		So(CheckUpperBound(width.Descriptor, Number(1e-3), Number(1e-3)), ShouldBeNil)
		err := CheckUpperBound(width.Descriptor, Number(2e-3), Number(1e-3))
		So(errors.Is(err, ErrInvalidOption), ShouldBeTrue)
	})
}

func TestDecode(t *testing.T) {
	sch := testSchema(t)

	Convey("responses decode by kind", t, func() {
		offset := mustLookup(t, sch, "offset", "channel_2")
		shape := mustLookup(t, sch, "functionShape", "channel_2")

		Convey("numbers parse with terminators stripped", func() {
			v, err := Decode(offset, "+1.5000E-01\r\n")
			So(err, ShouldBeNil)
			f, ok := v.Float()
			So(ok, ShouldBeTrue)
			So(f, ShouldEqual, 0.15)
		})

		Convey("garbage numbers are malformed", func() {
			_, err := Decode(offset, "wat\n")
			So(errors.Is(err, ErrMalformedResponse), ShouldBeTrue)
		})

		Convey("enum tokens translate back to human names", func() {
			v, err := Decode(shape, "SIN\n")
			So(err, ShouldBeNil)
			So(v.String(), ShouldEqual, "Sine")
		})

		Convey("boolean parameters accept numeric replies", func() {
			state := mustLookup(t, sch, "outputState", "channel_2")
			v, err := Decode(state, "1\n")
			So(err, ShouldBeNil)
			So(v.String(), ShouldEqual, "ON")
			v, err = Decode(state, "0\r\n")
			So(err, ShouldBeNil)
			So(v.String(), ShouldEqual, "OFF")
			v, err = Decode(state, "OFF\n")
			So(err, ShouldBeNil)
			So(v.String(), ShouldEqual, "OFF")
			_, err = Decode(state, "2\n")
			So(errors.Is(err, ErrMalformedResponse), ShouldBeTrue)
		})

		Convey("unknown enum tokens are malformed", func() {
			_, err := Decode(shape, "XYZ\n")
			So(errors.Is(err, ErrMalformedResponse), ShouldBeTrue)
		})

		Convey("decoded enums re-encode to the same token", func() {
			v, err := Decode(shape, "RAMP\n")
			So(err, ShouldBeNil)
			cmd, _, err := Command(shape, v)
			So(err, ShouldBeNil)
			So(cmd, ShouldEqual, "SOURce2:FUNCtion RAMP\n")
		})
	})
}
