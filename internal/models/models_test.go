package models

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/European-XFEL/FunctionGenerator/internal/schema"
)

func TestRegistry(t *testing.T) {
	Convey("every registered model builds a valid schema", t, func() {
		for _, name := range Names() {
			sch, err := New(name)
			So(err, ShouldBeNil)
			So(sch.Model, ShouldEqual, name)
		}
	})

	Convey("unknown models are rejected", t, func() {
		_, err := New("HP3325B")
		So(err, ShouldNotBeNil)
	})
}

func TestChannelCounts(t *testing.T) {
	Convey("channel counts match the hardware", t, func() {
		counts := map[string]int{
			"Keysight33511": 1,
			"Keysight33512": 2,
			"Keysight3500":  2,
			"AFG31000":      2,
		}
		for name, want := range counts {
			sch, err := New(name)
			So(err, ShouldBeNil)
			So(len(sch.Channels), ShouldEqual, want)
		}
	})
}

func TestKeysightTable(t *testing.T) {
	sch, err := New("Keysight33512")
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	Convey("the shared channel surface is present on both channels", t, func() {
		for _, ch := range []string{"channel_1", "channel_2"} {
			for _, key := range []string{"outputState", "offset", "amplitude", "frequency", "functionShape", "pulseWidth"} {
				_, err := sch.Lookup(key, ch)
				So(err, ShouldBeNil)
			}
		}
	})

	Convey("pulse width is bounded by the pulse period", t, func() {
		b, err := sch.Lookup("pulseWidth", "channel_1")
		So(err, ShouldBeNil)
		So(b.Descriptor.Policy, ShouldEqual, schema.PolicyUpperBound)
		So(b.Descriptor.Bound, ShouldEqual, "pulsePeriod")
	})

	Convey("the catalog query carries its path argument", t, func() {
		b, err := sch.Lookup("arbs", "")
		So(err, ShouldBeNil)
		So(b.Descriptor.QueryFormat, ShouldEqual, "{alias}? {value}\n")
		So(b.Descriptor.ReadOnly, ShouldBeTrue)
	})

	Convey("host-local parameters carry no alias", t, func() {
		for _, key := range []string{"arbPath", "availableArbs"} {
			b, err := sch.Lookup(key, "")
			So(err, ShouldBeNil)
			So(b.Descriptor.Local(), ShouldBeTrue)
		}
		arb, _ := sch.Lookup("availableArbs", "")
		So(arb.Descriptor.Policy, ShouldEqual, schema.PolicyCatalog)
	})

	Convey("the display is primed off during the connect sweep", t, func() {
		b, err := sch.Lookup("display", "")
		So(err, ShouldBeNil)
		So(b.Descriptor.WriteOnConnect, ShouldBeTrue)
		So(b.Descriptor.Default, ShouldEqual, "OFF")
	})
}

func TestKeysight3500Table(t *testing.T) {
	sch, err := New("Keysight3500")
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	Convey("frequency rides the arbitrary subsystem with a Hz suffix", t, func() {
		b, err := sch.Lookup("frequency", "channel_2")
		So(err, ShouldBeNil)
		So(b.Descriptor.Alias, ShouldEqual, "SOURce{channel}:FUNCtion:ARBitrary:FREQ")
		So(b.Descriptor.CommandFormat, ShouldEqual, "{alias} {value} Hz\n")
	})

	Convey("the reduced surface drops the generic voltage block", t, func() {
		_, err := sch.Lookup("amplitude", "channel_1")
		So(err, ShouldNotBeNil)
	})
}

func TestAFGTable(t *testing.T) {
	sch, err := New("AFG31000")
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	Convey("the trigger timer enforces its hardware range", t, func() {
		b, err := sch.Lookup("triggerTime", "")
		So(err, ShouldBeNil)
		So(b.Descriptor.Policy, ShouldEqual, schema.PolicyRange)
		So(*b.Descriptor.Min, ShouldEqual, 1e-6)
		So(*b.Descriptor.Max, ShouldEqual, 500)
	})

	Convey("the shape map translates in both directions", t, func() {
		b, err := sch.Lookup("functionShape", "channel_1")
		So(err, ShouldBeNil)
		So(b.Descriptor.Alias, ShouldEqual, "SOURce{channel}:FUNCtion")
		So(b.Descriptor.EncodeMap["Exponential Rise"], ShouldEqual, "ERIS")
		So(b.Descriptor.DecodeMap["ERIS"], ShouldEqual, "Exponential Rise")
		// tokens without a friendly name stay bare options
		So(b.Descriptor.HasOption("EMEM"), ShouldBeTrue)
		_, mapped := b.Descriptor.DecodeMap["EMEM"]
		So(mapped, ShouldBeFalse)
	})

	Convey("pulse parameters use the AFG command tree", t, func() {
		b, err := sch.Lookup("pulseWidth", "channel_2")
		So(err, ShouldBeNil)
		So(b.Descriptor.Alias, ShouldEqual, "SOURce{channel}:PULS:WIDT")
		So(b.Descriptor.Bound, ShouldEqual, "pulsePeriod")
	})
}
