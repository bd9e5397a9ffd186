package models

import "github.com/European-XFEL/FunctionGenerator/internal/schema"

// keysightShapeDecode maps the tokens a Keysight 33500-series instrument
// answers for SOURce:FUNCtion to readable names. The encode map is its
// inverse, so both spellings are accepted on writes.
var keysightShapeDecode = map[string]string{
	"SIN":  "Sine",
	"SQU":  "Square",
	"RAMP": "Ramp",
	"TRI":  "Triangle",
	"PULS": "Pulse",
	"NOIS": "Noise",
	"PRBS": "PRBS",
	"ARB":  "Arbitrary",
	"DC":   "DC",
}

func keysightDevice() []schema.Descriptor {
	ds := deviceBase()
	ds = append(ds,
		schema.Descriptor{
			Key:             "phaseUnit",
			Name:            "Phase Unit",
			Description:     "Angle unit used for phase values.",
			Kind:            schema.KindEnum,
			Alias:           "UNIT:ANGLe",
			Options:         []string{"DEG", "RAD"},
			Default:         "DEG",
			ReadOnConnect:   true,
			CommandReadBack: true,
		},
		schema.Descriptor{
			Key:         "arbPath",
			Name:        "Waveform Directory",
			Description: `Directory on the instrument searched for arbitrary waveform files.`,
			Kind:        schema.KindString,
			Default:     `INT:\BUILTIN`,
		},
		schema.Descriptor{
			Key:             "display",
			Name:            "Display",
			Description:     "Front panel display. Disabled during remote operation for faster command processing.",
			Kind:            schema.KindEnum,
			Alias:           "DISPlay",
			Options:         []string{"ON", "OFF"},
			Policy:          schema.PolicyBool,
			Default:         "OFF",
			WriteOnConnect:  true,
			CommandReadBack: true,
		},
		schema.Descriptor{
			Key:           "arbs",
			Name:          "Waveform Catalog",
			Description:   "Raw arbitrary waveform catalog for the waveform directory.",
			Kind:          schema.KindString,
			Alias:         "MMEMory:CAT:DATA:ARB",
			QueryFormat:   "{alias}? {value}\n",
			ReadOnly:      true,
			Access:        schema.AccessExpert,
			ReadOnConnect: false,
		},
		schema.Descriptor{
			Key:         "availableArbs",
			Name:        "Available Waveforms",
			Description: "Arbitrary waveform selected from the discovered catalog.",
			Kind:        schema.KindString,
			Policy:      schema.PolicyCatalog,
		},
	)
	return ds
}

func keysightChannel() []schema.Descriptor {
	ds := channelBase()
	ds = append(ds,
		schema.Descriptor{
			Key:             "outputLoad",
			Name:            "Output Load",
			Description:     "Expected output termination in Ohm.",
			Kind:            schema.KindNumber,
			Alias:           "OUTPut{channel}:LOAD",
			ReadOnConnect:   true,
			CommandReadBack: true,
		},
		schema.Descriptor{
			Key:             "functionShape",
			Name:            "Function Shape",
			Description:     "Output waveform shape for the channel.",
			Kind:            schema.KindEnum,
			Alias:           "SOURce{channel}:FUNCtion",
			Options:         []string{"SIN", "SQU", "RAMP", "NRAM", "TRI", "PULS", "NOIS", "PRBS", "ARB", "DC"},
			Default:         "SIN",
			DecodeMap:       keysightShapeDecode,
			EncodeMap:       schema.Inverse(keysightShapeDecode),
			ReadOnConnect:   true,
			CommandReadBack: true,
		},
		schema.Descriptor{
			Key:             "pulseWidth",
			Name:            "Pulse Width",
			Description:     "Pulse width in seconds. Must not exceed the pulse period.",
			Kind:            schema.KindNumber,
			Alias:           "SOURce{channel}:FUNC:PULS:WIDT",
			Unit:            "s",
			CommandFormat:   "{alias} {value} s\n",
			Policy:          schema.PolicyUpperBound,
			Bound:           "pulsePeriod",
			ReadOnConnect:   true,
			CommandReadBack: true,
		},
		schema.Descriptor{
			Key:             "pulsePeriod",
			Name:            "Pulse Period",
			Description:     "Period of the pulse waveform.",
			Kind:            schema.KindNumber,
			Alias:           "SOURce{channel}:FUNC:PULS:PER",
			Unit:            "s",
			CommandFormat:   "{alias} {value} s\n",
			ReadOnConnect:   true,
			CommandReadBack: true,
		},
		schema.Descriptor{
			Key:             "arbitraryForm",
			Name:            "Arbitrary Form",
			Description:     "Waveform loaded in the waveform memory of the channel.",
			Kind:            schema.KindString,
			Alias:           "SOURce{channel}:FUNC:ARB",
			ReadOnConnect:   true,
			CommandReadBack: true,
		},
		schema.Descriptor{
			Key:             "loadForm",
			Name:            "Load Form",
			Description:     "Loads an arbitrary waveform file into the waveform memory of the channel.",
			Kind:            schema.KindString,
			Alias:           "MMEMory:LOAD:DATA{channel}",
			ReadOnConnect:   false,
			CommandReadBack: false,
		},
		schema.Descriptor{
			Key:             "arbitraryPeriod",
			Name:            "Arbitrary Period",
			Description:     "Period of the arbitrary waveform.",
			Kind:            schema.KindNumber,
			Alias:           "SOURce{channel}:FUNC:ARB:PER",
			Unit:            "s",
			ReadOnConnect:   true,
			CommandReadBack: true,
		},
		schema.Descriptor{
			Key:             "rampSymmetry",
			Name:            "Ramp Symmetry",
			Description:     "Symmetry of the ramp waveform in percent.",
			Kind:            schema.KindNumber,
			Alias:           "SOURce{channel}:FUNC:RAMP:SYMM",
			ReadOnConnect:   true,
			CommandReadBack: true,
		},
		schema.Descriptor{
			Key:             "triggerSource",
			Name:            "Trigger Source",
			Description:     "Trigger source for the channel.",
			Kind:            schema.KindEnum,
			Alias:           "TRIG{channel}:SOUR",
			Options:         []string{"TIM", "EXT", "BUS", "IMM"},
			Default:         "TIM",
			ReadOnConnect:   true,
			CommandReadBack: true,
		},
		schema.Descriptor{
			Key:             "triggerTime",
			Name:            "Trigger Time",
			Description:     "Period of the internal timed trigger.",
			Kind:            schema.KindNumber,
			Alias:           "TRIG{channel}:TIM",
			Unit:            "s",
			CommandFormat:   "{alias} {value} s\n",
			Default:         "10",
			ReadOnConnect:   true,
			CommandReadBack: true,
		},
	)
	return ds
}

func keysight33511() (*schema.Schema, error) {
	b := schema.NewBuilder("Keysight33511")
	b.Device(keysightDevice()...)
	b.Channel("channel_1", "1", keysightChannel()...)
	return b.Build()
}

func keysight33512() (*schema.Schema, error) {
	b := schema.NewBuilder("Keysight33512")
	b.Device(keysightDevice()...)
	b.Channel("channel_1", "1", keysightChannel()...)
	b.Channel("channel_2", "2", keysightChannel()...)
	return b.Build()
}

// keysight3500Channel is the reduced set spoken by the 3500-series trueform
// units. Frequency rides on the arbitrary waveform subsystem there.
func keysight3500Channel() []schema.Descriptor {
	return []schema.Descriptor{
		{
			Key:             "frequency",
			Name:            "Frequency",
			Description:     "Frequency of arbitrary waveform for the channel.",
			Kind:            schema.KindNumber,
			Alias:           "SOURce{channel}:FUNCtion:ARBitrary:FREQ",
			Unit:            "Hz",
			CommandFormat:   "{alias} {value} Hz\n",
			ReadOnConnect:   true,
			CommandReadBack: true,
			PollInterval:    basePoll,
		},
		{
			Key:             "pulseWidth",
			Name:            "Pulse Width",
			Description:     "Pulse width in seconds. Must not exceed the pulse period.",
			Kind:            schema.KindNumber,
			Alias:           "SOURce{channel}:FUNC:PULS:WIDT",
			Unit:            "s",
			CommandFormat:   "{alias} {value} s\n",
			Policy:          schema.PolicyUpperBound,
			Bound:           "pulsePeriod",
			ReadOnConnect:   true,
			CommandReadBack: true,
		},
		{
			Key:             "pulsePeriod",
			Name:            "Pulse Period",
			Description:     "Period of the pulse waveform.",
			Kind:            schema.KindNumber,
			Alias:           "SOURce{channel}:FUNC:PULS:PER",
			Unit:            "s",
			CommandFormat:   "{alias} {value} s\n",
			ReadOnConnect:   true,
			CommandReadBack: true,
		},
		{
			Key:             "triggerSource",
			Name:            "Trigger Source",
			Description:     "Trigger source for the channel.",
			Kind:            schema.KindEnum,
			Alias:           "TRIG{channel}:SOUR",
			Options:         []string{"TIM", "EXT"},
			Default:         "TIM",
			ReadOnConnect:   true,
			CommandReadBack: true,
		},
		{
			Key:             "triggerTime",
			Name:            "Trigger Time",
			Description:     "Period of the internal timed trigger.",
			Kind:            schema.KindNumber,
			Alias:           "TRIG{channel}:TIM",
			Unit:            "s",
			CommandFormat:   "{alias} {value} s\n",
			Default:         "10",
			ReadOnConnect:   true,
			CommandReadBack: true,
		},
	}
}

func keysight3500() (*schema.Schema, error) {
	b := schema.NewBuilder("Keysight3500")
	b.Device(deviceBase()...)
	b.Channel("channel_1", "1", keysight3500Channel()...)
	b.Channel("channel_2", "2", keysight3500Channel()...)
	return b.Build()
}
