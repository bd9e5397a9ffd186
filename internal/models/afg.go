package models

import "github.com/European-XFEL/FunctionGenerator/internal/schema"

// afgShapeDecode maps the Tektronix AFG31000 SOURce:FUNCtion tokens to
// readable names. EMEM and HAV have no friendly spelling and stay raw.
var afgShapeDecode = map[string]string{
	"SIN":  "Sine",
	"SQU":  "Square",
	"PULS": "Pulse",
	"RAMP": "Ramp",
	"PRN":  "PR Noise",
	"DC":   "DC",
	"SINC": "Sin(x)/x",
	"GAUS": "Gaussian",
	"LOR":  "Lorentz",
	"ERIS": "Exponential Rise",
	"EDEC": "Exponential Decay",
}

func afgDevice() []schema.Descriptor {
	ds := deviceBase()
	ds = append(ds,
		schema.Descriptor{
			Key:             "triggerMode",
			Name:            "Trigger Mode",
			Description:     "Mode of the trigger output signal.",
			Kind:            schema.KindEnum,
			Alias:           "OUTP:TRIG:MODE",
			Options:         []string{"TRIG", "SYNC"},
			Default:         "TRIG",
			ReadOnConnect:   true,
			CommandReadBack: true,
		},
		schema.Descriptor{
			Key:             "triggerSource",
			Name:            "Trigger Source",
			Description:     "Source of the trigger signal.",
			Kind:            schema.KindEnum,
			Alias:           "TRIG:SOUR",
			Options:         []string{"TIM", "EXT"},
			Default:         "TIM",
			ReadOnConnect:   true,
			CommandReadBack: true,
		},
		schema.Descriptor{
			Key:             "triggerTime",
			Name:            "Trigger Time",
			Description:     "Period of the internal timed trigger.",
			Kind:            schema.KindNumber,
			Alias:           "TRIG:TIM",
			Unit:            "s",
			CommandFormat:   "{alias} {value} s\n",
			Default:         "10",
			Min:             schema.F(1e-6),
			Max:             schema.F(500),
			ReadOnConnect:   true,
			CommandReadBack: true,
		},
		schema.Descriptor{
			Key:             "runMode",
			Name:            "Run Mode",
			Description:     "Run mode of the sequencer.",
			Kind:            schema.KindEnum,
			Alias:           "SEQC:RMOD",
			Options:         []string{"CONT", "TRIG", "GAT", "SEQ"},
			Default:         "CONT",
			ReadOnConnect:   true,
			CommandReadBack: true,
		},
	)
	return ds
}

func afgChannel() []schema.Descriptor {
	ds := channelBase()
	ds = append(ds,
		schema.Descriptor{
			Key:             "functionShape",
			Name:            "Function Shape",
			Description:     "Shape of the output waveform for the channel.",
			Kind:            schema.KindEnum,
			Alias:           "SOURce{channel}:FUNCtion",
			Options:         []string{"SIN", "SQU", "PULS", "RAMP", "PRN", "DC", "SINC", "GAUS", "LOR", "ERIS", "EDEC", "HAV", "EMEM"},
			Default:         "PULS",
			DecodeMap:       afgShapeDecode,
			EncodeMap:       schema.Inverse(afgShapeDecode),
			ReadOnConnect:   true,
			CommandReadBack: true,
		},
		schema.Descriptor{
			Key:             "pulseWidth",
			Name:            "Pulse Width",
			Description:     "Pulse width in seconds. Must not exceed the pulse period.",
			Kind:            schema.KindNumber,
			Alias:           "SOURce{channel}:PULS:WIDT",
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
			Alias:           "SOURce{channel}:PULS:PER",
			Unit:            "s",
			CommandFormat:   "{alias} {value} s\n",
			ReadOnConnect:   true,
			CommandReadBack: true,
		},
		schema.Descriptor{
			Key:             "burstIdle",
			Name:            "Burst Idle",
			Description:     "Output level between bursts.",
			Kind:            schema.KindEnum,
			Alias:           "SOURce{channel}:BURSt:IDLE",
			Options:         []string{"START", "DC", "END", "OFF"},
			Default:         "OFF",
			ReadOnConnect:   true,
			CommandReadBack: true,
		},
		schema.Descriptor{
			Key:             "burstDelay",
			Name:            "Burst Delay",
			Description:     "Delay between trigger and burst start. MIN and MAX are accepted.",
			Kind:            schema.KindString,
			Alias:           "SOURce{channel}:BURS:TDEL",
			Default:         "MIN",
			ReadOnConnect:   true,
			CommandReadBack: true,
		},
		schema.Descriptor{
			Key:             "sweepMode",
			Name:            "Sweep Mode",
			Description:     "AUTO starts sweeps continuously, MAN awaits a trigger per sweep.",
			Kind:            schema.KindEnum,
			Alias:           "SOURce{channel}:SWE:MODE",
			Options:         []string{"AUTO", "MAN"},
			Default:         "AUTO",
			ReadOnConnect:   true,
			CommandReadBack: true,
		},
	)
	return ds
}

func afg31000() (*schema.Schema, error) {
	b := schema.NewBuilder("AFG31000")
	b.Device(afgDevice()...)
	b.Channel("channel_1", "1", afgChannel()...)
	b.Channel("channel_2", "2", afgChannel()...)
	return b.Build()
}
