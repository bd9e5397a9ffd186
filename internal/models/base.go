// Package models holds the declarative parameter tables for each supported
// function-generator model and the registry that builds their schemas. The
// tables are pure data; all behavior lives in the schema/scpi/device
// packages.
package models

import (
	"time"

	"github.com/European-XFEL/FunctionGenerator/internal/schema"
)

// basePoll marks a parameter for refresh at the device-global polling
// interval; the device floors every per-parameter interval at that global
// minimum.
const basePoll = time.Second

// deviceBase is the channel-independent parameter set shared by every model.
func deviceBase() []schema.Descriptor {
	return []schema.Descriptor{
		{
			Key:           "identification",
			Name:          "Identification",
			Description:   "Identification information.",
			Kind:          schema.KindString,
			Alias:         "*IDN",
			ReadOnly:      true,
			ReadOnConnect: true,
		},
		{
			Key:          "systemError",
			Name:         "System error",
			Description:  "System error raised on hardware.",
			Kind:         schema.KindString,
			Alias:        "SYSTem:ERRor",
			ReadOnly:     true,
			PollInterval: basePoll,
			// the instrument answers every poll; only real errors are kept
			DiscardResponses: []string{"No error"},
		},
	}
}

// channelBase is the per-channel parameter set shared by every model. All
// entries verify their writes with a read-back query, and everything here is
// read once on connect.
func channelBase() []schema.Descriptor {
	return []schema.Descriptor{
		{
			Key:             "outputState",
			Name:            "Output State",
			Description:     "Enable the output for the channel.",
			Kind:            schema.KindEnum,
			Alias:           "OUTPut{channel}",
			Options:         []string{"ON", "OFF"},
			Policy:          schema.PolicyBool,
			ReadOnConnect:   true,
			CommandReadBack: true,
		},
		{
			Key:             "outputPol",
			Name:            "Output Polarity",
			Description:     "Inverts waveform relative to offset voltage.",
			Kind:            schema.KindEnum,
			Alias:           "OUTPut{channel}:POL",
			Options:         []string{"NORM", "INV"},
			ReadOnConnect:   true,
			CommandReadBack: true,
		},
		{
			Key:             "offset",
			Name:            "Offset",
			Description:     "Offset level for the specified channel.",
			Kind:            schema.KindNumber,
			Alias:           "SOURce{channel}:VOLT:OFFS",
			Unit:            "V",
			ReadOnConnect:   true,
			CommandReadBack: true,
			PollInterval:    basePoll,
		},
		{
			Key:             "amplitude",
			Name:            "Amplitude",
			Description:     "Output amplitude for the specified channel. Unit is set by the amplitude unit value.",
			Kind:            schema.KindNumber,
			Alias:           "SOURce{channel}:VOLT",
			ReadOnConnect:   true,
			CommandReadBack: true,
			PollInterval:    basePoll,
		},
		{
			Key:             "amplitudeUnit",
			Name:            "Amplitude Unit",
			Description:     "Units of output amplitude for the specified channel.",
			Kind:            schema.KindEnum,
			Alias:           "SOURce{channel}:VOLT:UNIT",
			Options:         []string{"VPP", "VRMS", "DBM"},
			Default:         "VPP",
			ReadOnConnect:   true,
			CommandReadBack: true,
		},
		{
			Key:             "voltageLow",
			Name:            "Voltage Low",
			Description:     "Waveform low voltage.",
			Kind:            schema.KindNumber,
			Alias:           "SOURce{channel}:VOLT:LOW",
			Unit:            "V",
			ReadOnConnect:   true,
			CommandReadBack: true,
			PollInterval:    basePoll,
		},
		{
			Key:             "voltageHigh",
			Name:            "Voltage High",
			Description:     "Waveform high voltage.",
			Kind:            schema.KindNumber,
			Alias:           "SOURce{channel}:VOLT:HIGH",
			Unit:            "V",
			ReadOnConnect:   true,
			CommandReadBack: true,
			PollInterval:    basePoll,
		},
		{
			Key:             "frequency",
			Name:            "Frequency",
			Description:     "Frequency of arbitrary waveform for the channel.",
			Kind:            schema.KindNumber,
			Alias:           "SOURce{channel}:FREQ",
			Unit:            "Hz",
			ReadOnConnect:   true,
			CommandReadBack: true,
			PollInterval:    basePoll,
		},
		{
			Key:             "phase",
			Name:            "Phase",
			Description:     "Phase offset angle of waveform for the channel.",
			Kind:            schema.KindNumber,
			Alias:           "SOURce{channel}:PHASe",
			ReadOnConnect:   true,
			CommandReadBack: true,
			PollInterval:    basePoll,
		},
		{
			Key:             "burstState",
			Name:            "Burst State",
			Description:     "Enables or disables the burst mode for the specified channel.",
			Kind:            schema.KindEnum,
			Alias:           "SOURce{channel}:BURSt:STAT",
			Options:         []string{"ON", "OFF"},
			Policy:          schema.PolicyBool,
			Default:         "OFF",
			ReadOnConnect:   true,
			CommandReadBack: true,
			PollInterval:    basePoll,
		},
		{
			Key:             "burstMode",
			Name:            "Burst Mode",
			Description:     "TRIG selects triggered mode, GAT selects gated mode for burst output.",
			Kind:            schema.KindEnum,
			Alias:           "SOURce{channel}:BURSt:MODE",
			Options:         []string{"TRIG", "GAT"},
			Default:         "TRIG",
			ReadOnConnect:   true,
			CommandReadBack: true,
		},
		{
			Key:             "burstCycles",
			Name:            "Burst Cycles",
			Description:     "Number of cycles (burst count) to be output in burst mode. Numeric answers are kept as text; INF is allowed.",
			Kind:            schema.KindString,
			Alias:           "SOURce{channel}:BURSt:NCYC",
			Default:         "INF",
			ReadOnConnect:   true,
			CommandReadBack: true,
		},
		{
			Key:             "frequencyStart",
			Name:            "Start Frequency",
			Description:     "Start frequency of sweep for the specified channel.",
			Kind:            schema.KindNumber,
			Alias:           "SOURce{channel}:FREQ:STAR",
			Unit:            "Hz",
			ReadOnConnect:   true,
			CommandReadBack: true,
		},
		{
			Key:             "frequencyStop",
			Name:            "Stop Frequency",
			Description:     "Stop frequency of sweep for the specified channel.",
			Kind:            schema.KindNumber,
			Alias:           "SOURce{channel}:FREQ:STOP",
			Unit:            "Hz",
			ReadOnConnect:   true,
			CommandReadBack: true,
		},
		{
			Key:             "sweepTime",
			Name:            "Sweep Time",
			Description:     "Sweep time for the sweep for the specified channel.",
			Kind:            schema.KindNumber,
			Alias:           "SOURce{channel}:SWE:TIME",
			Unit:            "s",
			CommandFormat:   "{alias} {value} s\n",
			ReadOnConnect:   true,
			CommandReadBack: true,
		},
		{
			Key:             "sweepHoldTime",
			Name:            "Sweep Hold Time",
			Description:     "Sweep hold time.",
			Kind:            schema.KindNumber,
			Alias:           "SOURce{channel}:SWE:HTIM",
			Unit:            "s",
			CommandFormat:   "{alias} {value} s\n",
			ReadOnConnect:   true,
			CommandReadBack: true,
		},
		{
			Key:             "sweepReturnTime",
			Name:            "Sweep Return Time",
			Description:     "Sweep return time, the time from stop frequency back to start frequency.",
			Kind:            schema.KindNumber,
			Alias:           "SOURce{channel}:SWE:RTIM",
			Unit:            "s",
			CommandFormat:   "{alias} {value} s\n",
			ReadOnConnect:   true,
			CommandReadBack: true,
		},
	}
}
