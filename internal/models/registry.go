package models

import (
	"fmt"

	"github.com/European-XFEL/FunctionGenerator/internal/schema"
)

// New builds the schema for a model by name.
func New(model string) (*schema.Schema, error) {
	switch model {
	case "Keysight33511":
		return keysight33511()
	case "Keysight33512":
		return keysight33512()
	case "Keysight3500":
		return keysight3500()
	case "AFG31000":
		return afg31000()
	default:
		return nil, fmt.Errorf("models: unknown model %q", model)
	}
}

// Names lists the supported models.
func Names() []string {
	return []string{"AFG31000", "Keysight3500", "Keysight33511", "Keysight33512"}
}
