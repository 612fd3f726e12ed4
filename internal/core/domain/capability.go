package domain

import (
	"fmt"

	"github.com/berfenger/enasolar2mqtt/pkg/enasolar"
)

const (
	CAPABILITY_POWER       = "power"
	CAPABILITY_SOLAR       = "solar"
	CAPABILITY_TEMPERATURE = "temperature"
	CAPABILITY_FAHRENHIET  = "fahrenhiet"
)

type capabilityFlag struct {
	label       string
	description string
	bit         uint16
}

// Order is the order the labels are presented in.
var capabilityFlags = []capabilityFlag{
	{CAPABILITY_POWER, "has a POWER meter", enasolar.HasPowerMeter},
	{CAPABILITY_SOLAR, "has a SOLAR meter", enasolar.HasSolarMeter},
	{CAPABILITY_TEMPERATURE, "has a TEMPERATURE meter", enasolar.HasTemperature},
	{CAPABILITY_FAHRENHIET, "Temperatures are in FAHRENHIET", enasolar.UseFahrenheit},
}

// CAPABILITY_EXPOSED_MASK covers the bits the config flow lets the user edit.
var CAPABILITY_EXPOSED_MASK = enasolar.HasPowerMeter | enasolar.HasSolarMeter | enasolar.HasTemperature | enasolar.UseFahrenheit

// CapabilityLabels lists the labels of the exposed bits set in mask.
func CapabilityLabels(mask uint16) []string {
	labels := []string{}
	for _, f := range capabilityFlags {
		if mask&f.bit != 0 {
			labels = append(labels, f.label)
		}
	}
	return labels
}

// CapabilityFromLabels is the inverse of CapabilityLabels.
func CapabilityFromLabels(labels []string) (uint16, error) {
	var mask uint16
	for _, label := range labels {
		found := false
		for _, f := range capabilityFlags {
			if f.label == label {
				mask |= f.bit
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown capability %q", label)
		}
	}
	return mask, nil
}

// CapabilityChoices maps every label to its description for the form.
func CapabilityChoices() map[string]string {
	choices := make(map[string]string, len(capabilityFlags))
	for _, f := range capabilityFlags {
		choices[f.label] = f.description
	}
	return choices
}
