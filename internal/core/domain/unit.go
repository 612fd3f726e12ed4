package domain

const (
	UNIT_DAYS           = "d"
	UNIT_HOURS          = "h"
	UNIT_KILO_WATT      = "kW"
	UNIT_KILO_WATT_HOUR = "kWh"
	UNIT_VOLT           = "V"
	UNIT_INSOLATION     = "kWh/m2"
	UNIT_IRRADIANCE     = "W/m²"
	UNIT_CELSIUS        = "°C"
	UNIT_FAHRENHEIT     = "°F"
	UNIT_PERCENTAGE     = "%"
	DEVICE_CLASS_NONE   = ""
	UNIT_NONE           = ""
)

// unitMappings translates the unit strings of the inverter client into
// platform unit identifiers. Closed: any other unit is rejected.
var unitMappings = map[string]string{
	"":       UNIT_NONE,
	"d":      UNIT_DAYS,
	"h":      UNIT_HOURS,
	"kW":     UNIT_KILO_WATT,
	"kWh":    UNIT_KILO_WATT_HOUR,
	"V":      UNIT_VOLT,
	"kWh/m2": UNIT_INSOLATION,
	"W/m2":   UNIT_IRRADIANCE,
	"C":      UNIT_CELSIUS,
	"F":      UNIT_FAHRENHEIT,
	"%":      UNIT_PERCENTAGE,
}

func UnitOfMeasurement(raw string) (string, bool) {
	unit, ok := unitMappings[raw]
	return unit, ok
}

// RawUnits returns the inverter unit strings the mapping table knows.
func RawUnits() []string {
	units := make([]string, 0, len(unitMappings))
	for raw := range unitMappings {
		units = append(units, raw)
	}
	return units
}

// DeviceClassForUnit infers the device class of a sensor from its platform
// unit alone.
func DeviceClassForUnit(unit string) string {
	switch unit {
	case UNIT_KILO_WATT:
		return DEVICE_CLASS_POWER
	case UNIT_KILO_WATT_HOUR:
		return DEVICE_CLASS_ENERGY
	case UNIT_CELSIUS, UNIT_FAHRENHEIT:
		return DEVICE_CLASS_TEMPERATURE
	case UNIT_DAYS, UNIT_HOURS:
		return DEVICE_CLASS_DURATION
	default:
		return DEVICE_CLASS_NONE
	}
}

func StateClass(isMeter bool) string {
	if isMeter {
		return STATE_CLASS_MEASUREMENT
	}
	return STATE_CLASS_TOTAL_INCREASING
}
