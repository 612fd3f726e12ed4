package enasolar

import (
	"time"
)

// Capability bits as reported by the inverter settings page.
const (
	HasPowerMeter  uint16 = 1
	HasSolarMeter  uint16 = 2
	HasTemperature uint16 = 4
	UseFahrenheit  uint16 = 256
)

// Max output ratings (kW) and DC string counts the inverter range ships with.
var (
	MaxOutputs = []float64{1.5, 2.0, 3.0, 3.8, 4.0, 5.0}
	DCStrings  = []int{1, 2}
)

// Sensor is a single reading exposed by the inverter. Value is nil until
// the first successful read.
type Sensor struct {
	Key           string
	Name          string
	Unit          string
	Value         *float64
	IsMeter       bool
	PerDayBasis   bool
	PerTotalBasis bool
	Enabled       bool
	// Date is the last reset date of day-basis sensors.
	Date time.Time

	scale float64
}

func (s *Sensor) set(v float64, today time.Time) {
	s.Value = &v
	if s.PerDayBasis {
		s.Date = today
	}
}

type sensorDef struct {
	key      string
	name     string
	unit     string
	meter    bool
	perDay   bool
	perTotal bool
	scale    float64
	enabled  func(capability uint16, dcStrings int) bool
}

func always(uint16, int) bool { return true }

func withCapability(bit uint16) func(uint16, int) bool {
	return func(capability uint16, _ int) bool {
		return capability&bit != 0
	}
}

var sensorDefs = []sensorDef{
	// meters.xml
	{key: "OutputPower", name: "output_power", unit: "kW", meter: true, scale: 1000, enabled: withCapability(HasPowerMeter)},
	{key: "InputVoltage", name: "input_voltage_1", unit: "V", meter: true, scale: 10, enabled: always},
	{key: "InputVoltage2", name: "input_voltage_2", unit: "V", meter: true, scale: 10, enabled: func(_ uint16, dcStrings int) bool {
		return dcStrings > 1
	}},
	{key: "OutputVoltage", name: "output_voltage", unit: "V", meter: true, scale: 10, enabled: always},
	{key: "Utilisation", name: "utilisation", unit: "%", meter: true, enabled: withCapability(HasPowerMeter)},
	{key: "Irradiance", name: "irradiance", unit: "W/m2", meter: true, scale: 1, enabled: withCapability(HasSolarMeter)},
	{key: "Temperature", name: "temperature", meter: true, scale: 100, enabled: withCapability(HasTemperature)},
	// data.xml
	{key: "EnergyToday", name: "energy_today", unit: "kWh", perDay: true, scale: 100, enabled: always},
	{key: "EnergyLifetime", name: "energy_lifetime", unit: "kWh", perTotal: true, scale: 100, enabled: always},
	{key: "HoursExportedToday", name: "hours_exported_today", unit: "h", perDay: true, scale: 60, enabled: always},
	{key: "HoursExportedLifetime", name: "hours_exported_lifetime", unit: "h", perTotal: true, scale: 60, enabled: always},
	{key: "DaysProducing", name: "days_producing", unit: "d", perTotal: true, scale: 1, enabled: always},
	{key: "InsolationToday", name: "insolation_today", unit: "kWh/m2", perDay: true, scale: 1000, enabled: withCapability(HasSolarMeter)},
}

// buildSensors returns the full sensor set for the given inverter setup.
// Sensors the hardware cannot provide are returned disabled.
func buildSensors(capability uint16, dcStrings int) []*Sensor {
	sensors := make([]*Sensor, 0, len(sensorDefs))
	for _, def := range sensorDefs {
		unit := def.unit
		if def.key == "Temperature" {
			unit = "C"
			if capability&UseFahrenheit != 0 {
				unit = "F"
			}
		}
		sensors = append(sensors, &Sensor{
			Key:           def.key,
			Name:          def.name,
			Unit:          unit,
			IsMeter:       def.meter,
			PerDayBasis:   def.perDay,
			PerTotalBasis: def.perTotal,
			Enabled:       def.enabled(capability, dcStrings),
			scale:         def.scale,
		})
	}
	return sensors
}

// applyReadings copies parsed register values onto the sensors of one group.
// Utilisation has no register of its own and is derived from output power.
func applyReadings(sensors []*Sensor, meter bool, readings map[string]uint64, maxOutput float64, today time.Time) {
	var outputPower *float64
	for _, s := range sensors {
		if s.IsMeter != meter || !s.Enabled || s.scale == 0 {
			continue
		}
		raw, ok := readings[s.Key]
		if !ok {
			continue
		}
		s.set(float64(raw)/s.scale, today)
		if s.Key == "OutputPower" {
			outputPower = s.Value
		}
	}
	if !meter || outputPower == nil || maxOutput <= 0 {
		return
	}
	for _, s := range sensors {
		if s.Key == "Utilisation" && s.Enabled {
			s.set(*outputPower/maxOutput*100, today)
		}
	}
}
