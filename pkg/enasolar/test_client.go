package enasolar

import (
	"context"
	"time"
)

// TestInverter is an in-memory Inverter. Reads copy MeterValues / DataValues
// (keyed by sensor Key) onto the enabled sensors.
type TestInverter struct {
	Serial      string
	Caps        uint16
	Max         float64
	Strings     int
	MeterValues map[string]float64
	DataValues  map[string]float64

	InterrogateErr error
	MetersErr      error
	DataErr        error
	// calls are held back this long, a cancelled context cuts them short
	InterrogateDelay time.Duration
	ReadDelay        time.Duration

	Hosts      []string
	MeterReads int
	DataReads  int
	Now        func() time.Time

	sensors []*Sensor
}

func NewTestInverter() *TestInverter {
	return &TestInverter{
		Serial:  "123456789",
		Caps:    HasPowerMeter | HasTemperature,
		Max:     3.8,
		Strings: 2,
		MeterValues: map[string]float64{
			"OutputPower":   2.35,
			"InputVoltage":  310.2,
			"InputVoltage2": 305.7,
			"OutputVoltage": 241.1,
			"Temperature":   41.5,
		},
		DataValues: map[string]float64{
			"EnergyToday":           12.4,
			"EnergyLifetime":        23411.87,
			"HoursExportedToday":    7.5,
			"HoursExportedLifetime": 20110.25,
			"DaysProducing":         2954,
		},
	}
}

func (t *TestInverter) Interrogate(ctx context.Context, host string) error {
	t.Hosts = append(t.Hosts, host)
	if err := wait(ctx, t.InterrogateDelay); err != nil {
		return err
	}
	return t.InterrogateErr
}

func (t *TestInverter) SerialNo() string   { return t.Serial }
func (t *TestInverter) Capability() uint16 { return t.Caps }
func (t *TestInverter) MaxOutput() float64 { return t.Max }
func (t *TestInverter) DCStrings() int     { return t.Strings }

func (t *TestInverter) Configure(capability uint16, maxOutput float64, dcStrings int) {
	t.Caps = capability
	t.Max = maxOutput
	t.Strings = dcStrings
}

func (t *TestInverter) SetupSensors() {
	t.sensors = buildSensors(t.Caps, t.Strings)
}

func (t *TestInverter) Sensors() []*Sensor {
	return t.sensors
}

func (t *TestInverter) ReadMeters(ctx context.Context) error {
	t.MeterReads++
	if err := wait(ctx, t.ReadDelay); err != nil {
		return err
	}
	if t.MetersErr != nil {
		return t.MetersErr
	}
	t.apply(true, t.MeterValues)
	return nil
}

func (t *TestInverter) ReadData(ctx context.Context) error {
	t.DataReads++
	if err := wait(ctx, t.ReadDelay); err != nil {
		return err
	}
	if t.DataErr != nil {
		return t.DataErr
	}
	t.apply(false, t.DataValues)
	return nil
}

func wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *TestInverter) apply(meter bool, values map[string]float64) {
	today := time.Now()
	if t.Now != nil {
		today = t.Now()
	}
	for _, s := range t.sensors {
		if s.IsMeter != meter || !s.Enabled {
			continue
		}
		if v, ok := values[s.Key]; ok {
			s.set(v, today)
		}
	}
}

// ensure interface compliance
var _ Inverter = (*TestInverter)(nil)
