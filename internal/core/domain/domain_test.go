package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapabilityRoundTrip(t *testing.T) {

	require := require.New(t)

	bits := []uint16{1, 2, 4, 256}
	for combo := 0; combo < 16; combo++ {
		var mask uint16
		for i, bit := range bits {
			if combo&(1<<i) != 0 {
				mask |= bit
			}
		}
		labels := CapabilityLabels(mask)
		decoded, err := CapabilityFromLabels(labels)
		require.NoError(err)
		require.Equal(mask, decoded, "labels %v", labels)
	}
}

func TestCapabilityLabels(t *testing.T) {

	assert.Equal(t, []string{"power", "temperature", "fahrenhiet"}, CapabilityLabels(1|4|256))
	assert.Empty(t, CapabilityLabels(0))
	// bits outside the exposed flags have no label
	assert.Equal(t, []string{"solar"}, CapabilityLabels(2|8|512))
}

func TestCapabilityFromUnknownLabel(t *testing.T) {

	_, err := CapabilityFromLabels([]string{"power", "wind"})
	assert.Error(t, err)
}

func TestCapabilityChoices(t *testing.T) {

	choices := CapabilityChoices()
	assert.Len(t, choices, 4)
	assert.Contains(t, choices, CAPABILITY_FAHRENHIET)
}

func TestDeviceClassForUnit(t *testing.T) {

	valid := map[string]bool{
		DEVICE_CLASS_POWER:       true,
		DEVICE_CLASS_ENERGY:      true,
		DEVICE_CLASS_TEMPERATURE: true,
		DEVICE_CLASS_DURATION:    true,
		DEVICE_CLASS_NONE:        true,
	}

	for _, raw := range RawUnits() {
		unit, ok := UnitOfMeasurement(raw)
		require.True(t, ok, raw)
		class := DeviceClassForUnit(unit)
		assert.True(t, valid[class], "unit %q mapped to %q", raw, class)
		assert.Equal(t, class, DeviceClassForUnit(unit), "pure")
	}

	expected := map[string]string{
		"kW":     DEVICE_CLASS_POWER,
		"kWh":    DEVICE_CLASS_ENERGY,
		"C":      DEVICE_CLASS_TEMPERATURE,
		"F":      DEVICE_CLASS_TEMPERATURE,
		"d":      DEVICE_CLASS_DURATION,
		"h":      DEVICE_CLASS_DURATION,
		"V":      DEVICE_CLASS_NONE,
		"%":      DEVICE_CLASS_NONE,
		"W/m2":   DEVICE_CLASS_NONE,
		"kWh/m2": DEVICE_CLASS_NONE,
		"":       DEVICE_CLASS_NONE,
	}
	for raw, class := range expected {
		unit, _ := UnitOfMeasurement(raw)
		assert.Equal(t, class, DeviceClassForUnit(unit), raw)
	}
}

func TestUnknownUnit(t *testing.T) {

	_, ok := UnitOfMeasurement("Wh")
	assert.False(t, ok)
}

func TestStateClass(t *testing.T) {

	assert.Equal(t, STATE_CLASS_MEASUREMENT, StateClass(true))
	assert.Equal(t, STATE_CLASS_TOTAL_INCREASING, StateClass(false))
}

func TestInverterDeviceId(t *testing.T) {

	require := require.New(t)

	entry := ConfigEntry{Title: "roof"}
	require.Equal("enasolar_123456789", InverterDevice(entry, "123456789").Id)

	device := InverterDevice(entry, "AB-12 34/5")
	require.Equal("enasolar_AB_12_34_5", device.Id)
	require.Regexp(`^[a-zA-Z0-9_]+$`, device.Id)
	require.Equal("enasolar_AB_12_34_5_no_sun", NoSunSwitch(device).Id)
}
