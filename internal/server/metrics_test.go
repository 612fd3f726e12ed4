package server

import (
	"strings"
	"testing"

	"github.com/berfenger/enasolar2mqtt/internal/core/domain"

	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatEvent(deviceId, id string, value float64) domain.FloatSensorUpdateEvent {
	return domain.FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{DeviceId: deviceId, Id: id},
		Value:                  value,
	}
}

func TestSensorCollector(t *testing.T) {

	require := require.New(t)

	es := &eventstream.EventStream{}
	c := NewSensorCollector()
	c.Subscribe(es)

	es.Publish(floatEvent("enasolar_1", "output_power", 2.35))
	es.Publish(floatEvent("enasolar_1", "energy_today", 12.4))
	es.Publish(floatEvent("enasolar_2", "output_power", 1.1))
	es.Publish(domain.SwitchSensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{DeviceId: "enasolar_1", Id: "enasolar_1_no_sun"},
		Value:                  true,
	})
	require.Equal(4, testutil.CollectAndCount(c))

	expected := `
# HELP enasolar_sensor_value Latest value of an inverter sensor, in the unit of the sensor
# TYPE enasolar_sensor_value gauge
enasolar_sensor_value{device="enasolar_1",sensor="energy_today"} 12.4
enasolar_sensor_value{device="enasolar_1",sensor="output_power"} 2.35
enasolar_sensor_value{device="enasolar_2",sensor="output_power"} 1.1
`
	require.NoError(testutil.CollectAndCompare(c, strings.NewReader(expected), "enasolar_sensor_value"))

	// unknown drops the series
	es.Publish(domain.UnknownSensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{DeviceId: "enasolar_1", Id: "output_power"},
	})
	assert.Equal(t, 3, testutil.CollectAndCount(c))

	// removed entries drop every series of their device
	es.Publish(domain.EntryRemovedEvent{EntryId: "entry-1", DeviceId: "enasolar_1"})
	assert.Equal(t, 1, testutil.CollectAndCount(c))

	c.Unsubscribe(es)
	es.Publish(floatEvent("enasolar_1", "output_power", 3))
	assert.Equal(t, 1, testutil.CollectAndCount(c))
}
