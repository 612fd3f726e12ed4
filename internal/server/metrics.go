package server

import (
	"sync"

	"github.com/berfenger/enasolar2mqtt/internal/core/domain"

	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/prometheus/client_golang/prometheus"
)

type sensorKey struct {
	deviceId string
	sensorId string
}

// SensorCollector implements prometheus.Collector for the latest sensor
// states seen on the event stream. Unknown states drop the series.
type SensorCollector struct {
	mu       sync.RWMutex
	values   map[sensorKey]float64
	switches map[sensorKey]bool
	sub      *eventstream.Subscription

	// Metrics
	sensorValue *prometheus.Desc
	switchState *prometheus.Desc
}

func NewSensorCollector() *SensorCollector {
	return &SensorCollector{
		values:   map[sensorKey]float64{},
		switches: map[sensorKey]bool{},
		sensorValue: prometheus.NewDesc(
			"enasolar_sensor_value",
			"Latest value of an inverter sensor, in the unit of the sensor",
			[]string{"device", "sensor"},
			nil,
		),
		switchState: prometheus.NewDesc(
			"enasolar_switch_state",
			"State of an inverter switch (1=on, 0=off)",
			[]string{"device", "switch"},
			nil,
		),
	}
}

// Subscribe starts feeding the collector from the event stream.
func (c *SensorCollector) Subscribe(eventStream *eventstream.EventStream) {
	c.sub = eventStream.Subscribe(c.Handle)
}

func (c *SensorCollector) Unsubscribe(eventStream *eventstream.EventStream) {
	if c.sub != nil {
		eventStream.Unsubscribe(c.sub)
		c.sub = nil
	}
}

func (c *SensorCollector) Handle(event any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch ev := event.(type) {
	case domain.FloatSensorUpdateEvent:
		c.values[sensorKey{ev.DeviceId, ev.Id}] = ev.Value
	case domain.UnknownSensorUpdateEvent:
		delete(c.values, sensorKey{ev.DeviceId, ev.Id})
	case domain.SwitchSensorUpdateEvent:
		c.switches[sensorKey{ev.DeviceId, ev.Id}] = ev.Value
	case domain.EntryRemovedEvent:
		for key := range c.values {
			if key.deviceId == ev.DeviceId {
				delete(c.values, key)
			}
		}
		for key := range c.switches {
			if key.deviceId == ev.DeviceId {
				delete(c.switches, key)
			}
		}
	}
}

// Describe implements prometheus.Collector
func (c *SensorCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.sensorValue
	ch <- c.switchState
}

// Collect implements prometheus.Collector
func (c *SensorCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for key, value := range c.values {
		ch <- prometheus.MustNewConstMetric(c.sensorValue, prometheus.GaugeValue, value, key.deviceId, key.sensorId)
	}
	for key, on := range c.switches {
		var value float64
		if on {
			value = 1
		}
		ch <- prometheus.MustNewConstMetric(c.switchState, prometheus.GaugeValue, value, key.deviceId, key.sensorId)
	}
}

// ensure interface compliance
var _ prometheus.Collector = (*SensorCollector)(nil)
