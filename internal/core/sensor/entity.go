package sensor

import (
	"fmt"

	"github.com/berfenger/enasolar2mqtt/internal/core/domain"
	"github.com/berfenger/enasolar2mqtt/pkg/enasolar"
)

var unitDecimals = map[string]uint{
	domain.UNIT_KILO_WATT:      3,
	domain.UNIT_KILO_WATT_HOUR: 2,
	domain.UNIT_VOLT:           1,
	domain.UNIT_PERCENTAGE:     1,
	domain.UNIT_CELSIUS:        1,
	domain.UNIT_FAHRENHEIT:     1,
	domain.UNIT_HOURS:          2,
	domain.UNIT_DAYS:           0,
	domain.UNIT_IRRADIANCE:     0,
	domain.UNIT_INSOLATION:     3,
}

// Entity mirrors one inverter sensor into the platform. It caches the last
// pushed value and only emits a state when that value changes.
type Entity struct {
	sensor      *enasolar.Sensor
	device      domain.Device
	id          string
	name        string
	uniqueId    string
	unit        string
	deviceClass string
	stateClass  string

	value    *float64
	hasState bool
}

func NewEntity(s *enasolar.Sensor, device domain.Device, inverterName, serialNo string) (*Entity, error) {
	unit, ok := domain.UnitOfMeasurement(s.Unit)
	if !ok {
		return nil, fmt.Errorf("sensor %s has unknown unit %q", s.Key, s.Unit)
	}
	name := fmt.Sprintf("enasolar_%s", s.Name)
	if inverterName != "" {
		name = fmt.Sprintf("%s_%s", inverterName, s.Name)
	}
	var value *float64
	if s.Value != nil {
		v := *s.Value
		value = &v
	}
	return &Entity{
		sensor:      s,
		device:      device,
		id:          s.Name,
		name:        name,
		uniqueId:    fmt.Sprintf("%s_%s", serialNo, s.Name),
		unit:        unit,
		deviceClass: domain.DeviceClassForUnit(unit),
		stateClass:  domain.StateClass(s.IsMeter),
		value:       value,
	}, nil
}

func (e *Entity) UniqueId() string {
	return e.uniqueId
}

func (e *Entity) Name() string {
	return e.name
}

func (e *Entity) IsMeter() bool {
	return e.sensor.IsMeter
}

// NativeValue is the last value pushed to the platform, nil when unknown.
func (e *Entity) NativeValue() *float64 {
	return e.value
}

// Sensor describes the entity for discovery.
func (e *Entity) Sensor() domain.GenericSensor {
	return domain.GenericSensor{
		Device:            domain.IdDevice(e.device),
		Id:                e.id,
		SensorType:        domain.SENSOR_TYPE_SENSOR,
		Name:              e.name,
		UniqueId:          e.uniqueId,
		UnitOfMeasurement: e.unit,
		StateClass:        e.stateClass,
		DeviceClass:       e.deviceClass,
	}
}

// Update takes the sensor value, or unknown when forced. It returns the
// event to publish and whether anything changed.
func (e *Entity) Update(unknown bool) (domain.SensorUpdateEvent, bool) {
	next := e.sensor.Value
	if unknown {
		next = nil
	}
	if e.hasState && sameValue(e.value, next) {
		return nil, false
	}
	e.hasState = true
	if next == nil {
		e.value = nil
	} else {
		v := *next
		e.value = &v
	}
	return e.event(), true
}

// State returns the event for the cached value, used to republish.
func (e *Entity) State() (domain.SensorUpdateEvent, bool) {
	if !e.hasState {
		return nil, false
	}
	return e.event(), true
}

func (e *Entity) event() domain.SensorUpdateEvent {
	mixin := domain.SensorUpdateEventMixIn{DeviceId: e.device.Id, Id: e.id}
	if e.value == nil {
		return domain.UnknownSensorUpdateEvent{SensorUpdateEventMixIn: mixin}
	}
	return domain.FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: mixin,
		Value:                  *e.value,
		Decimals:               unitDecimals[e.unit],
	}
}

func sameValue(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
