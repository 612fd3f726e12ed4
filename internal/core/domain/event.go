package domain

import "fmt"

type SensorUpdateEventMixIn struct {
	DeviceId string
	Id       string
}

type SensorUpdateEvent interface {
	SensorUpdateEvent() string
	SensorId() string
	SensorDeviceId() string
}

func (e SensorUpdateEventMixIn) SensorUpdateEvent() string {
	return fmt.Sprintf("%T", e)
}

func (e SensorUpdateEventMixIn) SensorId() string {
	return e.Id
}

func (e SensorUpdateEventMixIn) SensorDeviceId() string {
	return e.DeviceId
}

type FloatSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value    float64
	Decimals uint
}

// UnknownSensorUpdateEvent clears the state of a sensor on the platform.
type UnknownSensorUpdateEvent struct {
	SensorUpdateEventMixIn
}

type SwitchSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}

type BridgeStateUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}

// EntryRemovedEvent is published when a config entry is unloaded for good.
type EntryRemovedEvent struct {
	EntryId  string
	DeviceId string
}
