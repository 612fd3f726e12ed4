package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE       = "bridge"
	SWITCH_ID_NO_SUN             = "no_sun"
	STATE_CLASS_MEASUREMENT      = "measurement"
	STATE_CLASS_TOTAL_INCREASING = "total_increasing"
	DEVICE_CLASS_DURATION        = "duration"
	DEVICE_CLASS_ENERGY          = "energy"
	DEVICE_CLASS_POWER           = "power"
	DEVICE_CLASS_TEMPERATURE     = "temperature"
	DEVICE_CLASS_CONNECTIVITY    = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC      = "diagnostic"
	ENTITY_CLASS_CONFIG          = "config"
	SENSOR_TYPE_SENSOR           = "sensor"
	SENSOR_TYPE_BINARY           = "binary_sensor"
	MANUFACTURER                 = "EnaSolar"
)

type Device struct {
	Id           string
	Name         string
	Version      string
	Model        string
	Manufacturer string
	ViaDevice    string
}

type GenericSensor struct {
	Device            Device
	Id                string
	SensorType        string
	Name              string
	UniqueId          string
	UnitOfMeasurement string
	StateClass        string // measurement, total_increasing
	DeviceClass       string // power, energy, temperature, duration
	EntityCategory    string // diagnostic, config, nil
	EnabledByDefault  *bool
	Icon              string
}

type GenericSwitch struct {
	Device         Device
	Id             string
	Name           string
	UniqueId       string
	Icon           string
	EntityCategory string
}

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("enasolar_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "enasolar2mqtt",
		Model:        "EnaSolar bridge",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("EnaSolar bridge %s", md5HashShort(baseTopic)),
	}
}

func BridgeSensors(bridge Device) []GenericSensor {
	return []GenericSensor{{
		Device:         bridge,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Bridge state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridge.Id, SENSOR_ID_BRIDGE_STATE),
	}}
}

// ids end up in MQTT topics and discovery object ids
var invalidIdChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// InverterDevice is the platform device all sensors of one config entry
// hang off. The serial number identifies it.
func InverterDevice(entry ConfigEntry, serialNo string) Device {
	name := entry.Title
	if name == "" {
		name = fmt.Sprintf("%s %s", MANUFACTURER, serialNo)
	}
	return Device{
		Id:           fmt.Sprintf("enasolar_%s", invalidIdChars.ReplaceAllString(serialNo, "_")),
		Name:         name,
		Manufacturer: MANUFACTURER,
		Model:        fmt.Sprintf("%.1f kW, %d DC string(s)", entry.Data.MaxOutput, entry.Data.DCStrings),
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

// NoSunSwitch exposes the no_sun option of an entry as a config switch.
func NoSunSwitch(device Device) GenericSwitch {
	id := fmt.Sprintf("%s_%s", device.Id, SWITCH_ID_NO_SUN)
	return GenericSwitch{
		Device:         device,
		Id:             id,
		Name:           "Poll after sunset",
		UniqueId:       id,
		Icon:           "mdi:weather-night",
		EntityCategory: ENTITY_CLASS_CONFIG,
	}
}

func uniqueId(deviceId, sensorId string) string {
	return fmt.Sprintf("%s_%s", deviceId, sensorId)
}

func md5HashShort(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])[0:6]
}
