package config

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel    zapcore.Level
	Inverter    InverterConfig    `mapstructure:"inverter"`
	MQTT        MQTTConfig        `mapstructure:"mqtt"`
	Location    LocationConfig    `mapstructure:"location"`
	Coordinator CoordinatorConfig `mapstructure:"coordinator"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Port        uint              `mapstructure:"port"`
	HttpLog     bool              `mapstructure:"http_log"`
}

type InverterConfig struct {
	TimeoutMillis uint32 `mapstructure:"timeout_millis"`
}

// LocationConfig feeds the sun-up gate. With SunGate disabled the inverter is
// polled around the clock.
type LocationConfig struct {
	SunGate   bool    `mapstructure:"sun_gate"`
	Latitude  float64 `mapstructure:"latitude"`
	Longitude float64 `mapstructure:"longitude"`
}

type CoordinatorConfig struct {
	PollIntervalSeconds uint32 `mapstructure:"poll_interval_seconds"`
	SetupRetrySeconds   uint32 `mapstructure:"setup_retry_seconds"`
}

type StorageConfig struct {
	EntriesFile string `mapstructure:"entries_file"`
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

func (c InverterConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMillis) * time.Millisecond
}

func (c CoordinatorConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c CoordinatorConfig) SetupRetry() time.Duration {
	return time.Duration(c.SetupRetrySeconds) * time.Second
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}

func CheckLocation(loc LocationConfig) error {
	if !loc.SunGate {
		return nil
	}
	if loc.Latitude < -90 || loc.Latitude > 90 {
		return errors.New("location.latitude must be within [-90, 90]")
	}
	if loc.Longitude < -180 || loc.Longitude > 180 {
		return errors.New("location.longitude must be within [-180, 180]")
	}
	return nil
}
