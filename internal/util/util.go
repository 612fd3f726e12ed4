package util

import (
	"github.com/berfenger/enasolar2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Inverter: config.InverterConfig{
			TimeoutMillis: 1000,
		},
		MQTT: config.MQTTConfig{
			Host:             "localhost",
			Port:             1883,
			BaseTopic:        "enasolar",
			HADiscoveryTopic: "homeassistant",
		},
		Location: config.LocationConfig{
			SunGate:   false,
			Latitude:  -36.85,
			Longitude: 174.76,
		},
		Coordinator: config.CoordinatorConfig{
			PollIntervalSeconds: 60,
			SetupRetrySeconds:   1,
		},
		Storage: config.StorageConfig{
			EntriesFile: "",
		},
		Port: 8080,
	}
}
