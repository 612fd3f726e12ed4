package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCheckMQTTTopic(t *testing.T) {

	topic, err := CheckMQTTTopic("EnaSolar_1")
	assert.NoError(t, err)
	assert.Equal(t, "enasolar_1", topic)

	_, err = CheckMQTTTopic("ena/solar")
	assert.Error(t, err)

	_, err = CheckMQTTTopic("")
	assert.Error(t, err)
}

func TestCheckLocation(t *testing.T) {

	assert.NoError(t, CheckLocation(LocationConfig{SunGate: true, Latitude: -36.85, Longitude: 174.76}))
	assert.Error(t, CheckLocation(LocationConfig{SunGate: true, Latitude: 91}))
	assert.Error(t, CheckLocation(LocationConfig{SunGate: true, Longitude: -181}))
	// bounds are only checked when the gate is on
	assert.NoError(t, CheckLocation(LocationConfig{SunGate: false, Latitude: 500}))
}

func TestDurations(t *testing.T) {

	c := CoordinatorConfig{PollIntervalSeconds: 60, SetupRetrySeconds: 30}
	assert.Equal(t, time.Minute, c.PollInterval())
	assert.Equal(t, 30*time.Second, c.SetupRetry())
	assert.Equal(t, 1500*time.Millisecond, InverterConfig{TimeoutMillis: 1500}.Timeout())
}
