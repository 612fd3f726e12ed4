package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/berfenger/enasolar2mqtt/internal/core/domain"
	"github.com/berfenger/enasolar2mqtt/internal/sun"
	"github.com/berfenger/enasolar2mqtt/pkg/enasolar"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testEntry() domain.ConfigEntry {
	return domain.ConfigEntry{
		EntryId:  "entry-1",
		UniqueId: "123456789",
		Title:    "roof",
		Version:  domain.CONFIG_ENTRY_VERSION,
		Data: domain.EntryData{
			Host:       "inverter.lan",
			Name:       "roof",
			Capability: enasolar.HasPowerMeter | enasolar.HasSolarMeter,
			MaxOutput:  3.0,
			DCStrings:  1,
		},
	}
}

func newRuntime(inverter *enasolar.TestInverter) *Runtime {
	return NewRuntime(func() enasolar.Inverter { return inverter }, sun.AlwaysUp{}, zap.NewNop())
}

func TestSetupStoresContext(t *testing.T) {

	require := require.New(t)

	inverter := enasolar.NewTestInverter()
	r := newRuntime(inverter)

	ec, err := r.Setup(context.Background(), testEntry())
	require.NoError(err)
	require.Equal([]string{"inverter.lan"}, inverter.Hosts)
	require.Equal("123456789", ec.SerialNo())

	// entry data wins over what the inverter reported
	require.Equal(enasolar.HasPowerMeter|enasolar.HasSolarMeter, inverter.Caps)
	require.Equal(3.0, inverter.Max)
	require.Equal(1, inverter.Strings)

	stored, ok := r.Get("entry-1")
	require.True(ok)
	require.Same(ec, stored)
	require.Equal([]string{"entry-1"}, r.EntryIds())

	// solar meter enabled, temperature and second string are not
	names := map[string]bool{}
	for _, e := range ec.Platform.Entities() {
		names[e.UniqueId()] = true
	}
	assert.True(t, names["123456789_irradiance"])
	assert.True(t, names["123456789_insolation_today"])
	assert.False(t, names["123456789_temperature"])
	assert.False(t, names["123456789_input_voltage_2"])
}

func TestSetupNotReady(t *testing.T) {

	inverter := enasolar.NewTestInverter()
	inverter.InterrogateErr = &enasolar.ConnectError{Host: "inverter.lan", Err: errors.New("refused")}
	r := newRuntime(inverter)

	_, err := r.Setup(context.Background(), testEntry())
	assert.ErrorIs(t, err, ErrConfigEntryNotReady)
	var connectErr *enasolar.ConnectError
	assert.ErrorAs(t, err, &connectErr)
	assert.Empty(t, r.EntryIds())

	inverter.InterrogateErr = nil
	inverter.Serial = ""
	_, err = r.Setup(context.Background(), testEntry())
	assert.ErrorIs(t, err, ErrConfigEntryNotReady)
	assert.Empty(t, r.EntryIds())
}

func TestUnload(t *testing.T) {

	r := newRuntime(enasolar.NewTestInverter())
	_, err := r.Setup(context.Background(), testEntry())
	require.NoError(t, err)

	assert.True(t, r.Unload("entry-1"))
	_, ok := r.Get("entry-1")
	assert.False(t, ok)
	assert.False(t, r.Unload("entry-1"))
}
