package flow

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/berfenger/enasolar2mqtt/internal/core/domain"
	"github.com/berfenger/enasolar2mqtt/internal/store"
	"github.com/berfenger/enasolar2mqtt/pkg/enasolar"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testResolver struct {
	hosts   map[string][]string
	lookups []string
}

func (r *testResolver) LookupHost(_ context.Context, host string) ([]string, error) {
	r.lookups = append(r.lookups, host)
	if addrs, ok := r.hosts[host]; ok {
		return addrs, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
}

type testListener struct {
	created []domain.ConfigEntry
	updated []domain.ConfigEntry
}

func (l *testListener) EntryCreated(entry domain.ConfigEntry)   { l.created = append(l.created, entry) }
func (l *testListener) OptionsUpdated(entry domain.ConfigEntry) { l.updated = append(l.updated, entry) }

func newTestFlow(t *testing.T, inverter *enasolar.TestInverter) (*ConfigFlow, *testResolver, *store.Store) {
	t.Helper()
	entries, err := store.Open("")
	require.NoError(t, err)
	resolver := &testResolver{hosts: map[string][]string{"inverter.lan": {"192.168.1.50"}}}
	return NewConfigFlow(inverter, resolver, entries, zap.NewNop()), resolver, entries
}

func TestUserStepShowsDefaults(t *testing.T) {

	require := require.New(t)

	f, _, _ := newTestFlow(t, enasolar.NewTestInverter())
	result := f.StepUser(context.Background(), nil)

	require.Equal(RESULT_TYPE_FORM, result.Type)
	require.Equal(STEP_USER, result.StepId)
	require.Len(result.Schema, 2)
	require.Equal(domain.DEFAULT_HOST, result.Schema[0].Default)
	require.False(result.LastStep)
}

func TestUserStepInvalidHost(t *testing.T) {

	require := require.New(t)

	inverter := enasolar.NewTestInverter()
	f, resolver, _ := newTestFlow(t, inverter)
	result := f.StepUser(context.Background(), &UserInput{Host: "nowhere.lan", Name: "roof"})

	require.Equal(RESULT_TYPE_FORM, result.Type)
	require.Equal(ERROR_INVALID_HOST, result.Errors[domain.CONF_HOST])
	require.Equal([]string{"nowhere.lan"}, resolver.lookups)
	require.Empty(inverter.Hosts, "no connection attempted")
	require.Equal("nowhere.lan", result.Schema[0].Default)
}

func TestUserStepConnectionErrors(t *testing.T) {

	cases := []struct {
		name string
		err  error
		code string
	}{
		{"connector", &enasolar.ConnectError{Host: "inverter.lan", Err: errors.New("connection refused")}, ERROR_CANNOT_CONNECT},
		{"response", &enasolar.ResponseError{URL: "http://inverter.lan/settings.html", StatusCode: 500}, ERROR_UNEXPECTED_RESPONSE},
		{"other", errors.New("boom"), ERROR_UNKNOWN},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			inverter := enasolar.NewTestInverter()
			inverter.InterrogateErr = c.err
			f, _, _ := newTestFlow(t, inverter)

			result := f.StepUser(context.Background(), &UserInput{Host: "inverter.lan"})
			assert.Equal(t, RESULT_TYPE_FORM, result.Type)
			assert.Equal(t, STEP_USER, result.StepId)
			assert.Equal(t, c.code, result.Errors[domain.CONF_HOST])
			assert.Equal(t, []string{"inverter.lan"}, inverter.Hosts)
		})
	}
}

func TestUserStepResolvesHostWithSchemeAndPort(t *testing.T) {

	inverter := enasolar.NewTestInverter()
	f, resolver, _ := newTestFlow(t, inverter)
	result := f.StepUser(context.Background(), &UserInput{Host: "http://inverter.lan:8080"})

	assert.Equal(t, []string{"inverter.lan"}, resolver.lookups)
	assert.Equal(t, STEP_INVERTER, result.StepId)
	assert.Equal(t, []string{"http://inverter.lan:8080"}, inverter.Hosts)
}

func TestUserStepAlreadyConfigured(t *testing.T) {

	require := require.New(t)

	inverter := enasolar.NewTestInverter()
	f, _, entries := newTestFlow(t, inverter)
	require.NoError(entries.Add(domain.ConfigEntry{EntryId: "existing", UniqueId: inverter.Serial}))

	result := f.StepUser(context.Background(), &UserInput{Host: "inverter.lan"})
	require.Equal(RESULT_TYPE_ABORT, result.Type)
	require.Equal(ABORT_ALREADY_CONFIGURED, result.Reason)
	require.Len(entries.List(), 1)
}

func TestInverterStepDefaultsFromClient(t *testing.T) {

	require := require.New(t)

	inverter := enasolar.NewTestInverter()
	f, _, _ := newTestFlow(t, inverter)

	result := f.StepUser(context.Background(), &UserInput{Host: "inverter.lan", Name: "roof"})
	require.Equal(RESULT_TYPE_FORM, result.Type)
	require.Equal(STEP_INVERTER, result.StepId)
	require.True(result.LastStep)
	require.Equal(inverter.Serial, f.UniqueId())

	fields := map[string]Field{}
	for _, field := range result.Schema {
		fields[field.Name] = field
	}
	require.Equal(3.8, fields[domain.CONF_MAX_OUTPUT].Default)
	require.Equal(2, fields[domain.CONF_DC_STRINGS].Default)
	require.Equal([]string{domain.CAPABILITY_POWER, domain.CAPABILITY_TEMPERATURE}, fields[domain.CONF_CAPABILITY].Default)
}

func TestInverterStepCreatesEntry(t *testing.T) {

	require := require.New(t)

	inverter := enasolar.NewTestInverter()
	inverter.Caps = enasolar.HasPowerMeter | 0x08
	f, _, _ := newTestFlow(t, inverter)
	f.StepUser(context.Background(), &UserInput{Host: "inverter.lan", Name: "roof"})

	maxOutput := 5.0
	result := f.StepInverter(&InverterInput{
		MaxOutput:  &maxOutput,
		Capability: []string{domain.CAPABILITY_SOLAR, domain.CAPABILITY_FAHRENHIET},
	})

	require.Equal(RESULT_TYPE_CREATE_ENTRY, result.Type)
	require.Equal("roof", result.Title)
	require.NotNil(result.Entry)
	require.Equal(inverter.Serial, result.Entry.UniqueId)
	require.Equal(domain.CONFIG_ENTRY_VERSION, result.Entry.Version)
	require.Equal(domain.EntryData{
		Host:       "inverter.lan",
		Name:       "roof",
		Capability: enasolar.HasSolarMeter | enasolar.UseFahrenheit | 0x08,
		MaxOutput:  5.0,
		DCStrings:  2,
	}, result.Entry.Data)
}

func TestInverterStepInvalidChoice(t *testing.T) {

	require := require.New(t)

	f, _, _ := newTestFlow(t, enasolar.NewTestInverter())
	f.StepUser(context.Background(), &UserInput{Host: "inverter.lan"})

	maxOutput := 4.2
	dcStrings := 3
	result := f.StepInverter(&InverterInput{
		MaxOutput:  &maxOutput,
		DCStrings:  &dcStrings,
		Capability: []string{"wind"},
	})
	require.Equal(RESULT_TYPE_FORM, result.Type)
	require.Equal(map[string]string{
		domain.CONF_MAX_OUTPUT: ERROR_INVALID_CHOICE,
		domain.CONF_DC_STRINGS: ERROR_INVALID_CHOICE,
		domain.CONF_CAPABILITY: ERROR_INVALID_CHOICE,
	}, result.Errors)
}

func TestCapabilityRoundTripThroughForm(t *testing.T) {

	for mask := uint16(0); mask < 16; mask++ {
		var caps uint16
		if mask&1 != 0 {
			caps |= enasolar.HasPowerMeter
		}
		if mask&2 != 0 {
			caps |= enasolar.HasSolarMeter
		}
		if mask&4 != 0 {
			caps |= enasolar.HasTemperature
		}
		if mask&8 != 0 {
			caps |= enasolar.UseFahrenheit
		}
		inverter := enasolar.NewTestInverter()
		inverter.Caps = caps
		f, _, _ := newTestFlow(t, inverter)
		f.StepUser(context.Background(), &UserInput{Host: "inverter.lan"})

		result := f.StepInverter(&InverterInput{})
		require.Equal(t, RESULT_TYPE_CREATE_ENTRY, result.Type)
		assert.Equal(t, caps, result.Entry.Data.Capability)
	}
}

func TestManagerCommitsEntry(t *testing.T) {

	require := require.New(t)

	entries, err := store.Open("")
	require.NoError(err)
	inverter := enasolar.NewTestInverter()
	resolver := &testResolver{hosts: map[string][]string{"inverter.lan": {"192.168.1.50"}}}
	listener := &testListener{}
	m := NewManager(func() enasolar.Inverter { return inverter }, resolver, entries, zap.NewNop())
	m.SetListener(listener)

	ctx := context.Background()
	start := m.Start(ctx)
	require.NotEmpty(start.FlowId)
	require.Equal(STEP_USER, start.StepId)

	result, err := m.Configure(ctx, start.FlowId, []byte(`{"host":"inverter.lan","name":"roof"}`))
	require.NoError(err)
	require.Equal(STEP_INVERTER, result.StepId)

	result, err = m.Configure(ctx, start.FlowId, []byte(`{"max_output":3.8,"dc_strings":1,"capability":["power"]}`))
	require.NoError(err)
	require.Equal(RESULT_TYPE_CREATE_ENTRY, result.Type)
	require.NotEmpty(result.Entry.EntryId)
	require.Len(entries.List(), 1)
	require.Len(listener.created, 1)
	require.Equal(1, listener.created[0].Data.DCStrings)

	_, err = m.Configure(ctx, start.FlowId, []byte(`{}`))
	require.ErrorIs(err, ErrFlowNotFound)

	// second run for the same inverter
	second := m.Start(ctx)
	result, err = m.Configure(ctx, second.FlowId, []byte(`{"host":"inverter.lan"}`))
	require.NoError(err)
	require.Equal(RESULT_TYPE_ABORT, result.Type)
	require.Equal(ABORT_ALREADY_CONFIGURED, result.Reason)
	require.Len(entries.List(), 1)
}

func TestManagerInterleavedFlowsCommitOnce(t *testing.T) {

	require := require.New(t)

	entries, err := store.Open("")
	require.NoError(err)
	resolver := &testResolver{hosts: map[string][]string{"inverter.lan": {"192.168.1.50"}}}
	listener := &testListener{}
	m := NewManager(func() enasolar.Inverter { return enasolar.NewTestInverter() }, resolver, entries, zap.NewNop())
	m.SetListener(listener)

	// both flows get past the user step before either commits
	ctx := context.Background()
	first, second := m.Start(ctx), m.Start(ctx)
	for _, flowId := range []string{first.FlowId, second.FlowId} {
		result, err := m.Configure(ctx, flowId, []byte(`{"host":"inverter.lan"}`))
		require.NoError(err)
		require.Equal(STEP_INVERTER, result.StepId)
	}

	input := []byte(`{"max_output":3.8,"dc_strings":1,"capability":["power"]}`)
	result, err := m.Configure(ctx, first.FlowId, input)
	require.NoError(err)
	require.Equal(RESULT_TYPE_CREATE_ENTRY, result.Type)

	result, err = m.Configure(ctx, second.FlowId, input)
	require.NoError(err)
	require.Equal(RESULT_TYPE_ABORT, result.Type)
	require.Equal(ABORT_ALREADY_CONFIGURED, result.Reason)
	require.Len(entries.List(), 1)
	require.Len(listener.created, 1)
}

func TestManagerConcurrentSubmitsToOneFlow(t *testing.T) {

	require := require.New(t)

	entries, err := store.Open("")
	require.NoError(err)
	resolver := &testResolver{hosts: map[string][]string{"inverter.lan": {"192.168.1.50"}}}
	m := NewManager(func() enasolar.Inverter { return enasolar.NewTestInverter() }, resolver, entries, zap.NewNop())

	ctx := context.Background()
	start := m.Start(ctx)
	_, err = m.Configure(ctx, start.FlowId, []byte(`{"host":"inverter.lan"}`))
	require.NoError(err)

	input := []byte(`{"max_output":3.8,"dc_strings":1,"capability":["power"]}`)
	errs := make(chan error, 4)
	var wg sync.WaitGroup
	for i := 0; i < cap(errs); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Configure(ctx, start.FlowId, input)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	committed := 0
	for err := range errs {
		if err == nil {
			committed++
		} else {
			require.ErrorIs(err, ErrFlowNotFound)
		}
	}
	require.Equal(1, committed)
	require.Len(entries.List(), 1)
}

func TestManagerInvalidInput(t *testing.T) {

	entries, _ := store.Open("")
	m := NewManager(func() enasolar.Inverter { return enasolar.NewTestInverter() }, &testResolver{}, entries, zap.NewNop())

	start := m.Start(context.Background())
	_, err := m.Configure(context.Background(), start.FlowId, []byte(`{"host":`))
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.NoError(t, m.Abort(start.FlowId))
	assert.ErrorIs(t, m.Abort(start.FlowId), ErrFlowNotFound)
}

func TestOptionsFlow(t *testing.T) {

	require := require.New(t)

	entries, err := store.Open("")
	require.NoError(err)
	require.NoError(entries.Add(domain.ConfigEntry{EntryId: "a", UniqueId: "111"}))
	listener := &testListener{}
	m := NewManager(func() enasolar.Inverter { return enasolar.NewTestInverter() }, &testResolver{}, entries, zap.NewNop())
	m.SetListener(listener)

	start, err := m.StartOptions("a")
	require.NoError(err)
	require.Equal(STEP_INIT, start.StepId)
	require.Equal(false, start.Schema[0].Default)

	result, err := m.ConfigureOptions(start.FlowId, []byte(`{"no_sun":true}`))
	require.NoError(err)
	require.Equal(RESULT_TYPE_CREATE_ENTRY, result.Type)
	require.True(result.Options.NoSun)

	entry, err := entries.Get("a")
	require.NoError(err)
	require.True(entry.Options.NoSun)
	require.Len(listener.updated, 1)

	// the form now defaults to the stored value
	again, err := m.StartOptions("a")
	require.NoError(err)
	require.Equal(true, again.Schema[0].Default)

	_, err = m.StartOptions("missing")
	require.ErrorIs(err, store.ErrEntryNotFound)
}
