package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/berfenger/enasolar2mqtt/internal/core/domain"
	"github.com/berfenger/enasolar2mqtt/internal/core/flow"
	"github.com/berfenger/enasolar2mqtt/internal/store"
	"github.com/berfenger/enasolar2mqtt/internal/util"
	"github.com/berfenger/enasolar2mqtt/pkg/enasolar"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticResolver struct {
}

func (staticResolver) LookupHost(_ context.Context, _ string) ([]string, error) {
	return []string{"192.168.1.50"}, nil
}

// fakeMaster answers the requests the HTTP surface sends to the master.
type fakeMaster struct {
	healthy  bool
	unloaded chan domain.UnloadEntryRequest
}

func (m *fakeMaster) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{Id: domain.ACTOR_ID_MASTER, Healthy: m.healthy})
	case domain.EntryStatesRequest:
		ctx.Respond(domain.EntryStatesResponse{States: []domain.EntryStateResponse{{
			EntryId:  "entry-1",
			State:    "loaded",
			SerialNo: "123456789",
		}}})
	case domain.UnloadEntryRequest:
		m.unloaded <- msg
		ctx.Respond(domain.UnloadEntryResponse{EntryId: msg.EntryId, Unloaded: true})
	}
}

type serverFixture struct {
	server  *Server
	handler http.Handler
	entries *store.Store
	master  *fakeMaster
}

func newServerFixture(t *testing.T, healthy bool) *serverFixture {
	cfg := util.LoadTestConfig()
	logger := zap.NewNop()
	as := actor.NewActorSystem()
	t.Cleanup(as.Shutdown)

	master := &fakeMaster{healthy: healthy, unloaded: make(chan domain.UnloadEntryRequest, 4)}
	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor { return master }))

	st, err := store.Open("")
	require.NoError(t, err)
	flows := flow.NewManager(func() enasolar.Inverter { return enasolar.NewTestInverter() }, staticResolver{}, st, logger)

	registry := prometheus.NewRegistry()
	collector := NewSensorCollector()
	registry.MustRegister(collector)
	collector.Handle(domain.FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{DeviceId: "enasolar_123456789", Id: "output_power"},
		Value:                  2.35,
	})

	s := newServer(cfg, as.Root, pid, flows, registry, logger)
	return &serverFixture{
		server:  s,
		handler: s.RegisterRoutes(),
		entries: st,
		master:  master,
	}
}

func (f *serverFixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) flow.Result {
	var result flow.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	return result
}

func TestHealthCheck(t *testing.T) {

	rec := newServerFixture(t, true).do(http.MethodGet, "/healthcheck", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "health_check: OK", rec.Body.String())

	rec = newServerFixture(t, false).do(http.MethodGet, "/healthcheck", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestConfigFlowRoutes(t *testing.T) {

	require := require.New(t)

	f := newServerFixture(t, true)

	rec := f.do(http.MethodPost, "/api/config/flows", "")
	require.Equal(http.StatusOK, rec.Code)
	result := decodeResult(t, rec)
	require.Equal(flow.RESULT_TYPE_FORM, result.Type)
	require.Equal(flow.STEP_USER, result.StepId)
	require.NotEmpty(result.FlowId)
	flowId := result.FlowId

	rec = f.do(http.MethodPost, "/api/config/flows/"+flowId, `{"host": "inverter.lan", "name": "roof"}`)
	require.Equal(http.StatusOK, rec.Code)
	result = decodeResult(t, rec)
	require.Equal(flow.STEP_INVERTER, result.StepId)

	rec = f.do(http.MethodPost, "/api/config/flows/"+flowId, `{"capability": "power"}`)
	require.Equal(http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/config/flows/"+flowId, `{}`)
	require.Equal(http.StatusOK, rec.Code)
	result = decodeResult(t, rec)
	require.Equal(flow.RESULT_TYPE_CREATE_ENTRY, result.Type)
	require.NotNil(result.Entry)
	require.Equal("123456789", result.Entry.UniqueId)
	require.Len(f.entries.List(), 1)

	// the flow is gone once it created its entry
	rec = f.do(http.MethodPost, "/api/config/flows/"+flowId, `{}`)
	require.Equal(http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodPost, "/api/config/flows", "")
	flowId = decodeResult(t, rec).FlowId
	rec = f.do(http.MethodDelete, "/api/config/flows/"+flowId, "")
	require.Equal(http.StatusNoContent, rec.Code)
	rec = f.do(http.MethodDelete, "/api/config/flows/"+flowId, "")
	require.Equal(http.StatusNotFound, rec.Code)
}

func TestEntryRoutes(t *testing.T) {

	require := require.New(t)

	f := newServerFixture(t, true)
	require.NoError(f.entries.Add(domain.ConfigEntry{EntryId: "entry-1", UniqueId: "123456789", Title: "roof"}))
	require.NoError(f.entries.Add(domain.ConfigEntry{EntryId: "entry-2", UniqueId: "987654321", Title: "shed"}))

	rec := f.do(http.MethodGet, "/api/config/entries", "")
	require.Equal(http.StatusOK, rec.Code)
	var views []entryView
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(views, 2)
	require.Equal("loaded", views[0].State)
	require.Equal("123456789", views[0].SerialNo)
	require.Equal("not_loaded", views[1].State)

	// options flow
	rec = f.do(http.MethodPost, "/api/config/entries/entry-1/options", "")
	require.Equal(http.StatusOK, rec.Code)
	result := decodeResult(t, rec)
	require.Equal(flow.STEP_INIT, result.StepId)

	rec = f.do(http.MethodPost, "/api/config/options/"+result.FlowId, `{"no_sun": true}`)
	require.Equal(http.StatusOK, rec.Code)
	entry, err := f.entries.Get("entry-1")
	require.NoError(err)
	require.True(entry.Options.NoSun)

	rec = f.do(http.MethodPost, "/api/config/entries/missing/options", "")
	require.Equal(http.StatusNotFound, rec.Code)

	// removal unloads first
	rec = f.do(http.MethodDelete, "/api/config/entries/entry-2", "")
	require.Equal(http.StatusOK, rec.Code)
	unload := <-f.master.unloaded
	require.Equal("entry-2", unload.EntryId)
	require.True(unload.Remove)
	_, err = f.entries.Get("entry-2")
	require.ErrorIs(err, store.ErrEntryNotFound)

	rec = f.do(http.MethodDelete, "/api/config/entries/entry-2", "")
	require.Equal(http.StatusNotFound, rec.Code)
}

func TestMetricsRoute(t *testing.T) {

	rec := newServerFixture(t, true).do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `enasolar_sensor_value{device="enasolar_123456789",sensor="output_power"} 2.35`)
}
