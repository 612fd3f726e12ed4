package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/berfenger/enasolar2mqtt/internal/core/domain"
	"github.com/berfenger/enasolar2mqtt/internal/core/flow"
	"github.com/berfenger/enasolar2mqtt/internal/store"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const MASTER_REQUEST_TIMEOUT = 10 * time.Second

type entryView struct {
	domain.ConfigEntry
	State    string `json:"state"`
	SerialNo string `json:"serial_no,omitempty"`
}

type errorView struct {
	Message string `json:"message"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	if s.registry != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	}

	api := e.Group("/api/config")
	api.POST("/flows", s.StartFlowHandler)
	api.POST("/flows/:flow_id", s.ConfigureFlowHandler)
	api.DELETE("/flows/:flow_id", s.AbortFlowHandler)
	api.GET("/entries", s.ListEntriesHandler)
	api.DELETE("/entries/:entry_id", s.RemoveEntryHandler)
	api.POST("/entries/:entry_id/options", s.StartOptionsHandler)
	api.POST("/options/:flow_id", s.ConfigureOptionsHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, MASTER_REQUEST_TIMEOUT).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) StartFlowHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, s.flows.Start(c.Request().Context()))
}

func (s *Server) ConfigureFlowHandler(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return s.errorResponse(c, err)
	}
	result, err := s.flows.Configure(c.Request().Context(), c.Param("flow_id"), body)
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) AbortFlowHandler(c echo.Context) error {
	if err := s.flows.Abort(c.Param("flow_id")); err != nil {
		return s.errorResponse(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListEntriesHandler returns the stored entries with the state of their
// coordinator. Entries the master does not know about are not_loaded.
func (s *Server) ListEntriesHandler(c echo.Context) error {
	states := map[string]domain.EntryStateResponse{}
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.EntryStatesRequest{}, MASTER_REQUEST_TIMEOUT).Result()
	if err != nil {
		s.logger.Warn("could not get entry states", zap.Error(err))
	} else if resp, ok := res.(domain.EntryStatesResponse); ok {
		for _, st := range resp.States {
			states[st.EntryId] = st
		}
	}

	entries := s.flows.Entries().List()
	views := make([]entryView, 0, len(entries))
	for _, entry := range entries {
		view := entryView{
			ConfigEntry: entry,
			State:       "not_loaded",
		}
		if st, ok := states[entry.EntryId]; ok {
			view.State = st.State
			view.SerialNo = st.SerialNo
		}
		views = append(views, view)
	}
	return c.JSON(http.StatusOK, views)
}

func (s *Server) RemoveEntryHandler(c echo.Context) error {
	entryId := c.Param("entry_id")
	if _, err := s.flows.Entries().Get(entryId); err != nil {
		return s.errorResponse(c, err)
	}
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.UnloadEntryRequest{EntryId: entryId, Remove: true}, MASTER_REQUEST_TIMEOUT).Result()
	if err != nil {
		return s.errorResponse(c, err)
	}
	if resp, ok := res.(domain.UnloadEntryResponse); ok && resp.HasResponseError() {
		// still remove it, the coordinator is stopped either way
		s.logger.Warn("entry unload failed", zap.String("entry_id", entryId), zap.Error(resp.GetResponseError()))
	}
	if err := s.flows.Entries().Remove(entryId); err != nil {
		return s.errorResponse(c, err)
	}
	s.logger.Info("config entry removed", zap.String("entry_id", entryId))
	return c.JSON(http.StatusOK, map[string]bool{"require_restart": false})
}

func (s *Server) StartOptionsHandler(c echo.Context) error {
	result, err := s.flows.StartOptions(c.Param("entry_id"))
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) ConfigureOptionsHandler(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return s.errorResponse(c, err)
	}
	result, err := s.flows.ConfigureOptions(c.Param("flow_id"), body)
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) errorResponse(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, flow.ErrFlowNotFound), errors.Is(err, store.ErrEntryNotFound):
		status = http.StatusNotFound
	case errors.Is(err, flow.ErrInvalidInput):
		status = http.StatusBadRequest
	default:
		s.logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.JSON(status, errorView{Message: err.Error()})
}
