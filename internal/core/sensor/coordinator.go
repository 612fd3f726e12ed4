package sensor

import (
	"context"
	"time"

	"github.com/berfenger/enasolar2mqtt/internal/sun"
	"github.com/berfenger/enasolar2mqtt/pkg/enasolar"

	"go.uber.org/zap"
)

const DEFAULT_POLL_INTERVAL = 60 * time.Second

// RefreshResult tells the subscribers which read groups failed this cycle.
type RefreshResult struct {
	Time         time.Time
	MetersFailed bool
	DataFailed   bool
	SunDown      bool
}

func (r RefreshResult) Failed(meter bool) bool {
	if meter {
		return r.MetersFailed
	}
	return r.DataFailed
}

func (r RefreshResult) Success() bool {
	return !r.MetersFailed && !r.DataFailed
}

type Subscriber interface {
	HandleRefresh(result RefreshResult)
}

// Coordinator polls one inverter and fans the outcome out to its
// subscribers. Polls must not overlap.
type Coordinator struct {
	inverter    enasolar.Inverter
	gate        sun.Gate
	noSun       bool
	subscribers []Subscriber
	logger      *zap.Logger
}

func NewCoordinator(inverter enasolar.Inverter, gate sun.Gate, noSun bool, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		inverter: inverter,
		gate:     gate,
		noSun:    noSun,
		logger:   logger,
	}
}

func (c *Coordinator) Subscribe(s Subscriber) {
	c.subscribers = append(c.subscribers, s)
}

// Refresh polls the inverter and notifies the subscribers.
func (c *Coordinator) Refresh(ctx context.Context, now time.Time) RefreshResult {
	result := c.Poll(ctx, now)
	c.Notify(result)
	return result
}

// Poll reads meters then data, unless the sun is down and no_sun is not
// set, in which case nothing is read and both groups count as failed.
// Subscribers are left alone, Notify hands them the result.
func (c *Coordinator) Poll(ctx context.Context, now time.Time) RefreshResult {
	result := RefreshResult{Time: now}
	if !c.noSun && !c.gate.IsUp(now) {
		result.SunDown = true
		result.MetersFailed = true
		result.DataFailed = true
		return result
	}
	if err := c.inverter.ReadMeters(ctx); err != nil {
		c.logger.Debug("meters read failed", zap.Error(err))
		result.MetersFailed = true
	}
	if err := c.inverter.ReadData(ctx); err != nil {
		c.logger.Debug("data read failed", zap.Error(err))
		result.DataFailed = true
	}
	return result
}

func (c *Coordinator) Notify(result RefreshResult) {
	for _, s := range c.subscribers {
		s.HandleRefresh(result)
	}
}

// forceUnknown applies to sensors of a failed group. Lifetime counters keep
// their value, day counters only until the day they were read is over.
func forceUnknown(s *enasolar.Sensor, now time.Time) bool {
	if s.PerDayBasis {
		return s.Date.IsZero() || beforeDay(s.Date, now)
	}
	return !s.PerTotalBasis
}

func beforeDay(date, now time.Time) bool {
	y1, m1, d1 := date.In(now.Location()).Date()
	y2, m2, d2 := now.Date()
	if y1 != y2 {
		return y1 < y2
	}
	if m1 != m2 {
		return m1 < m2
	}
	return d1 < d2
}
