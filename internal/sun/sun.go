package sun

import (
	"time"

	"github.com/berfenger/enasolar2mqtt/internal/config"

	"github.com/nathan-osman/go-sunrise"
	"go.uber.org/zap"
)

// Gate tells whether the sun is above the horizon at a given instant.
type Gate interface {
	IsUp(t time.Time) bool
}

type Location struct {
	Latitude  float64
	Longitude float64
}

// IsUp checks the daylight windows of the surrounding UTC days too, since
// far from Greenwich a local day spans two UTC dates.
func (l Location) IsUp(t time.Time) bool {
	t = t.UTC()
	for _, offset := range []int{-1, 0, 1} {
		day := t.AddDate(0, 0, offset)
		rise, set := sunrise.SunriseSunset(l.Latitude, l.Longitude, day.Year(), day.Month(), day.Day())
		if rise.IsZero() || set.IsZero() {
			// polar day or night, the inverter decides by itself
			return true
		}
		if !t.Before(rise) && t.Before(set) {
			return true
		}
	}
	return false
}

// AlwaysUp is used when no location is configured.
type AlwaysUp struct{}

func (AlwaysUp) IsUp(time.Time) bool {
	return true
}

func NewGate(cfg config.LocationConfig, logger *zap.Logger) Gate {
	if !cfg.SunGate {
		logger.Warn("sun gate disabled, inverters are polled around the clock and read as unavailable at night")
		return AlwaysUp{}
	}
	return Location{Latitude: cfg.Latitude, Longitude: cfg.Longitude}
}
