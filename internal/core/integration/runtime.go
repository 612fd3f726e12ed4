package integration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/berfenger/enasolar2mqtt/internal/core/domain"
	"github.com/berfenger/enasolar2mqtt/internal/core/sensor"
	"github.com/berfenger/enasolar2mqtt/internal/sun"
	"github.com/berfenger/enasolar2mqtt/pkg/enasolar"

	"go.uber.org/zap"
)

// ErrConfigEntryNotReady means the inverter could not be set up now and the
// entry should be retried later.
var ErrConfigEntryNotReady = errors.New("config entry not ready")

// EntryContext is everything a loaded config entry owns.
type EntryContext struct {
	Entry       domain.ConfigEntry
	Inverter    enasolar.Inverter
	Platform    *sensor.Platform
	Coordinator *sensor.Coordinator
}

func (c *EntryContext) SerialNo() string {
	return c.Inverter.SerialNo()
}

// Runtime keeps the loaded entries by entry id.
type Runtime struct {
	mu      sync.RWMutex
	entries map[string]*EntryContext
	factory enasolar.Factory
	gate    sun.Gate
	logger  *zap.Logger
}

func NewRuntime(factory enasolar.Factory, gate sun.Gate, logger *zap.Logger) *Runtime {
	return &Runtime{
		entries: map[string]*EntryContext{},
		factory: factory,
		gate:    gate,
		logger:  logger,
	}
}

// Setup prepares the entry and registers it.
func (r *Runtime) Setup(ctx context.Context, entry domain.ConfigEntry) (*EntryContext, error) {
	ec, err := r.Prepare(ctx, entry)
	if err != nil {
		return nil, err
	}
	r.Register(ec)
	return ec, nil
}

// Prepare interrogates the inverter of the entry and builds its sensor
// platform without registering it. Any failure to reach the inverter is
// ErrConfigEntryNotReady.
func (r *Runtime) Prepare(ctx context.Context, entry domain.ConfigEntry) (*EntryContext, error) {
	host := entry.Data.Host
	inverter := r.factory()
	if err := inverter.Interrogate(ctx, host); err != nil {
		return nil, fmt.Errorf("%w: connection to EnaSolar inverter '%s' failed (%w)", ErrConfigEntryNotReady, host, err)
	}
	if inverter.SerialNo() == "" {
		return nil, fmt.Errorf("%w: EnaSolar inverter '%s' reported no serial number", ErrConfigEntryNotReady, host)
	}

	logger := r.logger.With(zap.String("entry_id", entry.EntryId), zap.String("serial", inverter.SerialNo()))
	platform, err := sensor.NewPlatform(entry, inverter, logger)
	if err != nil {
		return nil, fmt.Errorf("setting up sensors: %w", err)
	}
	coordinator := sensor.NewCoordinator(inverter, r.gate, entry.Options.NoSun, logger)
	coordinator.Subscribe(platform)

	return &EntryContext{
		Entry:       entry,
		Inverter:    inverter,
		Platform:    platform,
		Coordinator: coordinator,
	}, nil
}

func (r *Runtime) Register(ec *EntryContext) {
	r.mu.Lock()
	r.entries[ec.Entry.EntryId] = ec
	r.mu.Unlock()
	r.logger.Info("config entry set up",
		zap.String("entry_id", ec.Entry.EntryId),
		zap.String("serial", ec.SerialNo()),
		zap.Int("sensors", len(ec.Platform.Entities())))
}

// Unload drops the entry context. It reports false when the entry was not
// loaded.
func (r *Runtime) Unload(entryId string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[entryId]; !ok {
		return false
	}
	delete(r.entries, entryId)
	r.logger.Info("config entry unloaded", zap.String("entry_id", entryId))
	return true
}

// Release drops ec only when it is still the registered context of its
// entry, a newer setup of the same entry is left alone.
func (r *Runtime) Release(ec *EntryContext) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.entries[ec.Entry.EntryId]; !ok || current != ec {
		return false
	}
	delete(r.entries, ec.Entry.EntryId)
	r.logger.Info("config entry released", zap.String("entry_id", ec.Entry.EntryId))
	return true
}

func (r *Runtime) Get(entryId string) (*EntryContext, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ec, ok := r.entries[entryId]
	return ec, ok
}

func (r *Runtime) EntryIds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
