package flow

import (
	"context"
	"sync"

	"github.com/berfenger/enasolar2mqtt/internal/core/domain"
	"github.com/berfenger/enasolar2mqtt/pkg/enasolar"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager keeps the flows in progress and commits their results to the
// entry store.
type Manager struct {
	mu       sync.Mutex
	flows    map[string]*ConfigFlow
	options  map[string]*OptionsFlow
	factory  enasolar.Factory
	resolver Resolver
	entries  EntryStore
	listener Listener
	logger   *zap.Logger
}

func NewManager(factory enasolar.Factory, resolver Resolver, entries EntryStore, logger *zap.Logger) *Manager {
	return &Manager{
		flows:    map[string]*ConfigFlow{},
		options:  map[string]*OptionsFlow{},
		factory:  factory,
		resolver: resolver,
		entries:  entries,
		logger:   logger.With(zap.String("component", "flow")),
	}
}

func (m *Manager) SetListener(listener Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listener = listener
}

func (m *Manager) Entries() EntryStore {
	return m.entries
}

// Start opens a config flow and returns its first form.
func (m *Manager) Start(ctx context.Context) Result {
	flow := NewConfigFlow(m.factory(), m.resolver, m.entries, m.logger)
	id := uuid.NewString()
	m.mu.Lock()
	m.flows[id] = flow
	m.mu.Unlock()
	result := flow.StepUser(ctx, nil)
	result.FlowId = id
	return result
}

func (m *Manager) Configure(ctx context.Context, flowId string, input []byte) (Result, error) {
	m.mu.Lock()
	flow, ok := m.flows[flowId]
	m.mu.Unlock()
	if !ok {
		return Result{}, ErrFlowNotFound
	}

	// one submission at a time per flow
	flow.mu.Lock()
	defer flow.mu.Unlock()
	if !m.isActive(flowId) {
		return Result{}, ErrFlowNotFound
	}

	result, err := flow.Handle(ctx, input)
	if err != nil {
		return Result{}, err
	}
	result.FlowId = flowId

	switch result.Type {
	case RESULT_TYPE_ABORT:
		m.forget(flowId)
	case RESULT_TYPE_CREATE_ENTRY:
		m.forget(flowId)
		result.Entry.EntryId = uuid.NewString()
		added, err := m.entries.AddUnique(*result.Entry)
		if err != nil {
			return Result{}, err
		}
		// another flow may have committed the same inverter meanwhile
		if !added {
			return abortWithId(flowId, ABORT_ALREADY_CONFIGURED), nil
		}
		m.logger.Info("config entry created",
			zap.String("entry_id", result.Entry.EntryId),
			zap.String("serial", result.Entry.UniqueId),
			zap.String("host", result.Entry.Data.Host))
		if l := m.currentListener(); l != nil {
			l.EntryCreated(*result.Entry)
		}
	}
	return result, nil
}

func (m *Manager) Abort(flowId string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.flows[flowId]; ok {
		delete(m.flows, flowId)
		return nil
	}
	if _, ok := m.options[flowId]; ok {
		delete(m.options, flowId)
		return nil
	}
	return ErrFlowNotFound
}

// StartOptions opens the options flow of an existing entry.
func (m *Manager) StartOptions(entryId string) (Result, error) {
	entry, err := m.entries.Get(entryId)
	if err != nil {
		return Result{}, err
	}
	flow := NewOptionsFlow(entry)
	id := uuid.NewString()
	m.mu.Lock()
	m.options[id] = flow
	m.mu.Unlock()
	result := flow.StepInit(nil)
	result.FlowId = id
	return result, nil
}

func (m *Manager) ConfigureOptions(flowId string, input []byte) (Result, error) {
	m.mu.Lock()
	flow, ok := m.options[flowId]
	m.mu.Unlock()
	if !ok {
		return Result{}, ErrFlowNotFound
	}
	result, err := flow.Handle(input)
	if err != nil {
		return Result{}, err
	}
	result.FlowId = flowId
	if result.Type != RESULT_TYPE_CREATE_ENTRY {
		return result, nil
	}
	m.mu.Lock()
	delete(m.options, flowId)
	m.mu.Unlock()
	_, err = m.UpdateOptions(flow.EntryId(), *result.Options)
	return result, err
}

// UpdateOptions persists new options and notifies the listener, which
// reloads the entry.
func (m *Manager) UpdateOptions(entryId string, options domain.EntryOptions) (domain.ConfigEntry, error) {
	entry, err := m.entries.UpdateOptions(entryId, options)
	if err != nil {
		return entry, err
	}
	m.logger.Info("config entry options updated", zap.String("entry_id", entryId), zap.Bool("no_sun", options.NoSun))
	if l := m.currentListener(); l != nil {
		l.OptionsUpdated(entry)
	}
	return entry, nil
}

func (m *Manager) isActive(flowId string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.flows[flowId]
	return ok
}

func (m *Manager) forget(flowId string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.flows, flowId)
}

func (m *Manager) currentListener() Listener {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listener
}

func abortWithId(flowId, reason string) Result {
	r := abort(reason)
	r.FlowId = flowId
	return r
}
