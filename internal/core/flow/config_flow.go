package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/berfenger/enasolar2mqtt/internal/core/domain"
	"github.com/berfenger/enasolar2mqtt/pkg/enasolar"

	"go.uber.org/zap"
)

type UserInput struct {
	Host string `json:"host"`
	Name string `json:"name"`
}

// InverterInput overrides what the inverter reported. Missing values fall
// back to the discovered ones.
type InverterInput struct {
	MaxOutput  *float64 `json:"max_output"`
	DCStrings  *int     `json:"dc_strings"`
	Capability []string `json:"capability"`
}

// ConfigFlow walks the user from a host name to a config entry:
// user -> inverter -> create_entry, or abort.
type ConfigFlow struct {
	// held by the manager while a submission runs
	mu sync.Mutex

	step     string
	inverter enasolar.Inverter
	resolver Resolver
	entries  EntryStore
	logger   *zap.Logger

	data     domain.EntryData
	uniqueId string
}

func NewConfigFlow(inverter enasolar.Inverter, resolver Resolver, entries EntryStore, logger *zap.Logger) *ConfigFlow {
	return &ConfigFlow{
		step:     STEP_USER,
		inverter: inverter,
		resolver: resolver,
		entries:  entries,
		logger:   logger,
	}
}

func (f *ConfigFlow) Step() string {
	return f.step
}

func (f *ConfigFlow) UniqueId() string {
	return f.uniqueId
}

// Handle decodes raw user input for the current step and runs it.
func (f *ConfigFlow) Handle(ctx context.Context, raw []byte) (Result, error) {
	switch f.step {
	case STEP_USER:
		var input UserInput
		if err := json.Unmarshal(raw, &input); err != nil {
			return Result{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		return f.StepUser(ctx, &input), nil
	case STEP_INVERTER:
		var input InverterInput
		if err := json.Unmarshal(raw, &input); err != nil {
			return Result{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		return f.StepInverter(&input), nil
	default:
		return Result{}, fmt.Errorf("flow in unexpected step %s", f.step)
	}
}

func (f *ConfigFlow) StepUser(ctx context.Context, input *UserInput) Result {
	errs := map[string]string{}
	host := domain.DEFAULT_HOST
	name := domain.DEFAULT_NAME

	if input != nil {
		host = input.Host
		name = input.Name
		if !f.resolves(ctx, host) {
			errs[domain.CONF_HOST] = ERROR_INVALID_HOST
		} else {
			f.data.Host = host
			f.data.Name = name
			if code := f.tryConnect(ctx, host); code != "" {
				errs[domain.CONF_HOST] = code
			} else {
				serial := f.inverter.SerialNo()
				if f.entries.HasUniqueId(serial) {
					return abort(ABORT_ALREADY_CONFIGURED)
				}
				f.uniqueId = serial
				return f.StepInverter(nil)
			}
		}
	}

	return form(STEP_USER, []Field{
		{Name: domain.CONF_HOST, Type: FIELD_TYPE_STRING, Required: true, Default: host},
		{Name: domain.CONF_NAME, Type: FIELD_TYPE_STRING, Required: false, Default: name},
	}, errs, false)
}

func (f *ConfigFlow) StepInverter(input *InverterInput) Result {
	f.step = STEP_INVERTER
	errs := map[string]string{}
	discovered := f.inverter.Capability()

	if input != nil {
		maxOutput := f.inverter.MaxOutput()
		if input.MaxOutput != nil {
			maxOutput = *input.MaxOutput
		}
		dcStrings := f.inverter.DCStrings()
		if input.DCStrings != nil {
			dcStrings = *input.DCStrings
		}
		labels := input.Capability
		if labels == nil {
			labels = domain.CapabilityLabels(discovered)
		}

		if !slices.Contains(enasolar.MaxOutputs, maxOutput) {
			errs[domain.CONF_MAX_OUTPUT] = ERROR_INVALID_CHOICE
		}
		if !slices.Contains(enasolar.DCStrings, dcStrings) {
			errs[domain.CONF_DC_STRINGS] = ERROR_INVALID_CHOICE
		}
		capability, err := domain.CapabilityFromLabels(labels)
		if err != nil {
			errs[domain.CONF_CAPABILITY] = ERROR_INVALID_CHOICE
		}

		if len(errs) == 0 {
			// bits the form does not show are kept as discovered
			f.data.Capability = capability | (discovered &^ domain.CAPABILITY_EXPOSED_MASK)
			f.data.MaxOutput = maxOutput
			f.data.DCStrings = dcStrings
			entry := domain.ConfigEntry{
				UniqueId: f.uniqueId,
				Title:    f.data.Name,
				Version:  domain.CONFIG_ENTRY_VERSION,
				Data:     f.data,
			}
			return Result{
				Type:    RESULT_TYPE_CREATE_ENTRY,
				Handler: domain.DOMAIN,
				Title:   entry.Title,
				Entry:   &entry,
			}
		}
	}

	return form(STEP_INVERTER, []Field{
		{Name: domain.CONF_MAX_OUTPUT, Type: FIELD_TYPE_SELECT, Required: true, Default: f.inverter.MaxOutput(), Options: enasolar.MaxOutputs},
		{Name: domain.CONF_DC_STRINGS, Type: FIELD_TYPE_SELECT, Required: true, Default: f.inverter.DCStrings(), Options: enasolar.DCStrings},
		{Name: domain.CONF_CAPABILITY, Type: FIELD_TYPE_MULTI_SELECT, Required: false, Default: domain.CapabilityLabels(discovered), Options: domain.CapabilityChoices()},
	}, errs, true)
}

func (f *ConfigFlow) resolves(ctx context.Context, host string) bool {
	name := hostname(host)
	if name == "" {
		return false
	}
	addrs, err := f.resolver.LookupHost(ctx, name)
	return err == nil && len(addrs) > 0
}

func (f *ConfigFlow) tryConnect(ctx context.Context, host string) string {
	err := f.inverter.Interrogate(ctx, host)
	if err == nil {
		return ""
	}
	var connectErr *enasolar.ConnectError
	var responseErr *enasolar.ResponseError
	switch {
	case errors.As(err, &connectErr):
		return ERROR_CANNOT_CONNECT
	case errors.As(err, &responseErr):
		return ERROR_UNEXPECTED_RESPONSE
	default:
		f.logger.Error("unexpected error interrogating inverter", zap.String("host", host), zap.Error(err))
		return ERROR_UNKNOWN
	}
}

// hostname strips an optional scheme and port from what the user typed.
func hostname(host string) string {
	host = strings.TrimSpace(host)
	if strings.Contains(host, "://") {
		u, err := url.Parse(host)
		if err != nil {
			return ""
		}
		return u.Hostname()
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}
