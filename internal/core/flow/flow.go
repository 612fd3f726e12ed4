package flow

import (
	"context"
	"errors"

	"github.com/berfenger/enasolar2mqtt/internal/core/domain"
)

const (
	STEP_USER     = "user"
	STEP_INVERTER = "inverter"
	STEP_INIT     = "init"

	RESULT_TYPE_FORM         = "form"
	RESULT_TYPE_CREATE_ENTRY = "create_entry"
	RESULT_TYPE_ABORT        = "abort"

	ERROR_INVALID_HOST        = "invalid_host"
	ERROR_CANNOT_CONNECT      = "cannot_connect"
	ERROR_UNEXPECTED_RESPONSE = "unexpected_response"
	ERROR_UNKNOWN             = "unknown"
	ERROR_INVALID_CHOICE      = "invalid_choice"

	ABORT_ALREADY_CONFIGURED = "already_configured"

	FIELD_TYPE_STRING       = "string"
	FIELD_TYPE_BOOLEAN      = "boolean"
	FIELD_TYPE_SELECT       = "select"
	FIELD_TYPE_MULTI_SELECT = "multi_select"
)

var (
	ErrFlowNotFound = errors.New("flow not found")
	ErrInvalidInput = errors.New("invalid user input")
)

// Field describes one input of a form step.
type Field struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
	Default  any    `json:"default"`
	Options  any    `json:"options,omitempty"`
}

// Result is what a step hands back to the user: another form, a created
// entry or an abort.
type Result struct {
	Type     string               `json:"type"`
	FlowId   string               `json:"flow_id"`
	Handler  string               `json:"handler"`
	StepId   string               `json:"step_id,omitempty"`
	Schema   []Field              `json:"data_schema,omitempty"`
	Errors   map[string]string    `json:"errors,omitempty"`
	LastStep bool                 `json:"last_step,omitempty"`
	Reason   string               `json:"reason,omitempty"`
	Title    string               `json:"title,omitempty"`
	Entry    *domain.ConfigEntry  `json:"result,omitempty"`
	Options  *domain.EntryOptions `json:"options,omitempty"`
}

// Resolver turns a host name into addresses. *net.Resolver satisfies it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

type EntryStore interface {
	List() []domain.ConfigEntry
	Get(entryId string) (domain.ConfigEntry, error)
	HasUniqueId(uniqueId string) bool
	Add(entry domain.ConfigEntry) error
	// AddUnique adds entry unless its unique id is taken, atomically.
	AddUnique(entry domain.ConfigEntry) (bool, error)
	UpdateOptions(entryId string, options domain.EntryOptions) (domain.ConfigEntry, error)
	Remove(entryId string) error
}

// Listener is told about committed changes, it plays the part of the
// entry setup hook and the options update listener.
type Listener interface {
	EntryCreated(entry domain.ConfigEntry)
	OptionsUpdated(entry domain.ConfigEntry)
}

func form(stepId string, schema []Field, errors map[string]string, lastStep bool) Result {
	return Result{
		Type:     RESULT_TYPE_FORM,
		Handler:  domain.DOMAIN,
		StepId:   stepId,
		Schema:   schema,
		Errors:   errors,
		LastStep: lastStep,
	}
}

func abort(reason string) Result {
	return Result{
		Type:    RESULT_TYPE_ABORT,
		Handler: domain.DOMAIN,
		Reason:  reason,
	}
}
