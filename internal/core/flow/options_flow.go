package flow

import (
	"encoding/json"
	"fmt"

	"github.com/berfenger/enasolar2mqtt/internal/core/domain"
)

type OptionsInput struct {
	NoSun *bool `json:"no_sun"`
}

// OptionsFlow has a single init step toggling no_sun.
type OptionsFlow struct {
	entry   domain.ConfigEntry
	options domain.EntryOptions
}

func NewOptionsFlow(entry domain.ConfigEntry) *OptionsFlow {
	return &OptionsFlow{
		entry:   entry,
		options: entry.Options,
	}
}

func (f *OptionsFlow) EntryId() string {
	return f.entry.EntryId
}

func (f *OptionsFlow) Handle(raw []byte) (Result, error) {
	var input OptionsInput
	if err := json.Unmarshal(raw, &input); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return f.StepInit(&input), nil
}

func (f *OptionsFlow) StepInit(input *OptionsInput) Result {
	if input != nil {
		if input.NoSun != nil {
			f.options.NoSun = *input.NoSun
		}
		options := f.options
		return Result{
			Type:    RESULT_TYPE_CREATE_ENTRY,
			Handler: f.entry.EntryId,
			Options: &options,
		}
	}
	return form(STEP_INIT, []Field{
		{Name: domain.CONF_NO_SUN, Type: FIELD_TYPE_BOOLEAN, Required: true, Default: f.options.NoSun},
	}, nil, true)
}
