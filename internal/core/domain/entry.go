package domain

const (
	DOMAIN               = "enasolar"
	CONFIG_ENTRY_VERSION = 2

	CONF_HOST       = "host"
	CONF_NAME       = "name"
	CONF_CAPABILITY = "capability"
	CONF_MAX_OUTPUT = "max_output"
	CONF_DC_STRINGS = "dc_strings"
	CONF_NO_SUN     = "no_sun"

	DEFAULT_HOST = "my.inverter.fqdn"
	DEFAULT_NAME = ""
)

// EntryData is written once by the config flow.
type EntryData struct {
	Host       string  `json:"host" yaml:"host"`
	Name       string  `json:"name" yaml:"name"`
	Capability uint16  `json:"capability" yaml:"capability"`
	MaxOutput  float64 `json:"max_output" yaml:"max_output"`
	DCStrings  int     `json:"dc_strings" yaml:"dc_strings"`
}

// EntryOptions is replaced as a whole by the options flow.
type EntryOptions struct {
	NoSun bool `json:"no_sun" yaml:"no_sun"`
}

type ConfigEntry struct {
	EntryId  string       `json:"entry_id" yaml:"entry_id"`
	UniqueId string       `json:"unique_id" yaml:"unique_id"`
	Title    string       `json:"title" yaml:"title"`
	Version  int          `json:"version" yaml:"version"`
	Data     EntryData    `json:"data" yaml:"data"`
	Options  EntryOptions `json:"options" yaml:"options"`
}
