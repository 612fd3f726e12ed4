package enasolar

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	settingsPath = "/settings.html"
	metersPath   = "/meters.xml"
	dataPath     = "/data.xml"
)

// Inverter is the surface the integration consumes. Reads mutate the
// sensors returned by Sensors in place.
type Inverter interface {
	Interrogate(ctx context.Context, host string) error
	SerialNo() string
	Capability() uint16
	MaxOutput() float64
	DCStrings() int
	Configure(capability uint16, maxOutput float64, dcStrings int)
	SetupSensors()
	Sensors() []*Sensor
	ReadMeters(ctx context.Context) error
	ReadData(ctx context.Context) error
}

// Factory builds a fresh, not yet interrogated inverter client.
type Factory func() Inverter

type Client struct {
	http   *resty.Client
	logger *zap.Logger
	now    func() time.Time

	host       string
	serialNo   string
	capability uint16
	maxOutput  float64
	dcStrings  int
	sensors    []*Sensor
}

func NewClient(timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		http:   resty.New().SetTimeout(timeout),
		logger: logger.With(zap.String("component", "enasolar")),
		now:    time.Now,
	}
}

func NewFactory(timeout time.Duration, logger *zap.Logger) Factory {
	return func() Inverter {
		return NewClient(timeout, logger)
	}
}

// Interrogate reads the settings page of the inverter at host and records
// serial number, capability bits, max output and DC string count.
func (c *Client) Interrogate(ctx context.Context, host string) error {
	c.host = host
	body, err := c.get(ctx, settingsPath)
	if err != nil {
		return err
	}
	vars := parseScriptVars(body)

	c.serialNo = vars["SerialNo"]
	if v, ok := vars["Capability"]; ok {
		capability, err := strconv.ParseUint(v, 0, 16)
		if err != nil {
			return &ResponseError{URL: c.url(settingsPath), Reason: fmt.Sprintf("invalid Capability %q", v)}
		}
		c.capability = uint16(capability)
	}
	if v, ok := vars["MaxOutput"]; ok {
		maxOutput, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return &ResponseError{URL: c.url(settingsPath), Reason: fmt.Sprintf("invalid MaxOutput %q", v)}
		}
		c.maxOutput = maxOutput
	}
	c.dcStrings = 1
	if v, ok := vars["NoOfStrings"]; ok {
		dcStrings, err := strconv.Atoi(v)
		if err != nil {
			return &ResponseError{URL: c.url(settingsPath), Reason: fmt.Sprintf("invalid NoOfStrings %q", v)}
		}
		c.dcStrings = dcStrings
	}
	c.logger.Debug("inverter interrogated",
		zap.String("host", host),
		zap.String("serial", c.serialNo),
		zap.Uint16("capability", c.capability),
		zap.Float64("max_output", c.maxOutput),
		zap.Int("dc_strings", c.dcStrings))
	return nil
}

func (c *Client) SerialNo() string   { return c.serialNo }
func (c *Client) Capability() uint16 { return c.capability }
func (c *Client) MaxOutput() float64 { return c.maxOutput }
func (c *Client) DCStrings() int     { return c.dcStrings }

func (c *Client) Configure(capability uint16, maxOutput float64, dcStrings int) {
	c.capability = capability
	c.maxOutput = maxOutput
	c.dcStrings = dcStrings
}

func (c *Client) SetupSensors() {
	c.sensors = buildSensors(c.capability, c.dcStrings)
}

func (c *Client) Sensors() []*Sensor {
	return c.sensors
}

func (c *Client) ReadMeters(ctx context.Context) error {
	return c.read(ctx, metersPath, true)
}

func (c *Client) ReadData(ctx context.Context) error {
	return c.read(ctx, dataPath, false)
}

func (c *Client) read(ctx context.Context, path string, meter bool) error {
	body, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	readings, err := parseRegisters(body)
	if err != nil {
		return &ResponseError{URL: c.url(path), Reason: err.Error()}
	}
	applyReadings(c.sensors, meter, readings, c.maxOutput, c.now())
	return nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	url := c.url(path)
	resp, err := c.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, &ConnectError{Host: c.host, Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &ResponseError{URL: url, StatusCode: resp.StatusCode()}
	}
	return resp.Body(), nil
}

func (c *Client) url(path string) string {
	if strings.HasPrefix(c.host, "http://") || strings.HasPrefix(c.host, "https://") {
		return strings.TrimSuffix(c.host, "/") + path
	}
	return "http://" + c.host + path
}

var scriptVarRegexp = regexp.MustCompile(`var\s+([A-Za-z0-9_]+)\s*=\s*"?([^";\r\n]*)"?\s*;`)

func parseScriptVars(body []byte) map[string]string {
	vars := map[string]string{}
	for _, m := range scriptVarRegexp.FindAllSubmatch(body, -1) {
		vars[string(m[1])] = strings.TrimSpace(string(m[2]))
	}
	return vars
}

type xmlRegisters struct {
	Items []xmlRegister `xml:",any"`
}

type xmlRegister struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

// parseRegisters decodes a flat XML document of hex encoded registers.
// Empty elements are skipped.
func parseRegisters(body []byte) (map[string]uint64, error) {
	var doc xmlRegisters
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, err
	}
	readings := make(map[string]uint64, len(doc.Items))
	for _, item := range doc.Items {
		v := strings.TrimSpace(item.Value)
		if v == "" {
			continue
		}
		n, err := strconv.ParseUint(v, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("register %s: %w", item.XMLName.Local, err)
		}
		readings[item.XMLName.Local] = n
	}
	return readings, nil
}

// ensure interface compliance
var _ Inverter = (*Client)(nil)
