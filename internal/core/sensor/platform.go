package sensor

import (
	"github.com/berfenger/enasolar2mqtt/internal/core/domain"
	"github.com/berfenger/enasolar2mqtt/pkg/enasolar"

	"go.uber.org/zap"
)

type Publisher interface {
	Publish(event domain.SensorUpdateEvent)
}

type PublisherFunc func(event domain.SensorUpdateEvent)

func (f PublisherFunc) Publish(event domain.SensorUpdateEvent) {
	f(event)
}

// Platform holds the entities of one config entry, split in meter and data
// groups, and pushes their changes to a publisher.
type Platform struct {
	device    domain.Device
	meters    []*Entity
	data      []*Entity
	publisher Publisher
	logger    *zap.Logger
}

// NewPlatform configures the inverter with the entry data, builds its
// sensors and wraps every enabled one in an entity.
func NewPlatform(entry domain.ConfigEntry, inverter enasolar.Inverter, logger *zap.Logger) (*Platform, error) {
	inverter.Configure(entry.Data.Capability, entry.Data.MaxOutput, entry.Data.DCStrings)
	logger.Debug("setting up sensors",
		zap.Float64("max_output", entry.Data.MaxOutput),
		zap.Int("dc_strings", entry.Data.DCStrings),
		zap.Uint16("capability", entry.Data.Capability))
	inverter.SetupSensors()

	device := domain.InverterDevice(entry, inverter.SerialNo())
	p := &Platform{
		device: device,
		logger: logger,
	}
	for _, s := range inverter.Sensors() {
		if !s.Enabled {
			continue
		}
		e, err := NewEntity(s, device, entry.Data.Name, inverter.SerialNo())
		if err != nil {
			return nil, err
		}
		if s.IsMeter {
			p.meters = append(p.meters, e)
		} else {
			p.data = append(p.data, e)
		}
	}
	return p, nil
}

func (p *Platform) SetPublisher(publisher Publisher) {
	p.publisher = publisher
}

func (p *Platform) Device() domain.Device {
	return p.device
}

func (p *Platform) Meters() []*Entity {
	return p.meters
}

func (p *Platform) Data() []*Entity {
	return p.data
}

func (p *Platform) Entities() []*Entity {
	return append(append([]*Entity{}, p.meters...), p.data...)
}

func (p *Platform) Sensors() []domain.GenericSensor {
	entities := p.Entities()
	sensors := make([]domain.GenericSensor, 0, len(entities))
	for _, e := range entities {
		sensors = append(sensors, e.Sensor())
	}
	return sensors
}

func (p *Platform) HandleRefresh(result RefreshResult) {
	p.update(p.meters, result)
	p.update(p.data, result)
}

// Republish sends the cached state of every entity again, used when the
// broker connection comes back.
func (p *Platform) Republish() {
	if p.publisher == nil {
		return
	}
	for _, e := range p.Entities() {
		if event, ok := e.State(); ok {
			p.publisher.Publish(event)
		}
	}
}

func (p *Platform) update(entities []*Entity, result RefreshResult) {
	for _, e := range entities {
		unknown := result.Failed(e.IsMeter()) && forceUnknown(e.sensor, result.Time)
		event, changed := e.Update(unknown)
		if !changed {
			continue
		}
		if e.value != nil {
			p.logger.Debug("sensor updated", zap.String("sensor", e.id), zap.Float64("value", *e.value))
		} else {
			p.logger.Debug("sensor updated", zap.String("sensor", e.id), zap.String("value", "unknown"))
		}
		if p.publisher != nil {
			p.publisher.Publish(event)
		}
	}
}

// ensure interface compliance
var _ Subscriber = (*Platform)(nil)
