// Package sensor produces the readings a client node sends to its server.
package sensor

import (
	"fmt"
	"math"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"
	"periph.io/x/host/v3"

	"smart-greenhouse/internal/sample"
)

// Reading holds whatever a source measured; absent quantities are nil.
type Reading struct {
	Temperature  *float32
	Humidity     *float32
	CO2          *uint16
	SoilMoisture *float32
}

type Reader interface {
	Read() (Reading, error)
	Close() error
}

// BME280 reads temperature and humidity from a Bosch BME280 on I2C.
type BME280 struct {
	bus i2c.BusCloser
	dev *bmxx80.Dev
}

// OpenBME280 opens the named bus ("" for the default, usually /dev/i2c-1)
// and the sensor at addr.
func OpenBME280(bus string, addr uint16) (*BME280, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host.Init: %w", err)
	}
	b, err := i2creg.Open(bus)
	if err != nil {
		return nil, fmt.Errorf("i2creg.Open(%q): %w", bus, err)
	}
	dev, err := bmxx80.NewI2C(b, addr, &bmxx80.DefaultOpts)
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("bmxx80.NewI2C(%#x): %w", addr, err)
	}
	return &BME280{bus: b, dev: dev}, nil
}

func (s *BME280) Read() (Reading, error) {
	var env physic.Env
	if err := s.dev.Sense(&env); err != nil {
		return Reading{}, fmt.Errorf("sense: %w", err)
	}
	return fromEnv(env), nil
}

func (s *BME280) Close() error {
	haltErr := s.dev.Halt()
	if err := s.bus.Close(); err != nil {
		return err
	}
	return haltErr
}

func fromEnv(env physic.Env) Reading {
	temp := float32(env.Temperature.Celsius())
	// Humidity is fixed point at 0.00001 %rH.
	hum := float32(float64(env.Humidity) / float64(physic.PercentRH))
	return Reading{Temperature: &temp, Humidity: &hum}
}

// Synthetic produces a smooth daily cycle for every quantity. It stands in
// for hardware in simulation and development.
type Synthetic struct {
	now func() time.Time
}

func NewSynthetic(now func() time.Time) *Synthetic {
	if now == nil {
		now = time.Now
	}
	return &Synthetic{now: now}
}

func (s *Synthetic) Read() (Reading, error) {
	t := s.now()
	day := float64(t.Hour()*3600+t.Minute()*60+t.Second()) / 86400
	// Warmest mid-afternoon.
	phase := math.Sin(2 * math.Pi * (day - 0.375))

	temp := float32(21 + 6*phase)
	hum := float32(60 - 15*phase)
	co2 := uint16(650 - 200*phase)
	soil := float32(45 - 5*phase)
	return Reading{Temperature: &temp, Humidity: &hum, CO2: &co2, SoilMoisture: &soil}, nil
}

func (s *Synthetic) Close() error { return nil }

// Sampler stamps readings with the node identity and a running sequence.
type Sampler struct {
	reader   Reader
	clientID uint16
	position uint8

	mu  sync.Mutex
	seq uint32
}

func NewSampler(r Reader, clientID uint16, position uint8) *Sampler {
	return &Sampler{reader: r, clientID: clientID, position: position}
}

// Next reads the source and returns the next sample. Failed reads do not
// consume a sequence number.
func (s *Sampler) Next() (sample.Sample, error) {
	r, err := s.reader.Read()
	if err != nil {
		return sample.Sample{}, err
	}
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	return sample.Sample{
		ClientID:     s.clientID,
		Position:     s.position,
		Sequence:     seq,
		Temperature:  r.Temperature,
		Humidity:     r.Humidity,
		CO2:          r.CO2,
		SoilMoisture: r.SoilMoisture,
	}, nil
}
