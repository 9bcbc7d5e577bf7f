package types

import (
	"time"

	"smart-greenhouse/internal/sample"
)

// Telemetry is the JSON message published for every sample a server node
// receives.
type Telemetry struct {
	ClientID     uint16    `json:"client_id"`
	Position     uint8     `json:"position"`
	Sequence     uint32    `json:"sequence"`
	Timestamp    time.Time `json:"timestamp"`
	Temperature  *float64  `json:"temperature_c,omitempty"`
	Humidity     *float64  `json:"humidity_pct,omitempty"`
	CO2          *int      `json:"co2_ppm,omitempty"`
	SoilMoisture *float64  `json:"soil_moisture_pct,omitempty"`
}

// FromSample converts s, received at ts, to its network form.
func FromSample(s sample.Sample, ts time.Time) Telemetry {
	t := Telemetry{
		ClientID:  s.ClientID,
		Position:  s.Position,
		Sequence:  s.Sequence,
		Timestamp: ts.UTC(),
	}
	if s.Temperature != nil {
		t.Temperature = sample.Ptr(float64(*s.Temperature))
	}
	if s.Humidity != nil {
		t.Humidity = sample.Ptr(float64(*s.Humidity))
	}
	if s.CO2 != nil {
		t.CO2 = sample.Ptr(int(*s.CO2))
	}
	if s.SoilMoisture != nil {
		t.SoilMoisture = sample.Ptr(float64(*s.SoilMoisture))
	}
	return t
}

// Sample converts t back to the sensor resolution of the BLE payload.
func (t Telemetry) Sample() sample.Sample {
	s := sample.Sample{
		ClientID: t.ClientID,
		Position: t.Position,
		Sequence: t.Sequence,
	}
	if t.Temperature != nil {
		s.Temperature = sample.Ptr(float32(*t.Temperature))
	}
	if t.Humidity != nil {
		s.Humidity = sample.Ptr(float32(*t.Humidity))
	}
	if t.CO2 != nil {
		s.CO2 = sample.Ptr(uint16(*t.CO2))
	}
	if t.SoilMoisture != nil {
		s.SoilMoisture = sample.Ptr(float32(*t.SoilMoisture))
	}
	return s
}
