// Package sample is the fixed-length sensor payload written by a client node
// to the greenhouse characteristic.
//
// Layout (little-endian, 24 bytes):
//
//	[0:2]   magic 0x01 0xD0
//	[2:4]   client id uint16
//	[4]     position uint8
//	[5]     presence flags (bit0 temperature, bit1 humidity, bit2 co2, bit3 soil moisture)
//	[6:10]  temperature float32, degrees Celsius
//	[10:14] humidity float32, percent
//	[14:16] co2 uint16, ppm
//	[16:20] soil moisture float32, percent
//	[20:24] sequence uint32
//
// Bytes of absent fields are written as zero and ignored when decoding.
package sample

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	payloadMagic0 = 0x01
	payloadMagic1 = 0xD0

	// PayloadLen is the exact length of an encoded sample.
	PayloadLen = 24
)

const (
	flagTemperature byte = 1 << iota
	flagHumidity
	flagCO2
	flagSoilMoisture

	knownFlags = flagTemperature | flagHumidity | flagCO2 | flagSoilMoisture
)

var ErrMalformedPayload = errors.New("malformed sample payload")

// Sample is one set of readings from a client node. Nil fields were not
// measured.
type Sample struct {
	ClientID     uint16
	Position     uint8
	Sequence     uint32
	Temperature  *float32
	Humidity     *float32
	CO2          *uint16
	SoilMoisture *float32
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

// Encode returns the wire form of s.
func Encode(s Sample) []byte {
	buf := make([]byte, PayloadLen)
	buf[0] = payloadMagic0
	buf[1] = payloadMagic1
	binary.LittleEndian.PutUint16(buf[2:4], s.ClientID)
	buf[4] = s.Position

	var flags byte
	if s.Temperature != nil {
		flags |= flagTemperature
		binary.LittleEndian.PutUint32(buf[6:10], math.Float32bits(*s.Temperature))
	}
	if s.Humidity != nil {
		flags |= flagHumidity
		binary.LittleEndian.PutUint32(buf[10:14], math.Float32bits(*s.Humidity))
	}
	if s.CO2 != nil {
		flags |= flagCO2
		binary.LittleEndian.PutUint16(buf[14:16], *s.CO2)
	}
	if s.SoilMoisture != nil {
		flags |= flagSoilMoisture
		binary.LittleEndian.PutUint32(buf[16:20], math.Float32bits(*s.SoilMoisture))
	}
	buf[5] = flags
	binary.LittleEndian.PutUint32(buf[20:24], s.Sequence)
	return buf
}

// Decode parses a payload produced by Encode. Every failure wraps
// ErrMalformedPayload.
func Decode(data []byte) (Sample, error) {
	if len(data) != PayloadLen {
		return Sample{}, fmt.Errorf("%w: length %d, want %d", ErrMalformedPayload, len(data), PayloadLen)
	}
	if data[0] != payloadMagic0 || data[1] != payloadMagic1 {
		return Sample{}, fmt.Errorf("%w: invalid magic %02X %02X", ErrMalformedPayload, data[0], data[1])
	}
	flags := data[5]
	if flags&^knownFlags != 0 {
		return Sample{}, fmt.Errorf("%w: unknown flags 0x%02X", ErrMalformedPayload, flags)
	}

	s := Sample{
		ClientID: binary.LittleEndian.Uint16(data[2:4]),
		Position: data[4],
		Sequence: binary.LittleEndian.Uint32(data[20:24]),
	}

	var err error
	if flags&flagTemperature != 0 {
		if s.Temperature, err = readFloat(data[6:10], "temperature"); err != nil {
			return Sample{}, err
		}
	}
	if flags&flagHumidity != 0 {
		if s.Humidity, err = readFloat(data[10:14], "humidity"); err != nil {
			return Sample{}, err
		}
	}
	if flags&flagCO2 != 0 {
		s.CO2 = Ptr(binary.LittleEndian.Uint16(data[14:16]))
	}
	if flags&flagSoilMoisture != 0 {
		if s.SoilMoisture, err = readFloat(data[16:20], "soil moisture"); err != nil {
			return Sample{}, err
		}
	}
	return s, nil
}

func readFloat(b []byte, field string) (*float32, error) {
	v := math.Float32frombits(binary.LittleEndian.Uint32(b))
	if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
		return nil, fmt.Errorf("%w: %s is not a finite number", ErrMalformedPayload, field)
	}
	return &v, nil
}
