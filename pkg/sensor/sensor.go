// Package sensor talks to the station sensor board: an ultrasonic range
// finder, an AM2302 temperature/humidity probe and the battery divider.
package sensor

import (
	"context"
	"errors"
	"fmt"

	"github.com/chewxy/math32"
)

const (
	// MinPulse and MaxPulse bound a valid range pulse in microseconds
	// (1us per mm).
	MinPulse = 600
	MaxPulse = 9000

	// ADCMax is the full scale of the battery ADC.
	ADCMax = 1024
	// VRef is the ADC reference voltage.
	VRef = 3.3
	// Divider ratio of the battery measurement (R1+R2)/R2.
	DividerTop    = 153
	DividerBottom = 120
)

var (
	// ErrInvalid marks a reading that failed validation.
	ErrInvalid = errors.New("invalid reading")
	// ErrChecksum marks an AM2302 frame with a wrong checksum.
	ErrChecksum = errors.New("checksum mismatch")
	// ErrTimeout is returned when the board does not answer in time.
	ErrTimeout = errors.New("sensor board timeout")
)

// Sensors is the hardware collaborator of the measurement cycle. Reads never
// fail with an error: an invalid reading returns ok=false.
type Sensors interface {
	Begin(ctx context.Context) error
	Range(ctx context.Context) (pulse uint32, ok bool)
	Climate(ctx context.Context) (temperature, hygrometry float32, ok bool)
	Battery(ctx context.Context) (volts float32, ok bool)
}

var (
	_ Sensors = (*Serial)(nil)
	_ Sensors = (*Mock)(nil)
)

// ValidPulse reports whether a range pulse is inside the sensor range.
func ValidPulse(pulse uint32) bool {
	return pulse >= MinPulse && pulse <= MaxPulse
}

// PulseToCentimeters converts a range pulse to the distance reported upstream.
func PulseToCentimeters(pulse uint32) float32 {
	return float32(pulse) / 10
}

// BatteryVolts converts an averaged ADC reading to battery volts.
func BatteryVolts(adc uint32) float32 {
	return float32(adc) * (VRef * DividerTop) / (ADCMax * DividerBottom)
}

// DecodeAM2302 validates and decodes a 40 bit AM2302 frame: humidity and
// temperature in tenths, big endian, followed by a checksum byte.
func DecodeAM2302(frame [5]byte) (temperature, hygrometry float32, err error) {
	sum := frame[0] + frame[1] + frame[2] + frame[3]
	if sum != frame[4] {
		return 0, 0, fmt.Errorf("%w: got %#02x want %#02x", ErrChecksum, frame[4], sum)
	}

	rawH := uint16(frame[0])<<8 | uint16(frame[1])
	rawT := uint16(frame[2])<<8 | uint16(frame[3])

	hygrometry = float32(rawH) / 10
	temperature = float32(rawT&0x7fff) / 10
	if rawT&0x8000 != 0 {
		temperature = -temperature
	}
	if hygrometry > 100 || math32.Abs(temperature) > 80 {
		return 0, 0, fmt.Errorf("%w: t=%.1f h=%.1f", ErrInvalid, temperature, hygrometry)
	}
	return temperature, hygrometry, nil
}

// EncodeAM2302 builds a frame for the given values. Used by the mock board.
func EncodeAM2302(temperature, hygrometry float32) [5]byte {
	h := uint16(hygrometry*10 + 0.5)
	t := uint16(math32.Abs(temperature)*10 + 0.5)
	if temperature < 0 {
		t |= 0x8000
	}
	f := [5]byte{byte(h >> 8), byte(h), byte(t >> 8), byte(t)}
	f[4] = f[0] + f[1] + f[2] + f[3]
	return f
}
