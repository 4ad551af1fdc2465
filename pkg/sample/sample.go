package sample

import (
	"fmt"
	"time"
)

// Key names the variable a Sample carries on the wire.
type Key string

const (
	KeyRange        Key = "range"
	KeyTemperature  Key = "temp"
	KeyHygrometry   Key = "hygro"
	KeyBattery      Key = "vbat"
	KeyAlert1       Key = "alert1"
	KeyAlert2       Key = "alert2"
	KeyInvalidRange Key = "invalid range"
)

// Sample is one timestamped measurement. It is captured at measurement time
// and never modified afterwards.
type Sample struct {
	Epoch int64   // seconds since Unix epoch, taken from the station clock
	Key   Key     // variable name
	Value float32 // physical value (cm, °C, %RH, V)
}

// New creates a Sample stamped with t.
func New(t time.Time, key Key, value float32) Sample {
	return Sample{
		Epoch: t.Unix(),
		Key:   key,
		Value: value,
	}
}

// Time returns the capture time in UTC.
func (s Sample) Time() time.Time {
	return time.Unix(s.Epoch, 0).UTC()
}

func (s Sample) String() string {
	return fmt.Sprintf("%s=%s@%d", s.Key, FormatValue(s.Value), s.Epoch)
}
