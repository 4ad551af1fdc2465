package sample

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/chewxy/math32"
)

// wireSample is the on-the-wire form of a Sample. Every field is a quoted
// string, including the numeric ones; the server expects exactly this shape.
type wireSample struct {
	Epoch string `json:"epoch"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

// FormatValue renders a value with two decimals, the precision the station
// has always reported.
func FormatValue(v float32) string {
	if math32.IsNaN(v) || math32.IsInf(v, 0) {
		return "0.00"
	}
	return strconv.FormatFloat(float64(v), 'f', 2, 32)
}

// Encode serializes samples into a JSON array of
// {"epoch":"<seconds>","key":"<name>","value":"<decimal>"} objects.
func Encode(samples []Sample) ([]byte, error) {
	out := make([]wireSample, len(samples))
	for i, s := range samples {
		out[i] = wireSample{
			Epoch: strconv.FormatInt(s.Epoch, 10),
			Key:   string(s.Key),
			Value: FormatValue(s.Value),
		}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode samples: %w", err)
	}
	return data, nil
}

// Decode parses a payload produced by Encode. Values are recovered with the
// two-decimal precision they were sent with.
func Decode(data []byte) ([]Sample, error) {
	var in []wireSample
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("failed to decode samples: %w", err)
	}

	out := make([]Sample, 0, len(in))
	for i, w := range in {
		epoch, err := strconv.ParseInt(w.Epoch, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("sample %d: invalid epoch %q: %w", i, w.Epoch, err)
		}
		value, err := strconv.ParseFloat(w.Value, 32)
		if err != nil {
			return nil, fmt.Errorf("sample %d: invalid value %q: %w", i, w.Value, err)
		}
		out = append(out, Sample{
			Epoch: epoch,
			Key:   Key(w.Key),
			Value: float32(value),
		})
	}
	return out, nil
}
