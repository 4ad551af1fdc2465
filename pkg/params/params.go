// Package params parses the remote parameter document and applies it to the
// live alert and schedule policy.
package params

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/itohio/picolimno/pkg/schedule"
)

// Document keys.
const (
	KeyLimit1 = "limit1R"
	KeyHyst1  = "hyst1R"
	KeyLimit2 = "limit2O"
	KeyHyst2  = "hyst2O"
	KeyStart  = "start"
	KeyStop   = "stop"
	KeyReset  = "reset"
)

// ErrMalformed is returned when the body is not a JSON object.
var ErrMalformed = errors.New("malformed parameters")

// Limits is one alert threshold with its hysteresis band.
type Limits struct {
	Threshold  float32
	Hysteresis float32
}

// Document is a decoded parameter document. Nil limits mean the pair was not
// present. Start and stop are always defined. ResetMinute is
// schedule.NoReset when absent.
type Document struct {
	Alert1      *Limits
	Alert2      *Limits
	StartHour   int
	StopHour    int
	ResetMinute int

	// Warnings lists keys that were present but could not be used.
	Warnings []string
}

// Parse decodes a parameter document. Values may be JSON numbers or numeric
// strings. An alert is only updated when both its limit and hysteresis keys
// are present and valid.
func Parse(body []byte) (Document, error) {
	doc := Document{ResetMinute: schedule.NoReset}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(body), &raw); err != nil {
		return doc, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if raw == nil {
		return doc, fmt.Errorf("%w: not an object", ErrMalformed)
	}

	doc.Alert1 = doc.limits(raw, KeyLimit1, KeyHyst1)
	doc.Alert2 = doc.limits(raw, KeyLimit2, KeyHyst2)
	doc.StartHour = doc.hour(raw, KeyStart)
	doc.StopHour = doc.hour(raw, KeyStop)

	if v, ok := raw[KeyReset]; ok && !isNull(v) {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			doc.warn(KeyReset, "not a string")
		} else if m, err := schedule.ParseReset(s); err != nil {
			doc.warn(KeyReset, err.Error())
		} else {
			doc.ResetMinute = m
		}
	}

	return doc, nil
}

func (d *Document) limits(raw map[string]json.RawMessage, limitKey, hystKey string) *Limits {
	lv, lok := raw[limitKey]
	hv, hok := raw[hystKey]
	if !lok || !hok {
		return nil
	}
	limit, err := number(lv)
	if err != nil {
		d.warn(limitKey, err.Error())
		return nil
	}
	hyst, err := number(hv)
	if err != nil {
		d.warn(hystKey, err.Error())
		return nil
	}
	return &Limits{Threshold: limit, Hysteresis: hyst}
}

func (d *Document) hour(raw map[string]json.RawMessage, key string) int {
	v, ok := raw[key]
	if !ok || isNull(v) {
		return 0
	}
	f, err := number(v)
	if err != nil {
		d.warn(key, err.Error())
		return 0
	}
	h := int(f)
	if h < 0 || h > 23 {
		d.warn(key, fmt.Sprintf("hour %d out of range", h))
		return 0
	}
	return h
}

func (d *Document) warn(key, msg string) {
	d.Warnings = append(d.Warnings, key+": "+msg)
}

func isNull(v json.RawMessage) bool {
	return string(bytes.TrimSpace(v)) == "null"
}

// number accepts 12.5 as well as "12.5".
func number(v json.RawMessage) (float32, error) {
	var f float64
	if err := json.Unmarshal(v, &f); err == nil {
		return float32(f), nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return 0, fmt.Errorf("not a number: %s", string(v))
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	return float32(f), nil
}
