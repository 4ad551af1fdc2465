//go:build tinygo

package main

import "machine"

const (
	// Range finder: MaxBotix pulse width output, 1us per mm.
	PIN_RANGE       = machine.D2
	PIN_RANGE_POWER = machine.D3
	RANGE_TIMEOUT   = 50000 // us, longer than the widest pulse

	// AM2302 single wire data pin.
	PIN_AM2302        = machine.D4
	AM2302_START_MS   = 2    // host start signal
	AM2302_TIMEOUT_US = 200  // per edge
	AM2302_ONE_US     = 50   // high time above which a bit is 1
	AM2302_SETTLE_MS  = 2000 // minimum time between two conversions

	// Battery divider.
	PIN_BATTERY     = machine.A1
	BATTERY_SAMPLES = 16
	ADC_REFERENCE   = 3300 // mV
	ADC_RESOLUTION  = 10   // bits reported to the host

	// Serial configuration. Replies are short ("H,028c015fee\n"), 115200
	// leaves the host timeout of 500ms far away.
	UART_BAUD_RATE = 115200
)
