//go:build tinygo

//go:generate tinygo flash -target=xiao

// Command firmware runs on the sensor board and answers one line command at
// a time: P (ping), R (range pulse), H (AM2302 frame), B (battery ADC).
package main

import (
	"machine"
	"time"
)

var (
	adcBattery machine.ADC
	uart       = machine.UART0

	lastAM2302 time.Time

	// Serial buffer for reading lines
	serialBuffer [8]byte
	serialPos    int
)

func main() {
	PIN_RANGE.Configure(machine.PinConfig{Mode: machine.PinInput})
	PIN_RANGE_POWER.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_RANGE_POWER.High()

	PIN_AM2302.Configure(machine.PinConfig{Mode: machine.PinInputPullup})

	machine.InitADC()
	PIN_BATTERY.Configure(machine.PinConfig{Mode: machine.PinInput})
	adcBattery = machine.ADC{Pin: PIN_BATTERY}
	adcBattery.Configure(machine.ADCConfig{
		Reference:  ADC_REFERENCE,
		Resolution: 12,
	})

	uart.Configure(machine.UARTConfig{BaudRate: UART_BAUD_RATE})

	for {
		processSerial()
		time.Sleep(100 * time.Microsecond)
	}
}

func processSerial() {
	for uart.Buffered() > 0 {
		data, err := uart.ReadByte()
		if err != nil {
			break
		}

		if data == '\n' || data == '\r' {
			if serialPos == 1 {
				handleCommand(serialBuffer[0])
			}
			serialPos = 0
			continue
		}

		if data == ' ' || data == '\t' {
			continue
		}

		if serialPos < len(serialBuffer) {
			serialBuffer[serialPos] = data
			serialPos++
		}
	}
}

func handleCommand(cmd byte) {
	switch cmd {
	case 'P':
		reply(cmd, "OK")
	case 'R':
		print("R,")
		print(readRange())
		print("\n")
	case 'H':
		frame, ok := readAM2302()
		if !ok {
			reply(cmd, "ERR")
			return
		}
		print("H,")
		for _, b := range frame {
			printHex(b)
		}
		print("\n")
	case 'B':
		print("B,")
		print(readBattery())
		print("\n")
	}
}

func reply(cmd byte, payload string) {
	print(string(cmd))
	print(",")
	print(payload)
	print("\n")
}

func printHex(b byte) {
	const digits = "0123456789abcdef"
	print(string(digits[b>>4]))
	print(string(digits[b&0x0f]))
}

// readRange measures the width of the next high pulse in microseconds.
// Zero means no pulse; the host validates the range.
func readRange() uint32 {
	if waitLevel(PIN_RANGE, false, RANGE_TIMEOUT) < 0 {
		return 0
	}
	if waitLevel(PIN_RANGE, true, RANGE_TIMEOUT) < 0 {
		return 0
	}
	width := waitLevel(PIN_RANGE, false, RANGE_TIMEOUT)
	if width < 0 {
		return 0
	}
	return uint32(width)
}

// readAM2302 runs one conversion and returns the raw 40 bit frame. The host
// checks the checksum.
func readAM2302() ([5]byte, bool) {
	var frame [5]byte

	if since := time.Since(lastAM2302); since < AM2302_SETTLE_MS*time.Millisecond {
		time.Sleep(AM2302_SETTLE_MS*time.Millisecond - since)
	}
	lastAM2302 = time.Now()

	PIN_AM2302.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_AM2302.Low()
	time.Sleep(AM2302_START_MS * time.Millisecond)
	PIN_AM2302.Configure(machine.PinConfig{Mode: machine.PinInputPullup})

	// Sensor response: low 80us, high 80us.
	if waitLevel(PIN_AM2302, false, AM2302_TIMEOUT_US) < 0 ||
		waitLevel(PIN_AM2302, true, AM2302_TIMEOUT_US) < 0 ||
		waitLevel(PIN_AM2302, false, AM2302_TIMEOUT_US) < 0 {
		return frame, false
	}

	for i := range 40 {
		if waitLevel(PIN_AM2302, true, AM2302_TIMEOUT_US) < 0 {
			return frame, false
		}
		high := waitLevel(PIN_AM2302, false, AM2302_TIMEOUT_US)
		if high < 0 {
			return frame, false
		}
		frame[i/8] <<= 1
		if high > AM2302_ONE_US {
			frame[i/8] |= 1
		}
	}
	return frame, true
}

// readBattery averages the battery ADC and scales it to ADC_RESOLUTION bits.
func readBattery() uint32 {
	var sum uint32
	for range BATTERY_SAMPLES {
		sum += uint32(adcBattery.Get())
		time.Sleep(time.Millisecond)
	}
	// machine.ADC.Get is left aligned on 16 bits.
	return (sum / BATTERY_SAMPLES) >> (16 - ADC_RESOLUTION)
}

// waitLevel waits until pin reads level and returns the elapsed
// microseconds, or -1 on timeout.
func waitLevel(pin machine.Pin, level bool, timeoutUS int64) int64 {
	start := time.Now()
	for pin.Get() != level {
		elapsed := time.Since(start).Microseconds()
		if elapsed > timeoutUS {
			return -1
		}
	}
	return time.Since(start).Microseconds()
}
