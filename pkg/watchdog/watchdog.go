// Package watchdog resets the station when the main loop stops kicking.
package watchdog

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Watchdog must be kicked before its timeout elapses.
type Watchdog interface {
	Kick() error
	Close() error
}

var (
	_ Watchdog = (*Software)(nil)
	_ Watchdog = (*Device)(nil)
)

// Software fires expire when no kick arrives within the timeout.
type Software struct {
	timeout time.Duration
	expire  func()
	log     logrus.FieldLogger

	mu     sync.Mutex
	timer  *time.Timer
	closed bool
}

// NewSoftware arms a software watchdog.
func NewSoftware(timeout time.Duration, expire func(), log logrus.FieldLogger) *Software {
	w := &Software{
		timeout: timeout,
		expire:  expire,
		log:     log.WithField("component", "watchdog"),
	}
	w.timer = time.AfterFunc(timeout, w.fire)
	return w
}

func (w *Software) fire() {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return
	}
	w.log.WithField("timeout", w.timeout).Error("watchdog expired")
	w.expire()
}

// Kick re-arms the watchdog.
func (w *Software) Kick() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("watchdog closed")
	}
	w.timer.Reset(w.timeout)
	return nil
}

// Close disarms the watchdog.
func (w *Software) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closed = true
	w.timer.Stop()
	return nil
}

// Device drives a kernel watchdog such as /dev/watchdog. The timeout is the
// one configured in the driver.
type Device struct {
	mu sync.Mutex
	f  *os.File
}

// OpenDevice opens a watchdog device; opening it arms it.
func OpenDevice(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open watchdog %s: %w", path, err)
	}
	return &Device{f: f}, nil
}

// Kick writes a keep-alive byte.
func (d *Device) Kick() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.f == nil {
		return fmt.Errorf("watchdog closed")
	}
	if _, err := d.f.Write([]byte{0}); err != nil {
		return fmt.Errorf("failed to kick watchdog: %w", err)
	}
	return nil
}

// Close disarms the device with the magic close character.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.f == nil {
		return nil
	}
	if _, err := d.f.Write([]byte{'V'}); err != nil {
		d.f.Close()
		d.f = nil
		return fmt.Errorf("failed to disarm watchdog: %w", err)
	}
	err := d.f.Close()
	d.f = nil
	return err
}
