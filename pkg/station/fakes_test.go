package station

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/itohio/picolimno/pkg/alert"
	"github.com/itohio/picolimno/pkg/batch"
	"github.com/itohio/picolimno/pkg/clock"
	"github.com/itohio/picolimno/pkg/sample"
	"github.com/itohio/picolimno/pkg/schedule"
)

var errLink = errors.New("link down")

type fakeSensors struct {
	mu        sync.Mutex
	pulses    []uint32 // 0 means invalid
	climateOK bool
	batteryOK bool
	beginErr  error
	calls     int
}

func (f *fakeSensors) Begin(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.beginErr
}

func (f *fakeSensors) Range(context.Context) (uint32, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.pulses) == 0 {
		return 0, false
	}
	p := f.pulses[0]
	if len(f.pulses) > 1 {
		f.pulses = f.pulses[1:]
	}
	return p, p != 0
}

func (f *fakeSensors) Climate(context.Context) (float32, float32, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return 12.5, 70, f.climateOK
}

func (f *fakeSensors) Battery(context.Context) (float32, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return 3.9, f.batteryOK
}

func (f *fakeSensors) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeModem struct {
	mu         sync.Mutex
	connectErr error
	imeiErr    error
	connects   int
	calls      int
}

func (f *fakeModem) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.connects++
	return f.connectErr
}

func (f *fakeModem) IMEI(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.imeiErr != nil {
		return "", f.imeiErr
	}
	return "356938035643809", nil
}

func (f *fakeModem) LocalIP(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return "10.0.0.7", nil
}

func (f *fakeModem) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type statusCall struct {
	state string
	ip    string
	at    time.Time
}

type fakeUplink struct {
	mu       sync.Mutex
	imei     string
	statuses []statusCall
	fail     int // number of calls to fail
	calls    int
}

func (f *fakeUplink) SetIMEI(imei string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imei = imei
}

func (f *fakeUplink) SendStatus(_ context.Context, state, ip string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail > 0 {
		f.fail--
		return errLink
	}
	f.statuses = append(f.statuses, statusCall{state: state, ip: ip, at: at})
	return nil
}

func (f *fakeUplink) Statuses() []statusCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]statusCall(nil), f.statuses...)
}

type fakeSender struct {
	mu      sync.Mutex
	batches [][]sample.Sample
	fail    int
	calls   int
}

func (f *fakeSender) SendSamples(_ context.Context, samples []sample.Sample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail > 0 {
		f.fail--
		return errLink
	}
	f.batches = append(f.batches, samples)
	return nil
}

func (f *fakeSender) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeRefresher struct {
	mu    sync.Mutex
	err   error
	calls int
	onRun func()
}

func (f *fakeRefresher) Refresh(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.onRun != nil {
		f.onRun()
	}
	return f.err
}

func (f *fakeRefresher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeRestarter struct {
	reasons []string
}

func (f *fakeRestarter) Restart(reason string) {
	f.reasons = append(f.reasons, reason)
}

type fakeKicker struct {
	mu    sync.Mutex
	kicks int
}

func (f *fakeKicker) Kick() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kicks++
	return nil
}

type harness struct {
	app       *App
	clock     *clock.Manual
	sensors   *fakeSensors
	modem     *fakeModem
	uplink    *fakeUplink
	sender    *fakeSender
	refresher *fakeRefresher
	restarter *fakeRestarter
}

func newHarness(at time.Time, capacity int) *harness {
	log, _ := test.NewNullLogger()
	h := &harness{
		clock:     clock.NewManual(at),
		sensors:   &fakeSensors{pulses: []uint32{1500}, climateOK: true, batteryOK: true},
		modem:     &fakeModem{},
		uplink:    &fakeUplink{},
		sender:    &fakeSender{},
		refresher: &fakeRefresher{},
		restarter: &fakeRestarter{},
	}
	h.app = &App{
		Clock: h.clock,
		Schedule: &schedule.Config{
			Tick:             time.Minute,
			SampleInterval:   time.Minute,
			TransmitInterval: 15 * time.Minute,
			ResetMinute:      schedule.NoReset,
		},
		Sensors:      h.sensors,
		Modem:        h.modem,
		Uplink:       h.uplink,
		Batch:        batch.New(h.sender, capacity, log, nil),
		Refresher:    h.refresher,
		Median:       sample.NewMedian(3, 10),
		Alert1:       alert.NewWithState(true),
		Alert2:       alert.NewWithState(true),
		Restarter:    h.restarter,
		BuildDate:    time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC),
		ClockRetries: 3,
		Uptime:       func() time.Duration { return time.Hour },
		Log:          log,
	}
	return h
}
