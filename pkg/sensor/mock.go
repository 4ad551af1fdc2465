package sensor

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/chewxy/math32"

	"github.com/itohio/picolimno/pkg/config"
)

// Mock simulates a sensor board for testing and development. The water
// level follows a slow sine wave with noise and random dropouts.
type Mock struct {
	cfg *config.MockConfig

	mu        sync.Mutex
	rnd       *rand.Rand
	now       func() time.Time
	startTime time.Time
	begun     bool
}

// NewMock creates a new simulated board.
func NewMock(cfg *config.MockConfig, seed uint64) *Mock {
	if cfg == nil {
		cfg = &config.MockConfig{
			LevelMM:     1500,
			AmplitudeMM: 300,
			Period:      6 * time.Hour,
			NoiseMM:     5,
			Dropout:     0.05,
			Temperature: 12.5,
			Hygrometry:  70,
			Battery:     3.9,
		}
	}
	return &Mock{
		cfg: cfg,
		rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now: time.Now,
	}
}

// Begin simulates board initialisation.
func (m *Mock) Begin(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.begun = true
	m.startTime = m.now()
	return nil
}

// Range returns a simulated range pulse.
func (m *Mock) Range(context.Context) (uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dropout() {
		return 0, false
	}

	level := float32(m.cfg.LevelMM)
	if m.cfg.Period > 0 {
		phase := float32(m.now().Sub(m.startTime).Seconds() / m.cfg.Period.Seconds())
		level += float32(m.cfg.AmplitudeMM) * math32.Sin(2*math32.Pi*phase)
	}
	level += float32(m.cfg.NoiseMM) * float32(m.rnd.NormFloat64())

	if level < 0 {
		return 0, false
	}
	pulse := uint32(level)
	if !ValidPulse(pulse) {
		return 0, false
	}
	return pulse, true
}

// Climate returns simulated temperature and humidity. The values go through
// the same frame encoding as the real probe.
func (m *Mock) Climate(context.Context) (float32, float32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dropout() {
		return 0, 0, false
	}

	t := float32(m.cfg.Temperature) + float32(m.rnd.NormFloat64())*0.2
	h := float32(m.cfg.Hygrometry) + float32(m.rnd.NormFloat64())
	h = math32.Max(0, math32.Min(h, 100))

	t, h, err := DecodeAM2302(EncodeAM2302(t, h))
	if err != nil {
		return 0, 0, false
	}
	return t, h, true
}

// Battery returns a simulated battery voltage.
func (m *Mock) Battery(context.Context) (float32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	adc := float32(m.cfg.Battery) * (ADCMax * DividerBottom) / (VRef * DividerTop)
	adc += float32(m.rnd.NormFloat64())
	if adc < 0 || adc >= ADCMax {
		return 0, false
	}
	return BatteryVolts(uint32(adc)), true
}

func (m *Mock) dropout() bool {
	return m.cfg.Dropout > 0 && m.rnd.Float64() < m.cfg.Dropout
}
