package sensor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/picolimno/pkg/config"
)

func TestMock_Range(t *testing.T) {
	cfg := &config.MockConfig{
		LevelMM:     2000,
		AmplitudeMM: 500,
		Period:      time.Hour,
		NoiseMM:     2,
	}
	m := NewMock(cfg, 1)
	ctx := context.Background()
	require.NoError(t, m.Begin(ctx))

	for range 100 {
		pulse, ok := m.Range(ctx)
		require.True(t, ok, "no dropouts configured")
		assert.True(t, ValidPulse(pulse))
		assert.InDelta(t, 2000, float64(pulse), 520)
	}
}

func TestMock_Dropout(t *testing.T) {
	cfg := &config.MockConfig{LevelMM: 2000, Dropout: 1}
	m := NewMock(cfg, 1)
	ctx := context.Background()
	require.NoError(t, m.Begin(ctx))

	_, ok := m.Range(ctx)
	assert.False(t, ok)
	_, _, ok = m.Climate(ctx)
	assert.False(t, ok)
}

func TestMock_OutOfRange(t *testing.T) {
	m := NewMock(&config.MockConfig{LevelMM: 100}, 1)
	_, ok := m.Range(context.Background())
	assert.False(t, ok, "closer than the sensor minimum")
}

func TestMock_ClimateAndBattery(t *testing.T) {
	m := NewMock(nil, 7)
	ctx := context.Background()
	require.NoError(t, m.Begin(ctx))

	var got bool
	for range 20 {
		temp, hygro, ok := m.Climate(ctx)
		if !ok {
			continue
		}
		got = true
		assert.InDelta(t, 12.5, temp, 2)
		assert.InDelta(t, 70, hygro, 10)
	}
	assert.True(t, got)

	v, ok := m.Battery(ctx)
	require.True(t, ok)
	assert.InDelta(t, 3.9, v, 0.05)
}

func TestMock_Deterministic(t *testing.T) {
	ctx := context.Background()
	a := NewMock(nil, 42)
	b := NewMock(nil, 42)
	now := time.Date(2018, 5, 23, 10, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }
	b.now = func() time.Time { return now }
	require.NoError(t, a.Begin(ctx))
	require.NoError(t, b.Begin(ctx))

	for range 10 {
		pa, oka := a.Range(ctx)
		pb, okb := b.Range(ctx)
		assert.Equal(t, oka, okb)
		assert.Equal(t, pa, pb)
	}
}
