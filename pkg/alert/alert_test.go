package alert

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
)

func TestAlert_Hysteresis(t *testing.T) {
	a := New(500, 0)

	assert.False(t, a.Test(499), "initially below, no transition")
	assert.False(t, a.Status())

	assert.True(t, a.Test(501), "transition to above")
	assert.True(t, a.Status())

	assert.False(t, a.Test(500.5), "still above, no re-trigger")
	assert.True(t, a.Status())

	assert.True(t, a.Test(499), "transition back to below")
	assert.False(t, a.Status())
}

func TestAlert_Band(t *testing.T) {
	tests := []struct {
		name   string
		values []float32
		want   []bool
	}{
		{
			name:   "band guards upward edge",
			values: []float32{100, 104, 105, 105.5},
			want:   []bool{false, false, false, true},
		},
		{
			name:   "downward edge has no band",
			values: []float32{106, 101, 100, 99.9},
			want:   []bool{true, false, false, true},
		},
		{
			name:   "flapping inside the band is ignored",
			values: []float32{106, 102, 104, 103, 101},
			want:   []bool{true, false, false, false, false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(100, 5)
			for i, v := range tt.values {
				assert.Equal(t, tt.want[i], a.Test(v), "value %v at step %d", v, i)
			}
		})
	}
}

func TestAlert_Idempotent(t *testing.T) {
	a := New(10, 1)
	assert.True(t, a.Test(20))
	assert.False(t, a.Test(20))
	assert.False(t, a.Test(20))

	assert.True(t, a.Test(5))
	assert.False(t, a.Test(5))
}

func TestAlert_Enabled(t *testing.T) {
	assert.False(t, New(0, 0).Enabled())
	assert.True(t, New(1, 0).Enabled())
	assert.True(t, New(0, 1).Enabled())
	assert.False(t, NewWithState(true).Enabled())
}

func TestAlert_NewWithState(t *testing.T) {
	a := NewWithState(true)
	assert.True(t, a.Status())

	a.Configure(50, 2)
	assert.True(t, a.Status(), "configure must not reset state")

	assert.True(t, a.Test(40), "first reading below threshold reports a transition")
	assert.False(t, a.Status())
}

func TestAlert_ConfigureKeepsState(t *testing.T) {
	a := New(100, 0)
	assert.True(t, a.Test(150))

	a.Configure(200, 10)
	assert.True(t, a.Status())
	assert.Equal(t, float32(200), a.Threshold())
	assert.Equal(t, float32(10), a.Hysteresis())

	assert.False(t, a.Test(205), "still above the new threshold")
	assert.True(t, a.Test(150))
}

func TestAlert_NaN(t *testing.T) {
	a := New(1, 0)
	assert.False(t, a.Test(math32.NaN()))
	assert.False(t, a.Status())
}

func TestAlert_String(t *testing.T) {
	assert.Equal(t, "below (threshold 1.50, hysteresis 0.25)", New(1.5, 0.25).String())
}
