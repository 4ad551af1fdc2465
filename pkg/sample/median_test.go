package sample

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// sequence returns a ReadFunc replaying values; 0 stands for "no reading".
func sequence(values ...uint32) (ReadFunc, *int) {
	calls := 0
	return func() (uint32, bool) {
		if calls >= len(values) {
			calls++
			return 0, false
		}
		v := values[calls]
		calls++
		return v, v != 0
	}, &calls
}

func TestMedian_Sample(t *testing.T) {
	tests := []struct {
		name        string
		readings    []uint32
		minValid    int
		maxAttempts int
		want        uint32
		wantValid   int
	}{
		{
			name:        "odd count picks middle",
			readings:    []uint32{30, 10, 20},
			minValid:    3,
			maxAttempts: 10,
			want:        20,
			wantValid:   3,
		},
		{
			name:        "even count picks upper middle",
			readings:    []uint32{40, 10, 30, 20},
			minValid:    4,
			maxAttempts: 10,
			want:        30,
			wantValid:   4,
		},
		{
			name:        "invalid readings are skipped",
			readings:    []uint32{0, 1500, 0, 0, 1400, 1600},
			minValid:    3,
			maxAttempts: 10,
			want:        1500,
			wantValid:   3,
		},
		{
			name:        "not enough valid readings",
			readings:    []uint32{0, 1500, 0, 1400, 0},
			minValid:    3,
			maxAttempts: 5,
			want:        Invalid,
			wantValid:   2,
		},
		{
			name:        "budget exhausted before valid readings",
			readings:    []uint32{0, 0, 1500, 1400, 1600},
			minValid:    3,
			maxAttempts: 4,
			want:        Invalid,
			wantValid:   2,
		},
		{
			name:        "min valid of one returns first valid reading",
			readings:    []uint32{0, 0, 1234, 10},
			minValid:    1,
			maxAttempts: 10,
			want:        1234,
			wantValid:   1,
		},
		{
			name:        "min valid below one behaves like one",
			readings:    []uint32{777, 1},
			minValid:    0,
			maxAttempts: 10,
			want:        777,
			wantValid:   1,
		},
		{
			name:        "zero attempts",
			readings:    []uint32{1000},
			minValid:    1,
			maxAttempts: 0,
			want:        Invalid,
			wantValid:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			read, _ := sequence(tt.readings...)
			got, n := NewMedian(tt.minValid, tt.maxAttempts).Sample(read)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantValid, n)
		})
	}
}

func TestMedian_EarlyExit(t *testing.T) {
	// Readings after the third valid one must not be read nor affect the result.
	read, calls := sequence(100, 0, 300, 200, 1, 1, 1, 1)
	got, n := NewMedian(3, 175).Sample(read)

	assert.Equal(t, uint32(200), got)
	assert.Equal(t, 3, n)
	assert.Equal(t, 4, *calls, "sampler must stop once min valid is reached")
}

func TestMedian_StopsAtMaxAttempts(t *testing.T) {
	read, calls := sequence()
	got, n := NewMedian(10, 175).Sample(read)

	assert.Equal(t, Invalid, got)
	assert.Equal(t, 0, n)
	assert.Equal(t, 175, *calls)
}

func TestMedian_Reusable(t *testing.T) {
	m := NewMedian(3, 10)

	read, _ := sequence(5, 1, 3)
	got, _ := m.Sample(read)
	assert.Equal(t, uint32(3), got)

	read, _ = sequence(50, 70, 60)
	got, _ = m.Sample(read)
	assert.Equal(t, uint32(60), got)
}

func TestSampleMedian(t *testing.T) {
	read, _ := sequence(9000, 600, 4000, 700, 800, 900, 1000, 1100, 1200, 1300)
	assert.Equal(t, uint32(1100), SampleMedian(read, 10, 175))
}
