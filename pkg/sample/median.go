package sample

import "slices"

// Invalid is returned by Median.Sample when not enough valid readings were
// collected. It is never a real distance.
const Invalid uint32 = 0

// ReadFunc performs one hardware reading. ok is false when the sensor timed
// out or the value was out of range.
type ReadFunc func() (value uint32, ok bool)

// Median reduces repeated noisy readings to one value: it collects the first
// MinValid valid readings (at most MaxAttempts calls) and picks the element at
// position MinValid/2 of the sorted set. For even counts this is the
// upper-middle element, not the mean of the two middle ones.
type Median struct {
	minValid    int
	maxAttempts int
	index       int
	buf         []uint32
}

// NewMedian creates a sampling policy. minValid below 1 is treated as 1,
// which makes the first valid reading win.
func NewMedian(minValid, maxAttempts int) *Median {
	if minValid < 1 {
		minValid = 1
	}
	if maxAttempts < 0 {
		maxAttempts = 0
	}
	return &Median{
		minValid:    minValid,
		maxAttempts: maxAttempts,
		index:       minValid / 2,
		buf:         make([]uint32, 0, minValid),
	}
}

// MinValid returns the number of valid readings required.
func (m *Median) MinValid() int { return m.minValid }

// MaxAttempts returns the reading budget of one Sample call.
func (m *Median) MaxAttempts() int { return m.maxAttempts }

// Sample runs one sampling attempt. It stops calling read as soon as MinValid
// valid readings are held, and returns Invalid when the budget runs out first.
// The second return value is the number of valid readings obtained.
func (m *Median) Sample(read ReadFunc) (uint32, int) {
	m.buf = m.buf[:0]
	for i := 0; i < m.maxAttempts && len(m.buf) < m.minValid; i++ {
		v, ok := read()
		if !ok || v == Invalid {
			continue
		}
		m.buf = append(m.buf, v)
	}

	n := len(m.buf)
	if n < m.minValid {
		return Invalid, n
	}

	slices.Sort(m.buf)
	return m.buf[m.index], n
}

// SampleMedian is the one-shot form of Median.Sample.
func SampleMedian(read ReadFunc, minValid, maxAttempts int) uint32 {
	v, _ := NewMedian(minValid, maxAttempts).Sample(read)
	return v
}
