package sensor

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBoard answers board commands on the far end of a pipe.
type fakeBoard struct {
	mu      sync.Mutex
	answers map[byte][]string
	calls   map[byte]int
}

func (b *fakeBoard) serve(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cmd := line[0]

		b.mu.Lock()
		n := b.calls[cmd]
		b.calls[cmd]++
		queue := b.answers[cmd]
		b.mu.Unlock()

		if len(queue) == 0 {
			continue // silent board
		}
		answer := queue[min(n, len(queue)-1)]
		if _, err := conn.Write([]byte(answer + "\n")); err != nil {
			return
		}
	}
}

func (b *fakeBoard) count(cmd byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[cmd]
}

func newSerialBoard(t *testing.T, answers map[byte][]string) (*Serial, *fakeBoard) {
	t.Helper()

	host, device := net.Pipe()
	board := &fakeBoard{answers: answers, calls: map[byte]int{}}
	go board.serve(device)

	log, _ := test.NewNullLogger()
	s := NewConn(host, log)
	s.SetTimeout(100 * time.Millisecond)
	t.Cleanup(func() {
		s.Close()
		device.Close()
	})
	return s, board
}

func TestSerial_Begin(t *testing.T) {
	s, _ := newSerialBoard(t, map[byte][]string{CmdPing: {"P,OK"}})
	assert.NoError(t, s.Begin(context.Background()))
}

func TestSerial_BeginNotReady(t *testing.T) {
	s, _ := newSerialBoard(t, map[byte][]string{CmdPing: {"P,BUSY"}})
	assert.Error(t, s.Begin(context.Background()))
}

func TestSerial_BeginTimeout(t *testing.T) {
	s, _ := newSerialBoard(t, map[byte][]string{})
	err := s.Begin(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestSerial_Range(t *testing.T) {
	s, _ := newSerialBoard(t, map[byte][]string{CmdRange: {"R,1523", "R,12000", "R,abc"}})
	ctx := context.Background()

	pulse, ok := s.Range(ctx)
	assert.True(t, ok)
	assert.Equal(t, uint32(1523), pulse)

	_, ok = s.Range(ctx)
	assert.False(t, ok, "out of sensor range")

	_, ok = s.Range(ctx)
	assert.False(t, ok, "garbage payload")
}

func TestSerial_ClimateReadsTwice(t *testing.T) {
	s, board := newSerialBoard(t, map[byte][]string{
		CmdClimate: {"H,0000000000", "H,028c015fee"},
	})

	temp, hygro, ok := s.Climate(context.Background())
	require.True(t, ok)
	assert.InDelta(t, 35.1, temp, 1e-4)
	assert.InDelta(t, 65.2, hygro, 1e-4)
	assert.Equal(t, 2, board.count(CmdClimate))
}

func TestSerial_ClimateErrors(t *testing.T) {
	tests := []struct {
		name   string
		answer string
	}{
		{"board error", "H,ERR"},
		{"bad checksum", "H,028c015fef"},
		{"short frame", "H,028c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newSerialBoard(t, map[byte][]string{CmdClimate: {tt.answer}})
			_, _, ok := s.Climate(context.Background())
			assert.False(t, ok)
		})
	}
}

func TestSerial_Battery(t *testing.T) {
	s, _ := newSerialBoard(t, map[byte][]string{CmdBattery: {"B,949", "B,5000"}})

	v, ok := s.Battery(context.Background())
	require.True(t, ok)
	assert.InDelta(t, 3.9, v, 0.01)

	_, ok = s.Battery(context.Background())
	assert.False(t, ok)
}

func TestSerial_ContextCancelled(t *testing.T) {
	s, _ := newSerialBoard(t, map[byte][]string{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := s.Range(ctx)
	assert.False(t, ok)
}

func TestSerial_Close(t *testing.T) {
	s, _ := newSerialBoard(t, map[byte][]string{CmdRange: {"R,1000"}})
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "second close is a no-op")

	_, ok := s.Range(context.Background())
	assert.False(t, ok)
}
