package sensor

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

const (
	// DefaultBaudRate of the sensor board UART.
	DefaultBaudRate = 115200
	// DefaultTimeout for one command round trip.
	DefaultTimeout = 500 * time.Millisecond
)

// Board commands. Each is sent as a single letter followed by a newline and
// answered with "<letter>,<payload>".
const (
	CmdPing    = 'P'
	CmdRange   = 'R'
	CmdClimate = 'H'
	CmdBattery = 'B'
)

// Reply is one parsed board answer.
type Reply struct {
	Cmd     byte
	Payload string
}

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{Name: name, Description: name})
	}
	return result, nil
}

// Serial is the sensor board connected over a UART.
type Serial struct {
	port     string
	baudRate int
	timeout  time.Duration
	log      logrus.FieldLogger

	mu      sync.Mutex // serialises commands
	conn    io.ReadWriteCloser
	replies chan Reply
	done    chan struct{}
}

// New creates a sensor board client for the given port.
func New(port string, baudRate int, log logrus.FieldLogger) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	return &Serial{
		port:     port,
		baudRate: baudRate,
		timeout:  DefaultTimeout,
		log:      log.WithField("component", "sensor"),
	}
}

// NewConn creates a client over an already open connection.
func NewConn(conn io.ReadWriteCloser, log logrus.FieldLogger) *Serial {
	s := New("", 0, log)
	s.attach(conn)
	return s
}

// SetTimeout changes the per command timeout.
func (s *Serial) SetTimeout(d time.Duration) {
	s.timeout = d
}

// Connect opens the serial port.
func (s *Serial) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return fmt.Errorf("already connected")
	}

	port, err := serial.Open(s.port, &serial.Mode{BaudRate: s.baudRate})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", s.port, err)
	}
	s.attach(port)
	return nil
}

func (s *Serial) attach(conn io.ReadWriteCloser) {
	s.conn = conn
	s.replies = make(chan Reply, 4)
	s.done = make(chan struct{})
	go s.readReplies(conn, s.replies, s.done)
}

// Close closes the connection.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	close(s.done)
	err := s.conn.Close()
	s.conn = nil
	return err
}

// Begin opens the port when needed and checks that the board answers.
func (s *Serial) Begin(ctx context.Context) error {
	s.mu.Lock()
	connected := s.conn != nil
	s.mu.Unlock()
	if !connected {
		if err := s.Connect(); err != nil {
			return err
		}
	}

	r, err := s.command(ctx, CmdPing)
	if err != nil {
		return fmt.Errorf("sensor board not responding: %w", err)
	}
	if r.Payload != "OK" {
		return fmt.Errorf("sensor board not ready: %q", r.Payload)
	}
	return nil
}

// Range reads one range pulse.
func (s *Serial) Range(ctx context.Context) (uint32, bool) {
	r, err := s.command(ctx, CmdRange)
	if err != nil {
		s.log.WithError(err).Debug("range read failed")
		return 0, false
	}
	v, err := strconv.ParseUint(r.Payload, 10, 32)
	if err != nil || !ValidPulse(uint32(v)) {
		return 0, false
	}
	return uint32(v), true
}

// Climate reads the AM2302 twice and keeps the second frame: the sensor
// returns the values captured by the previous conversion.
func (s *Serial) Climate(ctx context.Context) (float32, float32, bool) {
	if _, err := s.command(ctx, CmdClimate); err != nil {
		s.log.WithError(err).Debug("climate warm-up read failed")
	}

	r, err := s.command(ctx, CmdClimate)
	if err != nil {
		s.log.WithError(err).Warn("climate read failed")
		return 0, 0, false
	}
	frame, err := parseFrame(r.Payload)
	if err != nil {
		s.log.WithError(err).Warn("climate read failed")
		return 0, 0, false
	}
	t, h, err := DecodeAM2302(frame)
	if err != nil {
		s.log.WithError(err).Warn("climate read failed")
		return 0, 0, false
	}
	return t, h, true
}

// Battery reads the battery voltage.
func (s *Serial) Battery(ctx context.Context) (float32, bool) {
	r, err := s.command(ctx, CmdBattery)
	if err != nil {
		s.log.WithError(err).Warn("battery read failed")
		return 0, false
	}
	adc, err := strconv.ParseUint(r.Payload, 10, 16)
	if err != nil || adc >= ADCMax {
		s.log.WithField("payload", r.Payload).Warn("invalid battery reading")
		return 0, false
	}
	return BatteryVolts(uint32(adc)), true
}

func (s *Serial) command(ctx context.Context, cmd byte) (Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return Reply{}, fmt.Errorf("not connected")
	}

	// Drop stale answers of timed out commands.
	for len(s.replies) > 0 {
		<-s.replies
	}

	if _, err := s.conn.Write([]byte{cmd, '\n'}); err != nil {
		return Reply{}, fmt.Errorf("failed to send command %c: %w", cmd, err)
	}

	t := time.NewTimer(s.timeout)
	defer t.Stop()

	for {
		select {
		case r, ok := <-s.replies:
			if !ok {
				return Reply{}, fmt.Errorf("connection closed")
			}
			if r.Cmd != cmd {
				continue
			}
			if r.Payload == "ERR" {
				return r, fmt.Errorf("%w: board reported error for %c", ErrInvalid, cmd)
			}
			return r, nil
		case <-t.C:
			return Reply{}, fmt.Errorf("%w: command %c", ErrTimeout, cmd)
		case <-ctx.Done():
			return Reply{}, ctx.Err()
		}
	}
}

// readReplies reads lines from the board and parses them into replies.
func (s *Serial) readReplies(conn io.Reader, replies chan<- Reply, done <-chan struct{}) {
	defer close(replies)

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		r, err := parseLine(line)
		if err != nil {
			s.log.WithError(err).WithField("line", line).Debug("failed to parse line")
			continue
		}

		select {
		case replies <- r:
		case <-done:
			return
		default:
			s.log.Debug("reply buffer full, dropping reply")
		}
	}
	if err := scanner.Err(); err != nil {
		select {
		case <-done:
		default:
			s.log.WithError(err).Warn("error reading from serial port")
		}
	}
}

// parseLine parses a board answer.
// Format: <cmd>,<payload>
// Example: R,1523
func parseLine(line string) (Reply, error) {
	cmd, payload, ok := strings.Cut(line, ",")
	if !ok {
		return Reply{}, fmt.Errorf("invalid line format: missing separator")
	}
	if len(cmd) != 1 {
		return Reply{}, fmt.Errorf("invalid command %q", cmd)
	}
	switch cmd[0] {
	case CmdPing, CmdRange, CmdClimate, CmdBattery:
	default:
		return Reply{}, fmt.Errorf("unknown command %q", cmd)
	}
	return Reply{Cmd: cmd[0], Payload: strings.TrimSpace(payload)}, nil
}

// parseFrame decodes the 10 hex digit AM2302 payload.
func parseFrame(payload string) ([5]byte, error) {
	var frame [5]byte
	if len(payload) != 10 {
		return frame, fmt.Errorf("%w: frame %q", ErrInvalid, payload)
	}
	if _, err := hex.Decode(frame[:], []byte(payload)); err != nil {
		return frame, fmt.Errorf("%w: frame %q: %v", ErrInvalid, payload, err)
	}
	return frame, nil
}
