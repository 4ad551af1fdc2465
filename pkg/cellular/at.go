package cellular

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

const (
	DefaultBaudRate       = 115200
	DefaultCommandTimeout = 10 * time.Second
	DefaultRetryDelay     = 500 * time.Millisecond
	DefaultConnectRetries = 10
)

// ATConfig contains the packet data settings of a u-blox SARA modem.
type ATConfig struct {
	Port        string
	BaudRate    int
	APN         string
	User        string
	Password    string
	Retries     int
	RetryDelay  time.Duration
	Timeout     time.Duration
	RestartWait time.Duration
}

var (
	cregRe  = regexp.MustCompile(`\+CREG:\s*\d+,(\d+)`)
	upsndRe = regexp.MustCompile(`\+UPSND:\s*\d+,\d+,"([^"]*)"`)
	imeiRe  = regexp.MustCompile(`^\d{14,16}$`)
)

// ATModem drives a cellular modem with AT commands over a serial line.
type ATModem struct {
	cfg ATConfig
	log logrus.FieldLogger

	mu    sync.Mutex
	conn  io.ReadWriteCloser
	lines chan string
}

// NewATModem creates a modem client. The port is opened on first use.
func NewATModem(cfg ATConfig, log logrus.FieldLogger) *ATModem {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.Retries == 0 {
		cfg.Retries = DefaultConnectRetries
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultCommandTimeout
	}
	return &ATModem{cfg: cfg, log: log.WithField("component", "modem")}
}

// NewATModemConn creates a modem client over an open connection.
func NewATModemConn(conn io.ReadWriteCloser, cfg ATConfig, log logrus.FieldLogger) *ATModem {
	m := NewATModem(cfg, log)
	m.attach(conn)
	return m
}

func (m *ATModem) open() error {
	if m.conn != nil {
		return nil
	}
	port, err := serial.Open(m.cfg.Port, &serial.Mode{BaudRate: m.cfg.BaudRate})
	if err != nil {
		return fmt.Errorf("failed to open modem port %s: %w", m.cfg.Port, err)
	}
	m.attach(port)
	return nil
}

func (m *ATModem) attach(conn io.ReadWriteCloser) {
	m.conn = conn
	m.lines = make(chan string, 16)
	go func(lines chan<- string) {
		defer close(lines)
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			select {
			case lines <- line:
			default:
			}
		}
	}(m.lines)
}

// Close closes the modem port.
func (m *ATModem) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil {
		return nil
	}
	err := m.conn.Close()
	m.conn = nil
	return err
}

// Connect restarts the modem, waits for network registration and activates
// the packet data context.
func (m *ATModem) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.open(); err != nil {
		return err
	}

	if _, err := m.command(ctx, "AT+CFUN=16"); err != nil {
		return fmt.Errorf("failed to restart modem: %w", err)
	}
	if err := m.sleep(ctx, m.cfg.RestartWait); err != nil {
		return err
	}
	if err := m.retry(ctx, "modem ready", func() error {
		_, err := m.command(ctx, "AT")
		return err
	}); err != nil {
		return err
	}

	if err := m.retry(ctx, "network registration", func() error {
		return m.registered(ctx)
	}); err != nil {
		return err
	}

	setup := []string{
		fmt.Sprintf(`AT+UPSD=0,1,"%s"`, m.cfg.APN),
		fmt.Sprintf(`AT+UPSD=0,2,"%s"`, m.cfg.User),
		fmt.Sprintf(`AT+UPSD=0,3,"%s"`, m.cfg.Password),
		`AT+UPSD=0,7,"0.0.0.0"`,
	}
	for _, cmd := range setup {
		if _, err := m.command(ctx, cmd); err != nil {
			return fmt.Errorf("failed to configure packet data: %w", err)
		}
	}

	return m.retry(ctx, "gprs attach", func() error {
		_, err := m.command(ctx, "AT+UPSDA=0,3")
		return err
	})
}

func (m *ATModem) registered(ctx context.Context) error {
	lines, err := m.command(ctx, "AT+CREG?")
	if err != nil {
		return err
	}
	for _, l := range lines {
		if sm := cregRe.FindStringSubmatch(l); sm != nil {
			switch sm[1] {
			case "1", "5": // home, roaming
				return nil
			}
			return fmt.Errorf("%w: registration status %s", ErrNoNetwork, sm[1])
		}
	}
	return fmt.Errorf("%w: no registration status", ErrModem)
}

// IMEI reads the modem serial number.
func (m *ATModem) IMEI(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.open(); err != nil {
		return "", err
	}
	lines, err := m.command(ctx, "AT+CGSN")
	if err != nil {
		return "", err
	}
	for _, l := range lines {
		if imeiRe.MatchString(l) {
			return l, nil
		}
	}
	return "", fmt.Errorf("%w: no imei in response", ErrModem)
}

// LocalIP reads the address of the active packet data context.
func (m *ATModem) LocalIP(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.open(); err != nil {
		return "", err
	}
	lines, err := m.command(ctx, "AT+UPSND=0,0")
	if err != nil {
		return "", err
	}
	for _, l := range lines {
		if sm := upsndRe.FindStringSubmatch(l); sm != nil {
			return sm[1], nil
		}
	}
	return "", ErrNoNetwork
}

func (m *ATModem) retry(ctx context.Context, what string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= m.cfg.Retries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		m.log.WithError(err).WithField("attempt", attempt).Debugf("waiting for %s", what)
		if serr := m.sleep(ctx, m.cfg.RetryDelay); serr != nil {
			return serr
		}
	}
	return fmt.Errorf("%w: %s failed after %d attempts: %v", ErrNoNetwork, what, m.cfg.Retries, err)
}

func (m *ATModem) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// command sends one AT command and collects the response lines up to the
// final result code. The echo of the command is skipped.
func (m *ATModem) command(ctx context.Context, cmd string) ([]string, error) {
	if m.conn == nil {
		return nil, fmt.Errorf("modem not open")
	}

	for len(m.lines) > 0 {
		<-m.lines
	}

	if _, err := io.WriteString(m.conn, cmd+"\r\n"); err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", cmd, err)
	}

	t := time.NewTimer(m.cfg.Timeout)
	defer t.Stop()

	var resp []string
	for {
		select {
		case l, ok := <-m.lines:
			if !ok {
				return nil, fmt.Errorf("modem connection closed")
			}
			switch {
			case l == cmd:
			case l == "OK":
				return resp, nil
			case l == "ERROR", strings.HasPrefix(l, "+CME ERROR"):
				return resp, fmt.Errorf("%w: %s: %s", ErrModem, cmd, l)
			default:
				resp = append(resp, l)
			}
		case <-t.C:
			return resp, fmt.Errorf("%w: %s timed out", ErrModem, cmd)
		case <-ctx.Done():
			return resp, ctx.Err()
		}
	}
}
