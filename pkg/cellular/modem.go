// Package cellular brings up the data link of the station.
package cellular

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrNoNetwork is returned when the modem cannot register or attach.
	ErrNoNetwork = errors.New("no network")
	// ErrModem is returned when the modem answers with an error.
	ErrModem = errors.New("modem error")
)

// Modem is the network collaborator. Connect may be called again after a
// failure to reconnect.
type Modem interface {
	Connect(ctx context.Context) error
	IMEI(ctx context.Context) (string, error)
	LocalIP(ctx context.Context) (string, error)
}

var (
	_ Modem = (*ATModem)(nil)
	_ Modem = (*HostModem)(nil)
)

// HostModem uses the host network stack. The identity comes from
// configuration.
type HostModem struct {
	imei  string
	addrs func() ([]net.Addr, error)
}

// NewHostModem creates a modem backed by the host network.
func NewHostModem(imei string) *HostModem {
	return &HostModem{imei: imei, addrs: net.InterfaceAddrs}
}

// Connect succeeds when the host has a usable address.
func (m *HostModem) Connect(ctx context.Context) error {
	if _, err := m.LocalIP(ctx); err != nil {
		return err
	}
	return nil
}

// IMEI returns the configured identity.
func (m *HostModem) IMEI(context.Context) (string, error) {
	if m.imei == "" {
		return "", fmt.Errorf("%w: no imei configured", ErrModem)
	}
	return m.imei, nil
}

// LocalIP returns the first non-loopback IPv4 address.
func (m *HostModem) LocalIP(context.Context) (string, error) {
	addrs, err := m.addrs()
	if err != nil {
		return "", fmt.Errorf("failed to list addresses: %w", err)
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 != nil {
			return ip4.String(), nil
		}
	}
	return "", ErrNoNetwork
}
