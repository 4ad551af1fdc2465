package cellular

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ipNet(s string) net.Addr {
	return &net.IPNet{IP: net.ParseIP(s), Mask: net.CIDRMask(24, 32)}
}

func TestHostModem(t *testing.T) {
	tests := []struct {
		name    string
		addrs   []net.Addr
		err     error
		wantIP  string
		wantErr error
	}{
		{
			name:   "skips loopback",
			addrs:  []net.Addr{ipNet("127.0.0.1"), ipNet("192.168.1.20")},
			wantIP: "192.168.1.20",
		},
		{
			name:    "only loopback",
			addrs:   []net.Addr{ipNet("127.0.0.1")},
			wantErr: ErrNoNetwork,
		},
		{
			name:    "ipv6 only",
			addrs:   []net.Addr{&net.IPNet{IP: net.ParseIP("fe80::1"), Mask: net.CIDRMask(64, 128)}},
			wantErr: ErrNoNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewHostModem("356938035643809")
			m.addrs = func() ([]net.Addr, error) { return tt.addrs, tt.err }

			ip, err := m.LocalIP(context.Background())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.ErrorIs(t, m.Connect(context.Background()), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantIP, ip)
			assert.NoError(t, m.Connect(context.Background()))
		})
	}
}

func TestHostModem_AddrError(t *testing.T) {
	m := NewHostModem("1")
	m.addrs = func() ([]net.Addr, error) { return nil, errors.New("boom") }
	_, err := m.LocalIP(context.Background())
	assert.Error(t, err)
}

func TestHostModem_IMEI(t *testing.T) {
	imei, err := NewHostModem("356938035643809").IMEI(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "356938035643809", imei)

	_, err = NewHostModem("").IMEI(context.Background())
	assert.ErrorIs(t, err, ErrModem)
}
