package discovery

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(instance, host string, port int, ip string, txt ...string) *zeroconf.ServiceEntry {
	e := zeroconf.NewServiceEntry(instance, DefaultService, ServiceDomain)
	e.HostName = host
	e.Port = port
	if ip != "" {
		parsed := net.ParseIP(ip)
		if parsed.To4() != nil {
			e.AddrIPv4 = []net.IP{parsed}
		} else {
			e.AddrIPv6 = []net.IP{parsed}
		}
	}
	e.Text = txt
	return e
}

// fakeBrowse feeds entries then leaves the channel open, like a quiet network.
func fakeBrowse(entries ...*zeroconf.ServiceEntry) browseFunc {
	return func(ctx context.Context, service, domain string, out chan<- *zeroconf.ServiceEntry) error {
		go func() {
			for _, e := range entries {
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			}
		}()
		return nil
	}
}

func testScanner(b browseFunc) *Scanner {
	s := NewScanner("")
	s.Timeout = 200 * time.Millisecond
	s.browse = b
	return s
}

func TestParseServiceEntry(t *testing.T) {
	tests := []struct {
		name     string
		entry    *zeroconf.ServiceEntry
		wantNil  bool
		wantIP   string
		wantPort int
	}{
		{
			name:     "IPv4 bridge",
			entry:    entry("cabinet-3", "bridge-3.local.", 4001, "192.168.1.40", "address=3", "header=EMC"),
			wantIP:   "192.168.1.40",
			wantPort: 4001,
		},
		{
			name:     "IPv6 only",
			entry:    entry("cabinet-4", "bridge-4.local.", 4001, "fe80::1"),
			wantIP:   "fe80::1",
			wantPort: 4001,
		},
		{
			name:    "no address",
			entry:   entry("cabinet-5", "bridge-5.local.", 4001, ""),
			wantNil: true,
		},
		{
			name:    "no port",
			entry:   entry("cabinet-6", "bridge-6.local.", 0, "10.0.0.6"),
			wantNil: true,
		},
		{
			name:    "nil",
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep := parseServiceEntry(tt.entry)
			if tt.wantNil {
				assert.Nil(t, ep)
				return
			}
			require.NotNil(t, ep)
			assert.Equal(t, tt.wantIP, ep.IP)
			assert.Equal(t, tt.wantPort, ep.Port)
			assert.Equal(t, tt.entry.Instance, ep.Instance)
			assert.False(t, ep.DiscoveredAt.IsZero())
		})
	}
}

func TestParseServiceEntry_PrefersIPv4(t *testing.T) {
	e := entry("dual", "dual.local.", 4001, "192.168.1.50")
	e.AddrIPv6 = []net.IP{net.ParseIP("fe80::2")}

	ep := parseServiceEntry(e)
	require.NotNil(t, ep)
	assert.Equal(t, "192.168.1.50", ep.IP)
}

func TestEndpoint(t *testing.T) {
	ep := parseServiceEntry(entry("cabinet-3", "bridge-3.local.", 4001, "192.168.1.40", "address=3", "flag"))
	require.NotNil(t, ep)

	assert.Equal(t, "192.168.1.40:4001", ep.Address())
	assert.Equal(t, "cabinet-3 (bridge-3.local.) at 192.168.1.40:4001", ep.String())
	assert.Equal(t, "3", ep.GetMetadata("address"))
	assert.Equal(t, "", ep.GetMetadata("flag"))
	assert.Equal(t, "", ep.GetMetadata("missing"))
	assert.Equal(t, 3, ep.CabinetAddress())

	v6 := &Endpoint{IP: "fe80::1", Port: 4001}
	assert.Equal(t, "[fe80::1]:4001", v6.Address())

	var bare Endpoint
	assert.Equal(t, "", bare.GetMetadata("address"))
	assert.Equal(t, 0, bare.CabinetAddress())
}

func TestNewScanner(t *testing.T) {
	s := NewScanner("")
	assert.Equal(t, DefaultService, s.Service)
	assert.Equal(t, DefaultScanTimeout, s.Timeout)
	assert.NotNil(t, s.browse)

	assert.Equal(t, "_bridge._tcp", NewScanner("_bridge._tcp").Service)
}

func TestScan_CollectsAndSorts(t *testing.T) {
	s := testScanner(fakeBrowse(
		entry("zeta", "z.local.", 4001, "10.0.0.3"),
		entry("alpha", "a.local.", 4001, "10.0.0.1"),
		entry("broken", "b.local.", 4001, ""),
		entry("alpha", "a.local.", 4002, "10.0.0.1"),
	))

	endpoints, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, endpoints, 2)
	assert.Equal(t, "alpha", endpoints[0].Instance)
	assert.Equal(t, 4002, endpoints[0].Port)
	assert.Equal(t, "zeta", endpoints[1].Instance)
}

func TestScan_BrowseError(t *testing.T) {
	s := testScanner(func(context.Context, string, string, chan<- *zeroconf.ServiceEntry) error {
		return errors.New("no multicast interface")
	})

	_, err := s.Scan(context.Background())
	assert.ErrorContains(t, err, "no multicast interface")
}

func TestFind(t *testing.T) {
	s := testScanner(fakeBrowse(
		entry("cabinet-1", "bridge-1.local.", 4001, "10.0.0.1"),
		entry("cabinet-2", "bridge-2.local.", 4001, "10.0.0.2"),
	))
	s.Timeout = 5 * time.Second

	start := time.Now()
	ep, err := s.Find(context.Background(), "bridge-2")
	require.NoError(t, err)
	assert.Equal(t, "cabinet-2", ep.Instance)
	assert.Less(t, time.Since(start), 2*time.Second)

	ep, err = s.Find(context.Background(), "CABINET-1")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", ep.IP)
}

func TestFind_NotFound(t *testing.T) {
	s := testScanner(fakeBrowse(entry("cabinet-1", "bridge-1.local.", 4001, "10.0.0.1")))

	_, err := s.Find(context.Background(), "cabinet-9")
	assert.ErrorIs(t, err, ErrNotFound)
}
