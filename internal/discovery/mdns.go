package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/muurk/cabload/internal/logging"
)

const (
	// DefaultService is the mDNS service type browsed when none is configured
	DefaultService = "_cabload._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for endpoint discovery
	DefaultScanTimeout = 5 * time.Second
)

// ErrNotFound is returned by Find when no matching endpoint answered in time.
var ErrNotFound = errors.New("endpoint not found")

// browseFunc matches zeroconf.Resolver.Browse
type browseFunc func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error

// Scanner handles mDNS endpoint discovery
type Scanner struct {
	// Timeout is the maximum time to wait for answers
	Timeout time.Duration

	// Service is the mDNS service type to browse
	Service string

	browse browseFunc
}

// NewScanner creates a scanner for service. An empty service browses DefaultService.
func NewScanner(service string) *Scanner {
	if service == "" {
		service = DefaultService
	}
	return &Scanner{
		Timeout: DefaultScanTimeout,
		Service: service,
		browse:  zeroconfBrowse,
	}
}

func zeroconfBrowse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("failed to create mDNS resolver: %w", err)
	}
	return resolver.Browse(ctx, service, domain, entries)
}

// Scan browses for the scanner's timeout and returns every endpoint that
// answered, sorted by instance name. Repeated answers for the same instance
// keep the latest.
func (s *Scanner) Scan(ctx context.Context) ([]*Endpoint, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	var (
		mu    sync.Mutex
		found = make(map[string]*Endpoint)
	)
	err := s.run(ctx, func(ep *Endpoint) bool {
		mu.Lock()
		found[ep.Instance] = ep
		mu.Unlock()
		return false
	})
	if err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	endpoints := make([]*Endpoint, 0, len(found))
	for _, ep := range found {
		endpoints = append(endpoints, ep)
	}
	sort.Slice(endpoints, func(i, j int) bool { return endpoints[i].Instance < endpoints[j].Instance })
	return endpoints, nil
}

// Find waits for an endpoint whose instance name or hostname matches name
// (case-insensitive) and returns as soon as it answers.
func (s *Scanner) Find(ctx context.Context, name string) (*Endpoint, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	want := strings.ToLower(strings.TrimSuffix(name, "."))
	match := make(chan *Endpoint, 1)
	err := s.run(ctx, func(ep *Endpoint) bool {
		host := strings.ToLower(strings.TrimSuffix(ep.Hostname, "."))
		if strings.ToLower(ep.Instance) != want && host != want && host != want+".local" {
			return false
		}
		select {
		case match <- ep:
		default:
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	select {
	case ep := <-match:
		return ep, nil
	default:
		return nil, fmt.Errorf("%w: %s within %s", ErrNotFound, name, s.Timeout)
	}
}

// run browses until ctx ends or handle returns true.
func (s *Scanner) run(ctx context.Context, handle func(*Endpoint) bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 16)
	if err := s.browse(ctx, s.Service, ServiceDomain, entries); err != nil {
		return fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case entry, ok := <-entries:
			if !ok {
				return nil
			}
			ep := parseServiceEntry(entry)
			if ep == nil {
				continue
			}
			logging.Debug("mDNS answer",
				zap.String("instance", ep.Instance),
				zap.String("addr", ep.Address()))
			if handle(ep) {
				return nil
			}
		}
	}
}

// parseServiceEntry converts a zeroconf service entry to an Endpoint.
// Returns nil if the entry carries no usable address or port.
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Endpoint {
	if entry == nil || entry.Port < 1 || entry.Port > 65535 {
		return nil
	}

	// Prefer IPv4
	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	// TXT records are in "key=value" format
	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		key, value, _ := strings.Cut(txt, "=")
		metadata[key] = value
	}

	return &Endpoint{
		Instance:     entry.Instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         entry.Port,
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}
