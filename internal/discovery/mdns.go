// Package discovery advertises the HTTP server on the local network over
// mDNS so bridge displays can find it without configuration.
package discovery

import (
	"fmt"
	"os"
	"sync"

	"github.com/grandcat/zeroconf"

	"github.com/banshee-data/watercolumn/internal/monitoring"
	"github.com/banshee-data/watercolumn/internal/version"
)

const (
	ServiceType   = "_watercolumn._tcp"
	ServiceDomain = "local."
)

var logf = monitoring.Tagged("mdns")

// Advertiser registers one service instance.
type Advertiser struct {
	instance string
	port     int
	txt      []string

	mu     sync.Mutex
	server *zeroconf.Server
}

// NewAdvertiser describes the instance. An empty instance name uses
// "<hostname>-watercolumn".
func NewAdvertiser(instance string, port int, units string) *Advertiser {
	if instance == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "adcp"
		}
		instance = host + "-watercolumn"
	}
	return &Advertiser{
		instance: instance,
		port:     port,
		txt:      txtRecords(units),
	}
}

func txtRecords(units string) []string {
	return []string{
		"version=" + version.Version,
		"path=/api/snapshot",
		"ws=/ws",
		"units=" + units,
	}
}

// Instance returns the advertised instance name.
func (a *Advertiser) Instance() string { return a.instance }

// Start registers the service on all interfaces. Calling it twice is a no-op.
func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		return nil
	}
	server, err := zeroconf.Register(a.instance, ServiceType, ServiceDomain, a.port, a.txt, nil)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}
	a.server = server
	logf("advertising %s.%s%s on port %d", a.instance, ServiceType, ServiceDomain, a.port)
	return nil
}

// Stop withdraws the advertisement.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server == nil {
		return
	}
	a.server.Shutdown()
	a.server = nil
}
