package discovery

import (
	"fmt"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/internet-of-plants/libiop/internal/logging"
	"github.com/internet-of-plants/libiop/internal/version"
)

const (
	// ServiceType is the mDNS service type announced once the device is
	// on a network, so host tooling can find it without scanning
	ServiceType = "_iop._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultPort is the port advertised in the service record
	DefaultPort = 80
)

// Announcer advertises the device over mDNS while it holds a station
// connection. POSIX hosts only; bare-metal backends skip it.
type Announcer struct {
	// Instance is the advertised instance name, typically the device
	// hostname
	Instance string

	// Port is the advertised service port
	Port int

	server *zeroconf.Server
}

// NewAnnouncer creates an announcer for the given instance name.
func NewAnnouncer(instance string) *Announcer {
	return &Announcer{
		Instance: instance,
		Port:     DefaultPort,
	}
}

// Start registers the mDNS service. Calling Start while already announcing
// re-registers, which covers address changes after a reconnect.
func (a *Announcer) Start() error {
	a.Stop()
	server, err := zeroconf.Register(
		a.Instance,
		ServiceType,
		ServiceDomain,
		a.Port,
		[]string{"version=" + version.Version},
		nil,
	)
	if err != nil {
		return fmt.Errorf("discovery: registering mDNS service: %w", err)
	}
	a.server = server
	logging.Info("mDNS announcement started",
		zap.String("instance", a.Instance),
		zap.String("service", ServiceType),
	)
	return nil
}

// Stop withdraws the announcement. Safe to call when not announcing.
func (a *Announcer) Stop() {
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
		logging.Debug("mDNS announcement stopped")
	}
}

// Active reports whether an announcement is registered.
func (a *Announcer) Active() bool { return a.server != nil }
