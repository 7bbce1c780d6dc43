package portal

import (
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/internet-of-plants/libiop/internal/logging"
	"github.com/internet-of-plants/libiop/platform"
	"github.com/internet-of-plants/libiop/transport"
	"github.com/internet-of-plants/libiop/wifi"
)

// Default listener addresses. Tests and the host simulator override them
// since binding :53/:80 needs privileges on POSIX.
const (
	DefaultDNSAddr  = ":53"
	DefaultHTTPAddr = ":80"
)

// Session is the captive-portal session state. Created by Start, destroyed
// on a successful station connect or an explicit Stop.
type Session struct {
	Active              bool
	CapturedCredentials *wifi.Credentials
	RedirectHost        string
}

// Controller intercepts DNS and HTTP traffic while the device runs its own
// access point, forcing any client's browser onto the local configuration
// page. Listener goroutines never touch state: they enqueue, and Tick, the
// single logical owner, applies.
type Controller struct {
	manager *wifi.Manager
	server  transport.Server

	dnsAddr  string
	httpAddr string

	dns *dnsResponder
	hub *statusHub

	// session and statusNow are written by Tick/Start/Stop and read by
	// handler goroutines, hence the lock; everything else is owned by
	// the tick side exclusively
	mu        sync.RWMutex
	session   Session
	statusNow wifi.Status

	submissions chan wifi.Credentials
	lastStatus  wifi.Status
}

// NewController creates a portal controller using the given HTTP listener
// seam.
func NewController(manager *wifi.Manager, server transport.Server) *Controller {
	return &Controller{
		manager:     manager,
		server:      server,
		dnsAddr:     DefaultDNSAddr,
		httpAddr:    DefaultHTTPAddr,
		hub:         newStatusHub(),
		submissions: make(chan wifi.Credentials, 8),
	}
}

// SetListenAddrs overrides the DNS and HTTP bind addresses.
func (c *Controller) SetListenAddrs(dnsAddr, httpAddr string) {
	c.dnsAddr = dnsAddr
	c.httpAddr = httpAddr
}

// Session reports a copy of the portal session.
func (c *Controller) Session() Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// snapshot is the handler goroutines' view of portal state.
func (c *Controller) snapshot() (Session, wifi.Status) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session, c.statusNow
}

func (c *Controller) setSession(s Session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
}

// Start switches the lifecycle manager to AccessPoint mode and opens the
// DNS and HTTP listeners. Failure is reported, never fatal; anything
// already opened is torn back down.
func (c *Controller) Start(apName, apPassword string) error {
	if c.session.Active {
		return fmt.Errorf("portal: already active")
	}
	if err := c.manager.StartAccessPoint(apName, apPassword); err != nil {
		return fmt.Errorf("portal: access point mode: %w", err)
	}

	host := c.manager.LocalAddr()
	deviceIP := net.ParseIP(host)
	if deviceIP == nil {
		_ = c.manager.SetMode(platform.WifiStation)
		return fmt.Errorf("portal: no usable device address (got %q)", host)
	}

	c.dns = newDNSResponder(c.dnsAddr, deviceIP)
	if err := c.dns.start(); err != nil {
		c.dns = nil
		_ = c.manager.SetMode(platform.WifiStation)
		return fmt.Errorf("portal: dns responder: %w", err)
	}
	if err := c.server.Start(c.httpAddr, c.handler()); err != nil {
		c.dns.stop()
		c.dns = nil
		_ = c.manager.SetMode(platform.WifiStation)
		return fmt.Errorf("portal: http listener: %w", err)
	}

	c.setSession(Session{Active: true, RedirectHost: host})
	c.lastStatus = c.manager.State().Status
	c.mu.Lock()
	c.statusNow = c.lastStatus
	c.mu.Unlock()
	logging.Info("Captive portal started",
		zap.String("access_point", apName),
		zap.String("device_addr", host),
	)
	return nil
}

// Stop tears down the DNS and HTTP listeners and clears the session. Safe
// to call when the portal is not active.
func (c *Controller) Stop() {
	if !c.session.Active {
		return
	}
	c.hub.closeAll()
	if err := c.server.Stop(); err != nil {
		logging.Warn("Portal http teardown", zap.Error(err))
	}
	if c.dns != nil {
		c.dns.stop()
		c.dns = nil
	}
	c.setSession(Session{})
	// drain any submission that raced the teardown
	for {
		select {
		case <-c.submissions:
		default:
			logging.Info("Captive portal stopped")
			return
		}
	}
}

// Tick applies queued credential submissions, pushes status updates to
// portal clients, and tears the portal down once a station connection is
// established. It must run after the lifecycle manager's tick.
func (c *Controller) Tick() {
	if !c.session.Active {
		return
	}

	// the portal must not outlive access-point mode
	mode := c.manager.State().Mode
	if mode != platform.WifiAccessPoint && mode != platform.WifiStationAndAccessPoint {
		logging.Warn("Access point mode lost, stopping portal")
		c.Stop()
		return
	}

	c.applySubmissions()

	status := c.manager.State().Status
	if status != c.lastStatus {
		c.lastStatus = status
		c.mu.Lock()
		c.statusNow = status
		c.mu.Unlock()
		c.broadcastStatus(status)
	}

	if status == wifi.Connected {
		logging.Info("Station connected, portal no longer needed")
		c.Stop()
		// the access point served its purpose
		if err := c.manager.SetMode(platform.WifiStation); err != nil {
			logging.Warn("Dropping access point failed", zap.Error(err))
		}
	}
}

// applySubmissions drains the submission queue. Last write wins: with
// several submissions queued, only the newest is attempted and the earlier
// ones are discarded, exactly like a fresh submission superseding an
// attempt still in flight.
func (c *Controller) applySubmissions() {
	var latest *wifi.Credentials
	for {
		select {
		case creds := <-c.submissions:
			latest = &creds
		default:
			if latest == nil {
				return
			}
			c.connectWith(*latest)
			return
		}
	}
}

func (c *Controller) connectWith(creds wifi.Credentials) {
	c.mu.Lock()
	c.session.CapturedCredentials = &creds
	c.mu.Unlock()
	// keep the access point up while the station interface tries the
	// captured network, so the portal client can watch the outcome
	if err := c.manager.SetMode(platform.WifiStationAndAccessPoint); err != nil {
		logging.Error("Station+AP mode failed", zap.Error(err))
		return
	}
	if err := c.manager.ConnectTo(creds.Name, creds.Password); err != nil {
		logging.Error("Portal connect attempt refused", zap.Error(err))
	}
}

func (c *Controller) broadcastStatus(status wifi.Status) {
	msg := statusMessage{Status: status.String()}
	if creds := c.session.CapturedCredentials; creds != nil {
		msg.Network = creds.Name
	}
	if status == wifi.Connected {
		msg.Address = c.manager.LocalAddr()
	}
	c.hub.broadcast(msg)
}
