package libiop

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/internet-of-plants/libiop/config"
	"github.com/internet-of-plants/libiop/discovery"
	"github.com/internet-of-plants/libiop/internal/fatal"
	"github.com/internet-of-plants/libiop/internal/logging"
	"github.com/internet-of-plants/libiop/platform"
	"github.com/internet-of-plants/libiop/portal"
	"github.com/internet-of-plants/libiop/storage"
	"github.com/internet-of-plants/libiop/transport"
	"github.com/internet-of-plants/libiop/upgrade"
	"github.com/internet-of-plants/libiop/wifi"
)

// Credentials is re-exported so hosts registering callbacks do not need
// to import the wifi package.
type Credentials = wifi.Credentials

// PanicHook is invoked on an unrecoverable invariant violation. It must
// not return; it is expected to halt or reboot the device.
type PanicHook = fatal.Hook

// SetPanicHook registers the process-wide fatal hook. This is the only
// mechanism through which unrecoverable errors leave the library.
func SetPanicHook(fn PanicHook) { fatal.SetHook(fn) }

// Options assembles a Device. Only Platform is required; everything else
// defaults to the POSIX implementations.
type Options struct {
	// Platform is the hardware capability backend. Required.
	Platform platform.Capability

	// Client fetches firmware images. Defaults to the net/http client.
	Client transport.Client

	// PortalServer is the captive portal's HTTP listener seam. Defaults
	// to the net/http server.
	PortalServer transport.Server

	// Config is the device provisioning. Defaults to config.Default().
	Config *config.Provisioning

	// PortalDNSAddr and PortalHTTPAddr override the portal bind
	// addresses, mainly for unprivileged hosts and tests.
	PortalDNSAddr  string
	PortalHTTPAddr string

	// DisableDiscovery turns off the mDNS announcement.
	DisableDiscovery bool
}

// Device is the public entry point consumed by host firmware: one Setup
// call, then Tick on every loop iteration. All components run inside Tick
// cooperatively; none of them blocks.
type Device struct {
	capability platform.Capability
	cfg        *config.Provisioning

	manager   *wifi.Manager
	portal    *portal.Controller
	upgrader  *upgrade.Orchestrator
	announcer *discovery.Announcer

	setupDone bool
}

// New assembles a device from its options. No hardware is touched until
// Setup.
func New(opts Options) (*Device, error) {
	if opts.Platform == nil {
		return nil, errors.New("libiop: Options.Platform is required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := logging.InitializeWithFile(cfg.Logging.Level, cfg.Logging.File); err != nil {
		return nil, err
	}

	client := opts.Client
	if client == nil {
		client = transport.NewHTTPClient()
	}
	server := opts.PortalServer
	if server == nil {
		server = transport.NewHTTPServer()
	}

	flash := opts.Platform.Flash()
	clock := opts.Platform.Clock()

	cache, err := storage.NewCredentialCache(storage.NewRegion(flash, platform.RegionCredentials))
	if err != nil {
		return nil, fmt.Errorf("libiop: %w", err)
	}

	manager := wifi.NewManager(opts.Platform.Radio(), clock, cache)
	if cfg.Timeouts.ConnectMillis > 0 {
		manager.SetConnectTimeout(cfg.Timeouts.ConnectMillis)
	}

	portalCtl := portal.NewController(manager, server)
	if opts.PortalDNSAddr != "" || opts.PortalHTTPAddr != "" {
		portalCtl.SetListenAddrs(opts.PortalDNSAddr, opts.PortalHTTPAddr)
	}

	upgrader := upgrade.NewOrchestrator(manager, flash, client, clock, opts.Platform.Reboot)
	if cfg.Timeouts.StallMillis > 0 {
		upgrader.SetStallTimeout(cfg.Timeouts.StallMillis)
	}

	d := &Device{
		capability: opts.Platform,
		cfg:        cfg,
		manager:    manager,
		portal:     portalCtl,
		upgrader:   upgrader,
	}
	if !opts.DisableDiscovery {
		d.announcer = discovery.NewAnnouncer(cfg.Hostname)
	}
	return d, nil
}

// Setup initializes the radio and, when credentials are known (from the
// provisioning file or from the credential cache), starts a connect
// attempt. Idempotent. With no known credentials the device stays
// Disconnected; the host typically starts the portal next.
func (d *Device) Setup() error {
	if d.setupDone {
		return nil
	}
	if err := d.manager.Setup(); err != nil {
		return err
	}
	d.setupDone = true

	name, password := d.cfg.Network.Name, d.cfg.Network.Password
	if name == "" {
		if creds, ok := d.manager.Credentials(); ok {
			name, password = creds.Name, creds.Password
		}
	}
	if name != "" {
		if err := d.manager.ConnectTo(name, password); err != nil {
			// a bad stored name is not fatal; the portal can fix it
			logging.Warn("Boot-time connect refused", zap.Error(err))
		}
	}
	return nil
}

// Tick runs one cooperative iteration: lifecycle first, then portal, then
// upgrade, so a connection event observed this tick is visible to its
// dependents within the same tick, never one tick stale.
func (d *Device) Tick() {
	d.manager.Tick()
	d.portal.Tick()
	d.upgrader.Tick()
	d.tickDiscovery()
	d.capability.Yield()
}

func (d *Device) tickDiscovery() {
	if d.announcer == nil {
		return
	}
	connected := d.manager.State().Status == wifi.Connected
	switch {
	case connected && !d.announcer.Active():
		if err := d.announcer.Start(); err != nil {
			logging.Warn("mDNS announce failed", zap.Error(err))
			// do not retry every tick
			d.announcer = nil
		}
	case !connected && d.announcer.Active():
		d.announcer.Stop()
	}
}

// OnConnect registers the single connection observer; see wifi.Manager.
func (d *Device) OnConnect(fn func(wifi.Credentials)) { d.manager.OnConnect(fn) }

// ConnectTo requests a station connection; see wifi.Manager.
func (d *Device) ConnectTo(name, password string) error {
	return d.manager.ConnectTo(name, password)
}

// Credentials returns the last successfully used credentials.
func (d *Device) Credentials() (wifi.Credentials, bool) { return d.manager.Credentials() }

// ConnectionState reports the lifecycle manager's published state.
func (d *Device) ConnectionState() wifi.ConnectionState { return d.manager.State() }

// StartPortal opens the captive portal. Empty arguments fall back to the
// provisioned access-point settings.
func (d *Device) StartPortal(apName, apPassword string) error {
	if apName == "" {
		apName = d.cfg.AccessPoint.Name
		apPassword = d.cfg.AccessPoint.Password
	}
	return d.portal.Start(apName, apPassword)
}

// StopPortal cancels the portal session, if any.
func (d *Device) StopPortal() { d.portal.Stop() }

// PortalSession reports the captive-portal session state.
func (d *Device) PortalSession() portal.Session { return d.portal.Session() }

// RequestUpgrade begins a firmware upgrade session. Empty url falls back
// to the provisioned upgrade source.
func (d *Device) RequestUpgrade(url, expectedHash string) error {
	if url == "" {
		url = d.cfg.Upgrade.URL
		expectedHash = d.cfg.Upgrade.SHA256
	}
	return d.upgrader.Request(url, expectedHash)
}

// UpgradeSession reports the upgrade session state.
func (d *Device) UpgradeSession() upgrade.Session { return d.upgrader.Session() }
