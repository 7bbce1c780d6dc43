package libiop

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/internet-of-plants/libiop/config"
	"github.com/internet-of-plants/libiop/platform"
	"github.com/internet-of-plants/libiop/transport"
	"github.com/internet-of-plants/libiop/upgrade"
	"github.com/internet-of-plants/libiop/wifi"
)

// fakeServer captures the portal handler so tests can drive requests
// through it without binding a socket.
type fakeServer struct {
	handler http.Handler
	stopped int
}

func (s *fakeServer) Start(addr string, handler http.Handler) error {
	s.handler = handler
	return nil
}

func (s *fakeServer) Stop() error {
	s.stopped++
	return nil
}

// captureClient records the fetched URL and hands back a transfer that
// never delivers anything.
type captureClient struct {
	url string
}

func (c *captureClient) Fetch(u string) (transport.Transfer, error) {
	c.url = u
	return emptyTransfer{}, nil
}

type emptyTransfer struct{}

func (emptyTransfer) Next() ([]byte, error) { return nil, transport.ErrNoData }
func (emptyTransfer) Total() (int64, bool)  { return 0, false }
func (emptyTransfer) Close()                {}

type deviceRig struct {
	dev    *Device
	sim    *platform.Sim
	clock  *platform.SimClock
	server *fakeServer
}

func newDeviceRig(t *testing.T, opts Options) *deviceRig {
	t.Helper()
	sim := platform.NewSim()
	server := &fakeServer{}
	opts.Platform = sim
	opts.PortalServer = server
	opts.PortalDNSAddr = "127.0.0.1:0"
	opts.PortalHTTPAddr = "127.0.0.1:0"
	opts.DisableDiscovery = true

	dev, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &deviceRig{
		dev:    dev,
		sim:    sim,
		clock:  sim.Clock().(*platform.SimClock),
		server: server,
	}
}

// tickUntil advances simulated time until cond holds, sleeping briefly
// each round so background goroutines can make progress.
func (r *deviceRig) tickUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	for i := 0; i < 2000; i++ {
		r.clock.Advance(10)
		r.dev.Tick()
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("gave up waiting for %s", what)
}

func (r *deviceRig) submitPortalForm(t *testing.T, network, password string) {
	t.Helper()
	host := r.dev.PortalSession().RedirectHost
	form := url.Values{"network": {network}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "http://"+host+"/connect", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	r.server.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("portal submit status = %d, want 200", rec.Code)
	}
}

func testConfig() *config.Provisioning {
	return config.Default()
}

func TestNewRequiresPlatform(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("New() succeeded without a platform")
	}
}

func TestFreshBootStaysDisconnected(t *testing.T) {
	rig := newDeviceRig(t, Options{})
	if err := rig.dev.Setup(); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	rig.clock.Advance(10)
	rig.dev.Tick()

	if got := rig.dev.ConnectionState().Status; got != wifi.Disconnected {
		t.Errorf("status = %v on fresh boot, want Disconnected", got)
	}
	if _, ok := rig.dev.Credentials(); ok {
		t.Error("fresh device reports stored credentials")
	}
	// nothing has ever been stored
	sentinel := make([]byte, 1)
	if err := rig.sim.MemFlash().ReadAt(platform.RegionCredentials, 0, sentinel); err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}
	if sentinel[0] != 0xFF {
		t.Errorf("credential sentinel = %#x on fresh flash, want 0xFF", sentinel[0])
	}
}

func TestBootWithProvisionedNetwork(t *testing.T) {
	cfg := testConfig()
	cfg.Network.Name = "home-net"
	cfg.Network.Password = "home-pass"

	rig := newDeviceRig(t, Options{Config: cfg})
	rig.sim.SimRadio().AddNetwork("home-net", "home-pass")

	var connected []wifi.Credentials
	rig.dev.OnConnect(func(c wifi.Credentials) { connected = append(connected, c) })

	if err := rig.dev.Setup(); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	rig.tickUntil(t, "connection", func() bool {
		return rig.dev.ConnectionState().Status == wifi.Connected
	})

	if len(connected) != 1 || connected[0].Name != "home-net" {
		t.Fatalf("OnConnect observed %v, want one home-net event", connected)
	}
	// the successful credentials were persisted for the next boot
	sentinel := make([]byte, 1)
	if err := rig.sim.MemFlash().ReadAt(platform.RegionCredentials, 0, sentinel); err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}
	if sentinel[0] != 0xC5 {
		t.Errorf("credential sentinel = %#x after connect, want 0xC5", sentinel[0])
	}
}

func TestRebootReconnectsFromCache(t *testing.T) {
	rig := newDeviceRig(t, Options{})
	rig.sim.SimRadio().AddNetwork("home-net", "home-pass")
	if err := rig.dev.Setup(); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if err := rig.dev.ConnectTo("home-net", "home-pass"); err != nil {
		t.Fatalf("ConnectTo() error = %v", err)
	}
	rig.tickUntil(t, "first connection", func() bool {
		return rig.dev.ConnectionState().Status == wifi.Connected
	})

	// a second device over the same flash models the reboot
	second, err := New(Options{
		Platform:         rig.sim,
		PortalServer:     &fakeServer{},
		DisableDiscovery: true,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := second.Setup(); err != nil {
		t.Fatalf("second Setup() error = %v", err)
	}
	if got := second.ConnectionState().Status; got != wifi.Connecting {
		t.Fatalf("status = %v right after reboot, want Connecting from cache", got)
	}
	for i := 0; i < 200 && second.ConnectionState().Status != wifi.Connected; i++ {
		rig.clock.Advance(10)
		second.Tick()
	}
	if got := second.ConnectionState().Status; got != wifi.Connected {
		t.Errorf("status = %v after reboot, want Connected", got)
	}
}

func TestStartPortalUsesProvisionedAccessPoint(t *testing.T) {
	rig := newDeviceRig(t, Options{Config: testConfig()})
	if err := rig.dev.Setup(); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if err := rig.dev.StartPortal("", ""); err != nil {
		t.Fatalf("StartPortal() error = %v", err)
	}
	defer rig.dev.StopPortal()

	sess := rig.dev.PortalSession()
	if !sess.Active {
		t.Fatal("portal session not active")
	}
	if sess.RedirectHost == "" {
		t.Error("RedirectHost empty")
	}
	if got := rig.dev.ConnectionState().Mode; got != platform.WifiAccessPoint {
		t.Errorf("mode = %v, want WifiAccessPoint", got)
	}
}

func TestRequestUpgradeFallsBackToConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Upgrade.URL = "http://fw.example/image.bin"
	cfg.Upgrade.SHA256 = strings.Repeat("ab", 32)

	client := &captureClient{}
	rig := newDeviceRig(t, Options{Config: cfg, Client: client})
	rig.sim.SimRadio().AddNetwork("home-net", "home-pass")
	if err := rig.dev.Setup(); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	if err := rig.dev.RequestUpgrade("", ""); !errors.Is(err, upgrade.ErrNotConnected) {
		t.Fatalf("RequestUpgrade() while disconnected = %v, want ErrNotConnected", err)
	}

	if err := rig.dev.ConnectTo("home-net", "home-pass"); err != nil {
		t.Fatalf("ConnectTo() error = %v", err)
	}
	rig.tickUntil(t, "connection", func() bool {
		return rig.dev.ConnectionState().Status == wifi.Connected
	})

	if err := rig.dev.RequestUpgrade("", ""); err != nil {
		t.Fatalf("RequestUpgrade() error = %v", err)
	}
	if client.url != cfg.Upgrade.URL {
		t.Errorf("fetched %q, want provisioned %q", client.url, cfg.Upgrade.URL)
	}
	if got := rig.dev.UpgradeSession().ExpectedHash; got != cfg.Upgrade.SHA256 {
		t.Errorf("session hash = %q, want provisioned digest", got)
	}
}

// TestProvisionToUpgradeFlow walks the whole device lifecycle: portal up,
// credentials captured from a client, station connected, firmware fetched
// over real HTTP, verified, committed, reboot requested.
func TestProvisionToUpgradeFlow(t *testing.T) {
	image := bytes.Repeat([]byte("firmware bits"), 4096)
	sum := sha256.Sum256(image)
	digest := hex.EncodeToString(sum[:])
	fw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(image)
	}))
	defer fw.Close()

	rig := newDeviceRig(t, Options{})
	rig.sim.SimRadio().AddNetwork("home-net", "home-pass")
	if err := rig.dev.Setup(); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if err := rig.dev.StartPortal("device-setup", "setup-pass"); err != nil {
		t.Fatalf("StartPortal() error = %v", err)
	}

	rig.submitPortalForm(t, "home-net", "home-pass")
	rig.tickUntil(t, "connection", func() bool {
		return rig.dev.ConnectionState().Status == wifi.Connected
	})
	if rig.dev.PortalSession().Active {
		t.Fatal("portal still active after connect")
	}

	if err := rig.dev.RequestUpgrade(fw.URL, digest); err != nil {
		t.Fatalf("RequestUpgrade() error = %v", err)
	}
	rig.tickUntil(t, "upgrade completion", func() bool {
		s := rig.dev.UpgradeSession().State
		return s == upgrade.Done || s == upgrade.Failed
	})

	sess := rig.dev.UpgradeSession()
	if sess.State != upgrade.Done {
		t.Fatalf("upgrade session = %+v, want Done", sess)
	}
	if got := rig.sim.RebootRequests(); got != 1 {
		t.Errorf("reboot requests = %d, want 1", got)
	}
	if got := rig.sim.MemFlash().BootImageID(); got != digest {
		t.Errorf("BootImageID = %q, want image digest", got)
	}
}
