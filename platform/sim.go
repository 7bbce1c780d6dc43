package platform

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// ErrOutOfRange is returned by flash backends on a bounds-violating access.
var ErrOutOfRange = errors.New("platform: flash access out of range")

// Default region sizes for the simulated flash.
const (
	// SimCredentialRegionSize fits the sentinel byte plus the bounded
	// name and password regions
	SimCredentialRegionSize = 128
	// SimStagingRegionSize is the default firmware staging capacity
	SimStagingRegionSize = 256 * 1024
)

// Sim is a software-only Capability backend. The radio is scriptable
// (known networks, association latency, induced link drops), the flash is
// in-memory with injectable faults, and the clock is either manually
// advanced or wall-time backed. Tests and the iopsim host simulator both
// run on it.
type Sim struct {
	radio *SimRadio
	flash *MemFlash
	clock SimClockSource

	rebootRequests int
}

// SimClockSource is the clock seam for the simulated backend.
type SimClockSource interface {
	Clock
}

// NewSim creates a simulated backend with a manually advanced clock.
func NewSim() *Sim {
	clock := NewSimClock()
	return &Sim{
		radio: NewSimRadio(clock),
		flash: NewMemFlash(SimStagingRegionSize),
		clock: clock,
	}
}

// NewSimWallClock creates a simulated backend whose clock follows real
// time, for interactive use.
func NewSimWallClock() *Sim {
	clock := NewWallClock()
	return &Sim{
		radio: NewSimRadio(clock),
		flash: NewMemFlash(SimStagingRegionSize),
		clock: clock,
	}
}

// Radio returns the scriptable radio.
func (s *Sim) Radio() Radio { return s.radio }

// Flash returns the in-memory flash.
func (s *Sim) Flash() Flash { return s.flash }

// Clock returns the backend clock.
func (s *Sim) Clock() Clock { return s.clock }

// Yield is a no-op on the simulated backend.
func (s *Sim) Yield() {}

// Reboot records the request instead of restarting anything.
func (s *Sim) Reboot() { s.rebootRequests++ }

// RebootRequests reports how many reboots were requested.
func (s *Sim) RebootRequests() int { return s.rebootRequests }

// SimRadio returns the radio with its scripting surface exposed.
func (s *Sim) SimRadio() *SimRadio { return s.radio }

// MemFlash returns the flash with its fault-injection surface exposed.
func (s *Sim) MemFlash() *MemFlash { return s.flash }

// SimRadio scripts association behavior: networks registered through
// AddNetwork associate successfully after the configured latency; anything
// else fails after the same latency. Status is computed lazily from the
// clock, so the radio behaves correctly however often it is polled.
type SimRadio struct {
	clock Clock

	mode   WifiMode
	status RadioStatus

	networks  map[string]string
	latencyMS uint64

	attemptName string
	attemptPass string
	attemptAt   uint64

	apName string
	apPass string

	stationAddr string
	apAddr      string

	setupCalls int
}

// NewSimRadio creates a scriptable radio driven by the given clock.
func NewSimRadio(clock Clock) *SimRadio {
	return &SimRadio{
		clock:       clock,
		mode:        WifiOff,
		status:      RadioIdle,
		networks:    make(map[string]string),
		latencyMS:   50,
		stationAddr: "10.0.0.17",
		apAddr:      "192.168.4.1",
	}
}

// AddNetwork registers a network the radio can associate with.
func (r *SimRadio) AddNetwork(name, password string) {
	r.networks[name] = password
}

// SetAssociationLatency sets how long (simulated ms) association attempts
// take before resolving.
func (r *SimRadio) SetAssociationLatency(ms uint64) { r.latencyMS = ms }

// DropLink simulates a radio-reported link loss.
func (r *SimRadio) DropLink() {
	if r.resolve(); r.status == RadioConnected {
		r.status = RadioIdle
		r.attemptName = ""
	}
}

// SetupCalls reports how many times Setup ran, for idempotence checks.
func (r *SimRadio) SetupCalls() int { return r.setupCalls }

// Setup powers the radio in a quiescent state.
func (r *SimRadio) Setup() error {
	r.setupCalls++
	if r.mode == WifiOff {
		r.mode = WifiStation
	}
	return nil
}

// Mode reports the active interface mode.
func (r *SimRadio) Mode() WifiMode { return r.mode }

// SetMode switches interface mode.
func (r *SimRadio) SetMode(mode WifiMode) error {
	r.mode = mode
	if mode == WifiOff || mode == WifiAccessPoint {
		// station interface goes away with its association
		r.status = RadioIdle
		r.attemptName = ""
	}
	return nil
}

// Connect begins a scripted association attempt.
func (r *SimRadio) Connect(name, password string) error {
	if r.mode != WifiStation && r.mode != WifiStationAndAccessPoint {
		return fmt.Errorf("platform: connect requires station mode, radio is %s", r.mode)
	}
	r.attemptName = name
	r.attemptPass = password
	r.attemptAt = r.clock.Millis()
	r.status = RadioConnecting
	return nil
}

// Disconnect drops the station association.
func (r *SimRadio) Disconnect() error {
	r.status = RadioIdle
	r.attemptName = ""
	return nil
}

// StartAccessPoint enables the device's own network.
func (r *SimRadio) StartAccessPoint(name, password string) error {
	if r.mode != WifiAccessPoint && r.mode != WifiStationAndAccessPoint {
		return fmt.Errorf("platform: access point requires AP mode, radio is %s", r.mode)
	}
	r.apName = name
	r.apPass = password
	return nil
}

// Status reports the association state, resolving any due attempt first.
func (r *SimRadio) Status() RadioStatus {
	r.resolve()
	return r.status
}

// LocalAddr reports the simulated interface address.
func (r *SimRadio) LocalAddr() string {
	switch r.mode {
	case WifiAccessPoint, WifiStationAndAccessPoint:
		return r.apAddr
	case WifiStation:
		if r.Status() == RadioConnected {
			return r.stationAddr
		}
	}
	return ""
}

func (r *SimRadio) resolve() {
	if r.status != RadioConnecting {
		return
	}
	if r.clock.Millis()-r.attemptAt < r.latencyMS {
		return
	}
	pass, known := r.networks[r.attemptName]
	if known && pass == r.attemptPass {
		r.status = RadioConnected
	} else {
		r.status = RadioFailed
	}
}

// MemFlash is an in-memory Flash with fault injection. Freshly created
// regions hold 0xFF, matching erased NOR flash.
type MemFlash struct {
	credentials []byte
	staging     []byte

	writeCounts map[Region]int
	failReads   bool
	commitErr   error

	committedID string
	commitCalls int
}

// NewMemFlash creates an in-memory flash with the given staging capacity.
func NewMemFlash(stagingSize int) *MemFlash {
	f := &MemFlash{
		credentials: make([]byte, SimCredentialRegionSize),
		staging:     make([]byte, stagingSize),
		writeCounts: make(map[Region]int),
		committedID: "factory",
	}
	for i := range f.credentials {
		f.credentials[i] = 0xFF
	}
	for i := range f.staging {
		f.staging[i] = 0xFF
	}
	return f
}

// WriteCount reports how many writes hit a region, for wear assertions.
func (f *MemFlash) WriteCount(region Region) int { return f.writeCounts[region] }

// FailReads makes every subsequent read return an error, simulating a
// hardware fault.
func (f *MemFlash) FailReads(fail bool) { f.failReads = fail }

// FailCommit makes CommitNextBoot return err.
func (f *MemFlash) FailCommit(err error) { f.commitErr = err }

// CommitCalls reports how many commits were attempted.
func (f *MemFlash) CommitCalls() int { return f.commitCalls }

func (f *MemFlash) region(region Region) ([]byte, error) {
	switch region {
	case RegionCredentials:
		return f.credentials, nil
	case RegionStaging:
		return f.staging, nil
	default:
		return nil, fmt.Errorf("platform: unknown flash region %d", region)
	}
}

// RegionSize reports a region's capacity.
func (f *MemFlash) RegionSize(region Region) int {
	buf, err := f.region(region)
	if err != nil {
		return 0
	}
	return len(buf)
}

// ReadAt fills p from the region starting at off.
func (f *MemFlash) ReadAt(region Region, off int, p []byte) error {
	if f.failReads {
		return errors.New("platform: simulated read fault")
	}
	buf, err := f.region(region)
	if err != nil {
		return err
	}
	if off < 0 || off+len(p) > len(buf) {
		return ErrOutOfRange
	}
	copy(p, buf[off:])
	return nil
}

// WriteAt writes p into the region starting at off.
func (f *MemFlash) WriteAt(region Region, off int, p []byte) error {
	buf, err := f.region(region)
	if err != nil {
		return err
	}
	if off < 0 || off+len(p) > len(buf) {
		return ErrOutOfRange
	}
	copy(buf[off:], p)
	f.writeCounts[region]++
	return nil
}

// Erase resets a region to 0xFF.
func (f *MemFlash) Erase(region Region) error {
	buf, err := f.region(region)
	if err != nil {
		return err
	}
	for i := range buf {
		buf[i] = 0xFF
	}
	f.writeCounts[region]++
	return nil
}

// CommitNextBoot marks the staged image bootable by recording its digest as
// the new boot image ID.
func (f *MemFlash) CommitNextBoot(size int) error {
	f.commitCalls++
	if f.commitErr != nil {
		return f.commitErr
	}
	if size < 0 || size > len(f.staging) {
		return ErrOutOfRange
	}
	sum := sha256.Sum256(f.staging[:size])
	f.committedID = hex.EncodeToString(sum[:])
	return nil
}

// BootImageID reports the committed boot image identifier.
func (f *MemFlash) BootImageID() string { return f.committedID }

// SimClock is a manually advanced monotonic clock.
type SimClock struct {
	now uint64
}

// NewSimClock starts a simulated clock at zero.
func NewSimClock() *SimClock { return &SimClock{} }

// Millis reports simulated elapsed milliseconds.
func (c *SimClock) Millis() uint64 { return c.now }

// Advance moves simulated time forward.
func (c *SimClock) Advance(ms uint64) { c.now += ms }

// WallClock is a monotonic clock backed by real time.
type WallClock struct {
	start time.Time
}

// NewWallClock starts a wall clock at zero elapsed.
func NewWallClock() *WallClock { return &WallClock{start: time.Now()} }

// Millis reports real elapsed milliseconds since creation.
func (c *WallClock) Millis() uint64 { return uint64(time.Since(c.start) / time.Millisecond) }
