package platform

import "fmt"

// WifiMode identifies which radio interfaces are active. Exactly one mode is
// active at a time; transitions through Radio.SetMode are the single source
// of truth for radio state.
type WifiMode uint8

const (
	// WifiOff disables the radio entirely
	WifiOff WifiMode = iota
	// WifiStation joins an existing access point as a client
	WifiStation
	// WifiAccessPoint advertises the device's own network
	WifiAccessPoint
	// WifiStationAndAccessPoint runs both interfaces at once, used while a
	// captive-portal session attempts a station connect without dropping
	// the portal clients
	WifiStationAndAccessPoint
)

// String returns a human-readable mode name
func (m WifiMode) String() string {
	switch m {
	case WifiOff:
		return "off"
	case WifiStation:
		return "station"
	case WifiAccessPoint:
		return "access_point"
	case WifiStationAndAccessPoint:
		return "station+access_point"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(m))
	}
}

// RadioStatus is the raw association state reported by the radio hardware.
// Higher layers translate it into connection state; the radio itself never
// fires callbacks and is only ever polled.
type RadioStatus uint8

const (
	// RadioIdle means no association attempt is in progress
	RadioIdle RadioStatus = iota
	// RadioConnecting means an association attempt is in progress
	RadioConnecting
	// RadioConnected means the station interface is associated
	RadioConnected
	// RadioFailed means the last association attempt failed
	// (bad credentials, no such network, radio-level timeout)
	RadioFailed
)

// String returns a human-readable status name
func (s RadioStatus) String() string {
	switch s {
	case RadioIdle:
		return "idle"
	case RadioConnecting:
		return "connecting"
	case RadioConnected:
		return "connected"
	case RadioFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Radio abstracts WiFi hardware control. All methods are non-blocking:
// Connect starts an association attempt and returns immediately; progress is
// observed by polling Status. Implementations must be safe to call from the
// tick loop only; they are not required to be goroutine-safe.
type Radio interface {
	// Setup brings the radio into a quiescent, powered state. Idempotent.
	Setup() error

	// Mode reports the currently active interface mode.
	Mode() WifiMode

	// SetMode switches interface mode. Switching away from AccessPoint
	// drops any associated portal clients.
	SetMode(mode WifiMode) error

	// Connect begins associating the station interface with the named
	// network. Any attempt already in progress is abandoned first.
	Connect(name, password string) error

	// Disconnect drops the station association, if any.
	Disconnect() error

	// StartAccessPoint configures and enables the device's own network.
	// Only valid in AccessPoint or StationAndAccessPoint mode.
	StartAccessPoint(name, password string) error

	// Status reports the current station association state.
	Status() RadioStatus

	// LocalAddr reports the device's own IPv4 address on the active
	// interface, as a dotted quad. Empty when no interface is up.
	LocalAddr() string
}

// Flash region identifiers. Regions are fixed-offset, fixed-size slices of
// the device's persistent storage; the mapping to physical sectors is the
// backend's concern.
type Region uint8

const (
	// RegionCredentials holds the cached network credentials
	RegionCredentials Region = iota
	// RegionStaging holds a firmware image while it is fetched and
	// verified, before being marked bootable
	RegionStaging
)

// Flash abstracts byte-addressable persistent storage plus the next-boot
// commit operation. Reads and writes are bounds-checked by the backend and
// return an error on out-of-range access; callers that consider such access
// an invariant violation escalate it themselves.
type Flash interface {
	// RegionSize reports the usable byte size of a region.
	RegionSize(region Region) int

	// ReadAt fills p from the region starting at off.
	ReadAt(region Region, off int, p []byte) error

	// WriteAt writes p into the region starting at off.
	WriteAt(region Region, off int, p []byte) error

	// Erase resets the whole region to its erased state.
	Erase(region Region) error

	// CommitNextBoot marks the first size bytes of the staging region as
	// the image to boot next. The currently running firmware remains
	// authoritative until the next reboot.
	CommitNextBoot(size int) error

	// BootImageID identifies the currently committed boot image, e.g. a
	// digest or version tag. Unchanged by staging writes; changes only
	// after a successful CommitNextBoot.
	BootImageID() string
}

// Clock provides monotonic elapsed time. Milliseconds since an arbitrary
// epoch; wraps are not handled and would take ~584 million years.
type Clock interface {
	Millis() uint64
}

// Capability bundles everything a hardware backend must provide. The
// lifecycle, portal, and upgrade components depend only on this interface,
// never on backend specifics.
type Capability interface {
	Radio() Radio
	Flash() Flash
	Clock() Clock

	// Yield hands control back to the scheduler between ticks. A no-op on
	// preemptive hosts; on bare-metal backends it services the network
	// stack and feeds the watchdog.
	Yield()

	// Reboot requests a device restart, used after a successful firmware
	// commit. It may return; the restart happens at the backend's earliest
	// convenience.
	Reboot()
}
