//go:build rp2040 || rp2350

package platform

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"log/slog"
	"machine"
	"time"

	"github.com/soypat/cyw43439"
	"github.com/soypat/seqs/eth/dhcp"
	"github.com/soypat/seqs/stacks"
)

// Pico is the Capability backend for the Raspberry Pi Pico W family,
// driving the on-board CYW43439 radio and the RP2 internal flash.
type Pico struct {
	radio *picoRadio
	flash *picoFlash
	clock *WallClock
}

// NewPico initializes the Pico W backend. The network stack is sized for
// the portal listeners plus one upgrade transfer.
func NewPico(hostname string) *Pico {
	logger := slog.New(slog.NewTextHandler(machine.Serial, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	return &Pico{
		radio: &picoRadio{
			dev:      cyw43439.NewPicoWDevice(),
			hostname: hostname,
			logger:   logger,
		},
		flash: newPicoFlash(),
		clock: NewWallClock(),
	}
}

// Radio returns the CYW43439-backed radio.
func (p *Pico) Radio() Radio { return p.radio }

// Flash returns the RP2 flash regions.
func (p *Pico) Flash() Flash { return p.flash }

// Clock returns the monotonic clock.
func (p *Pico) Clock() Clock { return p.clock }

// Yield lets the scheduler service the network stack between ticks.
func (p *Pico) Yield() { time.Sleep(time.Millisecond) }

// Reboot resets the CPU; the first-stage bootloader consults the commit
// header on the way back up.
func (p *Pico) Reboot() { machine.CPUReset() }

// picoRadio adapts the CYW43439 driver to the polled Radio contract.
// JoinWPA2 and DHCP block, so association runs on its own goroutine and
// publishes its outcome through status; Status only ever reads it.
type picoRadio struct {
	dev      *cyw43439.Device
	hostname string
	logger   *slog.Logger

	mode    WifiMode
	status  RadioStatus
	stack   *stacks.PortStack
	addr    string
	attempt uint32

	initDone bool
}

func (r *picoRadio) Setup() error {
	if r.initDone {
		return nil
	}
	cfg := cyw43439.DefaultWifiConfig()
	cfg.Logger = r.logger
	if err := r.dev.Init(cfg); err != nil {
		return err
	}
	r.initDone = true
	r.mode = WifiStation
	return nil
}

func (r *picoRadio) Mode() WifiMode { return r.mode }

func (r *picoRadio) SetMode(mode WifiMode) error {
	switch mode {
	case WifiAccessPoint, WifiStationAndAccessPoint:
		// TODO: wire AP mode once soypat/cyw43439 exposes it
		return errors.New("platform: access point mode not supported on cyw43439 yet")
	}
	r.mode = mode
	if mode == WifiOff {
		r.status = RadioIdle
	}
	return nil
}

func (r *picoRadio) Connect(name, password string) error {
	if r.mode != WifiStation && r.mode != WifiStationAndAccessPoint {
		return errors.New("platform: connect requires station mode")
	}
	r.attempt++
	attempt := r.attempt
	r.status = RadioConnecting
	go r.join(attempt, name, password)
	return nil
}

// join performs the blocking WPA2 association and DHCP exchange, then
// publishes the outcome unless a newer attempt superseded this one.
func (r *picoRadio) join(attempt uint32, name, password string) {
	err := r.dev.JoinWPA2(name, password)
	if err != nil {
		r.logger.Error("wifi join failed", slog.String("err", err.Error()))
		if r.attempt == attempt {
			r.status = RadioFailed
		}
		return
	}
	mac, _ := r.dev.HardwareAddr6()
	stack := stacks.NewPortStack(stacks.PortStackConfig{
		MAC:             mac,
		MaxOpenPortsUDP: 2,
		MaxOpenPortsTCP: 2,
		MTU:             cyw43439.MTU,
		Logger:          r.logger,
	})
	r.dev.RecvEthHandle(stack.RecvEth)
	go r.nicLoop(stack)

	dhcpClient := stacks.NewDHCPClient(stack, dhcp.DefaultClientPort)
	err = dhcpClient.BeginRequest(stacks.DHCPRequestConfig{
		Xid:      uint32(time.Now().Nanosecond()),
		Hostname: r.hostname,
	})
	if err != nil {
		if r.attempt == attempt {
			r.status = RadioFailed
		}
		return
	}
	for i := 0; dhcpClient.State() != dhcp.StateBound; i++ {
		time.Sleep(time.Second / 2)
		if i > 15 {
			if r.attempt == attempt {
				r.status = RadioFailed
			}
			return
		}
	}
	addr := dhcpClient.Offer()
	if r.attempt != attempt {
		return
	}
	stack.SetAddr(addr)
	r.stack = stack
	r.addr = addr.String()
	r.status = RadioConnected
}

func (r *picoRadio) nicLoop(stack *stacks.PortStack) {
	// adapted from the cyw43439 examples' NIC loop
	buf := make([]byte, cyw43439.MTU)
	for {
		if _, err := stack.HandleEth(buf); err != nil {
			r.logger.Error("stack handle", slog.String("err", err.Error()))
		}
		time.Sleep(time.Millisecond)
	}
}

func (r *picoRadio) Disconnect() error {
	r.attempt++
	r.status = RadioIdle
	r.addr = ""
	return nil
}

func (r *picoRadio) StartAccessPoint(name, password string) error {
	// TODO: wire AP mode once soypat/cyw43439 exposes it
	return errors.New("platform: access point mode not supported on cyw43439 yet")
}

func (r *picoRadio) Status() RadioStatus { return r.status }

func (r *picoRadio) LocalAddr() string { return r.addr }

// Flash layout, from the top of the chip downward: one 4 KiB sector of
// commit header, one 4 KiB sector of credentials, then the staging region.
// The running program occupies the bottom of flash and is never touched.
const (
	picoSectorSize     = 4096
	picoStagingSize    = SimStagingRegionSize
	picoCommitMagic    = 0x494F5055 // "IOPU"
	picoCommitHdrWords = 2 + sha256.Size/4
)

type picoFlash struct {
	size          int64
	headerOffset  int64
	credsOffset   int64
	stagingOffset int64
	committedID   string
}

func newPicoFlash() *picoFlash {
	size := machine.Flash.Size()
	f := &picoFlash{
		size:          size,
		headerOffset:  size - picoSectorSize,
		credsOffset:   size - 2*picoSectorSize,
		stagingOffset: size - 2*picoSectorSize - picoStagingSize,
	}
	f.committedID = f.readCommittedID()
	return f
}

func (f *picoFlash) regionOffset(region Region) (int64, int, error) {
	switch region {
	case RegionCredentials:
		return f.credsOffset, picoSectorSize, nil
	case RegionStaging:
		return f.stagingOffset, picoStagingSize, nil
	default:
		return 0, 0, errors.New("platform: unknown flash region")
	}
}

func (f *picoFlash) RegionSize(region Region) int {
	_, size, err := f.regionOffset(region)
	if err != nil {
		return 0
	}
	return size
}

func (f *picoFlash) ReadAt(region Region, off int, p []byte) error {
	base, size, err := f.regionOffset(region)
	if err != nil {
		return err
	}
	if off < 0 || off+len(p) > size {
		return ErrOutOfRange
	}
	_, err = machine.Flash.ReadAt(p, base+int64(off))
	return err
}

func (f *picoFlash) WriteAt(region Region, off int, p []byte) error {
	base, size, err := f.regionOffset(region)
	if err != nil {
		return err
	}
	if off < 0 || off+len(p) > size {
		return ErrOutOfRange
	}
	_, err = machine.Flash.WriteAt(p, base+int64(off))
	return err
}

func (f *picoFlash) Erase(region Region) error {
	base, size, err := f.regionOffset(region)
	if err != nil {
		return err
	}
	blockSize := machine.Flash.EraseBlockSize()
	start := base / blockSize
	count := int64(size) / blockSize
	return machine.Flash.EraseBlocks(start, count)
}

// CommitNextBoot writes {magic, size, digest} into the commit header
// sector. The first-stage bootloader copies the staged image over the
// program slot when the header is valid, then invalidates it.
func (f *picoFlash) CommitNextBoot(size int) error {
	if size < 0 || size > picoStagingSize {
		return ErrOutOfRange
	}
	img := make([]byte, size)
	if _, err := machine.Flash.ReadAt(img, f.stagingOffset); err != nil {
		return err
	}
	sum := sha256.Sum256(img)

	hdr := make([]byte, picoCommitHdrWords*4)
	binary.LittleEndian.PutUint32(hdr[0:], picoCommitMagic)
	binary.LittleEndian.PutUint32(hdr[4:], uint32(size))
	copy(hdr[8:], sum[:])

	blockSize := machine.Flash.EraseBlockSize()
	if err := machine.Flash.EraseBlocks(f.headerOffset/blockSize, 1); err != nil {
		return err
	}
	if _, err := machine.Flash.WriteAt(hdr, f.headerOffset); err != nil {
		return err
	}
	f.committedID = hex.EncodeToString(sum[:])
	return nil
}

func (f *picoFlash) BootImageID() string { return f.committedID }

func (f *picoFlash) readCommittedID() string {
	hdr := make([]byte, picoCommitHdrWords*4)
	if _, err := machine.Flash.ReadAt(hdr, f.headerOffset); err != nil {
		return "unknown"
	}
	if binary.LittleEndian.Uint32(hdr[0:]) != picoCommitMagic {
		return "factory"
	}
	return hex.EncodeToString(hdr[8 : 8+sha256.Size])
}
