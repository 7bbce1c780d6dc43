package upgrade

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/internet-of-plants/libiop/internal/fatal"
	"github.com/internet-of-plants/libiop/internal/logging"
	"github.com/internet-of-plants/libiop/platform"
	"github.com/internet-of-plants/libiop/storage"
	"github.com/internet-of-plants/libiop/transport"
	"github.com/internet-of-plants/libiop/wifi"
)

// State is the upgrade session state machine position.
type State uint8

const (
	// Idle means no session exists
	Idle State = iota
	// Fetching means the image transfer is in progress
	Fetching
	// Verifying means the staged image is being hashed
	Verifying
	// Committing means the platform is marking the image bootable
	Committing
	// Failed is terminal; the previous firmware remains authoritative
	Failed
	// Done is terminal; a reboot has been requested
	Done
)

// String returns a human-readable state name
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case Verifying:
		return "verifying"
	case Committing:
		return "committing"
	case Failed:
		return "failed"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Session is the one-at-a-time upgrade session. TotalBytes is -1 until the
// transfer reports a size.
type Session struct {
	State         State
	SourceURL     string
	ExpectedHash  string
	BytesReceived int64
	TotalBytes    int64
	Error         string
}

const (
	// DefaultStallTimeoutMillis bounds how long the transfer may deliver
	// nothing before the session fails
	DefaultStallTimeoutMillis = 30_000

	// verifyChunkSize is how many staged bytes are hashed per tick
	verifyChunkSize = 4096
)

// ErrNotConnected refuses an upgrade request while the network is down.
var ErrNotConnected = errors.New("upgrade: network not connected")

// ErrBadHash refuses a malformed expected digest.
var ErrBadHash = errors.New("upgrade: expected hash is not a sha256 hex digest")

// Orchestrator fetches, verifies, and commits firmware images. All transfer
// bytes stream straight into the flash staging region, a bounded chunk per
// tick; the whole image is never held in memory. The orchestrator performs
// no retries: a failed session stays Failed until the caller requests a
// fresh upgrade, which always restages from offset zero.
type Orchestrator struct {
	manager *wifi.Manager
	staging *storage.Region
	flash   platform.Flash
	client  transport.Client
	clock   platform.Clock
	reboot  func()

	sess     Session
	transfer transport.Transfer

	lastDataAt uint64
	stallMS    uint64

	verified  bool
	verifyOff int64
	hasher    hash.Hash
}

// NewOrchestrator creates an upgrade orchestrator. reboot is invoked once
// after a successful commit.
func NewOrchestrator(manager *wifi.Manager, flash platform.Flash, client transport.Client, clock platform.Clock, reboot func()) *Orchestrator {
	return &Orchestrator{
		manager: manager,
		staging: storage.NewRegion(flash, platform.RegionStaging),
		flash:   flash,
		client:  client,
		clock:   clock,
		reboot:  reboot,
		stallMS: DefaultStallTimeoutMillis,
	}
}

// SetStallTimeout overrides the no-data timeout.
func (o *Orchestrator) SetStallTimeout(ms uint64) { o.stallMS = ms }

// Session reports a copy of the current session.
func (o *Orchestrator) Session() Session { return o.sess }

// Request begins an upgrade session fetching url. expectedHash is an
// optional out-of-band sha256 hex digest of the image; when given, the
// staged bytes are verified against it before anything is marked bootable.
// Request fails without creating a session while the network is not
// connected. Any previous session's partial state is discarded: staging is
// always rewritten from offset zero, never appended to.
func (o *Orchestrator) Request(url, expectedHash string) error {
	if o.manager.State().Status != wifi.Connected {
		return ErrNotConnected
	}
	expectedHash = strings.ToLower(expectedHash)
	if expectedHash != "" {
		if len(expectedHash) != sha256.Size*2 {
			return ErrBadHash
		}
		if _, err := hex.DecodeString(expectedHash); err != nil {
			return ErrBadHash
		}
	}

	o.abandonTransfer()

	transfer, err := o.client.Fetch(url)
	if err != nil {
		return fmt.Errorf("upgrade: starting fetch: %w", err)
	}

	o.transfer = transfer
	o.sess = Session{
		State:        Fetching,
		SourceURL:    url,
		ExpectedHash: expectedHash,
		TotalBytes:   -1,
	}
	o.verified = false
	o.verifyOff = 0
	o.lastDataAt = o.clock.Millis()
	logging.Info("Upgrade session started",
		zap.String("url", url),
		zap.Bool("verified_fetch", expectedHash != ""),
	)
	return nil
}

// Cancel abandons any in-flight session. Partially staged bytes stay in
// flash but are never activated; the next Request overwrites them.
func (o *Orchestrator) Cancel() {
	if o.sess.State == Fetching || o.sess.State == Verifying {
		o.fail("cancelled")
	}
}

// Tick advances the session one bounded step. It must be called after the
// lifecycle manager's tick so a connection loss is observed the same tick
// it happens.
func (o *Orchestrator) Tick() {
	switch o.sess.State {
	case Fetching:
		o.tickFetching()
	case Verifying:
		o.tickVerifying()
	case Committing:
		o.tickCommitting()
	}
}

func (o *Orchestrator) tickFetching() {
	if o.manager.State().Status != wifi.Connected {
		o.fail("connection lost mid-transfer")
		return
	}

	chunk, err := o.transfer.Next()
	switch {
	case err == nil:
		o.stageChunk(chunk)
	case errors.Is(err, transport.ErrNoData):
		if o.clock.Millis()-o.lastDataAt >= o.stallMS {
			o.fail("transfer stalled")
		}
	case errors.Is(err, io.EOF):
		o.finishTransfer()
	default:
		o.fail(err.Error())
	}
}

func (o *Orchestrator) stageChunk(chunk []byte) {
	if o.sess.BytesReceived+int64(len(chunk)) > int64(o.staging.Size()) {
		o.fail(fmt.Sprintf("image exceeds staging capacity of %d bytes", o.staging.Size()))
		return
	}
	if err := o.staging.Write(int(o.sess.BytesReceived), chunk); err != nil {
		o.fail("staging write: " + err.Error())
		return
	}
	o.sess.BytesReceived += int64(len(chunk))
	if total, ok := o.transfer.Total(); ok {
		o.sess.TotalBytes = total
	}
	o.lastDataAt = o.clock.Millis()
	logging.LogUpgradeProgress(o.sess.BytesReceived, o.sess.TotalBytes)
}

func (o *Orchestrator) finishTransfer() {
	o.abandonTransfer()
	if o.sess.BytesReceived == 0 {
		o.fail("empty firmware image")
		return
	}
	if o.sess.TotalBytes >= 0 && o.sess.BytesReceived != o.sess.TotalBytes {
		o.fail(fmt.Sprintf("short transfer: %d of %d bytes", o.sess.BytesReceived, o.sess.TotalBytes))
		return
	}
	if o.sess.ExpectedHash == "" {
		// caller opted out of verification
		o.verified = true
		o.sess.State = Committing
		return
	}
	o.hasher = sha256.New()
	o.verifyOff = 0
	o.sess.State = Verifying
	logging.Info("Upgrade transfer complete, verifying",
		zap.Int64("bytes", o.sess.BytesReceived),
	)
}

// tickVerifying hashes one chunk of the staged image per tick, reading the
// bytes back from flash so the digest covers what was actually written.
func (o *Orchestrator) tickVerifying() {
	remaining := o.sess.BytesReceived - o.verifyOff
	if remaining > verifyChunkSize {
		remaining = verifyChunkSize
	}
	buf := make([]byte, remaining)
	if err := o.staging.Read(int(o.verifyOff), buf); err != nil {
		o.fail("staged image unreadable: " + err.Error())
		return
	}
	o.hasher.Write(buf)
	o.verifyOff += remaining

	if o.verifyOff < o.sess.BytesReceived {
		return
	}

	got := hex.EncodeToString(o.hasher.Sum(nil))
	o.hasher = nil
	if got != o.sess.ExpectedHash {
		// staged bytes stay where they are but are never activated
		logging.Error("Upgrade image digest mismatch",
			zap.String("expected", o.sess.ExpectedHash),
			zap.String("got", got),
		)
		o.fail("image digest mismatch")
		return
	}
	o.verified = true
	o.sess.State = Committing
}

func (o *Orchestrator) tickCommitting() {
	if !o.verified {
		fatal.Halt("committing an unverified firmware image")
	}
	if err := o.flash.CommitNextBoot(int(o.sess.BytesReceived)); err != nil {
		logging.Error("Upgrade commit failed", zap.Error(err))
		if eraseErr := o.staging.Erase(); eraseErr != nil {
			logging.Warn("Discarding staging failed", zap.Error(eraseErr))
		}
		o.fail("commit: " + err.Error())
		return
	}
	o.sess.State = Done
	logging.Info("Upgrade committed, requesting reboot",
		zap.Int64("image_bytes", o.sess.BytesReceived),
		zap.String("boot_image", o.flash.BootImageID()),
	)
	if o.reboot != nil {
		o.reboot()
	}
}

func (o *Orchestrator) fail(reason string) {
	o.abandonTransfer()
	o.sess.State = Failed
	o.sess.Error = reason
	o.hasher = nil
	logging.Warn("Upgrade session failed",
		zap.String("url", o.sess.SourceURL),
		zap.String("reason", reason),
	)
}

func (o *Orchestrator) abandonTransfer() {
	if o.transfer != nil {
		o.transfer.Close()
		o.transfer = nil
	}
}
