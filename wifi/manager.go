package wifi

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/internet-of-plants/libiop/internal/logging"
	"github.com/internet-of-plants/libiop/platform"
	"github.com/internet-of-plants/libiop/storage"
)

const (
	// MaxNameLen is the longest accepted network name, matching the
	// credential record capacity
	MaxNameLen = storage.NameCapacity

	// MaxPasswordLen is the longest accepted network password
	MaxPasswordLen = storage.PasswordCapacity

	// DefaultConnectTimeoutMillis bounds how long a connect attempt may
	// stay in Connecting before it is failed
	DefaultConnectTimeoutMillis = 30_000
)

// ErrCredentialsTooLong rejects oversized names or passwords before any
// state is mutated.
var ErrCredentialsTooLong = errors.New("wifi: credentials exceed bounded length")

// Credentials is a bounded network name/password pair. Immutable once
// captured.
type Credentials struct {
	Name     string
	Password string
}

// Validate rejects credentials exceeding their fixed storage capacity.
func (c Credentials) Validate() error {
	if len(c.Name) > MaxNameLen || len(c.Password) > MaxPasswordLen {
		return ErrCredentialsTooLong
	}
	return nil
}

// Status is the connection state machine position.
type Status uint8

const (
	// Disconnected means no association exists or an established one was lost
	Disconnected Status = iota
	// Connecting means an association attempt is in flight
	Connecting
	// Connected means the station interface is associated
	Connected
	// Failed means the last attempt ended in error or timeout
	Failed
)

// String returns a human-readable status name
func (s Status) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// ConnectionState is the lifecycle manager's published state. Only the
// manager mutates it; the portal and upgrade components read it.
type ConnectionState struct {
	Mode   platform.WifiMode
	Status Status
}

// Manager owns the WiFi connection state machine. It polls the platform
// radio once per tick and is the only component allowed to drive mode
// transitions.
//
// State machine: Disconnected -> Connecting -> {Connected | Failed};
// Connected -> Disconnected on radio-reported link loss. Reconnect policy
// is deliberately absent; the caller decides whether and when to retry.
type Manager struct {
	radio platform.Radio
	clock platform.Clock
	cache *storage.CredentialCache

	state     ConnectionState
	last      Credentials
	haveCreds bool

	pending   Credentials
	startedAt uint64
	timeoutMS uint64

	onConnect func(Credentials)
	setupDone bool
}

// NewManager creates a lifecycle manager. cache may be nil when the host
// does not persist credentials.
func NewManager(radio platform.Radio, clock platform.Clock, cache *storage.CredentialCache) *Manager {
	return &Manager{
		radio:     radio,
		clock:     clock,
		cache:     cache,
		timeoutMS: DefaultConnectTimeoutMillis,
	}
}

// SetConnectTimeout overrides the connect attempt timeout.
func (m *Manager) SetConnectTimeout(ms uint64) { m.timeoutMS = ms }

// Setup initializes the platform radio in a quiescent state. Idempotent.
// Previously cached credentials become visible through Credentials but no
// connect attempt is started.
func (m *Manager) Setup() error {
	if m.setupDone {
		return nil
	}
	if err := m.radio.Setup(); err != nil {
		return fmt.Errorf("wifi: radio setup: %w", err)
	}
	if m.cache != nil {
		name, password, ok, err := m.cache.Load()
		if err != nil {
			logging.Warn("Cached credentials unreadable", zap.Error(err))
		} else if ok {
			m.last = Credentials{Name: name, Password: password}
			m.haveCreds = true
			logging.Debug("Cached credentials loaded", zap.String("network", name))
		}
	}
	m.state = ConnectionState{Mode: m.radio.Mode(), Status: Disconnected}
	m.setupDone = true
	return nil
}

// ConnectTo requests Station association with the given credentials. It
// returns immediately; the result is observed via State and the OnConnect
// callback. A fresh call while a previous attempt is still Connecting
// supersedes it, and the superseded attempt's eventual result is discarded.
func (m *Manager) ConnectTo(name, password string) error {
	creds := Credentials{Name: name, Password: password}
	if err := creds.Validate(); err != nil {
		logging.Warn("Connect refused: oversized credentials",
			zap.Int("name_len", len(name)),
			zap.Int("password_len", len(password)),
		)
		return err
	}

	if m.radio.Mode() != platform.WifiStation && m.radio.Mode() != platform.WifiStationAndAccessPoint {
		if err := m.radio.SetMode(platform.WifiStation); err != nil {
			return fmt.Errorf("wifi: switching to station mode: %w", err)
		}
	}

	superseded := m.state.Status == Connecting
	if err := m.radio.Connect(name, password); err != nil {
		m.state.Status = Failed
		logging.Error("Radio connect refused", zap.Error(err))
		return fmt.Errorf("wifi: radio connect: %w", err)
	}

	m.pending = creds
	m.startedAt = m.clock.Millis()
	m.state.Mode = m.radio.Mode()
	m.state.Status = Connecting
	if superseded {
		logging.LogRadioEvent("connect_superseded", zap.String("network", name))
	} else {
		logging.LogRadioEvent("connect_started", zap.String("network", name))
	}
	return nil
}

// Disconnect drops the station association and clears any in-flight
// attempt.
func (m *Manager) Disconnect() error {
	if err := m.radio.Disconnect(); err != nil {
		return fmt.Errorf("wifi: radio disconnect: %w", err)
	}
	m.state.Status = Disconnected
	logging.LogRadioEvent("disconnected")
	return nil
}

// SetMode switches the radio interface mode. Mode changes are observed by
// the portal and upgrade components on their next tick.
func (m *Manager) SetMode(mode platform.WifiMode) error {
	if err := m.radio.SetMode(mode); err != nil {
		return fmt.Errorf("wifi: set mode %s: %w", mode, err)
	}
	m.state.Mode = mode
	if mode == platform.WifiOff || mode == platform.WifiAccessPoint {
		// the station interface went away with its association
		if m.state.Status == Connected || m.state.Status == Connecting {
			m.state.Status = Disconnected
		}
	}
	logging.LogRadioEvent("mode_changed", zap.String("mode", mode.String()))
	return nil
}

// StartAccessPoint switches to AccessPoint mode and advertises the
// device's own network. The same credential bounds apply as for station
// connects.
func (m *Manager) StartAccessPoint(name, password string) error {
	creds := Credentials{Name: name, Password: password}
	if err := creds.Validate(); err != nil {
		return err
	}
	if err := m.SetMode(platform.WifiAccessPoint); err != nil {
		return err
	}
	if err := m.radio.StartAccessPoint(name, password); err != nil {
		return fmt.Errorf("wifi: starting access point: %w", err)
	}
	logging.LogRadioEvent("access_point_started", zap.String("network", name))
	return nil
}

// OnConnect registers the single connection observer, invoked at most once
// per successful station association, always from Tick, never from an
// interrupt or listener goroutine. A second registration replaces the
// first.
func (m *Manager) OnConnect(fn func(Credentials)) {
	m.onConnect = fn
}

// State reports the published connection state.
func (m *Manager) State() ConnectionState { return m.state }

// Credentials returns the last successfully used credentials; ok is false
// if the device has never connected.
func (m *Manager) Credentials() (Credentials, bool) {
	return m.last, m.haveCreds
}

// LocalAddr reports the device's own address on the active interface.
func (m *Manager) LocalAddr() string { return m.radio.LocalAddr() }

// Tick polls the radio and advances the state machine. It must run every
// loop iteration and never blocks.
func (m *Manager) Tick() {
	switch m.state.Status {
	case Connecting:
		m.tickConnecting()
	case Connected:
		if m.radio.Status() != platform.RadioConnected {
			m.state.Status = Disconnected
			logging.LogRadioEvent("link_lost", zap.String("network", m.last.Name))
		}
	}
}

func (m *Manager) tickConnecting() {
	switch m.radio.Status() {
	case platform.RadioConnected:
		m.state.Status = Connected
		m.last = m.pending
		m.haveCreds = true
		elapsed := m.clock.Millis() - m.startedAt
		logging.LogRadioEvent("connected",
			zap.String("network", m.last.Name),
			zap.Uint64("elapsed_ms", elapsed),
		)
		m.persist()
		if m.onConnect != nil {
			m.onConnect(m.last)
		}
	case platform.RadioFailed:
		m.state.Status = Failed
		logging.LogRadioEvent("connect_failed", zap.String("network", m.pending.Name))
	case platform.RadioConnecting:
		if m.clock.Millis()-m.startedAt >= m.timeoutMS {
			_ = m.radio.Disconnect()
			m.state.Status = Failed
			logging.LogRadioEvent("connect_timeout",
				zap.String("network", m.pending.Name),
				zap.Uint64("timeout_ms", m.timeoutMS),
			)
		}
	default:
		// radio dropped the attempt on its own
		m.state.Status = Failed
		logging.LogRadioEvent("connect_aborted", zap.String("network", m.pending.Name))
	}
}

// persist stores the just-used credentials through the cache, skipping the
// write when the record already matches.
func (m *Manager) persist() {
	if m.cache == nil {
		return
	}
	if _, err := m.cache.Store(m.last.Name, m.last.Password); err != nil {
		// persistence failure does not degrade the live connection
		logging.Error("Persisting credentials failed", zap.Error(err))
	}
}
