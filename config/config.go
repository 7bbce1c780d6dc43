package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/internet-of-plants/libiop/wifi"
)

// Provisioning is the optional device provisioning file. Everything in it
// has a usable default; a device with no file at all boots into the
// captive-portal flow with the defaults below.
type Provisioning struct {
	// Hostname identifies the device on the network and in mDNS
	// announcements
	Hostname string `yaml:"hostname"`

	// AccessPoint configures the portal's own network
	AccessPoint AccessPointConfig `yaml:"access_point"`

	// Network optionally pre-seeds station credentials, skipping the
	// portal entirely
	Network NetworkConfig `yaml:"network"`

	// Upgrade configures where firmware images come from
	Upgrade UpgradeConfig `yaml:"upgrade"`

	// Timeouts override the built-in attempt bounds (milliseconds);
	// zero means default
	Timeouts TimeoutConfig `yaml:"timeouts"`

	// Logging configures the diagnostic output
	Logging LoggingConfig `yaml:"logging"`
}

// AccessPointConfig names the network the portal advertises.
type AccessPointConfig struct {
	Name     string `yaml:"name"`
	Password string `yaml:"password"`
}

// NetworkConfig optionally pre-seeds station credentials.
type NetworkConfig struct {
	Name     string `yaml:"name"`
	Password string `yaml:"password"`
}

// UpgradeConfig points at the firmware source.
type UpgradeConfig struct {
	// URL is the firmware image URL
	URL string `yaml:"url"`

	// SHA256 is the expected image digest, hex encoded; empty skips
	// verification
	SHA256 string `yaml:"sha256"`
}

// TimeoutConfig overrides attempt bounds, in milliseconds.
type TimeoutConfig struct {
	ConnectMillis uint64 `yaml:"connect_ms"`
	StallMillis   uint64 `yaml:"stall_ms"`
}

// LoggingConfig configures the diagnostic output.
type LoggingConfig struct {
	// Level is one of debug/info/warn/error; empty means silent
	Level string `yaml:"level"`

	// File, when set, routes output to a rotating log file
	File string `yaml:"file"`
}

// Default returns a provisioning config with usable defaults: an open
// setup network named after the device, no pre-seeded credentials, no
// upgrade source.
func Default() *Provisioning {
	return &Provisioning{
		Hostname: "iop-device",
		AccessPoint: AccessPointConfig{
			Name: "iop-setup",
		},
	}
}

// Load reads a provisioning file, applying defaults for anything missing.
// A missing file is not an error; the defaults are returned.
func Load(path string) (*Provisioning, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the provisioning file atomically: a temp file in the same
// directory, synced, then renamed over the destination.
func (p *Provisioning) Save(path string) error {
	if err := p.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("config: marshaling: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".provisioning-*.yaml")
	if err != nil {
		return fmt.Errorf("config: creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("config: writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("config: syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("config: closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("config: replacing %s: %w", path, err)
	}
	return nil
}

// Validate applies the same credential bounds the runtime API enforces, so
// a bad file fails at load rather than at first connect.
func (p *Provisioning) Validate() error {
	pairs := []struct {
		what           string
		name, password string
	}{
		{"access_point", p.AccessPoint.Name, p.AccessPoint.Password},
		{"network", p.Network.Name, p.Network.Password},
	}
	for _, pair := range pairs {
		creds := wifi.Credentials{Name: pair.name, Password: pair.password}
		if err := creds.Validate(); err != nil {
			return fmt.Errorf("config: %s credentials: %w", pair.what, err)
		}
	}
	return nil
}
