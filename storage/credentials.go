package storage

import (
	"bytes"
	"fmt"

	"go.uber.org/zap"

	"github.com/internet-of-plants/libiop/internal/logging"
)

// Credential cache layout inside the credentials flash region. Regions are
// fixed-offset and fixed-size; names and passwords shorter than their region
// are zero-padded.
const (
	// sentinelOffset holds the presence marker
	sentinelOffset = 0
	// sentinelPresent marks "credentials stored". Erased flash reads 0xFF,
	// so any erased region is automatically "absent".
	sentinelPresent = 0xC5

	// nameOffset is where the network name region starts
	nameOffset = 1
	// NameCapacity is the fixed byte size of the network name region
	NameCapacity = 32

	// passwordOffset is where the password region starts
	passwordOffset = nameOffset + NameCapacity
	// PasswordCapacity is the fixed byte size of the password region
	PasswordCapacity = 64

	// recordSize is the total cache footprint
	recordSize = 1 + NameCapacity + PasswordCapacity
)

// CredentialCache persists the last known-good network credentials in a
// fixed-layout flash record. Writes are skipped when the stored record
// already matches, to minimize flash wear.
type CredentialCache struct {
	region *Region
}

// NewCredentialCache creates a cache over the given region. The region must
// be at least recordSize bytes; a smaller region is a wiring error.
func NewCredentialCache(region *Region) (*CredentialCache, error) {
	if region.Size() < recordSize {
		return nil, fmt.Errorf("storage: credential region too small: %d < %d", region.Size(), recordSize)
	}
	return &CredentialCache{region: region}, nil
}

// Load reads the cached credentials. ok is false when no credentials have
// ever been stored (sentinel unset).
func (c *CredentialCache) Load() (name, password string, ok bool, err error) {
	record := make([]byte, recordSize)
	if err = c.region.Read(0, record); err != nil {
		return "", "", false, fmt.Errorf("storage: reading credential record: %w", err)
	}
	if record[sentinelOffset] != sentinelPresent {
		return "", "", false, nil
	}
	name = trimRecord(record[nameOffset : nameOffset+NameCapacity])
	password = trimRecord(record[passwordOffset : passwordOffset+PasswordCapacity])
	return name, password, true, nil
}

// Store persists the credentials, skipping the write when the stored record
// is already identical. Returns whether a write was performed.
//
// When the read-back fails entirely (hardware fault) the comparison is
// treated as a mismatch and the write proceeds; a failed read must never
// leave fresh credentials unpersisted.
func (c *CredentialCache) Store(name, password string) (wrote bool, err error) {
	if len(name) > NameCapacity {
		return false, fmt.Errorf("storage: network name exceeds %d bytes", NameCapacity)
	}
	if len(password) > PasswordCapacity {
		return false, fmt.Errorf("storage: network password exceeds %d bytes", PasswordCapacity)
	}

	record := make([]byte, recordSize)
	record[sentinelOffset] = sentinelPresent
	copy(record[nameOffset:nameOffset+NameCapacity], name)
	copy(record[passwordOffset:passwordOffset+PasswordCapacity], password)

	existing := make([]byte, recordSize)
	if readErr := c.region.Read(0, existing); readErr == nil {
		if bytes.Equal(existing, record) {
			logging.Debug("Credential record unchanged, skipping write")
			return false, nil
		}
	} else {
		logging.Warn("Credential record unreadable, writing anyway", zap.Error(readErr))
	}

	if err = c.region.Write(0, record); err != nil {
		return false, fmt.Errorf("storage: writing credential record: %w", err)
	}
	logging.Info("Credential record stored", zap.String("network", name))
	return true, nil
}

// Clear erases the whole credential region, dropping the sentinel.
func (c *CredentialCache) Clear() error {
	return c.region.Erase()
}

// trimRecord cuts a fixed-size field at its first padding byte. Both 0x00
// (written padding) and 0xFF (erased flash) terminate.
func trimRecord(field []byte) string {
	for i, b := range field {
		if b == 0x00 || b == 0xFF {
			return string(field[:i])
		}
	}
	return string(field)
}
