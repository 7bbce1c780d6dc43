package storage

import (
	"testing"

	"github.com/internet-of-plants/libiop/platform"
)

func newTestCache(t *testing.T) (*CredentialCache, *platform.MemFlash) {
	t.Helper()
	flash := platform.NewMemFlash(platform.SimStagingRegionSize)
	cache, err := NewCredentialCache(NewRegion(flash, platform.RegionCredentials))
	if err != nil {
		t.Fatalf("NewCredentialCache() error = %v", err)
	}
	return cache, flash
}

func TestLoadFreshFlash(t *testing.T) {
	cache, flash := newTestCache(t)

	_, _, ok, err := cache.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if ok {
		t.Error("Load() on erased flash reported credentials present")
	}

	// the sentinel byte must still read as erased
	sentinel := make([]byte, 1)
	if err := flash.ReadAt(platform.RegionCredentials, 0, sentinel); err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}
	if sentinel[0] == sentinelPresent {
		t.Errorf("sentinel = %#x on fresh flash, want erased", sentinel[0])
	}
}

func TestStoreRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)

	wrote, err := cache.Store("home-net", "pass12345")
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if !wrote {
		t.Error("first Store() reported skipped write")
	}

	name, password, ok, err := cache.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !ok {
		t.Fatal("Load() after Store() reported no credentials")
	}
	if name != "home-net" || password != "pass12345" {
		t.Errorf("Load() = (%q, %q), want (%q, %q)", name, password, "home-net", "pass12345")
	}
}

func TestStoreIdenticalSkipsWrite(t *testing.T) {
	cache, flash := newTestCache(t)

	if _, err := cache.Store("home-net", "pass12345"); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	writes := flash.WriteCount(platform.RegionCredentials)

	wrote, err := cache.Store("home-net", "pass12345")
	if err != nil {
		t.Fatalf("second Store() error = %v", err)
	}
	if wrote {
		t.Error("second identical Store() performed a write")
	}
	if got := flash.WriteCount(platform.RegionCredentials); got != writes {
		t.Errorf("write count = %d after identical store, want %d", got, writes)
	}
}

func TestStoreChangedWrites(t *testing.T) {
	cache, _ := newTestCache(t)

	if _, err := cache.Store("home-net", "pass12345"); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	wrote, err := cache.Store("home-net", "otherpass")
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if !wrote {
		t.Error("Store() with changed password skipped the write")
	}
	_, password, _, err := cache.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if password != "otherpass" {
		t.Errorf("Load() password = %q, want %q", password, "otherpass")
	}
}

func TestStoreUnreadableRecordStillWrites(t *testing.T) {
	cache, flash := newTestCache(t)

	// a hardware read fault must be treated as a mismatch, never as
	// "already stored"
	flash.FailReads(true)
	wrote, err := cache.Store("home-net", "pass12345")
	if err != nil {
		t.Fatalf("Store() with failing reads error = %v", err)
	}
	if !wrote {
		t.Error("Store() with unreadable record skipped the write")
	}

	flash.FailReads(false)
	name, _, ok, err := cache.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !ok || name != "home-net" {
		t.Errorf("Load() = (%q, ok=%v), want stored record", name, ok)
	}
}

func TestStoreRejectsOversized(t *testing.T) {
	cache, flash := newTestCache(t)

	longName := make([]byte, NameCapacity+1)
	for i := range longName {
		longName[i] = 'a'
	}
	if _, err := cache.Store(string(longName), "pass"); err == nil {
		t.Error("Store() accepted oversized network name")
	}

	longPass := make([]byte, PasswordCapacity+1)
	for i := range longPass {
		longPass[i] = 'b'
	}
	if _, err := cache.Store("net", string(longPass)); err == nil {
		t.Error("Store() accepted oversized password")
	}

	// refusal must happen before any state mutation
	if got := flash.WriteCount(platform.RegionCredentials); got != 0 {
		t.Errorf("write count = %d after refused stores, want 0", got)
	}
}

func TestClear(t *testing.T) {
	cache, _ := newTestCache(t)

	if _, err := cache.Store("home-net", "pass12345"); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if err := cache.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	_, _, ok, err := cache.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if ok {
		t.Error("Load() after Clear() reported credentials present")
	}
}

func TestFullCapacityFields(t *testing.T) {
	cache, _ := newTestCache(t)

	name := string(make32('n'))
	password := string(make64('p'))
	if _, err := cache.Store(name, password); err != nil {
		t.Fatalf("Store() at exact capacity error = %v", err)
	}
	gotName, gotPass, ok, err := cache.Load()
	if err != nil || !ok {
		t.Fatalf("Load() = ok=%v, err=%v", ok, err)
	}
	if gotName != name || gotPass != password {
		t.Errorf("Load() truncated full-capacity fields: name %d bytes, pass %d bytes", len(gotName), len(gotPass))
	}
}

func make32(b byte) []byte {
	buf := make([]byte, NameCapacity)
	for i := range buf {
		buf[i] = b
	}
	return buf
}

func make64(b byte) []byte {
	buf := make([]byte, PasswordCapacity)
	for i := range buf {
		buf[i] = b
	}
	return buf
}
