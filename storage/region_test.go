package storage

import (
	"bytes"
	"strings"
	"testing"

	"github.com/internet-of-plants/libiop/internal/fatal"
	"github.com/internet-of-plants/libiop/platform"
)

func TestRegionReadWrite(t *testing.T) {
	flash := platform.NewMemFlash(4096)
	region := NewRegion(flash, platform.RegionStaging)

	if region.Size() != 4096 {
		t.Fatalf("Size() = %d, want 4096", region.Size())
	}

	want := []byte("firmware bytes")
	if err := region.Write(100, want); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	got := make([]byte, len(want))
	if err := region.Read(100, got); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Read() = %q, want %q", got, want)
	}
}

func TestRegionErase(t *testing.T) {
	flash := platform.NewMemFlash(4096)
	region := NewRegion(flash, platform.RegionStaging)

	if err := region.Write(0, []byte{1, 2, 3}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := region.Erase(); err != nil {
		t.Fatalf("Erase() error = %v", err)
	}
	got := make([]byte, 3)
	if err := region.Read(0, got); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	for i, b := range got {
		if b != 0xFF {
			t.Errorf("byte %d = %#x after erase, want 0xFF", i, b)
		}
	}
}

// expectHalt runs fn expecting it to hit the fatal boundary, capturing the
// message delivered to the registered hook.
func expectHalt(t *testing.T, fn func()) string {
	t.Helper()
	var msg string
	fatal.SetHook(func(m string) { msg = m })
	defer fatal.SetHook(nil)
	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected a fatal halt, got none")
			}
		}()
		fn()
	}()
	return msg
}

func TestRegionOutOfBoundsHalts(t *testing.T) {
	flash := platform.NewMemFlash(256)
	region := NewRegion(flash, platform.RegionStaging)

	msg := expectHalt(t, func() {
		_ = region.Write(250, make([]byte, 16))
	})
	if !strings.Contains(msg, "out of bounds") {
		t.Errorf("halt message = %q, want bounds violation", msg)
	}

	expectHalt(t, func() {
		_ = region.Read(-1, make([]byte, 1))
	})
}
