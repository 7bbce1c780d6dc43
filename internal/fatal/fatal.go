package fatal

import (
	"fmt"

	"github.com/internet-of-plants/libiop/internal/logging"
)

// Hook is invoked on an unrecoverable invariant violation. It must not
// return; it is expected to halt or reboot the device. Continuing after a
// violation could leave persistent storage half-written or mark an
// unverified firmware image bootable.
type Hook func(msg string)

var hook Hook

// SetHook registers the process-wide fatal hook. Passing nil restores the
// default behavior (log and panic).
func SetHook(fn Hook) {
	hook = fn
}

// Halt reports an unrecoverable invariant violation and never returns.
// If a hook is registered it is given the message first; should the hook
// return anyway, Halt panics to stop the process.
func Halt(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logging.Error("fatal invariant violation: " + msg)
	logging.Sync()
	if hook != nil {
		hook(msg)
	}
	panic("libiop: " + msg)
}
