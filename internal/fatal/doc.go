// Package fatal is the unrecoverable-error boundary of the library.
//
// Transient failures (a timed-out connect, a dropped transfer) are recorded
// on the owning session state and never cross this boundary. Halt is reserved
// for invariant violations where continuing could brick the device, such as
// a storage bounds violation or an attempt to commit an unverified firmware
// image. The host firmware registers a hook via libiop.SetPanicHook; the hook
// must not return.
package fatal
