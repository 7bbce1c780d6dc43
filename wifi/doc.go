// Package wifi implements the connection lifecycle state machine.
//
// The Manager is the exclusive owner of ConnectionState and the only
// component that drives radio mode transitions. It is polled, not
// event-driven: Tick reads the radio's association status once per loop
// iteration and advances Disconnected -> Connecting -> {Connected|Failed},
// plus Connected -> Disconnected on link loss. There is no automatic
// reconnect; that policy belongs to the caller.
//
// The connect callback is a single-slot observer fired at most once per
// successful association, synchronously from Tick. On success, the used
// credentials are persisted through the storage credential cache with its
// write-skip behavior.
package wifi
