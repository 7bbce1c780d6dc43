// Package portal implements the captive-portal controller.
//
// While the device runs its own access point, every DNS query from a
// captured client is answered with the device's address and every HTTP
// request to a foreign host is redirected (302) to the local configuration
// page. The page captures a network name and password; submission queues
// the credentials, and the next tick hands them to the lifecycle manager as
// a station connect attempt, keeping the access point up so the client can
// watch the outcome, over a websocket status stream or by polling /status.
//
// The portal stops itself once a station connection is established, or when
// access-point mode is lost underneath it. A credential pair submitted
// while a prior attempt is still connecting supersedes it; the superseded
// attempt's late result is discarded with the rest of the session state.
//
// Listener goroutines never mutate portal or connection state. They
// validate, enqueue, and answer; all state transitions happen inside Tick
// on the host loop.
package portal
