// Package transport is the HTTP collaborator seam.
//
// The core components only decide what requests are made and how outcomes
// are interpreted; connection setup, TLS, and body framing live here. Two
// seams exist:
//
//   - Client/Transfer: a firmware fetch as a stream of bounded chunks. The
//     consumer polls Next from its tick and never blocks; a background
//     goroutine owns all blocking I/O.
//   - Server: the listener used by the captive portal, started and stopped
//     around access-point sessions.
//
// The net/http implementations here serve POSIX hosts; bare-metal backends
// substitute their own.
package transport
