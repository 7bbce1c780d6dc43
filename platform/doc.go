// Package platform defines the hardware capability seam and its backends.
//
// The lifecycle manager, captive portal, and upgrade orchestrator never talk
// to hardware directly; they depend on the Capability interface declared
// here. Two backends live in this package:
//
//   - Sim: a fully scriptable software backend (in-memory flash, fake radio,
//     controllable clock) used by tests and by the iopsim host simulator.
//   - Pico: a cyw43439-backed backend for the Raspberry Pi Pico W family,
//     compiled only under the rp2040/rp2350 build tags.
//
// Ports to other radios implement Capability in their own package; nothing
// in the core needs to change.
//
// # Polling model
//
// The radio is a polled event source. Connect and SetMode return
// immediately; the association outcome is read back through Status on later
// ticks. No backend is allowed to invoke callbacks, least of all from an
// interrupt context.
package platform
