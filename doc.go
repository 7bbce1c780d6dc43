// Package libiop is a hardware abstraction layer for resource-constrained
// network-connected devices. It unifies divergent microcontroller and POSIX
// backends behind one API, so device logic is written once and deployed
// across incompatible WiFi, flash, and HTTP stacks.
//
// The library covers the network lifecycle: the WiFi station/access-point
// state machine, the captive portal used to capture network credentials
// from a phone or laptop, and the over-the-air upgrade orchestrator that
// fetches, verifies, and commits firmware images.
//
// # Execution model
//
// Everything runs cooperatively inside Tick, which the host loop invokes
// repeatedly:
//
//	dev, err := libiop.New(libiop.Options{Platform: platform.NewSim()})
//	if err != nil { ... }
//	if err := dev.Setup(); err != nil { ... }
//	dev.OnConnect(func(creds wifi.Credentials) { ... })
//	for {
//	    dev.Tick()
//	}
//
// No component blocks: long operations (association, firmware transfer,
// verification) are multi-tick state machines whose progress lives in
// session objects, not in the call stack. Within one tick the lifecycle
// manager runs before the portal, which runs before the upgrader, so a
// connection event is visible to its dependents the tick it happens.
//
// # Hardware seam
//
// Components depend only on platform.Capability. The platform package
// ships a scriptable simulation backend and a Raspberry Pi Pico W backend;
// other radios implement the interface in their own package.
package libiop
