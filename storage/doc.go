// Package storage wraps the platform flash into bounds-enforced regions and
// implements the credential cache record.
//
// Two flash regions exist: the credential record and the firmware staging
// area. At most one component writes a region at any time; the tick
// ordering in the device facade guarantees it, so no locking happens here.
//
// # Credential record layout
//
//	byte 0       sentinel (0xC5 = credentials present; erased flash = absent)
//	bytes 1..32  network name, zero-padded
//	bytes 33..96 network password, zero-padded
//
// Storing a record identical to the stored one performs no write, which
// keeps the flash wear of a device that reconnects to the same network at
// every boot at zero.
package storage
