// Package discovery announces a connected device over mDNS.
//
// Once the lifecycle manager reports a station connection, the device
// registers an "_iop._tcp" service so host-side tooling can locate it by
// name instead of scanning the subnet. The announcement is withdrawn on
// link loss. This is a POSIX-host convenience; it plays no part in the
// connect/redirect/upgrade control flow.
package discovery
