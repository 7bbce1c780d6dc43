// Package upgrade implements over-the-air firmware installation.
//
// One session exists at a time: Fetching -> Verifying -> Committing ->
// Done, with Failed reachable from every non-terminal state. The transfer
// streams into the flash staging region a bounded chunk per tick;
// verification re-reads the staged bytes so the digest covers what actually
// landed in flash, not what passed through memory. Nothing is ever marked
// bootable before verification succeeds, and a failed or interrupted
// session leaves the previously committed firmware authoritative.
//
// Retry policy lives with the caller. A new Request always overwrites the
// staging region from offset zero; partial state from an aborted session is
// never resumed.
package upgrade
