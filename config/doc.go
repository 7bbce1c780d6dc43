// Package config loads and saves the optional YAML provisioning file.
//
// Provisioning covers what the host firmware would otherwise hardcode: the
// setup network's name, pre-seeded station credentials, the firmware
// source URL and digest, timeout overrides, and logging. Every field has a
// default and a missing file is fine: a blank device simply boots into
// the captive-portal flow.
//
// Files are written atomically (temp file + rename) so a power cut during
// save cannot leave a half-written config.
package config
