// Package version exposes the library version advertised over mDNS and
// printed by the simulator binary.
package version

import (
	"fmt"
	"runtime/debug"
)

// Overridable at build time:
//
//	go build -ldflags="-X github.com/internet-of-plants/libiop/internal/version.Version=v1.2.3"
//
// Unset values are derived from the module build info.
var (
	// Version is the library version
	Version = ""
	// Commit is the git revision, short form
	Commit = ""
)

func init() {
	if Version == "" || Commit == "" {
		fromBuildInfo()
	}
	if Version == "" {
		Version = "dev"
	}
	if Commit == "" {
		Commit = "unknown"
	}
}

func fromBuildInfo() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	if Version == "" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}
	if Commit != "" {
		return
	}
	var revision string
	var modified bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			modified = s.Value == "true"
		}
	}
	if revision == "" {
		return
	}
	if len(revision) > 7 {
		revision = revision[:7]
	}
	if modified {
		revision += "-dirty"
	}
	Commit = revision
}

// Full returns the version with the commit appended.
func Full() string {
	return fmt.Sprintf("%s (commit: %s)", Version, Commit)
}
