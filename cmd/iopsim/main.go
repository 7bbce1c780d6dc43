// Iopsim runs the device stack on a POSIX host against the simulated
// hardware backend.
//
// It boots a device with no stored credentials, opens the captive portal
// on unprivileged ports, and ticks until interrupted. Useful for
// developing portal pages and upgrade flows without flashing hardware.
//
// Usage:
//
//	iopsim run [flags]
//
// See 'iopsim run --help' for available options.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/internet-of-plants/libiop/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "iopsim",
	Short: "Simulated device host",
	Long: `A host-side simulator for the libiop device stack.

The simulator runs the real lifecycle manager, captive portal, and upgrade
orchestrator against the scriptable software backend: a fake radio that
associates after a configurable delay and an in-memory flash. Point a
browser at the portal address to walk the credential capture flow.`,
	Version: version.Version,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Full())
	},
}
