package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/internet-of-plants/libiop"
	"github.com/internet-of-plants/libiop/config"
	"github.com/internet-of-plants/libiop/platform"
)

var (
	configPath  string
	logLevel    string
	dnsAddr     string
	httpAddr    string
	networkName string
	networkPass string
	tickEvery   time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the simulated device",
	RunE:  runSimulator,
}

func init() {
	runCmd.Flags().StringVarP(&configPath, "config", "c", "", "provisioning file (YAML)")
	runCmd.Flags().StringVarP(&logLevel, "log-level", "l", "info", "log level (debug, info, warn, error)")
	runCmd.Flags().StringVar(&dnsAddr, "dns-addr", "127.0.0.1:5354", "portal DNS bind address")
	runCmd.Flags().StringVar(&httpAddr, "http-addr", "127.0.0.1:8080", "portal HTTP bind address")
	runCmd.Flags().StringVar(&networkName, "network", "sim-net", "simulated network the fake radio can join")
	runCmd.Flags().StringVar(&networkPass, "password", "sim-pass", "password of the simulated network")
	runCmd.Flags().DurationVar(&tickEvery, "tick", 10*time.Millisecond, "tick interval")
}

func runSimulator(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	sim := platform.NewSimWallClock()
	sim.SimRadio().AddNetwork(networkName, networkPass)
	sim.SimRadio().SetAssociationLatency(1500)

	dev, err := libiop.New(libiop.Options{
		Platform:       sim,
		Config:         cfg,
		PortalDNSAddr:  dnsAddr,
		PortalHTTPAddr: httpAddr,
	})
	if err != nil {
		return err
	}
	if err := dev.Setup(); err != nil {
		return err
	}
	dev.OnConnect(func(creds libiop.Credentials) {
		fmt.Printf("connected to %q\n", creds.Name)
	})

	if _, ok := dev.Credentials(); !ok {
		if err := dev.StartPortal("", ""); err != nil {
			return err
		}
		fmt.Printf("captive portal on http://%s (dns on %s)\n", httpAddr, dnsAddr)
		fmt.Printf("the fake radio accepts network %q with password %q\n", networkName, networkPass)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	ticker := time.NewTicker(tickEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			dev.Tick()
		case <-stop:
			fmt.Println("shutting down")
			dev.StopPortal()
			return nil
		}
	}
}
