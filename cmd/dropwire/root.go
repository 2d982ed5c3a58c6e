package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dropwire/dropwire/config"
	"github.com/dropwire/dropwire/pkg/env"
	"github.com/dropwire/dropwire/pkg/logging"
)

var (
	configPath string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "dropwire",
	Short: "Resumable file transfer between two machines",
	Long: `dropwire moves files and folders between two endpoints through a
relay store or a direct LAN channel, using content-addressed chunking so
transfers resume after interruption and verify on completion. Peers find
each other with short-lived 6-digit pairing codes.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		env.LoadEnv()
		logging.InitLogger(debug)
		config.LoadConfig(configPath)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", env.GetEnv("DROPWIRE_CONFIG_PATH", "."), "directory containing config.yaml")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "verbose text logging")
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// signalContext cancels on SIGINT/SIGTERM. Interrupting mid-transfer leaves
// partial state on disk on purpose; the resume heuristic picks it back up.
func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nreceived interrupt, shutting down...")
		cancel()
	}()

	return ctx
}

func relayURL() string {
	cfg := config.Get()
	host := cfg.RelayHost
	if host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, cfg.RelayPort)
}

func signalingURL() string {
	cfg := config.Get()
	host := cfg.SignalingHost
	if host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, cfg.SignalingPort)
}
