package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dropwire/dropwire/config"
	"github.com/dropwire/dropwire/internal/relay"
	"github.com/dropwire/dropwire/pkg/httpserver"
	"github.com/dropwire/dropwire/pkg/logging"
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the relay chunk store server",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runRelay(); err != nil {
			logging.L().Fatalf("relay server failed: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(relayCmd)
}

func runRelay() error {
	cfg := config.Get()

	store, err := relay.NewStore(cfg.UploadDir, cfg.CleanupAfter)
	if err != nil {
		return err
	}

	logging.L().WithFields(map[string]interface{}{
		"upload_dir":    cfg.UploadDir,
		"cleanup_after": cfg.CleanupAfter.String(),
	}).Info("starting relay server")

	addr := fmt.Sprintf("%s:%d", cfg.RelayHost, cfg.RelayPort)
	return httpserver.Run(signalContext(), addr, relay.NewServer(store).Router())
}
