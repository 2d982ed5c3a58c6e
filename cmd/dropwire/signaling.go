package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dropwire/dropwire/config"
	"github.com/dropwire/dropwire/internal/signaling"
	"github.com/dropwire/dropwire/pkg/httpserver"
	"github.com/dropwire/dropwire/pkg/logging"
)

var signalingCmd = &cobra.Command{
	Use:   "signaling",
	Short: "Run the pairing and signaling server",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runSignaling(); err != nil {
			logging.L().Fatalf("signaling server failed: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(signalingCmd)
}

func runSignaling() error {
	cfg := config.Get()

	hub := signaling.NewHub(cfg.PairCodeLength, cfg.PairCodeExpiry)

	logging.L().WithFields(map[string]interface{}{
		"pair_code_length": cfg.PairCodeLength,
		"pair_code_expiry": cfg.PairCodeExpiry.String(),
	}).Info("starting signaling server")

	addr := fmt.Sprintf("%s:%d", cfg.SignalingHost, cfg.SignalingPort)
	return httpserver.Run(signalContext(), addr, signaling.NewServer(hub).Router())
}
