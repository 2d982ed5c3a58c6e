package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dropwire/dropwire/config"
	"github.com/dropwire/dropwire/internal/chunker"
	"github.com/dropwire/dropwire/internal/engine"
	"github.com/dropwire/dropwire/internal/lan"
	"github.com/dropwire/dropwire/internal/manifest"
	"github.com/dropwire/dropwire/internal/relay"
	"github.com/dropwire/dropwire/internal/signaling"
	"github.com/dropwire/dropwire/pkg/httpserver"
	"github.com/dropwire/dropwire/pkg/logging"
)

var sendFlags struct {
	Path string
	Mode string
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a file or folder",
	Long: `Send builds a manifest for the given path, obtains a pairing code
from the signaling server, and either uploads the chunks to the relay
(mode=relay) or serves them directly on the local network (mode=lan).`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if sendFlags.Path == "" {
			return fmt.Errorf("--path is required")
		}
		if sendFlags.Mode != "relay" && sendFlags.Mode != "lan" {
			return fmt.Errorf("--mode must be relay or lan")
		}
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		if err := runSend(); err != nil {
			logging.L().Fatalf("send failed: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&sendFlags.Path, "path", "p", "", "file or folder to send (required)")
	sendCmd.Flags().StringVarP(&sendFlags.Mode, "mode", "m", "relay", "transport: relay or lan")
	sendCmd.MarkFlagRequired("path")
}

func runSend() error {
	ctx := signalContext()

	ck := chunker.NewForMode(sendFlags.Mode)
	m, err := buildManifest(ck, sendFlags.Path)
	if err != nil {
		return err
	}

	transferID := uuid.NewString()
	pair, err := signaling.CreatePairCode(ctx, signalingURL(), transferID, m)
	if err != nil {
		return err
	}

	fmt.Printf("Pairing code: %s (expires in %ds)\n", pair.PairCode, pair.ExpiresIn)
	fmt.Printf("Sending %s (%s, %d chunks)\n",
		m.DisplayName(), engine.FormatBytes(m.TotalBytes()), m.TotalChunks())

	var sendErr error
	switch sendFlags.Mode {
	case "relay":
		sendErr = sendViaRelay(ctx, ck, m, transferID)
	case "lan":
		sendErr = sendViaLAN(ctx, ck, m, pair.PairCode)
	}

	recordHistory(transferID, m, sendFlags.Mode, sendErr)
	return sendErr
}

func sendViaRelay(ctx context.Context, ck *chunker.Chunker, m *manifest.Manifest, transferID string) error {
	client := relay.NewClient(relayURL(), transferID)
	eng := engine.NewFromConfig(ck)
	tracker := engine.NewTracker(m.TotalChunks(), m.ChunkSize(), m.TotalBytes())

	err := eng.Upload(ctx, client, m, func(completed, total int) {
		printProgress(tracker.Update(completed, total))
	})
	fmt.Println()
	if err != nil {
		return err
	}

	fmt.Println("Upload complete. The receiver can download with the pairing code.")
	return nil
}

// sendViaLAN serves the chunks directly and announces the address on the
// pairing channel, then stays up until interrupted so the peer can pull.
func sendViaLAN(ctx context.Context, ck *chunker.Chunker, m *manifest.Manifest, pairCode string) error {
	cfg := config.Get()
	server := lan.NewServer(m, ck)
	addr := fmt.Sprintf("http://%s:%d", lan.LocalIP(), cfg.LANPort)

	channel, err := signaling.Dial(ctx, signalingURL(), pairCode, signaling.RoleSender)
	if err != nil {
		return err
	}
	defer channel.Close()

	go func() {
		// Wait for the receiver, then hand it the LAN address.
		for {
			frame, _, err := channel.ReadFrame()
			if err != nil {
				return
			}
			if frame.Type == signaling.FramePeerConnected {
				channel.Send(map[string]string{"type": "lan_ready", "address": addr})
				logging.L().WithField("address", addr).Info("lan address announced")
			}
		}
	}()

	fmt.Printf("Serving on %s until interrupted...\n", addr)
	return httpserver.Run(ctx, fmt.Sprintf(":%d", cfg.LANPort), server.Router())
}

func buildManifest(ck *chunker.Chunker, path string) (*manifest.Manifest, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		folder, err := ck.CreateFolderManifest(path)
		if err != nil {
			return nil, err
		}
		return manifest.NewFolder(folder), nil
	}
	file, err := ck.CreateFileManifest(path)
	if err != nil {
		return nil, err
	}
	return manifest.NewFile(file), nil
}

func printProgress(snap engine.Snapshot) {
	line := fmt.Sprintf("\r%d/%d chunks (%.1f%%)", snap.Completed, snap.Total, snap.Percent)
	if snap.Speed > 0 {
		line += fmt.Sprintf("  %s/s", engine.FormatBytes(int64(snap.Speed)))
	}
	if snap.ETA > 0 {
		line += fmt.Sprintf("  ETA %s", engine.FormatDuration(snap.ETA))
	}
	fmt.Print(line)
}

func recordHistory(transferID string, m *manifest.Manifest, mode string, transferErr error) {
	ledger, err := openLedger()
	if err != nil {
		logging.L().WithError(err).Warn("history db unavailable")
		return
	}
	defer ledger.Close()

	status := "completed"
	if transferErr != nil {
		status = "failed"
	}
	ledger.Put(historyRecord(transferID, m, mode, status, time.Now()))
}
