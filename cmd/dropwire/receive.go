package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dropwire/dropwire/internal/chunker"
	"github.com/dropwire/dropwire/internal/engine"
	"github.com/dropwire/dropwire/internal/errdefs"
	"github.com/dropwire/dropwire/internal/history"
	"github.com/dropwire/dropwire/internal/lan"
	"github.com/dropwire/dropwire/internal/manifest"
	"github.com/dropwire/dropwire/internal/relay"
	"github.com/dropwire/dropwire/internal/signaling"
	"github.com/dropwire/dropwire/pkg/logging"
)

var receiveFlags struct {
	Code string
	Out  string
	Mode string
}

var receiveCmd = &cobra.Command{
	Use:   "receive",
	Short: "Receive a transfer by pairing code",
	Long: `Receive resolves a pairing code to its transfer and downloads the
chunks, resuming from whatever already landed in the output path. In lan
mode the sender's address is learned over the pairing channel.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if receiveFlags.Code == "" {
			return fmt.Errorf("--code is required")
		}
		if receiveFlags.Mode != "relay" && receiveFlags.Mode != "lan" {
			return fmt.Errorf("--mode must be relay or lan")
		}
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		if err := runReceive(); err != nil {
			logging.L().Fatalf("receive failed: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(receiveCmd)
	receiveCmd.Flags().StringVarP(&receiveFlags.Code, "code", "c", "", "pairing code (required)")
	receiveCmd.Flags().StringVarP(&receiveFlags.Out, "out", "o", ".", "destination file or directory")
	receiveCmd.Flags().StringVarP(&receiveFlags.Mode, "mode", "m", "relay", "transport: relay or lan")
	receiveCmd.MarkFlagRequired("code")
}

func runReceive() error {
	ctx := signalContext()

	info, err := signaling.GetPairInfo(ctx, signalingURL(), receiveFlags.Code)
	if err != nil {
		return err
	}

	fmt.Printf("Receiving %s (%s, %d chunks)\n",
		info.Manifest.DisplayName(),
		engine.FormatBytes(info.Manifest.TotalBytes()),
		info.Manifest.TotalChunks())

	var src engine.Source
	switch receiveFlags.Mode {
	case "relay":
		src = relay.NewClient(relayURL(), info.TransferID)
	case "lan":
		src, err = lanSource(ctx)
		if err != nil {
			return err
		}
	}

	ck := chunker.New(info.Manifest.ChunkSize())
	eng := engine.NewFromConfig(ck)
	tracker := engine.NewTracker(info.Manifest.TotalChunks(), info.Manifest.ChunkSize(), info.Manifest.TotalBytes())

	out := destinationPath(info.Manifest, receiveFlags.Out)
	dlErr := eng.Download(ctx, src, out, func(completed, total int) {
		printProgress(tracker.Update(completed, total))
	})
	fmt.Println()

	recordReceiveHistory(info, dlErr)

	if errdefs.IsHashMismatch(dlErr) {
		// Integrity failures are reported, never silently dropped.
		fmt.Printf("WARNING: %v\n", dlErr)
		return dlErr
	}
	if dlErr != nil {
		return dlErr
	}

	fmt.Println("Download complete and verified.")
	return nil
}

// destinationPath resolves where the payload lands. A single file headed at
// an existing directory keeps its original name inside it; folders always
// unpack under out.
func destinationPath(m *manifest.Manifest, out string) string {
	if m.Type != manifest.TypeFile {
		return out
	}
	if info, err := os.Stat(out); err == nil && info.IsDir() {
		return filepath.Join(out, m.DisplayName())
	}
	return out
}

// lanSource connects to the pairing channel as receiver and waits for the
// sender to announce its LAN address.
func lanSource(ctx context.Context) (engine.Source, error) {
	channel, err := signaling.Dial(ctx, signalingURL(), receiveFlags.Code, signaling.RoleReceiver)
	if err != nil {
		return nil, err
	}
	defer channel.Close()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		frame, raw, err := channel.ReadFrame()
		if err != nil {
			return nil, err
		}

		switch frame.Type {
		case "lan_ready":
			var msg struct {
				Address string `json:"address"`
			}
			if err := json.Unmarshal(raw, &msg); err != nil || msg.Address == "" {
				return nil, errdefs.InvalidInput("malformed lan_ready frame")
			}
			return lan.NewClient(msg.Address), nil
		case signaling.FrameError:
			return nil, errdefs.NetworkFailure(nil, "signaling error: %s", frame.Message)
		}
	}
}

func recordReceiveHistory(info *signaling.PairInfo, transferErr error) {
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
	rec := historyRecord(info.TransferID, info.Manifest, receiveFlags.Mode, status, time.Now())
	rec.Direction = history.DirectionReceived
	ledger.Put(rec)
}
