package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/evstack/ev-derive/pkg/cmd"
	"github.com/evstack/ev-derive/pkg/driver"
)

// RunCmd replays a watcher update stream and prints every derived payload.
var RunCmd = &cobra.Command{
	Use:     "run",
	Aliases: []string{"start"},
	Short:   "Derive the L2 chain from a stream of watcher updates",
	RunE: func(command *cobra.Command, args []string) error {
		cfg, err := cmd.ParseConfig(command)
		if err != nil {
			return err
		}
		logger := cmd.SetupLogger(cfg.Log)

		updatesPath, _ := command.Flags().GetString(flagUpdates)
		outputPath, _ := command.Flags().GetString(flagOutput)

		in, err := openInput(updatesPath)
		if err != nil {
			return fmt.Errorf("failed to open updates: %w", err)
		}
		defer in.Close()

		out, err := createOutput(outputPath)
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
		defer out.Close()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		enc := json.NewEncoder(out)
		var writeErr error
		_, err = cmd.RunDerivation(ctx, logger, cfg, in, cmd.RunOptions{
			OnPayload: func(p driver.Payload) {
				if writeErr == nil {
					writeErr = enc.Encode(p)
				}
			},
		})
		if err != nil {
			return err
		}
		if writeErr != nil {
			return fmt.Errorf("failed to write payloads: %w", writeErr)
		}
		return nil
	},
}
