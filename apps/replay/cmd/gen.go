package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evstack/ev-derive/pkg/cmd"
	"github.com/evstack/ev-derive/pkg/driver"
	"github.com/evstack/ev-derive/pkg/fixture"
)

// GenCmd writes a generated watcher update stream.
var GenCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate a watcher update stream for the configured chain",
	RunE: func(command *cobra.Command, args []string) error {
		cfg, err := cmd.ParseConfig(command)
		if err != nil {
			return err
		}
		logger := cmd.SetupLogger(cfg.Log)

		var opts fixture.Options
		opts.Blocks, _ = command.Flags().GetUint64(flagBlocks)
		opts.TxsPerBlock, _ = command.Flags().GetInt(flagTxsPerBlock)
		opts.FrameSize, _ = command.Flags().GetInt(flagFrameSize)
		opts.Finalize, _ = command.Flags().GetBool(flagFinalize)
		outputPath, _ := command.Flags().GetString(flagOutput)

		fx, err := fixture.Generate(cfg.Chain, opts)
		if err != nil {
			return err
		}

		out, err := createOutput(outputPath)
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
		defer out.Close()

		w := driver.NewUpdateWriter(out)
		for _, u := range fx.Updates {
			if err := w.Write(u); err != nil {
				return fmt.Errorf("failed to write update: %w", err)
			}
		}

		logger.Info().
			Int("updates", len(fx.Updates)).
			Uint64("height", fx.Head.Number).
			Str("hash", fx.Head.Hash.Hex()).
			Msg("fixture generated")
		return nil
	},
}
