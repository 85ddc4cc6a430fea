package cmd

import (
	"github.com/spf13/cobra"

	"github.com/evstack/ev-derive/pkg/config"
)

const (
	// AppName is the name of the application, the name of the command, and the name of the home directory.
	AppName = "replay"
)

const (
	flagUpdates     = "updates"
	flagOutput      = "output"
	flagBlocks      = "blocks"
	flagTxsPerBlock = "txs-per-block"
	flagFrameSize   = "frame-size"
	flagFinalize    = "finalize"
)

func init() {
	config.AddGlobalFlags(RootCmd, AppName)
	config.AddFlags(RunCmd)
	RunCmd.Flags().String(flagUpdates, "-", "file of JSON watcher updates, - for stdin")
	RunCmd.Flags().String(flagOutput, "-", "file the derived payloads are written to, - for stdout")

	config.AddFlags(GenCmd)
	GenCmd.Flags().Uint64(flagBlocks, 100, "number of L2 blocks to generate")
	GenCmd.Flags().Int(flagTxsPerBlock, 1, "user transactions per L2 block")
	GenCmd.Flags().Int(flagFrameSize, 0, "maximum frame size in bytes, 0 for one frame per channel")
	GenCmd.Flags().Bool(flagFinalize, true, "finalize the last L1 block")
	GenCmd.Flags().String(flagOutput, "-", "file the updates are written to, - for stdout")
}

// RootCmd is the root command for the replay tool
var RootCmd = &cobra.Command{
	Use:   AppName,
	Short: "Replay derives an L2 chain from a recorded stream of L1 watcher updates.",
}
