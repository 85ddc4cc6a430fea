package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evstack/ev-derive/pkg/config"
)

// ParseConfig is an helpers that loads the configuration and validates it.
func ParseConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(cmd)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("failed to validate config: %w", err)
	}

	return cfg, nil
}

// InitCmd writes a configuration file built from the defaults, the selected
// chain preset and the given flags.
func InitCmd() *cobra.Command {
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize ev-derive config",
		Long:  fmt.Sprintf("This command writes a new %s file under the home directory.", config.ConfigName),
		RunE: func(cmd *cobra.Command, args []string) error {
			// the file does not exist yet; load is only used to parse the flags
			cfg, err := config.Load(cmd)
			if err != nil {
				return fmt.Errorf("error parsing flags: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("error validating config: %w", err)
			}

			if err := cfg.SaveAsYaml(); err != nil {
				return fmt.Errorf("error writing %s file: %w", config.ConfigName, err)
			}

			cmd.Printf("Initialized ev-derive config at %s\n", cfg.ConfigPath())
			return nil
		},
	}

	config.AddFlags(initCmd)
	return initCmd
}
