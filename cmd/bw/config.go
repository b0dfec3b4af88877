package main

import (
	"fmt"

	"github.com/alfredjeanlab/baywatch/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Print the effective daemon configuration",
	GroupID: "system",
	Long: `Print the configuration the daemon would run with: defaults, then the
--config file, then BAYWATCH_* environment variables. The auth token is
redacted. With --validate, the configuration is also checked.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		validate, _ := cmd.Flags().GetBool("validate")

		cfg, err := config.Read(path)
		if err != nil {
			return err
		}
		if validate {
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
		}
		return cfg.Write(cmd.OutOrStdout())
	},
}

func init() {
	configCmd.Flags().StringP("config", "c", "", "path to TOML config file")
	configCmd.Flags().Bool("validate", false, "also validate the configuration")
}
