package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show presence, the open session and transport state",
	GroupID: "query",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := bwClient.Status(cmd.Context())
		if err != nil {
			return fmt.Errorf("getting status: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), st)
		}
		printStatusTable(cmd.OutOrStdout(), st, time.Now())
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check daemon health",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := bwClient.Health(cmd.Context())
		if err != nil {
			return fmt.Errorf("health check: %w", err)
		}
		if jsonOutput {
			if err := printJSON(cmd.OutOrStdout(), map[string]string{"status": status}); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Health: %s\n", status)
		}
		if status != "ok" {
			return fmt.Errorf("daemon reports %q", status)
		}
		return nil
	},
}
