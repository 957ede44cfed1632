package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"

	"github.com/spf13/cobra"
)

var healthJSON bool

func init() {
	rootCmd.AddCommand(healthCmd)
	healthCmd.Flags().BoolVar(&healthJSON, "json", false, "print the connection status as JSON")
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the agent backend is reachable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		client := newClient(cfg)
		monitor := newMonitor(cfg, client)
		ok := monitor.Check(context.Background())
		st := monitor.Status()

		if healthJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(st); err != nil {
				return err
			}
		} else {
			renderStatus(os.Stdout, st)
		}
		if !ok {
			return errors.New("backend unreachable")
		}
		return nil
	},
}
