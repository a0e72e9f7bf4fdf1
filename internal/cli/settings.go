package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show the master's scaling limits and VM pool",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient(masterURL)
		settings, err := client.Settings()
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(settings, "", "  ")
		if err != nil {
			return fmt.Errorf("format settings: %w", err)
		}

		fmt.Println(string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(settingsCmd)
}
