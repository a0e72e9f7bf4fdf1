package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Force the master to refresh every worker's status now",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient(masterURL)
		if err := client.RefreshWorkers(); err != nil {
			return err
		}

		fmt.Println("Worker statuses refreshed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}
