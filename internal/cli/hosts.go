package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var hostsCmd = &cobra.Command{
	Use:   "hosts",
	Short: "List host:port addresses of healthy application instances",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient(masterURL)
		hosts, err := client.HealthyHosts()
		if err != nil {
			return err
		}

		if len(hosts) == 0 {
			fmt.Println("No healthy hosts")
			return nil
		}

		for _, host := range hosts {
			fmt.Println(host)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hostsCmd)
}
