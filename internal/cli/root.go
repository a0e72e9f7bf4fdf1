package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var masterURL string

var rootCmd = &cobra.Command{
	Use:   "fleetling",
	Short: "Fleetling - a small VM fleet orchestrator",
	Long: `Fleetling keeps a pool of virtual machines running one containerized
application instance each. This CLI talks to the master's HTTP API to
inspect the fleet and force status refreshes.`,
	Version: "0.1.0",
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&masterURL, "master", "http://localhost:8000", "master API URL")
}

func initConfig() {
	if envMaster := os.Getenv("FLEETLING_MASTER_URL"); envMaster != "" && masterURL == "http://localhost:8000" {
		masterURL = envMaster
	}
}
