package cli

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var workersCmd = &cobra.Command{
	Use:   "workers",
	Short: "List all workers known to the master",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient(masterURL)
		workers, err := client.ListWorkers()
		if err != nil {
			return err
		}

		if len(workers) == 0 {
			fmt.Println("No workers registered")
			return nil
		}

		names := make([]string, 0, len(workers))
		for name := range workers {
			names = append(names, name)
		}
		sort.Strings(names)

		w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tHOST\tSTATUS\tMEM%\tCPU%\tLAST SEEN")
		for _, name := range names {
			rec := workers[name]
			fmt.Fprintf(
				w, "%s\t%s\t%s\t%.1f\t%.1f\t%s\n",
				rec.Name, rec.Host, rec.Status, rec.MemoryUsage, rec.CPUUsage,
				rec.LastSeen.Format("15:04:05"),
			)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(workersCmd)
}
