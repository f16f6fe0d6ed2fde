package commands

import (
	"strings"

	"bgageek-backend/internal/pipeline"
	"bgageek-backend/internal/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(lookupCmd)
}

var lookupCmd = &cobra.Command{
	Use:   "lookup <id> <name...>",
	Short: "Resolves a single game and prints its statistics, the cache is used and updated.",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to initialize", err)
		}
		defer a.Close()

		renderer := &tableRenderer{}
		scheduler := a.scheduler(renderer, slogSink)

		id := args[0]
		_, err = scheduler.Lookup(cmd.Context(), pipeline.Task{
			ExternalID: id,
			RawName:    strings.Join(args[1:], " "),
			Target:     id,
			Mode:       pipeline.MODE_PANEL,
		})
		if err != nil {
			serviceutil.Fatal("lookup failed", err)
		}
		renderer.Print()
	},
}
