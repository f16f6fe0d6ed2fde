package commands

import (
	"fmt"
	"strings"
	"time"

	"bgageek-backend/internal/pipeline"
	"bgageek-backend/internal/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var listPrefix string

func init() {
	cacheListCmd.Flags().StringVar(&listPrefix, "prefix", "bgg_", "Only list keys starting with this prefix.")
	cacheCmd.AddCommand(cacheResetIdsCmd)
	cacheCmd.AddCommand(cacheResetStatsCmd)
	cacheCmd.AddCommand(cacheListCmd)
	rootCmd.AddCommand(cacheCmd)
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspects and clears the mapping and statistics caches.",
}

var cacheResetIdsCmd = &cobra.Command{
	Use:   "reset-ids",
	Short: "Forgets every game to BoardGameGeek id mapping.",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to initialize", err)
		}
		defer a.Close()

		_, err = a.scheduler(&tableRenderer{}, slogSink).ResetMappings(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to reset mappings", err)
		}
	},
}

var cacheResetStatsCmd = &cobra.Command{
	Use:   "reset-stats",
	Short: "Forgets every cached statistics record.",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to initialize", err)
		}
		defer a.Close()

		_, err = a.scheduler(&tableRenderer{}, slogSink).ResetStats(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to reset stats", err)
		}
	},
}

var cacheListCmd = &cobra.Command{
	Use:   "list [--prefix <prefix>]",
	Short: "Lists the cached keys with their age.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		a, err := openApp(ctx)
		if err != nil {
			serviceutil.Fatal("failed to initialize", err)
		}
		defer a.Close()

		keys, err := a.cache.Keys(ctx, listPrefix)
		if err != nil {
			serviceutil.Fatal("failed to list keys", err)
		}

		mappingTTL := a.config.MappingTTL.Std()
		if mappingTTL == 0 {
			mappingTTL = pipeline.DefaultMappingTTL
		}
		statsTTL := a.config.StatsTTL.Std()
		if statsTTL == 0 {
			statsTTL = pipeline.DefaultStatsTTL
		}

		t := newTable()
		t.AppendHeader(table.Row{"Key", "Stored at", "Age", "Expired"})
		now := time.Now()
		for _, key := range keys {
			storedAt, found, err := a.cache.StoredAt(ctx, key)
			if err != nil || !found {
				t.AppendRow(table.Row{key, "?", "?", "?"})
				continue
			}
			age := now.Sub(storedAt)

			expired := "-"
			switch {
			case strings.HasPrefix(key, pipeline.MAPPING_PREFIX):
				expired = fmt.Sprint(age > mappingTTL)
			case strings.HasPrefix(key, pipeline.STATS_PREFIX):
				expired = fmt.Sprint(age > statsTTL)
			}

			t.AppendRow(table.Row{
				key,
				storedAt.Format(time.DateTime),
				age.Round(time.Second).String(),
				expired,
			})
		}
		t.Render()
	},
}
