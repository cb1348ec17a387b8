package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mrkline/backpak/internal/usage"
)

var cmdUsage = &cobra.Command{
	Use:   "usage",
	Short: "Show how much space the repository's snapshots use, deduplicated and not",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openRepository(cmd.Context())
		if err != nil {
			return err
		}
		defer repo.Backend.Close()

		stats, err := usage.Run(cmd.Context(), repo)
		if err != nil {
			return err
		}

		if stats.Snapshots == 0 {
			fmt.Println("0 snapshots")
			return nil
		}

		fmt.Printf("%d snapshots, from %s to %s\n",
			stats.Snapshots, stats.Oldest.Format("2006-01-02"), stats.Newest.Format("2006-01-02"))
		fmt.Printf("%s unique data\n", humanize.Bytes(stats.UniqueBytes))
		fmt.Printf("%s reused (deduplicated)\n", humanize.Bytes(stats.ReusedBytes))
		fmt.Printf("\n%d indexes reference %d packs (%s)\n", stats.Indexes, stats.Packs, humanize.Bytes(stats.PackedBytes))

		return nil
	},
}
