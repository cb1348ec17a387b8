package main

import (
	"github.com/spf13/cobra"

	"github.com/mrkline/backpak/internal/rebuild"
)

var cmdRebuildIndex = &cobra.Command{
	Use:   "rebuild-index",
	Short: "Rebuild the repository's index from the packs on disk",
	Long: `rebuild-index discards every index on the repository and builds a
fresh one by reading each pack's own trailer, for when the indexes are
missing, stale, or suspected corrupt. The new index is uploaded and durable
before any old one is removed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openRepository(cmd.Context())
		if err != nil {
			return err
		}
		defer repo.Backend.Close()

		stats, err := rebuild.Run(cmd.Context(), repo, rebuild.Options{})
		if err != nil {
			return err
		}

		warn("rebuilt index covering %d packs, superseding %d old index(es)", stats.Packs, stats.SupersededIdxs)
		return nil
	},
}
