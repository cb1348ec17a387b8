package main

import (
	"github.com/spf13/cobra"

	"github.com/mrkline/backpak/internal/prune"
)

var pruneOptions struct {
	DryRun bool
}

var cmdPrune = &cobra.Command{
	Use:   "prune",
	Short: "Remove packs no snapshot references any more",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openRepository(cmd.Context())
		if err != nil {
			return err
		}
		defer repo.Backend.Close()

		stats, err := prune.Run(cmd.Context(), repo, prune.Options{DryRun: pruneOptions.DryRun})
		if err != nil {
			return err
		}

		verb := "kept"
		if pruneOptions.DryRun {
			verb = "would keep"
		}
		warn("%s %d packs, repacked %d, dropped %d", verb, stats.ReusablePacks, stats.RepackedPacks, stats.DroppedPacks)
		return nil
	},
}

func init() {
	cmdPrune.Flags().BoolVarP(&pruneOptions.DryRun, "dry-run", "n", false, "report what would be pruned without changing anything")
}
