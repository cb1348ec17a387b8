package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mrkline/backpak/internal/checker"
)

var checkOptions struct {
	ReadPacks bool
}

var cmdCheck = &cobra.Command{
	Use:   "check",
	Short: "Verify the repository's indexes, packs, and snapshots agree with each other",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openRepository(cmd.Context())
		if err != nil {
			return err
		}
		defer repo.Backend.Close()

		stats, problems, err := checker.Run(cmd.Context(), repo, checker.Options{ReadPacks: checkOptions.ReadPacks})
		if err != nil {
			return err
		}

		warn("checked %d packs (%d blobs) across %d snapshots", stats.Packs, stats.Blobs, stats.Snapshots)
		for _, p := range problems {
			fmt.Println(p)
		}
		if len(problems) > 0 {
			return errors.Errorf("found %d problem(s)", len(problems))
		}
		return nil
	},
}

func init() {
	cmdCheck.Flags().BoolVar(&checkOptions.ReadPacks, "read-packs", false, "decompress and re-hash every blob in every pack, not just the index")
}
