package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/mrkline/backpak/internal/restorer"
)

var cmdDump = &cobra.Command{
	Use:   "dump SNAPSHOT PATH",
	Short: "Print a single file, directory listing, or symlink target from a snapshot",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openRepository(cmd.Context())
		if err != nil {
			return err
		}
		defer repo.Backend.Close()

		_, snap, err := resolveSnapshot(cmd.Context(), repo, args[0])
		if err != nil {
			return err
		}
		forest, err := loadForest(cmd.Context(), repo, snap.Tree)
		if err != nil {
			return err
		}

		return restorer.Dump(cmd.Context(), os.Stdout, repo, snap.Tree, forest, args[1])
	},
}
