package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/mrkline/backpak/internal/restorer"
)

var lsOptions struct {
	Recursive bool
}

var cmdLs = &cobra.Command{
	Use:   "ls SNAPSHOT",
	Short: "List the files and directories a snapshot contains",
	Args:  cobra.ExactArgs(1),
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

		return restorer.List(os.Stdout, snap.Tree, forest, lsOptions.Recursive)
	},
}

func init() {
	cmdLs.Flags().BoolVarP(&lsOptions.Recursive, "recursive", "R", false, "list subdirectories' contents too")
}
