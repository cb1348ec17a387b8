package main

import (
	"github.com/spf13/cobra"

	"github.com/mrkline/backpak/internal/restorer"
)

var restoreOptions struct {
	Output      string
	DryRun      bool
	Delete      bool
	Times       bool
	Permissions bool
}

var cmdRestore = &cobra.Command{
	Use:   "restore SNAPSHOT",
	Short: "Write a snapshot's files back to disk",
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

		stats, err := restorer.Restore(cmd.Context(), repo, snap, forest, restorer.Options{
			Output:      restoreOptions.Output,
			DryRun:      restoreOptions.DryRun,
			Delete:      restoreOptions.Delete,
			Times:       restoreOptions.Times,
			Permissions: restoreOptions.Permissions,
		})
		if err != nil {
			return err
		}

		verb := "restored"
		if restoreOptions.DryRun {
			verb = "would restore"
		}
		warn("%s %d added, %d updated, %d removed", verb, stats.Added, stats.Updated, stats.Removed)
		return nil
	},
}

func init() {
	flags := cmdRestore.Flags()
	flags.StringVarP(&restoreOptions.Output, "output", "o", "", "restore under this directory instead of the snapshot's original paths")
	flags.BoolVarP(&restoreOptions.DryRun, "dry-run", "n", false, "report what would change without writing anything")
	flags.BoolVarP(&restoreOptions.Delete, "delete", "d", false, "delete files and directories the snapshot doesn't contain")
	flags.BoolVarP(&restoreOptions.Times, "times", "t", false, "restore modification and access times")
	flags.BoolVarP(&restoreOptions.Permissions, "permissions", "p", false, "restore file permissions")
}
