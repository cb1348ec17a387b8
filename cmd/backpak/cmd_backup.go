package main

import (
	"github.com/spf13/cobra"

	"github.com/mrkline/backpak/internal/backup"
)

var backupOptions struct {
	Author string
	Tags   []string
	Skip   []string
}

var cmdBackup = &cobra.Command{
	Use:   "backup PATH...",
	Short: "Save the given paths as a new snapshot",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openRepository(cmd.Context())
		if err != nil {
			return err
		}
		defer repo.Backend.Close()

		id, err := backup.Run(cmd.Context(), repo, backup.Options{
			Paths:  args,
			Author: backupOptions.Author,
			Tags:   backupOptions.Tags,
			Skip:   backupOptions.Skip,
		})
		if err != nil {
			return err
		}

		warn("snapshot %s saved", id)
		return nil
	},
}

func init() {
	flags := cmdBackup.Flags()
	flags.StringVar(&backupOptions.Author, "author", "", "who's making this backup (default: hostname)")
	flags.StringSliceVar(&backupOptions.Tags, "tag", nil, "tag to attach to this snapshot (may be given more than once)")
	flags.StringArrayVar(&backupOptions.Skip, "skip", nil, "regex matching paths to leave out of the snapshot (may be given more than once)")
}
