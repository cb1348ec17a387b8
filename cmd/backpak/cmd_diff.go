package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mrkline/backpak/internal/differ"
)

// changePrefix mirrors the single-character-per-line convention restic's
// own diff command uses: +/-/M/U/T for added/removed/content/metadata/type
// changes.
func changePrefix(k differ.ChangeKind) string {
	switch k {
	case differ.Added:
		return "+"
	case differ.Removed:
		return "-"
	case differ.ContentsChanged:
		return "M"
	case differ.MetadataChanged:
		return "U"
	case differ.TypeChanged:
		return "T"
	default:
		return " "
	}
}

var cmdDiff = &cobra.Command{
	Use:   "diff SNAPSHOT-1 SNAPSHOT-2",
	Short: "Show what changed between two snapshots",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openRepository(cmd.Context())
		if err != nil {
			return err
		}
		defer repo.Backend.Close()

		_, snap1, err := resolveSnapshot(cmd.Context(), repo, args[0])
		if err != nil {
			return err
		}
		_, snap2, err := resolveSnapshot(cmd.Context(), repo, args[1])
		if err != nil {
			return err
		}

		forest1, err := loadForest(cmd.Context(), repo, snap1.Tree)
		if err != nil {
			return err
		}
		forest2, err := loadForest(cmd.Context(), repo, snap2.Tree)
		if err != nil {
			return err
		}

		differ.Compare(snap1.Tree, forest1, snap2.Tree, forest2, "", func(c differ.Change) {
			if c.Kind == differ.Unchanged {
				return
			}
			fmt.Printf("%s  %s\n", changePrefix(c.Kind), c.Path)
		})

		return nil
	},
}
