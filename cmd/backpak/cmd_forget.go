package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mrkline/backpak/internal/backend"
	"github.com/mrkline/backpak/internal/objid"
	"github.com/mrkline/backpak/internal/repository"
)

var forgetOptions struct {
	DryRun bool
}

var cmdForget = &cobra.Command{
	Use:   "forget SNAPSHOT...",
	Short: "Forget snapshots (their packs aren't reclaimed until the next prune)",
	Long: `Forget snapshots (their packs aren't reclaimed until the next prune)

Pass "duplicates" instead of any snapshot ids to forget every snapshot
whose tree is identical to the most recent snapshot that isn't itself
being forgotten - e.g., repeated backups of an unchanging directory.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openRepository(cmd.Context())
		if err != nil {
			return err
		}
		defer repo.Backend.Close()

		var toForget []objid.ID
		if len(args) == 1 && args[0] == "duplicates" {
			toForget, err = duplicateSnapshots(cmd.Context(), repo)
		} else {
			toForget, err = resolveEach(cmd.Context(), repo, args)
		}
		if err != nil {
			return err
		}

		for _, id := range toForget {
			if forgetOptions.DryRun {
				warn("would forget %s", id)
				continue
			}
			if err := repo.Backend.Remove(cmd.Context(), backend.Snapshot, id.String()); err != nil {
				return err
			}
			warn("forgot %s", id)
		}
		return nil
	},
}

func init() {
	cmdForget.Flags().BoolVarP(&forgetOptions.DryRun, "dry-run", "n", false, "report what would be forgotten without changing anything")
}

func resolveEach(ctx context.Context, repo *repository.Repository, refs []string) ([]objid.ID, error) {
	ids := make([]objid.ID, 0, len(refs))
	for _, ref := range refs {
		id, _, err := resolveSnapshot(ctx, repo, ref)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// duplicateSnapshots walks every snapshot oldest-to-newest and forgets each
// one whose tree matches the most recent snapshot not already marked for
// forgetting, leaving one representative of each run of identical backups.
func duplicateSnapshots(ctx context.Context, repo *repository.Repository) ([]objid.ID, error) {
	snaps, err := loadAllSnapshots(ctx, repo)
	if err != nil {
		return nil, err
	}

	var dupes []objid.ID
	var lastKeptTree objid.ID
	haveLastKept := false

	for _, s := range snaps {
		if haveLastKept && s.Tree.Equal(lastKeptTree) {
			dupes = append(dupes, s.id)
			continue
		}
		lastKeptTree = s.Tree
		haveLastKept = true
	}
	return dupes, nil
}
