package main

import (
	"context"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mrkline/backpak/internal/backend"
	"github.com/mrkline/backpak/internal/objid"
	"github.com/mrkline/backpak/internal/repository"
	"github.com/mrkline/backpak/internal/snapshot"
)

var cmdSnapshots = &cobra.Command{
	Use:   "snapshots",
	Short: "List snapshots in the repository",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openRepository(cmd.Context())
		if err != nil {
			return err
		}
		defer repo.Backend.Close()

		snaps, err := loadAllSnapshots(cmd.Context(), repo)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		defer tw.Flush()
		tw.Write([]byte("ID\tTIME\tAUTHOR\tTAGS\tPATHS\n"))
		for _, s := range snaps {
			tw.Write([]byte(
				s.id.String()[:12] + "\t" +
					s.Time.Format("2006-01-02 15:04:05") + "\t" +
					s.Author + "\t" +
					strings.Join(s.Tags, ",") + "\t" +
					strings.Join(s.Paths, ", ") + "\n"))
		}
		return nil
	},
}

type idSnapshot struct {
	id objid.ID
	snapshot.Snapshot
}

// loadAllSnapshots reads and decodes every snapshot on repo's backend,
// oldest first.
func loadAllSnapshots(ctx context.Context, repo *repository.Repository) ([]idSnapshot, error) {
	ids, err := repo.Snapshots(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]idSnapshot, 0, len(ids))
	for _, id := range ids {
		rc, err := repo.Backend.Read(ctx, backend.Snapshot, id.String())
		if err != nil {
			return nil, err
		}
		s, err := snapshot.Decode(rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		out = append(out, idSnapshot{id: id, Snapshot: s})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}
