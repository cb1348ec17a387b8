package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/mrkline/backpak/internal/objid"
	"github.com/mrkline/backpak/internal/restorer"
)

var cmdCat = &cobra.Command{
	Use:   "cat",
	Short: "Print a raw repository object as JSON",
}

func catRunE(catFn func(cmd *cobra.Command, id objid.ID) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := objid.Parse(args[0])
		if err != nil {
			return err
		}
		return catFn(cmd, id)
	}
}

var cmdCatBlob = &cobra.Command{
	Use:   "blob ID",
	Short: "Print the chunk or tree blob with the given id",
	Args:  cobra.ExactArgs(1),
	RunE: catRunE(func(cmd *cobra.Command, id objid.ID) error {
		repo, err := openRepository(cmd.Context())
		if err != nil {
			return err
		}
		defer repo.Backend.Close()
		return restorer.CatBlob(cmd.Context(), os.Stdout, repo, id)
	}),
}

var cmdCatPack = &cobra.Command{
	Use:   "pack ID",
	Short: "Print the manifest of the pack with the given id",
	Args:  cobra.ExactArgs(1),
	RunE: catRunE(func(cmd *cobra.Command, id objid.ID) error {
		repo, err := openRepository(cmd.Context())
		if err != nil {
			return err
		}
		defer repo.Backend.Close()
		return restorer.CatPack(cmd.Context(), os.Stdout, repo, id)
	}),
}

var cmdCatIndex = &cobra.Command{
	Use:   "index ID",
	Short: "Print the index with the given id",
	Args:  cobra.ExactArgs(1),
	RunE: catRunE(func(cmd *cobra.Command, id objid.ID) error {
		repo, err := openRepository(cmd.Context())
		if err != nil {
			return err
		}
		defer repo.Backend.Close()
		return restorer.CatIndex(cmd.Context(), os.Stdout, repo, id)
	}),
}

var cmdCatSnapshot = &cobra.Command{
	Use:   "snapshot ID",
	Short: "Print the snapshot with the given id",
	Args:  cobra.ExactArgs(1),
	RunE: catRunE(func(cmd *cobra.Command, id objid.ID) error {
		repo, err := openRepository(cmd.Context())
		if err != nil {
			return err
		}
		defer repo.Backend.Close()
		return restorer.CatSnapshot(cmd.Context(), os.Stdout, repo, id)
	}),
}

func init() {
	cmdCat.AddCommand(cmdCatBlob, cmdCatPack, cmdCatIndex, cmdCatSnapshot)
}
