package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mrkline/backpak/internal/backend"
	"github.com/mrkline/backpak/internal/config"
	"github.com/mrkline/backpak/internal/pack"
)

var initOptions struct {
	PackSize uint64
	Filter   string
	Unfilter string
}

var cmdInit = &cobra.Command{
	Use:   "init",
	Short: "Create a new, empty repository",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireRepoPath(); err != nil {
			return err
		}
		if (initOptions.Filter == "") != (initOptions.Unfilter == "") {
			return errors.New("--filter and --unfilter must be given together")
		}

		fs, err := backend.InitFilesystem(globalOptions.RepoPath)
		if err != nil {
			return err
		}
		defer fs.Close()

		if initOptions.Filter != "" {
			// NewFilter round-trip checks the commands before anything is
			// committed to the new repository.
			if _, err := backend.NewFilter(fs, initOptions.Filter, initOptions.Unfilter); err != nil {
				return err
			}
		}

		repoConf := config.NewRepo("filesystem", initOptions.PackSize, initOptions.Filter, initOptions.Unfilter)
		if err := config.WriteRepo(cmd.Context(), fs, repoConf); err != nil {
			return err
		}

		warn("initialized repository at %s", globalOptions.RepoPath)
		return nil
	},
}

func init() {
	flags := cmdInit.Flags()
	flags.Uint64Var(&initOptions.PackSize, "pack-size", pack.DefaultTargetSize, "pack target size to record in the repository config, in bytes (backups always pack to the built-in default)")
	flags.StringVar(&initOptions.Filter, "filter", "", "shell command every object is piped through before being written (e.g. a gpg invocation)")
	flags.StringVar(&initOptions.Unfilter, "unfilter", "", "shell command inverting --filter; required if --filter is set")
}
