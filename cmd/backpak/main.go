// Command backpak is the CLI for the backup engine implemented under
// internal/: a thin layer translating flags into calls against
// internal/backup, internal/prune, and the repository/backend packages.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/mrkline/backpak/internal/debug"
)

var globalOptions struct {
	RepoPath string
	Quiet    bool
}

var cmdRoot = &cobra.Command{
	Use:   "backpak",
	Short: "A content-addressed, deduplicating backup tool",
	Long: `
backpak saves directory trees as snapshots in a local repository,
deduplicating their contents against everything already backed up.
`,
	SilenceErrors:     true,
	SilenceUsage:      true,
	DisableAutoGenTag: true,
}

func init() {
	flags := cmdRoot.PersistentFlags()
	flags.StringVarP(&globalOptions.RepoPath, "repo", "r", os.Getenv("BACKPAK_REPOSITORY"), "path to the repository")
	flags.BoolVarP(&globalOptions.Quiet, "quiet", "q", false, "suppress progress output")

	cmdRoot.AddCommand(cmdInit, cmdBackup, cmdSnapshots, cmdPrune, cmdRebuildIndex, cmdCheck, cmdLs, cmdRestore, cmdForget, cmdDump, cmdCat, cmdDiff, cmdUsage)
}

func requireRepoPath() error {
	if globalOptions.RepoPath == "" {
		return fmt.Errorf("no repository given (use --repo or $BACKPAK_REPOSITORY)")
	}
	return nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := cmdRoot.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func warn(format string, args ...any) {
	if !globalOptions.Quiet {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
	debug.Log(format, args...)
}
