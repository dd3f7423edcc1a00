package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// cacheCmd represents the schema cache related commands
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Commands to manage the schema cache",
	Long: `Commands to manage the schema cache.

The cache maps every replayed revision to its schema. Dropping a revision forces
its schema, and those of its descendants not cached either, to be computed again.

Revisions cannot be dropped while a server or another command uses the cache.`,
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the cached revisions",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runCacheList(cmd.Context(), config, cmd.OutOrStdout()); err != nil {
			wrapFatalln("failed to list cached revisions", err)
		}
	},
}

var cacheDropCmd = &cobra.Command{
	Use:   "drop <revision>...",
	Short: "Drop revisions from the cache",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runCacheDrop(cmd.Context(), config, args, cmd.OutOrStdout()); err != nil {
			wrapFatalln("failed to drop cached revisions", err)
		}
	},
}

func runCacheList(ctx context.Context, cfg *Config, out io.Writer) error {
	schemas, err := cfg.openCache(ctx, zap.NewNop())
	if err != nil {
		return err
	}
	for _, rev := range schemas.Revisions() {
		schema, _ := schemas.Get(rev)
		if _, err = fmt.Fprintf(out, "%s\t%d files\n", rev, len(schema)); err != nil {
			return err
		}
	}
	return nil
}

func runCacheDrop(ctx context.Context, cfg *Config, revs []string, out io.Writer) error {
	l, err := cfg.logger()
	if err != nil {
		return err
	}
	unlock, err := cfg.lockCache()
	if err != nil {
		return err
	}
	defer unlock()

	schemas, err := cfg.openCache(ctx, l)
	if err != nil {
		return err
	}
	removed, err := schemas.Delete(ctx, revs...)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "dropped %d of %d revisions\n", removed, len(revs))
	return err
}

func init() {
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheDropCmd)
	rootCmd.AddCommand(cacheCmd)
}
