package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/TheTechChild/dnd-character-builder/internal/cache"
	"github.com/TheTechChild/dnd-character-builder/internal/category"
	"github.com/TheTechChild/dnd-character-builder/internal/reference"
)

func newCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the offline content cache",
	}
	cmd.AddCommand(
		newCacheStatsCommand(),
		newCachePruneCommand(),
		newCacheClearCommand(),
	)
	return cmd
}

func newCacheStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			c := openCache(cfg)
			defer func() {
				_ = c.Close()
			}()

			stats := c.Stats()
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Size:       %s of %s (%.1f%%)\n",
				humanize.IBytes(uint64(stats.TotalSizeBytes)),
				humanize.IBytes(uint64(stats.MaxSizeBytes)),
				stats.PercentUsed,
			)
			fmt.Fprintf(w, "Entries:    %d\n", stats.ContentCount)
			fmt.Fprintf(w, "Bookmarks:  %d\n", stats.BookmarkCount)
			lastCleanup := "never"
			if stats.LastCleanupTimestamp > 0 {
				lastCleanup = humanize.Time(time.UnixMilli(stats.LastCleanupTimestamp))
			}
			fmt.Fprintf(w, "Cleaned up: %s\n", lastCleanup)
			return nil
		},
	}
}

func newCachePruneCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: fmt.Sprintf("Remove entries older than %d days", int(cache.EntryTTL.Hours()/24)),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			c := openCache(cfg)
			defer func() {
				_ = c.Close()
			}()

			removed := c.PruneExpired()
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired %s.\n", removed, plural(removed, "entry", "entries"))
			return nil
		},
	}
}

func newCacheClearCommand() *cobra.Command {
	var only category.Category

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove cached content, and bookmarks unless --category is set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			c := openCache(cfg)
			defer func() {
				_ = c.Close()
			}()

			if only == "" {
				c.Clear()
				fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared.")
				return nil
			}

			removed := 0
			for _, raw := range c.GetByCategory(only) {
				if slug, ok := reference.SlugOf(raw); ok {
					c.Delete(only, slug)
					removed++
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached %s.\n", removed, only)
			return nil
		},
	}
	cmd.Flags().Var(&only, "category", "only clear this category")
	return cmd
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
