package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/TheTechChild/dnd-character-builder/internal/cache"
	"github.com/TheTechChild/dnd-character-builder/internal/catalog"
	"github.com/TheTechChild/dnd-character-builder/internal/category"
	"github.com/TheTechChild/dnd-character-builder/internal/reference"
)

var errCacheUnavailable = errors.New("bookmarks need the content cache, which could not be opened")

func newBookmarkCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bookmark",
		Short: "Manage bookmarked reference items",
	}
	cmd.AddCommand(
		newBookmarkAddCommand(),
		newBookmarkRemoveCommand(),
		newBookmarkListCommand(),
	)
	return cmd
}

func newBookmarkAddCommand() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "add <category> <slug>",
		Short: "Bookmark a reference item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := category.Parse(args[0])
			if err != nil {
				return fmt.Errorf("category.Parse() > %w", err)
			}
			slug := args[1]

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			session := openCatalog(cfg)
			defer session.Close()
			if session.cache == nil {
				return errCacheUnavailable
			}

			if session.cache.IsBookmarked(cache.BookmarkID(cat, slug)) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s/%s is already bookmarked.\n", cat, slug)
				return nil
			}
			if name == "" {
				item, err := catalog.GetAs[reference.Summary](cmd.Context(), session.service, cat, slug)
				if err != nil {
					return fmt.Errorf("catalog.GetAs() > %w", err)
				}
				name = item.Name
			}
			if !session.service.ToggleBookmark(cat, slug, name) {
				return fmt.Errorf("failed to bookmark %s/%s", cat, slug)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Bookmarked %q.\n", name)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name (default: the item's name)")
	return cmd
}

func newBookmarkRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <category> <slug>",
		Short: "Remove a bookmark",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := category.Parse(args[0])
			if err != nil {
				return fmt.Errorf("category.Parse() > %w", err)
			}
			slug := args[1]

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			session := openCatalog(cfg)
			defer session.Close()
			if session.cache == nil {
				return errCacheUnavailable
			}

			if !session.cache.IsBookmarked(cache.BookmarkID(cat, slug)) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s/%s is not bookmarked.\n", cat, slug)
				return nil
			}
			session.service.ToggleBookmark(cat, slug, "")
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s/%s.\n", cat, slug)
			return nil
		},
	}
}

func newBookmarkListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List bookmarks, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			session := openCatalog(cfg)
			defer session.Close()

			bookmarks := session.service.Bookmarks()
			if len(bookmarks) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No bookmarks.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "CATEGORY\tSLUG\tNAME\tADDED")
			for _, b := range bookmarks {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", b.Category, b.Slug, b.DisplayName, humanize.Time(time.UnixMilli(b.Timestamp)))
			}
			return tw.Flush()
		},
	}
}
