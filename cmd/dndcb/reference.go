package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/TheTechChild/dnd-character-builder/internal/category"
	"github.com/TheTechChild/dnd-character-builder/internal/reference"
)

func newReferenceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reference",
		Short: "Browse the reference catalog (spells, classes, races and more)",
	}
	cmd.AddCommand(
		newReferenceGetCommand(),
		newReferenceListCommand(),
		newReferenceSearchCommand(),
	)
	return cmd
}

func newReferenceGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <category> <slug>",
		Short: "Show one reference item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := category.Parse(args[0])
			if err != nil {
				return fmt.Errorf("category.Parse() > %w", err)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			session := openCatalog(cfg)
			defer session.Close()

			raw, err := session.service.Get(cmd.Context(), cat, args[1])
			if err != nil {
				return fmt.Errorf("service.Get() > %w", err)
			}
			return writeIndentedJSON(cmd.OutOrStdout(), raw)
		},
	}
}

func newReferenceListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list <category>",
		Short: "List every item of a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := category.Parse(args[0])
			if err != nil {
				return fmt.Errorf("category.Parse() > %w", err)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			session := openCatalog(cfg)
			defer session.Close()

			items, err := session.service.List(cmd.Context(), cat)
			if err != nil {
				return fmt.Errorf("service.List() > %w", err)
			}
			return writeSummaries(cmd.OutOrStdout(), items)
		},
	}
}

func newReferenceSearchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "search <category> <query>",
		Short: "Search a category by name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := category.Parse(args[0])
			if err != nil {
				return fmt.Errorf("category.Parse() > %w", err)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			session := openCatalog(cfg)
			defer session.Close()

			items, err := session.service.Search(cmd.Context(), cat, args[1])
			if err != nil {
				return fmt.Errorf("service.Search() > %w", err)
			}
			return writeSummaries(cmd.OutOrStdout(), items)
		},
	}
}

func writeIndentedJSON(w io.Writer, raw json.RawMessage) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("json.Unmarshal() > %w", err)
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("encoder.Encode() > %w", err)
	}
	return nil
}

func writeSummaries(w io.Writer, items []json.RawMessage) error {
	summaries, err := reference.DecodeAll[reference.Summary](items)
	if err != nil {
		return fmt.Errorf("reference.DecodeAll() > %w", err)
	}
	if len(summaries) == 0 {
		_, err := fmt.Fprintln(w, "No results.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SLUG\tNAME")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%s\n", s.Slug, s.Name)
	}
	return tw.Flush()
}
