package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/TheTechChild/dnd-character-builder/internal/character"
	"github.com/TheTechChild/dnd-character-builder/internal/cli"
	"github.com/TheTechChild/dnd-character-builder/internal/datasync"
	"github.com/TheTechChild/dnd-character-builder/internal/importer"
	"github.com/TheTechChild/dnd-character-builder/internal/sheet"
	"github.com/TheTechChild/dnd-character-builder/internal/transfer"
)

func newCharacterCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "character",
		Aliases: []string{"char"},
		Short:   "Manage saved characters",
	}
	cmd.AddCommand(
		newCharacterListCommand(),
		newCharacterShowCommand(),
		newCharacterDeleteCommand(),
		newCharacterImportCommand(),
		newCharacterExportCommand(),
		newCharacterSheetCommand(),
	)
	return cmd
}

func newCharacterListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved characters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			repo, db, err := openRepository(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = db.Close()
			}()

			characters, err := repo.FindAll(ctx)
			if err != nil {
				return fmt.Errorf("repo.FindAll() > %w", err)
			}
			if len(characters) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No characters yet.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tLEVEL\tRACE\tCLASS\tUPDATED")
			for _, c := range characters {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
					c.ID, c.Name, c.Level, c.Race, c.Class, humanize.Time(c.LastModified()))
			}
			return tw.Flush()
		},
	}
}

func newCharacterShowCommand() *cobra.Command {
	format := transfer.YAML

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a saved character",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			repo, db, err := openRepository(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = db.Close()
			}()

			c, err := repo.FindByID(ctx, args[0])
			if err != nil {
				return fmt.Errorf("repo.FindByID() > %w", err)
			}
			return writeCharacter(cmd.OutOrStdout(), *c, format)
		},
	}
	cmd.Flags().Var(&format, "format", "output format (json or yaml)")
	return cmd
}

func writeCharacter(w io.Writer, c character.Character, format transfer.Format) error {
	switch format {
	case transfer.JSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(c); err != nil {
			return fmt.Errorf("encoder.Encode() > %w", err)
		}
	default:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(c); err != nil {
			return fmt.Errorf("encoder.Encode() > %w", err)
		}
		if err := encoder.Close(); err != nil {
			return fmt.Errorf("encoder.Close() > %w", err)
		}
	}
	return nil
}

func newCharacterDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete saved characters",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			repo, db, err := openRepository(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = db.Close()
			}()

			for _, id := range args {
				if err := repo.Delete(ctx, id); err != nil {
					return fmt.Errorf("repo.Delete(%s) > %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s.\n", id)
			}
			return nil
		},
	}
}

func newCharacterImportCommand() *cobra.Command {
	var (
		resolution    importer.Resolution
		mergeStrategy importer.MergeStrategy
		autoResolve   bool
		dryRun        bool
	)

	cmd := &cobra.Command{
		Use:   "import <file-or-url>",
		Short: "Import characters from a JSON or YAML file, or an http(s) URL",
		Long: `Import characters from a JSON or YAML file, or an http(s) URL.

A character conflicts with a saved one when they share an id or a name
(ignoring case). Each conflict is resolved by one of:
  replace    overwrite the saved character, keeping its id
  duplicate  save the import as a new character
  skip       leave the saved character untouched
  merge      combine both, field by field

Conflicts are asked about one at a time unless --auto-resolve or
--resolution is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			opts := datasync.ImportOptions{
				DryRun:            dryRun,
				AutoResolve:       autoResolve || cfg.Import.AutoResolve,
				DefaultResolution: importer.ResolutionFromExternal(cfg.Import.DefaultResolution),
			}
			if cmd.Flags().Changed("resolution") {
				opts.AutoResolve = true
				opts.DefaultResolution = resolution
			}
			if !cmd.Flags().Changed("merge-strategy") {
				if mergeStrategy, err = importer.ParseMergeStrategy(cfg.Import.MergeStrategy); err != nil {
					return fmt.Errorf("importer.ParseMergeStrategy() > %w", err)
				}
			}

			loader := transfer.NewLoader()
			defer func() {
				_ = loader.Close()
			}()
			records, err := loadRecords(cmd, loader, args[0])
			if err != nil {
				return err
			}

			repo, db, err := openRepository(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = db.Close()
			}()

			imp := datasync.NewImporter(
				repo,
				importer.NewResolver(importer.WithMergeStrategy(mergeStrategy)),
				cli.NewConflictPrompt(cmd.InOrStdin(), cmd.OutOrStdout()),
				cmd.OutOrStdout(),
			)
			result, err := imp.Import(ctx, records, opts)
			if err != nil {
				return fmt.Errorf("importer.Import() > %w", err)
			}
			cli.PrintImportSummary(cmd.OutOrStdout(), result, dryRun)
			return nil
		},
	}

	cmd.Flags().Var(&resolution, "resolution", "resolve every conflict the same way (replace, duplicate, skip or merge)")
	cmd.Flags().Var(&mergeStrategy, "merge-strategy", "which side wins a merge (preferImported, preferExisting or newest)")
	cmd.Flags().BoolVar(&autoResolve, "auto-resolve", false, "resolve conflicts with the configured default instead of asking")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "preview the import without saving anything")
	return cmd
}

func loadRecords(cmd *cobra.Command, loader *transfer.Loader, source string) ([]character.Character, error) {
	var (
		records []character.Character
		err     error
	)
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		records, err = loader.LoadURL(cmd.Context(), source)
	} else {
		records, err = loader.LoadFile(source)
	}
	if err == nil {
		return records, nil
	}

	var invalid *transfer.InvalidInputError
	if errors.As(err, &invalid) {
		w := cmd.ErrOrStderr()
		fmt.Fprintf(w, "%s cannot be imported:\n", source)
		for _, e := range invalid.Errors {
			fmt.Fprintf(w, "  - %s\n", e.Message)
		}
	}
	return nil, fmt.Errorf("load %s > %w", source, err)
}

func newCharacterExportCommand() *cobra.Command {
	var (
		format transfer.Format
		output string
	)

	cmd := &cobra.Command{
		Use:   "export [id]...",
		Short: "Export saved characters (all of them when no id is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if format == "" {
				format = transfer.JSON
				if output != "" {
					if format, err = transfer.FormatFromPath(output); err != nil {
						return fmt.Errorf("transfer.FormatFromPath() > %w", err)
					}
				}
			}

			repo, db, err := openRepository(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = db.Close()
			}()

			w := cmd.OutOrStdout()
			if output != "" {
				if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
					return fmt.Errorf("os.MkdirAll() > %w", err)
				}
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("os.Create() > %w", err)
				}
				defer func() {
					_ = f.Close()
				}()
				w = f
			}

			count, err := datasync.NewExporter(repo).Export(ctx, w, format, args...)
			if err != nil {
				return fmt.Errorf("exporter.Export() > %w", err)
			}
			if output != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d %s to %s\n", count, plural(count, "character", "characters"), output)
			}
			return nil
		},
	}
	cmd.Flags().Var(&format, "format", "export format, json or yaml (default: from --output, else json)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to this file instead of stdout")
	return cmd
}

func newCharacterSheetCommand() *cobra.Command {
	var (
		withPDF   bool
		outputDir string
	)

	cmd := &cobra.Command{
		Use:   "sheet <id>",
		Short: "Render a character sheet as markdown, and optionally PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if outputDir == "" {
				outputDir = cfg.Outputs.SheetDirectory
			}

			repo, db, err := openRepository(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = db.Close()
			}()

			c, err := repo.FindByID(ctx, args[0])
			if err != nil {
				return fmt.Errorf("repo.FindByID() > %w", err)
			}

			renderer, err := sheet.NewRenderer(cfg.Templates.SheetTemplate)
			if err != nil {
				return fmt.Errorf("sheet.NewRenderer() > %w", err)
			}
			paths, err := renderer.WriteFiles(outputDir, *c, withPDF)
			if err != nil {
				return fmt.Errorf("renderer.WriteFiles() > %w", err)
			}
			for _, p := range paths {
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", p)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withPDF, "pdf", false, "also convert the sheet to PDF")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "directory for the sheet (default: outputs.sheet_directory)")
	return cmd
}
