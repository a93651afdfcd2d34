// Package datasync provides import/export orchestration between character
// files and the local record store.
package datasync

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/TheTechChild/dnd-character-builder/internal/character"
	"github.com/TheTechChild/dnd-character-builder/internal/importer"
	"github.com/TheTechChild/dnd-character-builder/internal/transfer"
)

//go:generate mockgen -source=datasync.go -destination=../mocks/datasync/mock_prompter.go -package=mock_datasync

// ImportResult tracks counts for each import outcome.
type ImportResult struct {
	New        int
	Replaced   int
	Duplicated int
	Merged     int
	Skipped    int
}

// ImportOptions controls import behavior.
type ImportOptions struct {
	DryRun            bool
	AutoResolve       bool
	DefaultResolution importer.Resolution
}

// ConflictPrompter asks the user how to resolve one conflict.
type ConflictPrompter interface {
	PromptResolution(ctx context.Context, conflict importer.Conflict) (importer.Resolution, error)
}

// Importer writes imported records to the store, resolving conflicts with
// stored records on the way.
type Importer struct {
	repo     character.Repository
	resolver *importer.Resolver
	prompter ConflictPrompter
	writer   io.Writer
}

// NewImporter creates a new Importer. prompter is only used when
// ImportOptions.AutoResolve is false.
func NewImporter(repo character.Repository, resolver *importer.Resolver, prompter ConflictPrompter, writer io.Writer) *Importer {
	return &Importer{
		repo:     repo,
		resolver: resolver,
		prompter: prompter,
		writer:   writer,
	}
}

// Import resolves records against the store and persists the outcome unless
// DryRun is set. Conflicts are resolved in input order, one at a time.
func (imp *Importer) Import(ctx context.Context, records []character.Character, opts ImportOptions) (*ImportResult, error) {
	existing, err := imp.repo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("FindAll() > %w", err)
	}

	conflicts := importer.FindConflicts(records, existing)
	if !opts.AutoResolve {
		for i := range conflicts {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("import canceled > %w", err)
			}
			resolution, err := imp.prompter.PromptResolution(ctx, conflicts[i])
			if err != nil {
				return nil, fmt.Errorf("PromptResolution(%s) > %w", conflicts[i].Imported.Name, err)
			}
			conflicts[i].Resolution = resolution
		}
	}
	byIndex := make(map[int]importer.Conflict, len(conflicts))
	for _, c := range conflicts {
		byIndex[c.Index] = c
	}

	var result ImportResult
	toPersist := make([]character.Character, 0, len(records))
	for i, record := range records {
		conflict, ok := byIndex[i]
		if !ok {
			fmt.Fprintf(imp.writer, "  [NEW]  %q (%s)\n", record.Name, record.ID)
			result.New++
			toPersist = append(toPersist, record)
			continue
		}

		resolution := conflict.Resolution
		if resolution == "" {
			resolution = opts.DefaultResolution
		}
		resolved, ok := imp.resolver.ResolveConflict(conflict, resolution)
		if !ok {
			fmt.Fprintf(imp.writer, "  [SKIP]  %q (conflicts with %q %s)\n", record.Name, conflict.Existing.Name, conflict.Existing.ID)
			result.Skipped++
			continue
		}
		switch resolution {
		case importer.Replace:
			fmt.Fprintf(imp.writer, "  [REPLACE]  %q (%s)\n", resolved.Name, resolved.ID)
			result.Replaced++
		case importer.Duplicate:
			fmt.Fprintf(imp.writer, "  [DUPLICATE]  %q (%s)\n", resolved.Name, resolved.ID)
			result.Duplicated++
		case importer.Merge:
			fmt.Fprintf(imp.writer, "  [MERGE]  %q into %q (%s)\n", record.Name, conflict.Existing.Name, resolved.ID)
			result.Merged++
		}
		toPersist = append(toPersist, resolved)
	}

	if !opts.DryRun {
		if err := imp.repo.UpsertAll(ctx, toPersist); err != nil {
			return nil, fmt.Errorf("UpsertAll() > %w", err)
		}
	}
	return &result, nil
}

// Exporter writes stored records to an export file.
type Exporter struct {
	repo character.Repository
	now  func() time.Time
}

// NewExporter creates a new Exporter.
func NewExporter(repo character.Repository) *Exporter {
	return &Exporter{repo: repo, now: time.Now}
}

// Export writes the records with the given ids, or every record when ids is
// empty. It returns the number of records written.
func (e *Exporter) Export(ctx context.Context, w io.Writer, format transfer.Format, ids ...string) (int, error) {
	var records []character.Character
	if len(ids) == 0 {
		all, err := e.repo.FindAll(ctx)
		if err != nil {
			return 0, fmt.Errorf("repo.FindAll() > %w", err)
		}
		records = all
	} else {
		for _, id := range ids {
			c, err := e.repo.FindByID(ctx, id)
			if err != nil {
				return 0, fmt.Errorf("repo.FindByID(%s) > %w", id, err)
			}
			records = append(records, *c)
		}
	}

	if err := transfer.Export(w, records, format, e.now()); err != nil {
		return 0, fmt.Errorf("transfer.Export() > %w", err)
	}
	return len(records), nil
}
