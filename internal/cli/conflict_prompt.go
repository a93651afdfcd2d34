package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/TheTechChild/dnd-character-builder/internal/character"
	"github.com/TheTechChild/dnd-character-builder/internal/datasync"
	"github.com/TheTechChild/dnd-character-builder/internal/importer"
)

var errNoAnswer = errors.New("no answer given")

// ConflictPrompt asks on a terminal how each import conflict is resolved.
type ConflictPrompt struct {
	stdinReader  *bufio.Reader
	stdoutWriter io.Writer
	bold         *color.Color
	warning      *color.Color
	faint        *color.Color
}

var _ datasync.ConflictPrompter = (*ConflictPrompt)(nil)

func NewConflictPrompt(stdin io.Reader, stdout io.Writer) *ConflictPrompt {
	return &ConflictPrompt{
		stdinReader:  bufio.NewReader(stdin),
		stdoutWriter: stdout,
		bold:         color.New(color.Bold),
		warning:      color.New(color.FgYellow, color.Bold),
		faint:        color.New(color.Faint),
	}
}

var answers = map[string]importer.Resolution{
	"r": importer.Replace,
	"d": importer.Duplicate,
	"s": importer.Skip,
	"m": importer.Merge,
}

// PromptResolution shows both records and reads an answer, asking again
// until the answer is one of the resolutions.
func (p *ConflictPrompt) PromptResolution(ctx context.Context, conflict importer.Conflict) (importer.Resolution, error) {
	p.warning.Fprintf(p.stdoutWriter, "\nConflict: %q already exists\n", conflict.Existing.Name)
	p.describe("Stored  ", conflict.Existing)
	p.describe("Imported", conflict.Imported)

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		p.bold.Fprint(p.stdoutWriter, "[r]eplace, [d]uplicate, [s]kip or [m]erge? ")
		line, err := p.stdinReader.ReadString('\n')
		answer := strings.ToLower(strings.TrimSpace(line))
		if answer == "" && err != nil {
			if errors.Is(err, io.EOF) {
				return "", fmt.Errorf("%w: %w", errNoAnswer, err)
			}
			return "", fmt.Errorf("stdinReader.ReadString() > %w", err)
		}

		if resolution, ok := answers[answer]; ok {
			return resolution, nil
		}
		if resolution, err := importer.ParseResolution(answer); err == nil {
			return resolution, nil
		}
		fmt.Fprintf(p.stdoutWriter, "%q is not an option\n", answer)
	}
}

func (p *ConflictPrompt) describe(label string, c character.Character) {
	summary := strings.TrimSpace(fmt.Sprintf("%s %s", c.Race, c.Class))
	if summary == "" {
		summary = "unknown"
	}
	fmt.Fprintf(p.stdoutWriter, "  %s  %s, level %d %s, %d spells, updated %s ",
		p.bold.Sprint(label), c.Name, c.Level, summary, c.Spells.Total(),
		c.LastModified().Local().Format(time.DateTime),
	)
	p.faint.Fprintf(p.stdoutWriter, "(%s)\n", c.ID)
}

// PrintImportSummary writes the counts of an import.
func PrintImportSummary(w io.Writer, result *datasync.ImportResult, dryRun bool) {
	bold := color.New(color.Bold)
	if dryRun {
		bold.Fprintln(w, "\nDry run, nothing was written:")
	} else {
		bold.Fprintln(w, "\nImported:")
	}
	rows := []struct {
		label string
		count int
		c     *color.Color
	}{
		{label: "new", count: result.New, c: color.New(color.FgGreen)},
		{label: "replaced", count: result.Replaced, c: color.New(color.FgCyan)},
		{label: "duplicated", count: result.Duplicated, c: color.New(color.FgCyan)},
		{label: "merged", count: result.Merged, c: color.New(color.FgCyan)},
		{label: "skipped", count: result.Skipped, c: color.New(color.FgYellow)},
	}
	for _, row := range rows {
		fmt.Fprintf(w, "  %-10s %s\n", row.label, row.c.Sprint(row.count))
	}
}
