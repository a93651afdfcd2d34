// Package importer detects collisions between imported and stored character
// records and resolves them. Every function here is pure: inputs are never
// modified and no I/O happens.
package importer

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/TheTechChild/dnd-character-builder/internal/character"
)

// ImportedNotesSeparator joins the notes of both sides of a merge.
const ImportedNotesSeparator = "\n\n--- Imported Notes ---\n\n"

// DuplicateNameSuffix is appended to a duplicate that kept the existing name.
const DuplicateNameSuffix = " (Imported)"

// Conflict pairs an imported record with the stored record it collides with.
// An empty Resolution means the batch default applies.
type Conflict struct {
	Imported   character.Character
	Existing   character.Character
	Resolution Resolution
	// Index is the position of Imported in the imported batch.
	Index int
}

// Resolver is safe for concurrent use.
type Resolver struct {
	now      func() time.Time
	newID    func() string
	strategy MergeStrategy
}

type Option func(*Resolver)

func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		r.now = now
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(r *Resolver) {
		r.newID = newID
	}
}

func WithMergeStrategy(strategy MergeStrategy) Option {
	return func(r *Resolver) {
		r.strategy = strategy
	}
}

func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		now:      time.Now,
		newID:    uuid.NewString,
		strategy: PreferImported,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FindConflicts pairs each imported record with the first existing record
// sharing its id or, failing that, its name ignoring case. Imported records
// without a partner are not reported.
func FindConflicts(imported, existing []character.Character) []Conflict {
	var conflicts []Conflict
	for i, in := range imported {
		if partner, ok := findPartner(in, existing); ok {
			conflicts = append(conflicts, Conflict{Imported: in, Existing: partner, Index: i})
		}
	}
	return conflicts
}

func findPartner(in character.Character, existing []character.Character) (character.Character, bool) {
	for _, ex := range existing {
		if in.ID != "" && ex.ID == in.ID {
			return ex, true
		}
	}
	for _, ex := range existing {
		if strings.EqualFold(ex.Name, in.Name) {
			return ex, true
		}
	}
	return character.Character{}, false
}

// ResolveConflict returns the record to persist for a conflict, or false when
// nothing should be persisted.
func (r *Resolver) ResolveConflict(conflict Conflict, resolution Resolution) (character.Character, bool) {
	switch resolution {
	case Replace:
		return r.replace(conflict), true
	case Duplicate:
		return r.duplicate(conflict), true
	case Merge:
		return r.Merge(conflict.Existing, conflict.Imported), true
	case Skip:
		return character.Character{}, false
	default:
		return character.Character{}, false
	}
}

func (r *Resolver) replace(conflict Conflict) character.Character {
	out := conflict.Imported.Clone()
	out.ID = conflict.Existing.ID
	out.UpdatedAt = r.now()
	return out
}

func (r *Resolver) duplicate(conflict Conflict) character.Character {
	now := r.now()
	out := conflict.Imported.Clone()
	out.ID = r.uniqueID(conflict.Imported.ID, conflict.Existing.ID)
	out.CreatedAt = now
	out.UpdatedAt = now
	if conflict.Imported.Name == conflict.Existing.Name {
		out.Name = conflict.Imported.Name + DuplicateNameSuffix
	}
	return out
}

const maxIDAttempts = 10

// uniqueID asks the generator for an id outside taken and falls back to a
// random UUID when it keeps returning taken or empty ids.
func (r *Resolver) uniqueID(taken ...string) string {
	for range maxIDAttempts {
		id := r.newID()
		if id != "" && !slices.Contains(taken, id) {
			return id
		}
	}
	return uuid.NewString()
}

// Merge combines both records field by field using the resolver's strategy.
// The id and creation time always come from existing.
func (r *Resolver) Merge(existing, imported character.Character) character.Character {
	base, override := imported, existing
	switch r.strategy {
	case PreferExisting:
		base, override = existing, imported
	case Newest:
		if existing.LastModified().After(imported.LastModified()) {
			base, override = existing, imported
		}
	}

	out := base.Clone()
	out.ID = existing.ID
	out.CreatedAt = existing.CreatedAt
	out.UpdatedAt = r.now()

	out.Skills = mergeSkills(base.Skills, override.Skills)
	out.SavingThrows = mergeSavingThrows(base.SavingThrows, override.SavingThrows)
	out.Languages = union(base.Languages, override.Languages)
	out.Equipment = slices.Clone(longer(base.Equipment, override.Equipment))
	out.Features = slices.Clone(longer(base.Features, override.Features))
	if override.Spells.Total() > base.Spells.Total() {
		out.Spells = override.Clone().Spells
	}
	out.Notes = mergeNotes(base.Notes, override.Notes)
	return out
}

// mergeSkills never downgrades a skill the base already has.
func mergeSkills(base, override map[character.Skill]character.SkillProficiency) map[character.Skill]character.SkillProficiency {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	out := make(map[character.Skill]character.SkillProficiency, len(base)+len(override))
	for skill, p := range base {
		out[skill] = p
	}
	for skill, ov := range override {
		b := base[skill]
		if ov.Expertise || (ov.Proficient && !b.Proficient) {
			out[skill] = character.SkillProficiency{
				Proficient: ov.Proficient || b.Proficient,
				Expertise:  ov.Expertise || b.Expertise,
			}
		}
	}
	return out
}

func mergeSavingThrows(base, override map[character.Ability]character.SavingThrow) map[character.Ability]character.SavingThrow {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	out := make(map[character.Ability]character.SavingThrow, len(base)+len(override))
	for ability, st := range base {
		out[ability] = st
	}
	for ability, ov := range override {
		if ov.Proficient && !base[ability].Proficient {
			out[ability] = ov
		}
	}
	return out
}

func union(base, override []string) []string {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(base)+len(override))
	out := make([]string, 0, len(base)+len(override))
	for _, list := range [][]string{base, override} {
		for _, item := range list {
			if _, ok := seen[item]; ok {
				continue
			}
			seen[item] = struct{}{}
			out = append(out, item)
		}
	}
	return out
}

// longer returns override only when it is strictly longer.
func longer(base, override []string) []string {
	if len(override) > len(base) {
		return override
	}
	return base
}

func mergeNotes(base, override string) string {
	switch {
	case base == "":
		return override
	case override == "", base == override:
		return base
	default:
		return base + ImportedNotesSeparator + override
	}
}

// Options configures batch resolution.
type Options struct {
	DefaultResolution Resolution
}

// ResolveConflicts resolves every conflict with its own resolution or the
// default, keeping input order and leaving out skipped ones.
func (r *Resolver) ResolveConflicts(conflicts []Conflict, opts Options) []character.Character {
	resolved := make([]character.Character, 0, len(conflicts))
	for _, conflict := range conflicts {
		if c, ok := r.ResolveConflict(conflict, effectiveResolution(conflict, opts.DefaultResolution)); ok {
			resolved = append(resolved, c)
		}
	}
	return resolved
}

func effectiveResolution(conflict Conflict, fallback Resolution) Resolution {
	if conflict.Resolution != "" {
		return conflict.Resolution
	}
	return fallback
}

type AutoResolveOptions struct {
	AutoResolve       bool
	DefaultResolution Resolution
}

type AutoResolveResult struct {
	Resolved  []character.Character
	Skipped   []character.Character
	Conflicts []Conflict
}

// AutoResolveConflicts detects conflicts and, when AutoResolve is set,
// resolves all of them with the default resolution. Imported records without
// a conflict are appended to Resolved as they are. With AutoResolve unset
// only detection runs and every conflict is returned for the caller.
func (r *Resolver) AutoResolveConflicts(imported, existing []character.Character, opts AutoResolveOptions) AutoResolveResult {
	conflicts := FindConflicts(imported, existing)
	if !opts.AutoResolve {
		return AutoResolveResult{
			Resolved:  []character.Character{},
			Skipped:   []character.Character{},
			Conflicts: conflicts,
		}
	}

	result := AutoResolveResult{
		Resolved:  []character.Character{},
		Skipped:   []character.Character{},
		Conflicts: []Conflict{},
	}
	for _, conflict := range conflicts {
		if c, ok := r.ResolveConflict(conflict, opts.DefaultResolution); ok {
			result.Resolved = append(result.Resolved, c)
		} else {
			result.Skipped = append(result.Skipped, conflict.Imported.Clone())
		}
	}
	for _, in := range imported {
		if _, ok := findPartner(in, existing); ok {
			continue
		}
		result.Resolved = append(result.Resolved, in.Clone())
	}
	return result
}
