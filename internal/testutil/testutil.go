// Package testutil provides shared test helpers for config files and
// character fixtures.
package testutil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/TheTechChild/dnd-character-builder/internal/character"
)

// FixedTime is the creation time of every fixture.
var FixedTime = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// SetupTestConfig creates a config file whose data paths all live under tmpDir
// and points the reference API at baseURL. Returns the path to the config file.
func SetupTestConfig(t *testing.T, tmpDir, baseURL string) string {
	t.Helper()

	for _, d := range []string{"data", "sheets"} {
		require.NoError(t, os.MkdirAll(filepath.Join(tmpDir, d), 0755))
	}

	configContent := fmt.Sprintf(`reference:
  base_url: %s
  request_delay: 0s
  timeout: 5s
cache:
  path: %s
records:
  database_path: %s
import:
  auto_resolve: false
  default_resolution: skip
  merge_strategy: preferImported
outputs:
  sheet_directory: %s
`,
		baseURL,
		filepath.Join(tmpDir, "data", "cache.bbolt"),
		filepath.Join(tmpDir, "data", "characters.db"),
		filepath.Join(tmpDir, "sheets"),
	)

	cfgPath := filepath.Join(tmpDir, "config.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(configContent), 0644))
	return cfgPath
}

// CharacterOption configures a character fixture.
type CharacterOption func(*character.Character)

func WithNotes(notes string) CharacterOption {
	return func(c *character.Character) {
		c.Notes = notes
	}
}

func WithUpdatedAt(at time.Time) CharacterOption {
	return func(c *character.Character) {
		c.UpdatedAt = at
	}
}

func WithSkill(skill character.Skill, p character.SkillProficiency) CharacterOption {
	return func(c *character.Character) {
		if c.Skills == nil {
			c.Skills = map[character.Skill]character.SkillProficiency{}
		}
		c.Skills[skill] = p
	}
}

func WithSpells(level int, names ...string) CharacterOption {
	return func(c *character.Character) {
		if c.Spells == nil {
			c.Spells = character.Spells{}
		}
		c.Spells[level] = append(c.Spells[level], names...)
	}
}

func WithEquipment(items ...string) CharacterOption {
	return func(c *character.Character) {
		c.Equipment = items
	}
}

func WithLanguages(languages ...string) CharacterOption {
	return func(c *character.Character) {
		c.Languages = languages
	}
}

// NewCharacter returns a valid level 1 fighter.
func NewCharacter(id, name string, opts ...CharacterOption) character.Character {
	c := character.Character{
		ID:    id,
		Name:  name,
		Race:  "Human",
		Class: "Fighter",
		Level: 1,
		AbilityScores: character.AbilityScores{
			Strength: 15, Dexterity: 14, Constitution: 13,
			Intelligence: 12, Wisdom: 10, Charisma: 8,
		},
		HitPoints:  12,
		ArmorClass: 16,
		Speed:      30,
		Languages:  []string{"Common"},
		CreatedAt:  FixedTime,
		UpdatedAt:  FixedTime,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WriteCharacterFile writes v as JSON into dir/name and returns its path.
func WriteCharacterFile(t *testing.T, dir, name string, v any) string {
	t.Helper()
	data, err := json.MarshalIndent(v, "", "  ")
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}
