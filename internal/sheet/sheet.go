// Package sheet renders a character as a markdown sheet and a PDF.
package sheet

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"text/template"

	"github.com/TheTechChild/dnd-character-builder/internal/assets"
	"github.com/TheTechChild/dnd-character-builder/internal/character"
	"github.com/TheTechChild/dnd-character-builder/internal/pdf"
)

var skillAbilities = map[character.Skill]character.Ability{
	character.Acrobatics:     character.Dexterity,
	character.AnimalHandling: character.Wisdom,
	character.Arcana:         character.Intelligence,
	character.Athletics:      character.Strength,
	character.Deception:      character.Charisma,
	character.History:        character.Intelligence,
	character.Insight:        character.Wisdom,
	character.Intimidation:   character.Charisma,
	character.Investigation:  character.Intelligence,
	character.Medicine:       character.Wisdom,
	character.Nature:         character.Intelligence,
	character.Perception:     character.Wisdom,
	character.Performance:    character.Charisma,
	character.Persuasion:     character.Charisma,
	character.Religion:       character.Intelligence,
	character.SleightOfHand:  character.Dexterity,
	character.Stealth:        character.Dexterity,
	character.Survival:       character.Wisdom,
}

type AbilityRow struct {
	Name       string
	Score      int
	Modifier   int
	Save       int
	Proficient bool
}

type SkillRow struct {
	Name     string
	Ability  string
	Bonus    int
	Training string
}

type SpellLevel struct {
	Level  int
	Label  string
	Spells []string
}

// Data is what the sheet template receives.
type Data struct {
	Character        character.Character
	ProficiencyBonus int
	Abilities        []AbilityRow
	Skills           []SkillRow
	SpellLevels      []SpellLevel
}

// ProficiencyBonus returns the bonus for a character level.
func ProficiencyBonus(level int) int {
	if level < 1 {
		level = 1
	}
	return 2 + (level-1)/4
}

func NewData(c character.Character) Data {
	bonus := ProficiencyBonus(c.Level)
	data := Data{Character: c, ProficiencyBonus: bonus}

	for _, ability := range character.Abilities {
		mod := character.Modifier(c.AbilityScores.Score(ability))
		proficient := c.SavingThrows[ability].Proficient
		save := mod
		if proficient {
			save += bonus
		}
		data.Abilities = append(data.Abilities, AbilityRow{
			Name:       string(ability),
			Score:      c.AbilityScores.Score(ability),
			Modifier:   mod,
			Save:       save,
			Proficient: proficient,
		})
	}

	for _, skill := range character.Skills {
		ability := skillAbilities[skill]
		p := c.Skills[skill]
		row := SkillRow{
			Name:     string(skill),
			Ability:  string(ability),
			Bonus:    character.Modifier(c.AbilityScores.Score(ability)),
			Training: "-",
		}
		switch {
		case p.Expertise:
			row.Bonus += 2 * bonus
			row.Training = "expertise"
		case p.Proficient:
			row.Bonus += bonus
			row.Training = "proficient"
		}
		data.Skills = append(data.Skills, row)
	}

	levels := make([]int, 0, len(c.Spells))
	for level, names := range c.Spells {
		if len(names) > 0 {
			levels = append(levels, level)
		}
	}
	sort.Ints(levels)
	for _, level := range levels {
		label := fmt.Sprintf("Level %d", level)
		if level == 0 {
			label = "Cantrips"
		}
		data.SpellLevels = append(data.SpellLevels, SpellLevel{
			Level:  level,
			Label:  label,
			Spells: c.Spells[level],
		})
	}
	return data
}

// Renderer writes character sheets with one parsed template.
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer loads the template at templatePath, falling back to the
// embedded sheet template.
func NewRenderer(templatePath string) (*Renderer, error) {
	tmpl, err := assets.ParseSheetTemplate(templatePath)
	if err != nil {
		return nil, fmt.Errorf("assets.ParseSheetTemplate(%s) > %w", templatePath, err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Markdown writes the sheet of c as markdown.
func (r *Renderer) Markdown(w io.Writer, c character.Character) error {
	if err := r.tmpl.Execute(w, NewData(c)); err != nil {
		return fmt.Errorf("tmpl.Execute() > %w", err)
	}
	return nil
}

// WriteFiles writes <dir>/<name>.md and, when withPDF is set, the matching
// PDF. It returns the paths written.
func (r *Renderer) WriteFiles(dir string, c character.Character, withPDF bool) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("os.MkdirAll(%s) > %w", dir, err)
	}

	var buf bytes.Buffer
	if err := r.Markdown(&buf, c); err != nil {
		return nil, err
	}
	base := filepath.Join(dir, FileName(c))
	markdownPath := base + ".md"
	if err := os.WriteFile(markdownPath, buf.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("os.WriteFile(%s) > %w", markdownPath, err)
	}
	paths := []string{markdownPath}
	if !withPDF {
		return paths, nil
	}

	pdfPath, err := pdf.ConvertMarkdownToPDF(markdownPath)
	if err != nil {
		return paths, fmt.Errorf("pdf.ConvertMarkdownToPDF(%s) > %w", markdownPath, err)
	}
	return append(paths, pdfPath), nil
}

var unsafeFileChars = regexp.MustCompile(`[^a-z0-9]+`)

// FileName returns a file system safe base name for c.
func FileName(c character.Character) string {
	name := strings.Trim(unsafeFileChars.ReplaceAllString(strings.ToLower(c.Name), "-"), "-")
	if name == "" {
		name = "character"
	}
	id := c.ID
	if len(id) > 8 {
		id = id[:8]
	}
	id = strings.Trim(unsafeFileChars.ReplaceAllString(strings.ToLower(id), "-"), "-")
	if id == "" {
		return name
	}
	return name + "-" + id
}
