// Package character defines the user-owned character record and its local
// store.
package character

import (
	"maps"
	"slices"
	"time"
)

type Ability string

const (
	Strength     Ability = "strength"
	Dexterity    Ability = "dexterity"
	Constitution Ability = "constitution"
	Intelligence Ability = "intelligence"
	Wisdom       Ability = "wisdom"
	Charisma     Ability = "charisma"
)

// Abilities lists every ability in sheet order.
var Abilities = []Ability{Strength, Dexterity, Constitution, Intelligence, Wisdom, Charisma}

type Skill string

const (
	Acrobatics     Skill = "acrobatics"
	AnimalHandling Skill = "animalHandling"
	Arcana         Skill = "arcana"
	Athletics      Skill = "athletics"
	Deception      Skill = "deception"
	History        Skill = "history"
	Insight        Skill = "insight"
	Intimidation   Skill = "intimidation"
	Investigation  Skill = "investigation"
	Medicine       Skill = "medicine"
	Nature         Skill = "nature"
	Perception     Skill = "perception"
	Performance    Skill = "performance"
	Persuasion     Skill = "persuasion"
	Religion       Skill = "religion"
	SleightOfHand  Skill = "sleightOfHand"
	Stealth        Skill = "stealth"
	Survival       Skill = "survival"
)

// Skills lists every skill in sheet order.
var Skills = []Skill{
	Acrobatics, AnimalHandling, Arcana, Athletics, Deception, History,
	Insight, Intimidation, Investigation, Medicine, Nature, Perception,
	Performance, Persuasion, Religion, SleightOfHand, Stealth, Survival,
}

// MaxSpellLevel is the highest spell level; level 0 holds cantrips.
const MaxSpellLevel = 9

type AbilityScores struct {
	Strength     int `json:"strength" yaml:"strength" validate:"min=1,max=30"`
	Dexterity    int `json:"dexterity" yaml:"dexterity" validate:"min=1,max=30"`
	Constitution int `json:"constitution" yaml:"constitution" validate:"min=1,max=30"`
	Intelligence int `json:"intelligence" yaml:"intelligence" validate:"min=1,max=30"`
	Wisdom       int `json:"wisdom" yaml:"wisdom" validate:"min=1,max=30"`
	Charisma     int `json:"charisma" yaml:"charisma" validate:"min=1,max=30"`
}

// Score returns the score of one ability.
func (s AbilityScores) Score(a Ability) int {
	switch a {
	case Strength:
		return s.Strength
	case Dexterity:
		return s.Dexterity
	case Constitution:
		return s.Constitution
	case Intelligence:
		return s.Intelligence
	case Wisdom:
		return s.Wisdom
	case Charisma:
		return s.Charisma
	}
	return 0
}

// Modifier returns the ability modifier for a score.
func Modifier(score int) int {
	if score >= 10 {
		return (score - 10) / 2
	}
	return (score - 11) / 2
}

type SkillProficiency struct {
	Proficient bool `json:"proficient" yaml:"proficient"`
	Expertise  bool `json:"expertise" yaml:"expertise"`
}

type SavingThrow struct {
	Proficient bool `json:"proficient" yaml:"proficient"`
}

// Spells holds spell names per spell level.
type Spells map[int][]string

// Total counts spells across all levels.
func (s Spells) Total() int {
	var n int
	for _, names := range s {
		n += len(names)
	}
	return n
}

type Character struct {
	ID               string                     `json:"id" yaml:"id" validate:"required"`
	Name             string                     `json:"name" yaml:"name" validate:"required,max=100"`
	Race             string                     `json:"race,omitempty" yaml:"race,omitempty" validate:"max=50"`
	Class            string                     `json:"class,omitempty" yaml:"class,omitempty" validate:"max=50"`
	Subclass         string                     `json:"subclass,omitempty" yaml:"subclass,omitempty" validate:"max=50"`
	Background       string                     `json:"background,omitempty" yaml:"background,omitempty" validate:"max=50"`
	Alignment        string                     `json:"alignment,omitempty" yaml:"alignment,omitempty" validate:"max=50"`
	Level            int                        `json:"level" yaml:"level" validate:"min=1,max=20"`
	ExperiencePoints int                        `json:"experiencePoints" yaml:"experiencePoints" validate:"min=0"`
	HitPoints        int                        `json:"hitPoints" yaml:"hitPoints" validate:"min=0"`
	ArmorClass       int                        `json:"armorClass" yaml:"armorClass" validate:"min=0,max=50"`
	Speed            int                        `json:"speed" yaml:"speed" validate:"min=0"`
	AbilityScores    AbilityScores              `json:"abilityScores" yaml:"abilityScores"`
	Skills           map[Skill]SkillProficiency `json:"skills,omitempty" yaml:"skills,omitempty" validate:"dive,keys,skill,endkeys"`
	SavingThrows     map[Ability]SavingThrow    `json:"savingThrows,omitempty" yaml:"savingThrows,omitempty" validate:"dive,keys,ability,endkeys"`
	Languages        []string                   `json:"languages,omitempty" yaml:"languages,omitempty" validate:"dive,required"`
	Equipment        []string                   `json:"equipment,omitempty" yaml:"equipment,omitempty" validate:"dive,required"`
	Features         []string                   `json:"features,omitempty" yaml:"features,omitempty" validate:"dive,required"`
	Spells           Spells                     `json:"spells,omitempty" yaml:"spells,omitempty" validate:"dive,keys,min=0,max=9,endkeys"`
	Notes            string                     `json:"notes,omitempty" yaml:"notes,omitempty"`
	CreatedAt        time.Time                  `json:"createdAt" yaml:"createdAt"`
	UpdatedAt        time.Time                  `json:"updatedAt" yaml:"updatedAt"`
}

// LastModified returns UpdatedAt, or CreatedAt when the record was never
// updated.
func (c Character) LastModified() time.Time {
	if c.UpdatedAt.IsZero() {
		return c.CreatedAt
	}
	return c.UpdatedAt
}

// Clone returns a deep copy.
func (c Character) Clone() Character {
	out := c
	out.Skills = maps.Clone(c.Skills)
	out.SavingThrows = maps.Clone(c.SavingThrows)
	out.Languages = slices.Clone(c.Languages)
	out.Equipment = slices.Clone(c.Equipment)
	out.Features = slices.Clone(c.Features)
	if c.Spells != nil {
		out.Spells = make(Spells, len(c.Spells))
		for level, names := range c.Spells {
			out.Spells[level] = slices.Clone(names)
		}
	}
	return out
}
