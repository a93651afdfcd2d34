package reference

import (
	"encoding/json"
	"fmt"
)

// Summary holds the fields every catalog item carries.
type Summary struct {
	Slug         string `json:"slug" yaml:"slug"`
	Name         string `json:"name" yaml:"name"`
	Desc         string `json:"desc,omitempty" yaml:"desc,omitempty"`
	DocumentSlug string `json:"document__slug,omitempty" yaml:"document_slug,omitempty"`
}

type Spell struct {
	Summary
	HigherLevel   string `json:"higher_level,omitempty"`
	Range         string `json:"range,omitempty"`
	Components    string `json:"components,omitempty"`
	Material      string `json:"material,omitempty"`
	Ritual        string `json:"ritual,omitempty"`
	Duration      string `json:"duration,omitempty"`
	Concentration string `json:"concentration,omitempty"`
	CastingTime   string `json:"casting_time,omitempty"`
	Level         string `json:"level,omitempty"`
	LevelInt      int    `json:"level_int"`
	School        string `json:"school,omitempty"`
	DndClass      string `json:"dnd_class,omitempty"`
}

type Class struct {
	Summary
	HitDice             string `json:"hit_dice,omitempty"`
	ProfArmor           string `json:"prof_armor,omitempty"`
	ProfWeapons         string `json:"prof_weapons,omitempty"`
	ProfSavingThrows    string `json:"prof_saving_throws,omitempty"`
	ProfSkills          string `json:"prof_skills,omitempty"`
	Equipment           string `json:"equipment,omitempty"`
	SpellcastingAbility string `json:"spellcasting_ability,omitempty"`
}

type Race struct {
	Summary
	AbilityScoreIncrease string         `json:"asi_desc,omitempty"`
	Age                  string         `json:"age,omitempty"`
	Alignment            string         `json:"alignment,omitempty"`
	Size                 string         `json:"size,omitempty"`
	Speed                map[string]int `json:"speed,omitempty"`
	Languages            string         `json:"languages,omitempty"`
	Vision               string         `json:"vision,omitempty"`
	Traits               string         `json:"traits,omitempty"`
}

type Equipment struct {
	Summary
	Category   string   `json:"category,omitempty"`
	Cost       string   `json:"cost,omitempty"`
	DamageDice string   `json:"damage_dice,omitempty"`
	DamageType string   `json:"damage_type,omitempty"`
	Weight     string   `json:"weight,omitempty"`
	Properties []string `json:"properties,omitempty"`
}

type Condition struct {
	Summary
}

type MagicItem struct {
	Summary
	Type               string `json:"type,omitempty"`
	Rarity             string `json:"rarity,omitempty"`
	RequiresAttunement string `json:"requires_attunement,omitempty"`
}

type Monster struct {
	Summary
	Size            string `json:"size,omitempty"`
	Type            string `json:"type,omitempty"`
	Alignment       string `json:"alignment,omitempty"`
	ArmorClass      int    `json:"armor_class"`
	HitPoints       int    `json:"hit_points"`
	HitDice         string `json:"hit_dice,omitempty"`
	ChallengeRating string `json:"challenge_rating,omitempty"`
	Strength        int    `json:"strength"`
	Dexterity       int    `json:"dexterity"`
	Constitution    int    `json:"constitution"`
	Intelligence    int    `json:"intelligence"`
	Wisdom          int    `json:"wisdom"`
	Charisma        int    `json:"charisma"`
}

// Decode converts a raw catalog item into T.
func Decode[T any](raw json.RawMessage) (T, error) {
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("json.Unmarshal > %w", err)
	}
	return out, nil
}

func DecodeAll[T any](raws []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(raws))
	for i, raw := range raws {
		item, err := Decode[T](raw)
		if err != nil {
			return nil, fmt.Errorf("item %d > %w", i, err)
		}
		out = append(out, item)
	}
	return out, nil
}

// SlugOf returns the slug of a raw item, if it has one.
func SlugOf(raw json.RawMessage) (string, bool) {
	var s struct {
		Slug string `json:"slug"`
	}
	if err := json.Unmarshal(raw, &s); err != nil || s.Slug == "" {
		return "", false
	}
	return s.Slug, true
}
