// Package category defines the fixed partitions of reference content.
package category

import (
	"errors"
	"fmt"

	"github.com/spf13/pflag"
)

// Category is a closed set of reference content partitions.
type Category string

const (
	Spells     Category = "spells"
	Classes    Category = "classes"
	Races      Category = "races"
	Equipment  Category = "equipment"
	Conditions Category = "conditions"
	MagicItems Category = "magicitems"
	Monsters   Category = "monsters"
)

var (
	ErrUnknownCategory = errors.New("unknown category")

	_   pflag.Value = (*Category)(nil)
	all             = []Category{Spells, Classes, Races, Equipment, Conditions, MagicItems, Monsters}
)

// All returns every category in a stable order.
func All() []Category {
	out := make([]Category, len(all))
	copy(out, all)
	return out
}

// Parse converts a raw string into a Category.
func Parse(s string) (Category, error) {
	for _, c := range all {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q (possible values are %v)", ErrUnknownCategory, s, all)
}

func (c Category) Valid() bool {
	_, err := Parse(string(c))
	return err == nil
}

func (c Category) String() string {
	return string(c)
}

func (c *Category) Set(val string) error {
	parsed, err := Parse(val)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func (c *Category) Type() string {
	return "category"
}
