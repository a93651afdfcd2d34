package importer

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/pflag"
)

// Resolution is the outcome chosen for one import conflict.
type Resolution string

const (
	Replace   Resolution = "replace"
	Duplicate Resolution = "duplicate"
	Skip      Resolution = "skip"
	Merge     Resolution = "merge"
)

// Resolutions lists every resolution in prompt order.
var Resolutions = []Resolution{Replace, Duplicate, Skip, Merge}

var (
	ErrInvalidResolution    = errors.New("invalid resolution")
	ErrInvalidMergeStrategy = errors.New("invalid merge strategy")

	_ pflag.Value = (*Resolution)(nil)
	_ pflag.Value = (*MergeStrategy)(nil)
)

func ParseResolution(s string) (Resolution, error) {
	normalized := Resolution(strings.ToLower(strings.TrimSpace(s)))
	for _, r := range Resolutions {
		if r == normalized {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q (want one of replace, duplicate, skip, merge)", ErrInvalidResolution, s)
}

// ResolutionFromExternal converts a resolution read from a file, a flag or
// the config. Unknown values become Skip.
func ResolutionFromExternal(s string) Resolution {
	r, err := ParseResolution(s)
	if err != nil {
		slog.Default().Warn("unknown resolution treated as skip",
			slog.String("resolution", s),
		)
		return Skip
	}
	return r
}

func (r Resolution) Valid() bool {
	_, err := ParseResolution(string(r))
	return err == nil
}

func (r Resolution) String() string {
	return string(r)
}

func (r *Resolution) Set(s string) error {
	parsed, err := ParseResolution(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func (r *Resolution) Type() string {
	return "resolution"
}

// MergeStrategy picks which side of a merge is the base.
type MergeStrategy string

const (
	PreferImported MergeStrategy = "preferImported"
	PreferExisting MergeStrategy = "preferExisting"
	Newest         MergeStrategy = "newest"
)

var MergeStrategies = []MergeStrategy{PreferImported, PreferExisting, Newest}

func ParseMergeStrategy(s string) (MergeStrategy, error) {
	trimmed := strings.TrimSpace(s)
	for _, m := range MergeStrategies {
		if strings.EqualFold(string(m), trimmed) {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q (want one of preferImported, preferExisting, newest)", ErrInvalidMergeStrategy, s)
}

func (m MergeStrategy) String() string {
	return string(m)
}

func (m *MergeStrategy) Set(s string) error {
	parsed, err := ParseMergeStrategy(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func (m *MergeStrategy) Type() string {
	return "strategy"
}
