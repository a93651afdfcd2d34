package cache

import (
	"encoding/json"
	"log/slog"

	"github.com/TheTechChild/dnd-character-builder/internal/category"
)

// GetAs decodes a cached entry into T. Undecodable data counts as a miss.
func GetAs[T any](c *Cache, cat category.Category, slug string) (T, bool) {
	var out T
	raw, ok := c.Get(cat, slug)
	if !ok {
		return out, false
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		warn("failed to decode a cache entry", err,
			slog.String("category", string(cat)),
			slog.String("slug", slug),
		)
		var zero T
		return zero, false
	}
	return out, true
}

// ListAs decodes every non-expired entry of cat, skipping undecodable ones.
func ListAs[T any](c *Cache, cat category.Category) []T {
	raws := c.GetByCategory(cat)
	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		var item T
		if err := json.Unmarshal(raw, &item); err != nil {
			warn("failed to decode a cache entry", err, slog.String("category", string(cat)))
			continue
		}
		out = append(out, item)
	}
	return out
}
