// Package catalog serves reference content cache-first, falling back to the
// reference API and populating the cache with what it fetched.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/TheTechChild/dnd-character-builder/internal/cache"
	"github.com/TheTechChild/dnd-character-builder/internal/category"
	"github.com/TheTechChild/dnd-character-builder/internal/reference"
)

type Service struct {
	client reference.Client
	cache  *cache.Cache
}

// NewService returns a Service. A nil cache is allowed and makes every call
// go to the network.
func NewService(client reference.Client, c *cache.Cache) *Service {
	return &Service{client: client, cache: c}
}

// Get returns one item, from the cache when present.
func (s *Service) Get(ctx context.Context, cat category.Category, slug string) (json.RawMessage, error) {
	if data, ok := s.cache.Get(cat, slug); ok {
		slog.Default().Debug("catalog cache hit", slog.String("category", string(cat)), slog.String("slug", slug))
		return data, nil
	}

	item, err := s.client.Get(ctx, cat, slug)
	if err != nil {
		return nil, fmt.Errorf("client.Get(%s, %s) > %w", cat, slug, err)
	}
	s.cache.Set(cat, slug, item)
	return item, nil
}

// List returns every item in a category. A non-empty cached category is
// returned as is, even when an earlier fetch was interrupted part way.
func (s *Service) List(ctx context.Context, cat category.Category) ([]json.RawMessage, error) {
	if cached := s.cache.GetByCategory(cat); len(cached) > 0 {
		slog.Default().Debug("catalog cache hit",
			slog.String("category", string(cat)),
			slog.Int("count", len(cached)),
		)
		return cached, nil
	}

	items, err := s.client.ListAll(ctx, cat)
	if err != nil {
		return nil, fmt.Errorf("client.ListAll(%s) > %w", cat, err)
	}
	for _, item := range items {
		slug, ok := reference.SlugOf(item)
		if !ok {
			continue
		}
		s.cache.Set(cat, slug, item)
	}
	return items, nil
}

// Search always queries the network; results are not cached.
func (s *Service) Search(ctx context.Context, cat category.Category, query string) ([]json.RawMessage, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < reference.MinSearchLength {
		return nil, reference.ErrQueryTooShort
	}
	items, err := s.client.Search(ctx, cat, query)
	if err != nil {
		return nil, fmt.Errorf("client.Search(%s, %q) > %w", cat, query, err)
	}
	return items, nil
}

// ToggleBookmark adds the bookmark if it is missing and removes it otherwise.
// It reports whether the item is bookmarked afterwards.
func (s *Service) ToggleBookmark(cat category.Category, slug, displayName string) bool {
	id := cache.BookmarkID(cat, slug)
	if s.cache.IsBookmarked(id) {
		s.cache.RemoveBookmark(id)
		return false
	}
	s.cache.AddBookmark(cache.Bookmark{
		DisplayName: displayName,
		Category:    cat,
		Slug:        slug,
	})
	return s.cache.IsBookmarked(id)
}

func (s *Service) Bookmarks() []cache.Bookmark {
	return s.cache.ListBookmarks()
}

func GetAs[T any](ctx context.Context, s *Service, cat category.Category, slug string) (T, error) {
	var zero T
	raw, err := s.Get(ctx, cat, slug)
	if err != nil {
		return zero, err
	}
	item, err := reference.Decode[T](raw)
	if err != nil {
		return zero, fmt.Errorf("reference.Decode(%s, %s) > %w", cat, slug, err)
	}
	return item, nil
}

func ListAs[T any](ctx context.Context, s *Service, cat category.Category) ([]T, error) {
	raws, err := s.List(ctx, cat)
	if err != nil {
		return nil, err
	}
	items, err := reference.DecodeAll[T](raws)
	if err != nil {
		return nil, fmt.Errorf("reference.DecodeAll(%s) > %w", cat, err)
	}
	return items, nil
}
