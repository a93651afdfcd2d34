package cache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	bolt "go.etcd.io/bbolt"

	"github.com/TheTechChild/dnd-character-builder/internal/category"
)

// Bookmark marks a reference item. Bookmarks have no TTL and do not count
// against the size budget.
type Bookmark struct {
	ID          string            `json:"id"`
	DisplayName string            `json:"displayName"`
	Category    category.Category `json:"category"`
	Slug        string            `json:"slug"`
	Timestamp   int64             `json:"timestamp"`
}

// BookmarkID is the id used for the bookmark of a reference item.
func BookmarkID(cat category.Category, slug string) string {
	return string(cat) + "-" + slug
}

// AddBookmark stores b, replacing any bookmark with the same id. An empty id
// or timestamp is filled in.
func (c *Cache) AddBookmark(b Bookmark) {
	if c == nil || c.db == nil {
		return
	}
	if b.ID == "" {
		b.ID = BookmarkID(b.Category, b.Slug)
	}
	if b.Timestamp == 0 {
		b.Timestamp = c.now().UnixMilli()
	}
	buf, err := json.Marshal(b)
	if err != nil {
		warn("failed to serialize a bookmark", err, slog.String("id", b.ID))
		return
	}
	if err := c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bookmarkBucket).Put([]byte(b.ID), buf)
	}); err != nil {
		warn("failed to write a bookmark", err, slog.String("id", b.ID))
	}
}

func (c *Cache) RemoveBookmark(id string) {
	if c == nil || c.db == nil {
		return
	}
	if err := c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bookmarkBucket).Delete([]byte(id))
	}); err != nil {
		warn("failed to delete a bookmark", err, slog.String("id", id))
	}
}

func (c *Cache) IsBookmarked(id string) bool {
	if c == nil || c.db == nil {
		return false
	}
	var found bool
	if err := c.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bookmarkBucket).Get([]byte(id)) != nil
		return nil
	}); err != nil {
		warn("failed to read a bookmark", err, slog.String("id", id))
		return false
	}
	return found
}

// ListBookmarks returns all bookmarks, newest first.
func (c *Cache) ListBookmarks() []Bookmark {
	if c == nil || c.db == nil {
		return nil
	}
	var out []Bookmark
	if err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bookmarkBucket).ForEach(func(k, v []byte) error {
			var b Bookmark
			if err := json.Unmarshal(v, &b); err != nil {
				return fmt.Errorf("json.Unmarshal(%s) > %w", k, err)
			}
			out = append(out, b)
			return nil
		})
	}); err != nil {
		warn("failed to list bookmarks", err)
		return nil
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp > out[j].Timestamp
		}
		return out[i].ID < out[j].ID
	})
	return out
}
