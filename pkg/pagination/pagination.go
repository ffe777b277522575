// Package pagination implements keyset paging over (created_at, id) for the
// newest-first listings. Cursors are opaque URL-safe tokens.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

var ErrInvalidCursor = errors.New("invalid cursor")

// Page is one slice of a listing. NextCursor is empty on the last page.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// Cursor marks the last row a client has seen.
type Cursor struct {
	CreatedAt time.Time `json:"t"`
	ID        uuid.UUID `json:"id"`
}

func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// LimitWithBuffer asks the store for one row past the page so Slice can tell
// whether another page follows.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

func EncodeCursor(cursor Cursor) string {
	cursor.CreatedAt = cursor.CreatedAt.UTC()
	raw, err := json.Marshal(cursor)
	if err != nil {
		// A time and a uuid always marshal.
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

// ParseCursor returns nil for a blank token. Malformed tokens wrap
// ErrInvalidCursor.
func ParseCursor(token string) (*Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	var cursor Cursor
	if err := json.Unmarshal(raw, &cursor); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if cursor.ID == uuid.Nil || cursor.CreatedAt.IsZero() {
		return nil, fmt.Errorf("%w: incomplete position", ErrInvalidCursor)
	}
	return &cursor, nil
}

// Slice trims rows fetched with LimitWithBuffer to the page size. The next
// cursor points at the last row kept.
func Slice[T any](rows []T, limit int, cursorOf func(T) Cursor) Page[T] {
	limit = NormalizeLimit(limit)
	page := Page[T]{Items: rows}
	if len(rows) > limit {
		page.Items = rows[:limit]
		page.NextCursor = EncodeCursor(cursorOf(page.Items[limit-1]))
	}
	if page.Items == nil {
		page.Items = []T{}
	}
	return page
}

// Map converts page items, keeping the cursor.
func Map[T, U any](page *Page[T], fn func(T) U) Page[U] {
	out := Page[U]{Items: []U{}}
	if page == nil {
		return out
	}
	out.NextCursor = page.NextCursor
	for _, item := range page.Items {
		out.Items = append(out.Items, fn(item))
	}
	return out
}
