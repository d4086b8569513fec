package pagination

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

const (
	// DefaultLimit is the standard page size when a limit is not provided.
	DefaultLimit = 25
	// MaxLimit caps how many rows any page can request.
	MaxLimit = 100

	cursorPrefix = "off:"
)

// Params holds cursor pagination inputs from controllers or services.
type Params struct {
	Limit  int
	Cursor string
}

// Page describes one window over an ordered result set.
type Page struct {
	Offset int
	Limit  int
}

// NormalizeLimit enforces the configured default and maximum limits.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// EncodeCursor builds an opaque cursor pointing at offset.
func EncodeCursor(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(cursorPrefix + strconv.Itoa(offset)))
}

// ParseCursor decodes a cursor back into its offset. An empty cursor is offset 0.
func ParseCursor(value string) (int, error) {
	if strings.TrimSpace(value) == "" {
		return 0, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return 0, fmt.Errorf("decode cursor: %w", err)
	}
	raw, ok := strings.CutPrefix(string(decoded), cursorPrefix)
	if !ok {
		return 0, fmt.Errorf("invalid cursor format")
	}
	offset, err := strconv.Atoi(raw)
	if err != nil || offset < 0 {
		return 0, fmt.Errorf("invalid cursor offset")
	}
	return offset, nil
}

// Resolve validates params and returns the requested page.
func Resolve(params Params) (Page, error) {
	offset, err := ParseCursor(params.Cursor)
	if err != nil {
		return Page{}, err
	}
	return Page{Offset: offset, Limit: NormalizeLimit(params.Limit)}, nil
}

// Window returns the [start, end) bounds of page over total items and the
// cursor for the following page, empty when none remains.
func Window(page Page, total int) (start, end int, next string) {
	start = page.Offset
	if start > total {
		start = total
	}
	end = start + page.Limit
	if end > total {
		end = total
	}
	if end < total {
		next = EncodeCursor(end)
	}
	return start, end, next
}
