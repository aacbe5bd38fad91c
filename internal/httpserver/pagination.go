package httpserver

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// BrowseCursor is the opaque position token returned by the browse endpoint.
// It encodes the last objectID seen and the offset into the matching set, so
// a subsequent browse call can resume without re-running ranking from page 1.
type BrowseCursor struct {
	LastObjectID string
	Offset       int
}

// EncodeCursor serializes a browse cursor to a URL-safe opaque string.
func EncodeCursor(c BrowseCursor) string {
	raw := fmt.Sprintf("%d:%s", c.Offset, c.LastObjectID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a cursor string back into its components.
func DecodeCursor(s string) (BrowseCursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return BrowseCursor{}, fmt.Errorf("decoding cursor: %w", err)
	}

	parts := strings.SplitN(string(raw), ":", 2)
	if len(parts) != 2 {
		return BrowseCursor{}, fmt.Errorf("invalid cursor format")
	}

	offset, err := strconv.Atoi(parts[0])
	if err != nil {
		return BrowseCursor{}, fmt.Errorf("invalid cursor offset: %w", err)
	}

	return BrowseCursor{Offset: offset, LastObjectID: parts[1]}, nil
}
