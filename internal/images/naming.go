package images

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Object keys carry no file extension. A rendition key is
// "<base>-<pixel width>", so the width a blob was rendered at is always
// recoverable from its key alone.

// NewBaseKey returns a fresh base key shared by all renditions of one upload.
func NewBaseKey() string {
	return uuid.NewString()
}

// VariantKey derives the object key of a rendition at the given pixel width.
func VariantKey(baseKey string, width int) string {
	return fmt.Sprintf("%s-%d", baseKey, width)
}

// StagingKey returns the key a raw upload is parked under until the
// background worker picks it up.
func StagingKey() string {
	return "staging/" + uuid.NewString()
}

// WidthToken extracts the width suffix of a rendition key. The token is
// returned verbatim; callers that need a number parse it themselves.
func WidthToken(key string) string {
	if i := strings.LastIndex(key, "-"); i >= 0 {
		return key[i+1:]
	}
	return key
}
