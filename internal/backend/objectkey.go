package backend

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ObjectKey derives a storage key from the sanitized file name, the upload
// timestamp, and a random suffix. The suffix closes the collision window for
// two same-named uploads within one millisecond.
func ObjectKey(filename string) string {
	base := strings.ToLower(strings.TrimSpace(filepath.Base(filename)))
	if base == "" || base == "." {
		base = "upload"
	}
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return fmt.Sprintf("%d-%s-%s", time.Now().UnixMilli(), uuid.NewString()[:8], b.String())
}
