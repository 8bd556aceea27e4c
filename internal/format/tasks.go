package format

import (
	"fmt"
	"io"
	"strings"

	"taskboard/internal/model"
)

// FormatTaskLine writes one task line for text listings.
// Format: "{ID:>4}  {TITLE}  ({CREATED_BY})"
func FormatTaskLine(w io.Writer, t model.Task) {
	title := normalizeTitle(t.Title)
	if t.CreatedBy != "" {
		fmt.Fprintf(w, "%4d  %s  (%s)\n", t.ID, title, t.CreatedBy)
		return
	}
	fmt.Fprintf(w, "%4d  %s\n", t.ID, title)
}

// normalizeTitle normalizes a task title for display.
// - Empty or whitespace-only titles become "(untitled)"
// - Newlines are replaced with spaces
func normalizeTitle(title string) string {
	title = strings.ReplaceAll(title, "\r", " ")
	title = strings.ReplaceAll(title, "\n", " ")
	if strings.TrimSpace(title) == "" {
		return "(untitled)"
	}
	return title
}
