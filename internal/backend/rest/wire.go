package rest

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"taskboard/internal/model"
)

// wireTask mirrors a task row as the table API serializes it.
type wireTask struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	ImageURL    string   `json:"image_url"`
	CreatedBy   string   `json:"created_by"`
	CreatedAt   wireTime `json:"created_at"`
}

func (w wireTask) task() model.Task {
	return model.Task{
		ID:          w.ID,
		Title:       w.Title,
		Description: w.Description,
		ImageURL:    w.ImageURL,
		CreatedBy:   w.CreatedBy,
		CreatedAt:   w.CreatedAt.Time,
	}
}

// decodeRows handles both shapes the table API produces: a bare object for
// single-row responses and an array otherwise.
func decodeRows(b []byte) ([]wireTask, error) {
	trimmed := strings.TrimSpace(string(b))
	if strings.HasPrefix(trimmed, "{") {
		var one wireTask
		if err := json.Unmarshal(b, &one); err != nil {
			return nil, fmt.Errorf("rest: decode row: %w", err)
		}
		return []wireTask{one}, nil
	}
	var rows []wireTask
	if err := json.Unmarshal(b, &rows); err != nil {
		return nil, fmt.Errorf("rest: decode rows: %w", err)
	}
	return rows, nil
}

// wireTime tolerates the timestamp shapes the backend emits: RFC3339 with a
// zone from the REST surface, and zone-less microsecond timestamps from the
// realtime feed. Zone-less values are UTC.
type wireTime struct {
	time.Time
}

var wireTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

func (t *wireTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range wireTimeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("rest: unrecognized timestamp %q", s)
}
