package remote

import (
	"encoding/json"
	"fmt"
)

// ToRecord converts a typed entity into the generic row shape the remote
// store accepts, via its JSON form.
func ToRecord(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	var record map[string]any
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return record, nil
}

// FromRecord converts a generic row into a typed entity.
func FromRecord[T any](record map[string]any) (T, error) {
	var v T
	raw, err := json.Marshal(record)
	if err != nil {
		return v, fmt.Errorf("failed to encode row: %w", err)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("failed to decode row: %w", err)
	}
	return v, nil
}

// FromRecords converts a slice of generic rows into typed entities. Rows that
// fail to decode are skipped rather than failing the whole fetch.
func FromRecords[T any](records []map[string]any) []T {
	out := make([]T, 0, len(records))
	for _, record := range records {
		v, err := FromRecord[T](record)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}
