package ledger

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Record is one decoded spreadsheet row.
type Record map[string]any

// Field returns the cell as a string. Missing cells are empty.
func (r Record) Field(name string) string {
	v, ok := r[name]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// clone returns a shallow copy.
func (r Record) clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func decodeRecords(data []byte) ([]Record, error) {
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

// decodeResponse decodes a write response. Non-object JSON is returned under
// "result"; an empty body yields an empty map.
func decodeResponse(data []byte) (map[string]any, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return map[string]any{}, nil
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if m, ok := v.(map[string]any); ok {
		return m, nil
	}
	return map[string]any{"result": v}, nil
}
