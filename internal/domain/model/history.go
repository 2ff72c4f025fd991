package model

// DefaultHistoryLimit is the number of query history entries retained.
const DefaultHistoryLimit = 5

// HistoryEntry records the outcome of one usage check.
type HistoryEntry struct {
	Timestamp string `json:"timestamp"`
	Success   bool   `json:"success"`
	Summary   string `json:"details"`
}

// PushHistory prepends entry and drops entries beyond limit from the tail.
// The input slice is not modified.
func PushHistory(entries []HistoryEntry, entry HistoryEntry, limit int) []HistoryEntry {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	out := make([]HistoryEntry, 0, min(len(entries)+1, limit))
	out = append(out, entry)
	for _, e := range entries {
		if len(out) == limit {
			break
		}
		out = append(out, e)
	}
	return out
}
