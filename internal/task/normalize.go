package task

import "strings"

// NormalizeID canonicalizes a raw task identifier. Any run of leading '#'
// characters is stripped and a single '#' is re-applied, so "1", "#1" and
// "##1" all normalize to "#1". The second return value is false when the
// raw value is empty or whitespace-only, meaning the task has no id.
func NormalizeID(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimLeft(trimmed, "#")
	trimmed = strings.TrimSpace(trimmed)
	if trimmed == "" {
		return "", false
	}
	return "#" + trimmed, true
}

// normalizeBlockers normalizes and deduplicates a blocker list, dropping
// entries with no usable id. Order of first occurrence is preserved.
func normalizeBlockers(blockedBy []string) []string {
	if len(blockedBy) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(blockedBy))
	out := make([]string, 0, len(blockedBy))
	for _, raw := range blockedBy {
		id, ok := NormalizeID(raw)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
