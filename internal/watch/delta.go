package watch

import (
	"fmt"
	"strings"
)

// Change describes how one counter moved between two consecutive runs.
type Change struct {
	// Field is read, written, excluded or skipped.
	Field string
	From  int
	To    int
}

// Delta compares two run results and returns the counters that moved.
func Delta(prev, curr *RunResult) []Change {
	if prev == nil || curr == nil {
		return nil
	}

	pairs := []struct {
		field    string
		from, to int
	}{
		{"read", prev.Read, curr.Read},
		{"written", prev.Written, curr.Written},
		{"excluded", prev.Excluded, curr.Excluded},
		{"skipped", prev.Skipped, curr.Skipped},
	}

	var changes []Change

	for _, p := range pairs {
		if p.from != p.to {
			changes = append(changes, Change{Field: p.field, From: p.from, To: p.to})
		}
	}

	return changes
}

// DeltaSummary returns a compact human-readable summary of changes.
func DeltaSummary(changes []Change) string {
	if len(changes) == 0 {
		return "no count changes"
	}

	parts := make([]string, 0, len(changes))

	for _, c := range changes {
		parts = append(parts, fmt.Sprintf("%s %d→%d (%+d)", c.Field, c.From, c.To, c.To-c.From))
	}

	return strings.Join(parts, ", ")
}
