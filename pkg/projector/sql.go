package projector

import (
	"sort"
	"strings"
)

// orderedPairs sorts a Delta's Data/Where map by column name so the
// generated SQL (and its bound arguments) is deterministic across runs
// — important since deltas may be logged or diffed in tests.
func orderedPairs(m map[string]any) (cols []string, args []any) {
	if len(m) == 0 {
		return nil, nil
	}
	cols = make([]string, 0, len(m))
	for k := range m {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	args = make([]any, len(cols))
	for i, c := range cols {
		args[i] = m[c]
	}
	return cols, args
}

func joinCols(cols []string) string {
	return strings.Join(cols, ", ")
}

func placeholderList(n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = "?"
	}
	return strings.Join(ph, ", ")
}
