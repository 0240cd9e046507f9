package inmemdb

import (
	"sort"
	"strings"
	"time"

	"github.com/trezcool/afya/core"
)

// comparator returns <0, 0 or >0 when a sorts before, with or after b.
type comparator[T any] func(a, b T) int

func compareStrings(a, b string) int { return strings.Compare(strings.ToLower(a), strings.ToLower(b)) }

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

func compareBools(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}

// sortRows sorts rows by orderings, ignoring unknown fields; fallback applies when none is usable.
func sortRows[T any](rows []T, orderings []core.DBOrdering, fields map[string]comparator[T], fallback ...core.DBOrdering) {
	usable := make([]core.DBOrdering, 0, len(orderings))
	for _, ord := range orderings {
		if _, ok := fields[ord.Field]; ok {
			usable = append(usable, ord)
		}
	}
	if len(usable) == 0 {
		usable = fallback
	}
	if len(usable) == 0 {
		return
	}

	sort.SliceStable(rows, func(i, j int) bool {
		for _, ord := range usable {
			c := fields[ord.Field](rows[i], rows[j])
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
}
