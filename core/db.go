package core

import (
	"sort"
	"strings"
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// OrderingClause renders orderings as a SQL ORDER BY list, keeping only allowed fields.
func OrderingClause(orderings []DBOrdering, allowed ...string) string {
	allowed = append([]string(nil), allowed...)
	sort.Strings(allowed)
	list := make([]string, 0, len(orderings))
	for _, ord := range orderings {
		if i := sort.SearchStrings(allowed, ord.Field); i < len(allowed) && allowed[i] == ord.Field {
			list = append(list, ord.String())
		}
	}
	return strings.Join(list, ", ")
}
