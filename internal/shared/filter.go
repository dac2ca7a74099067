package shared

import (
	"fmt"
	"strings"
)

// Filter composes SQL predicates from an explicit list of searchable
// field paths. Paths may reference joined relations ("p.name") as long
// as the final query provides the join; nothing is resolved at runtime.
type Filter struct {
	clauses []string
	args    []any
}

// NewFilter returns an empty filter.
func NewFilter() *Filter {
	return &Filter{}
}

// Equal adds an equality predicate. Nil values are skipped so callers
// can pass optional parameters straight through.
func (f *Filter) Equal(path string, value any) *Filter {
	if value == nil {
		return f
	}
	f.args = append(f.args, value)
	f.clauses = append(f.clauses, fmt.Sprintf("%s = $%d", path, len(f.args)))
	return f
}

// Between adds a closed range predicate; either bound may be nil.
func (f *Filter) Between(path string, from, to any) *Filter {
	if from != nil {
		f.args = append(f.args, from)
		f.clauses = append(f.clauses, fmt.Sprintf("%s >= $%d", path, len(f.args)))
	}
	if to != nil {
		f.args = append(f.args, to)
		f.clauses = append(f.clauses, fmt.Sprintf("%s <= $%d", path, len(f.args)))
	}
	return f
}

// Search adds a case-insensitive term match across every given path,
// combined with OR. Empty terms and empty path lists are skipped.
func (f *Filter) Search(paths []string, term string) *Filter {
	if term == "" || len(paths) == 0 {
		return f
	}
	f.args = append(f.args, "%"+term+"%")
	n := len(f.args)
	parts := make([]string, 0, len(paths))
	for _, p := range paths {
		parts = append(parts, fmt.Sprintf("%s ILIKE $%d", p, n))
	}
	f.clauses = append(f.clauses, "("+strings.Join(parts, " OR ")+")")
	return f
}

// Where renders the predicate list as a WHERE clause, or an empty
// string when no predicate was added. Arguments are numbered from $1.
func (f *Filter) Where() (string, []any) {
	if len(f.clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(f.clauses, " AND "), f.args
}

// NextArg returns the positional index the next query argument should
// use when the caller appends its own fragments (LIMIT/OFFSET).
func (f *Filter) NextArg() int {
	return len(f.args) + 1
}

// Args exposes the accumulated argument list.
func (f *Filter) Args() []any {
	return f.args
}
