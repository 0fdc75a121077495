package catalog

import (
	"strings"

	"github.com/maruel/songdb/internal/models"
)

// Filter maps a searchable field name to a substring. Unknown field names are
// ignored.
type Filter map[string]string

// matcher is a compiled Filter: lower-cased needles for known fields only.
type matcher []term

type term struct {
	field  string
	needle string
}

func (f Filter) compile() matcher {
	var m matcher
	for _, field := range models.SearchableFields {
		if v, ok := f[field]; ok {
			m = append(m, term{field: field, needle: strings.ToLower(v)})
		}
	}
	return m
}

// match reports whether every term is a case-insensitive substring of its
// field. An empty matcher matches everything.
func (m matcher) match(s *models.Song) bool {
	for _, t := range m {
		v, _ := s.Field(t.field)
		if !strings.Contains(strings.ToLower(v), t.needle) {
			return false
		}
	}
	return true
}
