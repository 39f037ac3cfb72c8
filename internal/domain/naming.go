package domain

import (
	"fmt"
	"regexp"
	"strings"
)

var reNoIdent = regexp.MustCompile(`\W+`)

// AssignFieldNames derives each field's stable machine key from its label:
// lower-cased, non-word runs collapsed to underscores, duplicates suffixed
// with __n in field order. Persistence layers call this on every save so
// names always reflect the current labels.
func AssignFieldNames(fields []*Field) {
	names := make([]string, len(fields))
	for i, f := range fields {
		name := strings.ToLower(f.Label)
		name = reNoIdent.ReplaceAllLiteralString(name, " ")
		name = strings.Join(strings.Fields(name), "_")

		n := 0
		for _, prev := range names[:i] {
			if prev == name {
				n++
			}
		}
		names[i] = name
		if n > 0 {
			name = fmt.Sprintf("%s__%d", name, n)
		}
		f.Name = name
	}
}
