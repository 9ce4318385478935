package introspection

import (
	"strings"

	"github.com/jinzhu/inflection"
)

// RootFieldName returns the root query field name for a table.
func RootFieldName(table string) string {
	return strings.ToLower(table)
}

// TypeName returns the GraphQL object type name for a table.
func TypeName(table string) string {
	return PascalCase(table)
}

// Pluralize appends "s" unless the name already ends in one.
func Pluralize(name string) string {
	if strings.HasSuffix(name, "s") {
		return name
	}
	return name + "s"
}

// ForwardRelationName returns the field name on a table for the single row
// its FK points at: the referenced table's name in singular lowercase form.
func ForwardRelationName(referencedTable string) string {
	return strings.ToLower(inflection.Singular(referencedTable))
}

// ReverseRelationName returns the field name on a referenced table for the
// list of rows pointing back at it.
func ReverseRelationName(referencingTable string) string {
	return Pluralize(strings.ToLower(referencingTable))
}

// PascalCase converts snake_case to PascalCase. Segments already containing
// upper-case letters keep their casing.
func PascalCase(name string) string {
	parts := strings.Split(name, "_")
	var b strings.Builder
	for _, part := range parts {
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	return b.String()
}
