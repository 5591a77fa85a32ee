// Package schema resolves classifier category names to category ids and to
// the detail storage strategy used for their extracted fields.
package schema

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/utility-bills/internal/model"
)

// Sanitize reduces a category name to the identifier alphabet
// [a-z0-9_]. Accents are folded first ("Água" becomes "agua") and every
// other character outside the alphabet is dropped.
func Sanitize(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	for _, r := range strings.ToLower(folded) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// DetailTableName returns the dedicated detail table name for a category.
func DetailTableName(category string) string {
	safe := Sanitize(category)
	if safe == "" {
		return ""
	}
	return safe + model.DetailTableSuffix
}
