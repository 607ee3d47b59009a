// Package order holds the order identifier rules: normalisation, the advisory
// format check, parsing operator input and detecting identifiers on a page.
package order

import (
	"regexp"
	"strings"
)

// Identifiers are a YYMMDD date prefix followed by alphanumerics.
var pattern = regexp.MustCompile(`^\d{6}[A-Z0-9]+$`)

// Normalize trims and upper-cases an identifier.
func Normalize(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// Validate reports whether id looks like an order identifier. Letter case is
// ignored. A false result is a warning, callers must not drop the id for it.
func Validate(id string) bool {
	return pattern.MatchString(strings.ToUpper(id))
}

// Classify splits ids into conforming and suspicious ones, keeping input order.
func Classify(ids []string) (conforming, suspicious []string) {
	for _, id := range ids {
		if Validate(id) {
			conforming = append(conforming, id)
		} else {
			suspicious = append(suspicious, id)
		}
	}
	return conforming, suspicious
}

// Unique normalises ids, drops blanks and repeats, and keeps first-seen order.
func Unique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, raw := range ids {
		id := Normalize(raw)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// ParseList splits pasted operator input on commas, newlines and semicolons.
func ParseList(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r' || r == ';'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if s := strings.TrimSpace(f); s != "" {
			out = append(out, s)
		}
	}
	return out
}
