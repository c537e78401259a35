package common

import (
	"fmt"
	"strconv"
	"strings"
)

// IDList renders ids as a parenthesized list for SQL "in" clauses.
// Safe to interpolate: the values are integers, never user text.
func IDList(ids []int64) string {
	if len(ids) == 0 {
		return "()"
	}
	var b strings.Builder
	b.WriteByte('(')
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(id, 10))
	}
	b.WriteByte(')')
	return b.String()
}

// Plural is a tiny helper for CLI output.
func Plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
