// Package textclean turns provider HTML snippets into plain text and lays
// out ingredient and instruction lists the way recipes are stored locally.
package textclean

import (
	"html"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	// blockTagPattern matches tags that separate words when rendered.
	blockTagPattern = regexp.MustCompile(`(?i)</?(?:br|p|li|div|ul|ol|tr|td|h[1-6])\b[^>]*>`)
	// tagPattern only matches tag-shaped markup, so "5 < 10 and 20 > 3"
	// survives.
	tagPattern        = regexp.MustCompile(`</?[A-Za-z!][^>]*>`)
	whitespacePattern = regexp.MustCompile(`[\s\p{Zs}]+`)
)

// Clean unescapes HTML entities, removes every tag, collapses runs of
// whitespace to one space, and trims. Block tags become a space; inline
// tags vanish, so "<b>onion</b>." stays "onion.".
//
// One pass is not enough: "&lt;b&gt;" unescapes into a tag that the same
// pass has already stripped past. Clean repeats until the output stops
// changing, so Clean(Clean(s)) == Clean(s). A pass that changes its input
// never makes it longer, so the loop ends.
func Clean(s string) string {
	for {
		next := cleanOnce(s)
		if next == s {
			return next
		}
		s = next
	}
}

func cleanOnce(s string) string {
	s = html.UnescapeString(s)
	s = blockTagPattern.ReplaceAllString(s, " ")
	s = tagPattern.ReplaceAllString(s, "")
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Truncate cuts s to at most n runes. It never splits a multi-byte
// character.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// Ingredient is one line of an ingredient list.
type Ingredient struct {
	Amount float64
	Unit   string
	Name   string
	// Original is the provider's free-text line, used when Name is empty.
	Original string
}

// Bullet is the prefix for each stored ingredient line.
const Bullet = "•"

// FormatIngredients renders one "• {amount} {unit} {name}" line per
// ingredient, joined with newlines. Empty parts are left out; a zero amount
// counts as empty.
func FormatIngredients(items []Ingredient) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		parts := []string{Bullet}
		if item.Amount != 0 {
			parts = append(parts, FormatAmount(item.Amount))
		}
		if unit := Clean(item.Unit); unit != "" {
			parts = append(parts, unit)
		}
		name := Clean(item.Name)
		if name == "" {
			name = Clean(item.Original)
		}
		if name != "" {
			parts = append(parts, name)
		}
		lines = append(lines, strings.Join(parts, " "))
	}
	return strings.Join(lines, "\n")
}

// FormatAmount prints a quantity without trailing zeros: 2, 0.5, 1.25.
func FormatAmount(a float64) string {
	return strconv.FormatFloat(a, 'f', -1, 64)
}

// FormatSteps numbers each step "{i}. {text}" starting at 1, joined with
// newlines. Steps that clean to nothing are skipped and do not consume a
// number.
func FormatSteps(steps []string) string {
	lines := make([]string, 0, len(steps))
	n := 0
	for _, step := range steps {
		text := Clean(step)
		if text == "" {
			continue
		}
		n++
		lines = append(lines, strconv.Itoa(n)+". "+text)
	}
	return strings.Join(lines, "\n")
}
