// Package slug provides URL-friendly, collision-free slug generation from
// content titles.
package slug

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/oklog/ulid/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	// nonAlphanumeric matches anything that isn't a letter, digit, space,
	// or hyphen after normalization.
	nonAlphanumeric = regexp.MustCompile(`[^a-z0-9\s-]`)
	// multipleHyphens collapses consecutive hyphens into one.
	multipleHyphens = regexp.MustCompile(`-{2,}`)

	// stripMarks removes combining marks left over after NFD
	// decomposition, turning "Café" into "Cafe".
	stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// Normalize creates a URL-friendly slug base from the given string.
// Example: "Héllo, World! 2026" → "hello-world-2026"
func Normalize(s string) string {
	result := strings.ToLower(strings.TrimSpace(s))
	if folded, _, err := transform.String(stripMarks, result); err == nil {
		result = folded
	}
	result = nonAlphanumeric.ReplaceAllString(result, "")
	result = strings.Join(strings.Fields(result), "-")
	result = multipleHyphens.ReplaceAllString(result, "-")
	return strings.Trim(result, "-")
}

// Make returns a unique slug for the given title: the normalized title plus
// a ULID suffix. ULIDs are generated from monotonic entropy, so concurrent
// calls with identical titles in the same millisecond still yield distinct
// slugs — a plain wall-clock suffix cannot promise that. The repository's
// unique index on slug remains the final arbiter.
func Make(title string) string {
	suffix := strings.ToLower(ulid.Make().String())
	base := Normalize(title)
	if base == "" {
		return suffix
	}
	return base + "-" + suffix
}
