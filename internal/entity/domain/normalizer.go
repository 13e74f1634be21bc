package domain

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// namePrefixes are honorific/title tokens trimmed from the front of a name.
// Spanish forms are listed without diacritics because stripping runs first.
var namePrefixes = map[string]struct{}{
	"mr":   {},
	"mrs":  {},
	"ms":   {},
	"dr":   {},
	"prof": {},
	"don":  {},
	"dona": {},
	"sr":   {},
	"sra":  {},
	"srta": {},
	"lic":  {},
	"gral": {},
}

// nameSuffixes are generational tokens trimmed from the end of a name.
var nameSuffixes = map[string]struct{}{
	"jr":  {},
	"sr":  {},
	"ii":  {},
	"iii": {},
	"iv":  {},
}

// diacriticStripper decomposes to NFD, removes combining marks and
// recomposes, so "Nicolás" and "Nicolas" normalize identically.
var diacriticStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize reduces a raw name to its comparison-stable form: diacritics
// stripped, case folded, whitespace collapsed, honorific tokens trimmed.
// Pure and deterministic; empty input yields the empty string and callers
// reject it before matching.
func Normalize(raw string) string {
	stripped, _, err := transform.String(diacriticStripper, raw)
	if err != nil {
		// Malformed UTF-8; fall back to the raw bytes.
		stripped = raw
	}

	lowered := strings.ToLower(stripped)

	tokens := strings.Fields(lowered)
	for len(tokens) > 1 {
		if _, ok := namePrefixes[strings.TrimRight(tokens[0], ".")]; !ok {
			break
		}
		tokens = tokens[1:]
	}
	for len(tokens) > 1 {
		last := strings.TrimRight(tokens[len(tokens)-1], ".")
		if _, ok := nameSuffixes[last]; !ok {
			break
		}
		tokens = tokens[:len(tokens)-1]
	}

	return strings.Join(tokens, " ")
}
