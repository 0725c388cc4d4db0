// Package resolve derives canonical contractor names and scores name similarity.
package resolve

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// legalSuffixRe matches one trailing legal entity suffix, optionally preceded
// by a comma or period and optionally followed by a period. The suffix must
// be separated from the rest of the name, so a bare "LLC" is left alone.
var legalSuffixRe = regexp.MustCompile(`[\s,.]+(INCORPORATED|CORPORATION|COMPANY|LIMITED|CORP|INC|LLC|LTD|CO)\.?$`)

var multiSpaceRe = regexp.MustCompile(`\s+`)

var punctReplacer = strings.NewReplacer(
	"&", "AND",
	"-", " ",
	"/", " ",
)

// NormalizeName standardizes a contractor display name into the canonical
// dedup key by:
//  1. Folding diacritics (NESTLÉ -> NESTLE)
//  2. Converting to uppercase and collapsing whitespace
//  3. Removing one trailing legal suffix (Inc, LLC, Corp, Co, Company, ...)
//  4. Removing a leading "THE "
//  5. Stripping punctuation (& becomes AND, dashes and slashes become spaces)
//
// Steps 2-5 repeat until the name stops changing, so stacked suffixes
// ("Acme Co., Inc.") collapse and NormalizeName(NormalizeName(x)) == NormalizeName(x).
func NormalizeName(name string) string {
	name = foldDiacritics(name)
	for {
		next := normalizeOnce(name)
		if next == name {
			return next
		}
		name = next
	}
}

func normalizeOnce(name string) string {
	name = collapse(strings.ToUpper(name))
	if name == "" {
		return ""
	}

	name = legalSuffixRe.ReplaceAllString(name, "")
	name = strings.TrimPrefix(name, "THE ")

	name = punctReplacer.Replace(name)
	name = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, name)

	return collapse(name)
}

func collapse(s string) string {
	return strings.TrimSpace(multiSpaceRe.ReplaceAllString(s, " "))
}

func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
