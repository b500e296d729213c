package tables

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var multiSpaceRe = regexp.MustCompile(`\s+`)

// Normalize standardizes an ingredient name for matching by:
//  1. Applying NFKC (full-width ASCII and half-width kana fold to their standard forms)
//  2. Case folding
//  3. Replacing middle dots, hyphen U+2010 and underscores with a single space
//  4. Collapsing whitespace
func Normalize(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	name = norm.NFKC.String(name)
	name = cases.Fold().String(name) // Casers are stateful; one per call

	name = strings.NewReplacer(
		"・", " ",
		"‐", " ",
		"_", " ",
	).Replace(name)

	name = multiSpaceRe.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}

// DisplayName title-cases a canonical name for reports. Non-Latin scripts are unchanged.
func DisplayName(canonical string) string {
	return cases.Title(language.Und).String(canonical)
}
