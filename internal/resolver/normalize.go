package resolver

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	planSuffixRe    = regexp.MustCompile(`(?i)\s*-\s*(direct|regular)\s*(plan|growth|dividend|idcw).*$`)
	optionSuffixRe  = regexp.MustCompile(`(?i)\s*-\s*(growth|dividend|idcw|bonus)(\s*(option|payout|reinvestment))?\s*$`)
	parentheticalRe = regexp.MustCompile(`\s*\(.*?\)`)
	trailingNounRe  = regexp.MustCompile(`(?i)\s*(fund|scheme)\s*$`)
)

// NormalizeSchemeName reduces a scheme name to a comparable key: diacritics
// stripped, lowercased, plan/option suffixes and parentheticals removed,
// trailing "fund"/"scheme" dropped, whitespace collapsed.
func NormalizeSchemeName(name string) string {
	if name == "" {
		return ""
	}

	// Normalize unicode (e.g., accented characters)
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if stripped, _, err := transform.String(t, name); err == nil {
		name = stripped
	}

	name = strings.ToLower(name)
	name = planSuffixRe.ReplaceAllString(name, "")
	name = optionSuffixRe.ReplaceAllString(name, "")
	name = parentheticalRe.ReplaceAllString(name, "")
	name = trailingNounRe.ReplaceAllString(name, "")
	return strings.Join(strings.Fields(name), " ")
}

// Similarity scores two scheme names in [0, 1] after normalization,
// using edit distance over the longer name's length.
func Similarity(a, b string) float64 {
	na := NormalizeSchemeName(a)
	nb := NormalizeSchemeName(b)
	if na == "" || nb == "" {
		return 0
	}
	return similarityRatio(na, nb)
}

func similarityRatio(a, b string) float64 {
	if a == b {
		return 1
	}
	la := len([]rune(a))
	lb := len([]rune(b))
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}
