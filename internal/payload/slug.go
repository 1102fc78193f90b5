package payload

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	slugStripRe    = regexp.MustCompile(`[^\w\s-]`)
	slugCollapseRe = regexp.MustCompile(`[\s_-]+`)
)

// Slugify lowercases s, folds accents to ASCII, drops anything that is not a
// word character, space or hyphen, and joins the words with single hyphens.
func Slugify(s string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		folded = s
	}

	out := strings.ToLower(strings.TrimSpace(folded))
	out = slugStripRe.ReplaceAllString(out, "")
	out = slugCollapseRe.ReplaceAllString(out, "-")

	return strings.Trim(out, "-")
}
