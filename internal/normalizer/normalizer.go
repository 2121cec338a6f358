// Package normalizer cleans raw OCR text before segmentation.
//
// Page-boundary lines such as "— 42 —" are rewritten to an inline "[[PAGE:42]]" tag
// so page numbers survive line-oriented processing without a side channel.
package normalizer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	pageMarkerRe = regexp.MustCompile(`(?m)^[ \t]*[—–-][ \t]*(\d+)[ \t]*[—–-][ \t]*$`)
	pageTagRe    = regexp.MustCompile(`^\[\[PAGE:(\d+)\]\]$`)
	inlineTagRe  = regexp.MustCompile(`\[\[PAGE:(\d+)\]\]\n?`)
	horizontalRe = regexp.MustCompile(`[ \t\x{00A0}]+`)
	blankRunRe   = regexp.MustCompile(`\n(?:[ \t]*\n){2,}`)
)

// Correction is a context-free OCR fix applied to the whole text.
type Correction struct {
	Pattern     *regexp.Regexp
	Replacement string
	Note        string
}

// Corrections is the fixed OCR correction table.
//
// These substitutions are lossy: a lone "k" is almost always a misread "à" in this
// corpus, but genuine occurrences (abbreviations, kilo units) are rewritten too.
var Corrections = []Correction{
	{
		Pattern:     regexp.MustCompile(`\bk\b`),
		Replacement: "à",
		Note:        `isolated "k" is a misread "à"`,
	},
	{
		Pattern:     regexp.MustCompile(`(\pL)[’‘](\pL)`),
		Replacement: "$1'$2",
		Note:        "typographic apostrophes inside words become ASCII apostrophes",
	},
}

// Normalize cleans raw OCR text. It is pure and deterministic.
func Normalize(raw string) string {
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	text = pageMarkerRe.ReplaceAllString(text, "[[PAGE:$1]]")
	text = horizontalRe.ReplaceAllString(text, " ")

	for _, c := range Corrections {
		text = c.Pattern.ReplaceAllString(text, c.Replacement)
	}

	text = blankRunRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// PageTag renders the inline tag for page n.
func PageTag(n int) string {
	return fmt.Sprintf("[[PAGE:%d]]", n)
}

// PageNumber reports whether line is a page tag and returns its number.
func PageNumber(line string) (int, bool) {
	m := pageTagRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// StripPageTags removes inline page tags from text and returns the pages they carried.
func StripPageTags(text string) (string, []int) {
	var pages []int
	for _, m := range inlineTagRe.FindAllStringSubmatch(text, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil {
			pages = append(pages, n)
		}
	}
	if len(pages) == 0 {
		return text, nil
	}
	return inlineTagRe.ReplaceAllString(text, ""), pages
}
