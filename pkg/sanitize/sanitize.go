// Package sanitize reduces raw page markup to comparable content by
// applying an ordered sequence of structural strip passes. Order matters:
// later passes assume earlier ones already removed nested noise (an svg
// inside a script is gone before the svg pass runs).
package sanitize

import (
	"regexp"
	"strings"
)

type pass struct {
	pattern     *regexp.Regexp
	replacement string
}

var passes = []pass{
	{regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`), ""},
	{regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`), ""},
	{regexp.MustCompile(`(?is)<svg[^>]*>.*?</svg>`), ""},
	{regexp.MustCompile(`(?i)<img[^>]*/?>`), ""},
	{regexp.MustCompile(`(?i)style="[^"]*"`), ""},
	{regexp.MustCompile(`(?i)class="[^"]*"`), ""},
	{regexp.MustCompile(`(?s)<!--.*?-->`), ""},
	// decorative map/phone fragments
	{regexp.MustCompile(`<span>·</span>`), ""},
	{regexp.MustCompile(`(?s)<a href="https://www\.google\.com/maps/[^"]*"[^>]*>.*?</a>`), ""},
	{regexp.MustCompile(`(?s)<a href="tel:[^"]*"[^>]*>.*?</a>`), ""},
	{regexp.MustCompile(`\s+`), " "},
}

// Clean strips scripts, styles, vector graphics, images, presentation
// attributes, comments, and known decorative fragments from markup, then
// collapses whitespace. Clean is idempotent.
func Clean(markup string) string {
	out := markup
	for _, p := range passes {
		out = p.pattern.ReplaceAllString(out, p.replacement)
	}
	return strings.TrimSpace(out)
}
