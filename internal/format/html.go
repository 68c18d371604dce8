// Package format provides HTML post-processing for extracted message bodies.
package format

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// HTMLToText renders raw HTML as a single line of plain text. Script and style blocks are dropped,
// tags become whitespace, runs of whitespace collapse to one space and entities are decoded.
func HTMLToText(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	z := html.NewTokenizer(strings.NewReader(raw))

	var b strings.Builder
	skipDepth := 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")

		case html.StartTagToken:
			if isHiddenBlock(z) {
				skipDepth++
			}
			b.WriteByte(' ')

		case html.EndTagToken:
			if isHiddenBlock(z) && skipDepth > 0 {
				skipDepth--
			}
			b.WriteByte(' ')

		case html.SelfClosingTagToken:
			b.WriteByte(' ')

		case html.TextToken:
			if skipDepth == 0 {
				b.Write(z.Text())
			}
		}
	}
}

func isHiddenBlock(z *html.Tokenizer) bool {
	name, _ := z.TagName()
	switch string(name) {
	case "script", "style":
		return true
	default:
		return false
	}
}

// NormalizeCID turns a Content-ID header value or cid: reference into a lookup key.
func NormalizeCID(raw string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(raw), "<>"))
}

var cidSrcPattern = regexp.MustCompile(`(?i)src\s*=\s*(?:"cid:([^"]+)"|'cid:([^']+)')`)

// RewriteCIDSources replaces src="cid:ID" references with the matching entry of sources, keyed by
// NormalizeCID. References without a match are left as they are.
func RewriteCIDSources(rawHTML string, sources map[string]string) string {
	if rawHTML == "" || len(sources) == 0 {
		return rawHTML
	}

	return cidSrcPattern.ReplaceAllStringFunc(rawHTML, func(match string) string {
		groups := cidSrcPattern.FindStringSubmatch(match)
		quote, ref := `"`, groups[1]
		if ref == "" {
			quote, ref = `'`, groups[2]
		}

		resolved, ok := sources[NormalizeCID(ref)]
		if !ok || resolved == "" {
			return match
		}

		return "src=" + quote + resolved + quote
	})
}
