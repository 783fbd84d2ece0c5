package prompt

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	// closedTag matches a complete start, end or self-closing tag
	closedTag = regexp.MustCompile(`</?[a-zA-Z][a-zA-Z0-9-]*(\s[^<>]*)?/?>`)

	// entity matches a semicolon-terminated character reference
	entity = regexp.MustCompile(`&(#[0-9]{1,7}|#[xX][0-9a-fA-F]{1,6}|[a-zA-Z][a-zA-Z0-9]{1,31});`)
)

// CleanHeadline returns the visible text of a headline: markup is dropped,
// entities are decoded and whitespace is collapsed. Text is only treated as
// markup when it contains a closed tag, and only entities ending in ';' are
// decoded, so a stray '<' or '&' in a plain headline survives unchanged.
func CleanHeadline(raw string) string {
	text := raw
	if closedTag.MatchString(raw) {
		text = stripTags(raw)
	}
	return collapseSpace(decodeEntities(text))
}

// stripTags keeps raw text tokens outside hidden elements
func stripTags(raw string) string {
	var buf strings.Builder
	z := html.NewTokenizer(strings.NewReader(raw))
	skip := 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or malformed input: keep what we have
			return buf.String()
		case html.StartTagToken:
			if name, _ := z.TagName(); isHidden(string(name)) {
				skip++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); isHidden(string(name)) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				buf.Write(z.Raw())
			}
		}
	}
}

// decodeEntities decodes references that name a whole entity; anything the
// HTML decoder would only partially consume is left as written
func decodeEntities(s string) string {
	if !strings.Contains(s, "&") {
		return s
	}
	return entity.ReplaceAllStringFunc(s, func(ref string) string {
		decoded := html.UnescapeString(ref)
		if ref[1] != '#' && strings.HasSuffix(decoded, ";") {
			return ref
		}
		return decoded
	})
}

func isHidden(tag string) bool {
	switch tag {
	case "script", "style", "noscript":
		return true
	}
	return false
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
