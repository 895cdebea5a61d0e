// Package sanitize reduces untrusted HTML to a small allow-list of tags.
package sanitize

import (
	"html"
	"strings"

	nethtml "golang.org/x/net/html"
)

var allowed = map[string]bool{
	"a": true, "p": true, "i": true, "b": true, "ul": true, "li": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true,
}

// suppressed elements drop all text inside them, allowed tags included.
var suppressed = map[string]bool{
	"script": true, "template": true, "style": true,
}

// HTML returns raw restricted to the allow-list. Allowed tags are re-emitted
// bare except that a keeps its href. Other tags are dropped and text is
// escaped. href schemes are not checked.
func HTML(raw string) string {
	z := nethtml.NewTokenizer(strings.NewReader(raw))
	var b strings.Builder
	depth := 0

	for {
		switch z.Next() {
		case nethtml.ErrorToken:
			// io.EOF on well-formed and malformed input alike.
			return b.String()

		case nethtml.StartTagToken:
			name, hasAttr := z.TagName()
			tag := string(name)
			markupInside(z, tag)
			depth = start(&b, z, tag, hasAttr, depth)

		case nethtml.SelfClosingTagToken:
			// Treated as an open tag immediately closed.
			name, hasAttr := z.TagName()
			tag := string(name)
			markupInside(z, tag)
			depth = start(&b, z, tag, hasAttr, depth)
			depth = end(&b, tag, depth)

		case nethtml.EndTagToken:
			name, _ := z.TagName()
			depth = end(&b, string(name), depth)

		case nethtml.TextToken:
			if depth == 0 {
				b.WriteString(html.EscapeString(string(z.Text())))
			}
		}
	}
}

// markupInside keeps the tokenizer reading tags inside textarea, title,
// noscript, iframe, xmp and the like. Only script and style content is
// opaque text.
func markupInside(z *nethtml.Tokenizer, tag string) {
	if tag != "script" && tag != "style" {
		z.NextIsNotRawText()
	}
}

// start must be given the tag name already read from z; the tokenizer hands
// it out only once per token.
func start(b *strings.Builder, z *nethtml.Tokenizer, tag string, hasAttr bool, depth int) int {
	if allowed[tag] {
		b.WriteString("<" + tag)
		if tag == "a" {
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				if string(key) == "href" {
					b.WriteString(` href="` + html.EscapeString(string(val)) + `"`)
				}
			}
		}
		b.WriteString(">")
	}
	if suppressed[tag] {
		depth++
	}
	return depth
}

func end(b *strings.Builder, tag string, depth int) int {
	if suppressed[tag] && depth > 0 {
		depth--
	}
	if allowed[tag] {
		b.WriteString("</" + tag + ">")
	}
	return depth
}
