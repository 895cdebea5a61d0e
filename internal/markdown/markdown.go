// Package markdown converts plain-text message bodies to HTML.
package markdown

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

// Converter turns Markdown text into HTML.
type Converter interface {
	Convert(text string) (string, error)
}

// Goldmark is a Converter backed by goldmark. A leading metadata block is
// parsed off the body and not rendered: either YAML between "---" lines or
// "Key: value" lines ended by a blank line, with indented continuation
// lines. Raw HTML in the input is not passed through.
type Goldmark struct {
	md goldmark.Markdown
}

// New returns a Goldmark converter.
func New() *Goldmark {
	return &Goldmark{
		md: goldmark.New(
			goldmark.WithExtensions(meta.Meta, extension.Linkify, extension.Strikethrough),
		),
	}
}

// Convert renders text to HTML.
func (g *Goldmark) Convert(text string) (string, error) {
	_, body := splitHeaders(text)
	var buf bytes.Buffer
	if err := g.md.Convert([]byte(body), &buf); err != nil {
		return "", fmt.Errorf("markdown: convert: %w", err)
	}
	return buf.String(), nil
}

// Meta returns the metadata block of text, if any. Keys of the "Key: value"
// form are lower-cased and map to a string, or to a list when the value
// spans several lines.
func (g *Goldmark) Meta(text string) (map[string]any, error) {
	if m, _ := splitHeaders(text); m != nil {
		return m, nil
	}
	ctx := parser.NewContext()
	var buf bytes.Buffer
	if err := g.md.Convert([]byte(text), &buf, parser.WithContext(ctx)); err != nil {
		return nil, fmt.Errorf("markdown: convert: %w", err)
	}
	return meta.Get(ctx), nil
}

var (
	headerLine   = regexp.MustCompile(`^ {0,3}([A-Za-z0-9_-]+):\s*(.*)$`)
	continuation = regexp.MustCompile(`^ {4,}(.*)$`)
)

// splitHeaders removes leading "Key: value" lines from text. A text that
// opens with "---" is left for the YAML extension.
func splitHeaders(text string) (map[string]any, string) {
	if strings.HasPrefix(text, "---") {
		return nil, text
	}
	lines := strings.SplitAfter(text, "\n")
	values := map[string][]string{}
	var order []string
	var key string
	i := 0
	for ; i < len(lines); i++ {
		line := strings.TrimRight(lines[i], "\r\n")
		if strings.TrimSpace(line) == "" {
			if key != "" {
				i++
			}
			break
		}
		if m := headerLine.FindStringSubmatch(line); m != nil {
			key = strings.ToLower(m[1])
			if _, ok := values[key]; !ok {
				order = append(order, key)
			}
			values[key] = append(values[key], strings.TrimSpace(m[2]))
			continue
		}
		if m := continuation.FindStringSubmatch(line); m != nil && key != "" {
			values[key] = append(values[key], strings.TrimSpace(m[1]))
			continue
		}
		break
	}
	if key == "" {
		return nil, text
	}

	out := make(map[string]any, len(order))
	for _, k := range order {
		if v := values[k]; len(v) == 1 {
			out[k] = v[0]
		} else {
			list := make([]any, len(v))
			for j, x := range v {
				list[j] = x
			}
			out[k] = list
		}
	}
	return out, strings.Join(lines[i:], "")
}
