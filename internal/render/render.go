// Package render turns named templates and bindings into blog artifacts.
package render

import (
	"bytes"
	"embed"
	"encoding/xml"
	"fmt"
	htmltemplate "html/template"
	"io/fs"
	"strings"
	"text/template"
	"time"
	"unicode/utf8"

	"github.com/k3a/html2text"

	"github.com/starford/mailblog/internal/apperr"
)

//go:embed templates
var embedded embed.FS

// Page templates share the base layout; feed templates are plain text with
// explicit XML escaping.
var (
	pageNames = []string{"page.html", "index.html", "main.html"}
	feedNames = []string{"user-feed.xml", "new-feed.xml"}
)

const summaryLen = 280

// Templates renders the five blog templates.
type Templates struct {
	pages map[string]*htmltemplate.Template
	feeds *template.Template
}

// New loads the built-in templates.
func New() (*Templates, error) {
	sub, err := fs.Sub(embedded, "templates")
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return NewFromFS(sub)
}

// NewFromFS loads templates from fsys, which must hold base.html and the
// five named templates at its root.
func NewFromFS(fsys fs.FS) (*Templates, error) {
	funcs := Funcs()
	base, err := htmltemplate.New("base.html").Funcs(htmltemplate.FuncMap(funcs)).ParseFS(fsys, "base.html")
	if err != nil {
		return nil, fmt.Errorf("render: parse base: %w", err)
	}
	t := &Templates{pages: make(map[string]*htmltemplate.Template, len(pageNames))}
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("render: clone base: %w", err)
		}
		if _, err := clone.ParseFS(fsys, name); err != nil {
			return nil, fmt.Errorf("render: parse %s: %w", name, err)
		}
		t.pages[name] = clone
	}
	t.feeds, err = template.New("feeds").Funcs(funcs).ParseFS(fsys, feedNames...)
	if err != nil {
		return nil, fmt.Errorf("render: parse feeds: %w", err)
	}
	return t, nil
}

// Render executes the template called name with bindings.
func (t *Templates) Render(name string, bindings map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	if page, ok := t.pages[name]; ok {
		err = page.ExecuteTemplate(&buf, "base", bindings)
	} else if feed := t.feeds.Lookup(name); feed != nil {
		err = feed.Execute(&buf, bindings)
	} else {
		return nil, fmt.Errorf("render: %w: unknown template %q", apperr.ErrRender, name)
	}
	if err != nil {
		return nil, fmt.Errorf("render: %s: %w: %w", name, apperr.ErrRender, err)
	}
	return buf.Bytes(), nil
}

// Funcs returns the helpers available to every template.
func Funcs() template.FuncMap {
	return template.FuncMap{
		"date":    func(t time.Time) string { return t.Format("2 January 2006") },
		"rfc3339": func(t time.Time) string { return t.UTC().Format(time.RFC3339) },
		"summary": Summary,
		"xml":     escapeXML,
	}
}

// Summary reduces post HTML to a short plain-text excerpt.
func Summary(html string) string {
	text := strings.Join(strings.Fields(html2text.HTML2Text(html)), " ")
	if utf8.RuneCountInString(text) <= summaryLen {
		return text
	}
	runes := []rune(text)
	cut := string(runes[:summaryLen])
	if i := strings.LastIndexByte(cut, ' '); i > summaryLen/2 {
		cut = cut[:i]
	}
	return cut + "…"
}

func escapeXML(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
