// Package publish renders an account's posts and the site-wide pages into
// output artifacts.
package publish

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/starford/mailblog/internal/apperr"
	"github.com/starford/mailblog/internal/storage"
	"github.com/starford/mailblog/internal/store"
)

const (
	// FrontPageSize is how many entries the front page and new-blogs feed show.
	FrontPageSize = 20

	IndexFile   = "index.html"
	FeedFile    = "feed.xml"
	NewFeedFile = "new-feed.xml"
)

var accountNamePattern = regexp.MustCompile(`^[\p{L}\p{N}][\p{L}\p{M}\p{N}._+-]*$`)

// ValidAccountName reports whether name can be used as an account's output
// directory: a single path element that is not one of the root's own files.
func ValidAccountName(name string) bool {
	if len(name) > 255 || !accountNamePattern.MatchString(name) {
		return false
	}
	for _, reserved := range []string{IndexFile, FeedFile, NewFeedFile} {
		if strings.EqualFold(name, reserved) {
			return false
		}
	}
	return true
}

// Renderer executes a named template with bindings.
type Renderer interface {
	Render(name string, bindings map[string]any) ([]byte, error)
}

// Reader is the read side of a store transaction used for publishing.
type Reader interface {
	AccountEntries(ctx context.Context, email string) ([]store.Entry, error)
	RecentEntries(ctx context.Context, limit int) ([]store.Entry, error)
	NewAccountEntries(ctx context.Context, limit int) ([]store.Entry, error)
}

// Site holds the site-wide settings the templates see.
type Site struct {
	BaseURL string // URL prefix of the output root, e.g. "/blog"
	Author  string // author shown on the front page
	Title   string // title of the front page
}

// Doc is one entry as seen by the templates.
type Doc struct {
	store.Entry
	File string
	URL  string
}

// HTML returns the stored post content, which is sanitized at ingestion.
func (d Doc) HTML() template.HTML {
	return template.HTML(d.Post.Content) //nolint:gosec
}

// Publisher writes rendered artifacts to an output provider.
type Publisher struct {
	renderer Renderer
	out      storage.Provider
	site     Site
	logger   *slog.Logger
}

// New creates a Publisher.
func New(r Renderer, out storage.Provider, site Site, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{renderer: r, out: out, site: site, logger: logger}
}

// Output returns the provider artifacts are written to.
func (p *Publisher) Output() storage.Provider {
	return p.out
}

// Batch holds rendered artifacts until they are written together.
type Batch struct {
	arts []artifact
}

type artifact struct {
	path    string
	content []byte
}

// Len returns the number of artifacts in the batch.
func (b *Batch) Len() int {
	return len(b.arts)
}

// PublishAccount regenerates every page, the index and the feed of acct,
// then the site front page. Nothing is written unless every template
// renders.
func (p *Publisher) PublishAccount(ctx context.Context, rd Reader, acct store.Account) error {
	b := &Batch{}
	if err := p.RenderAccount(ctx, rd, acct, b); err != nil {
		return err
	}
	return p.Write(ctx, b)
}

// PublishNewAccounts renders and writes the feed of posts by the newest
// accounts.
func (p *Publisher) PublishNewAccounts(ctx context.Context, rd Reader) error {
	b := &Batch{}
	if err := p.RenderNewAccounts(ctx, rd, b); err != nil {
		return err
	}
	return p.Write(ctx, b)
}

// RenderAccount adds the pages, index and feed of acct and the site front
// page to b.
func (p *Publisher) RenderAccount(ctx context.Context, rd Reader, acct store.Account, b *Batch) error {
	if !ValidAccountName(acct.Name) {
		return fmt.Errorf("%w: account name %q is not a valid directory", apperr.ErrRender, acct.Name)
	}
	entries, err := rd.AccountEntries(ctx, acct.Email)
	if err != nil {
		return err
	}
	docs := p.docs(entries)
	if err := uniqueFiles(acct.Name, docs); err != nil {
		return err
	}

	feedURL := p.url(acct.Name, FeedFile)
	indexURL := p.url(acct.Name, IndexFile)

	for i, d := range docs {
		var prev, next any
		if i > 0 {
			prev = docs[i-1]
		}
		if i < len(docs)-1 {
			next = docs[i+1]
		}
		err := p.render(b, "page.html", path.Join(acct.Name, d.File), map[string]any{
			"post":      d,
			"prev":      prev,
			"next":      next,
			"title":     d.Post.Subject,
			"tags":      d.Post.Keywords,
			"author":    acct.Author,
			"feed_url":  feedURL,
			"index_url": indexURL,
		})
		if err != nil {
			return err
		}
	}

	err = p.render(b, "index.html", path.Join(acct.Name, IndexFile), map[string]any{
		"posts":    docs,
		"title":    fmt.Sprintf("Articles for %s's blog", acct.Author),
		"tags":     "blog",
		"author":   acct.Author,
		"feed_url": feedURL,
	})
	if err != nil {
		return err
	}

	err = p.render(b, "user-feed.xml", path.Join(acct.Name, FeedFile), map[string]any{
		"posts":     docs,
		"author":    acct.Author,
		"name":      acct.Name,
		"feed_url":  feedURL,
		"index_url": indexURL,
		"updated":   latest(docs),
	})
	if err != nil {
		return err
	}
	p.logger.Debug("publish: account rendered",
		slog.String("account", acct.Name),
		slog.Int("posts", len(docs)))

	return p.RenderFrontPage(ctx, rd, b)
}

// RenderFrontPage adds the most recent entries across all accounts to b.
func (p *Publisher) RenderFrontPage(ctx context.Context, rd Reader, b *Batch) error {
	entries, err := rd.RecentEntries(ctx, FrontPageSize)
	if err != nil {
		return err
	}
	return p.render(b, "main.html", IndexFile, map[string]any{
		"posts":  p.docs(entries),
		"author": p.site.Author,
		"title":  p.site.Title,
		"tags":   "blog",
	})
}

// RenderNewAccounts adds the feed of posts by the newest accounts to b.
func (p *Publisher) RenderNewAccounts(ctx context.Context, rd Reader, b *Batch) error {
	entries, err := rd.NewAccountEntries(ctx, FrontPageSize)
	if err != nil {
		return err
	}
	docs := p.docs(entries)
	return p.render(b, "new-feed.xml", NewFeedFile, map[string]any{
		"posts":    docs,
		"feed_url": p.url(NewFeedFile),
		"updated":  latest(docs),
	})
}

// Write stores every artifact of b in the order they were rendered.
func (p *Publisher) Write(ctx context.Context, b *Batch) error {
	for _, a := range b.arts {
		if err := p.out.Write(ctx, a.path, a.content); err != nil {
			return fmt.Errorf("%w: write %s: %w", apperr.ErrRender, a.path, err)
		}
		p.logger.Debug("publish: wrote artifact", slog.String("path", a.path))
	}
	p.logger.Info("publish: artifacts written", slog.Int("count", len(b.arts)))
	return nil
}

func (p *Publisher) render(b *Batch, tmpl, dest string, bindings map[string]any) error {
	content, err := p.renderer.Render(tmpl, bindings)
	if err != nil {
		if errors.Is(err, apperr.ErrRender) {
			return err
		}
		return fmt.Errorf("%w: %s: %w", apperr.ErrRender, tmpl, err)
	}
	b.arts = append(b.arts, artifact{path: dest, content: content})
	return nil
}

func (p *Publisher) docs(entries []store.Entry) []Doc {
	docs := make([]Doc, len(entries))
	for i, e := range entries {
		file := Filename(e.Post.Subject, e.Post.ID)
		docs[i] = Doc{Entry: e, File: file, URL: p.url(e.Account.Name, file)}
	}
	return docs
}

func (p *Publisher) url(elem ...string) string {
	rel := path.Join(elem...)
	if strings.Contains(p.site.BaseURL, "://") {
		return strings.TrimSuffix(p.site.BaseURL, "/") + "/" + rel
	}
	return path.Join("/", p.site.BaseURL, rel)
}

func uniqueFiles(account string, docs []Doc) error {
	seen := make(map[string]int64, len(docs))
	for _, d := range docs {
		if other, ok := seen[d.File]; ok {
			return fmt.Errorf("%w: posts %d and %d of %s both map to %s",
				apperr.ErrRender, other, d.Post.ID, account, d.File)
		}
		seen[d.File] = d.Post.ID
	}
	return nil
}

func latest(docs []Doc) time.Time {
	var t time.Time
	for _, d := range docs {
		if d.Post.Time.After(t) {
			t = d.Post.Time
		}
	}
	return t
}

// Filename derives the stable output file name of a post from its subject
// and id.
func Filename(subject string, id int64) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(subject)) {
		switch {
		case unicode.IsSpace(r), r == '_':
			b.WriteByte('-')
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsMark(r):
			b.WriteRune(r)
		}
	}
	return b.String() + "-" + Base26(id) + ".html"
}

// Base26 writes n with the digits a..z, most significant first. Zero is
// the empty string.
func Base26(n int64) string {
	if n <= 0 {
		return ""
	}
	var buf []byte
	for ; n > 0; n /= 26 {
		buf = append(buf, byte('a'+n%26))
	}
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf)
}
