// Package ingest turns one RFC 5322 message into a stored post.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/starford/mailblog/internal/apperr"
	"github.com/starford/mailblog/internal/markdown"
	"github.com/starford/mailblog/internal/sanitize"
	"github.com/starford/mailblog/internal/store"
)

// Result describes a successfully ingested message.
type Result struct {
	Account store.Account
	Post    store.Post
	// NewAccount is true when the sender had no account before this message.
	NewAccount bool
}

// Pipeline resolves, extracts, sanitizes and stores messages.
type Pipeline struct {
	md     markdown.Converter
	logger *slog.Logger
}

// New creates a Pipeline. Plain-text bodies are converted with md.
func New(md markdown.Converter, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{md: md, logger: logger}
}

// Process reads one message from r and stores it as a post through repo.
func (p *Pipeline) Process(ctx context.Context, repo Repository, r io.Reader) (Result, error) {
	entity, err := message.Read(r)
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return Result{}, fmt.Errorf("%w: read message: %w", apperr.ErrNoContent, err)
	}
	rootErr := err
	h := mail.Header{Header: entity.Header}

	acct, isNew, err := ResolveAccount(ctx, repo, h)
	if err != nil {
		return Result{}, err
	}

	body, err := extract(entity, rootErr)
	if err != nil {
		return Result{}, err
	}

	content, keywords, err := p.content(body)
	if err != nil {
		return Result{}, err
	}

	when, err := messageTime(h)
	if err != nil {
		return Result{}, err
	}

	subject, err := h.Subject()
	if err != nil {
		subject = h.Get("Subject")
	}
	if kw, err := h.Text("Keywords"); err == nil && kw != "" {
		keywords = kw
	}

	post := store.Post{
		Email:    acct.Email,
		Content:  content,
		Time:     when,
		Subject:  subject,
		Keywords: keywords,
	}
	if err := repo.InsertPost(ctx, post); err != nil {
		return Result{}, err
	}
	p.logger.Info("ingest: stored post",
		slog.String("account", acct.Name),
		slog.String("subject", subject),
		slog.Bool("new_account", isNew))

	return Result{Account: acct, Post: post, NewAccount: isNew}, nil
}

// content sanitizes HTML bodies and converts plain-text ones. For Markdown,
// a keywords or tags entry in the metadata block is returned as keywords.
func (p *Pipeline) content(b bodies) (string, string, error) {
	if b.html != nil {
		return sanitize.HTML(*b.html), "", nil
	}
	out, err := p.md.Convert(*b.plain)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", apperr.ErrNoContent, err)
	}
	var keywords string
	if mr, ok := p.md.(metaReader); ok {
		if meta, err := mr.Meta(*b.plain); err == nil {
			keywords = metaKeywords(meta)
		}
	}
	return out, keywords, nil
}

type metaReader interface {
	Meta(text string) (map[string]any, error)
}

func metaKeywords(meta map[string]any) string {
	lower := make(map[string]any, len(meta))
	for k, v := range meta {
		lower[strings.ToLower(k)] = v
	}
	for _, key := range []string{"keywords", "tags"} {
		switch v := lower[key].(type) {
		case string:
			return v
		case []any:
			parts := make([]string, 0, len(v))
			for _, x := range v {
				parts = append(parts, fmt.Sprint(x))
			}
			return strings.Join(parts, ", ")
		}
	}
	return ""
}

type bodies struct {
	html, plain *string
}

// extract walks every MIME part. The last text/html and the last text/plain
// part win.
func extract(e *message.Entity, rootErr error) (bodies, error) {
	var b bodies
	err := e.Walk(func(path []int, part *message.Entity, err error) error {
		if len(path) == 0 {
			err = rootErr
		}
		mediaType, params, _ := part.Header.ContentType()
		if mediaType != "text/html" && mediaType != "text/plain" {
			return nil
		}
		raw, rerr := io.ReadAll(part.Body)
		if rerr != nil {
			return rerr
		}
		text := decode(raw, strings.ToLower(params["charset"]), message.IsUnknownCharset(err))
		if mediaType == "text/html" {
			b.html = &text
		} else {
			b.plain = &text
		}
		return nil
	})
	if err != nil {
		return bodies{}, fmt.Errorf("%w: walk parts: %w", apperr.ErrNoContent, err)
	}
	if b.html == nil && b.plain == nil {
		return bodies{}, fmt.Errorf("%w: no text or html", apperr.ErrNoContent)
	}
	return b, nil
}

// decode returns the part text as UTF-8. Bodies in a declared, supported
// charset have already been converted by go-message; anything else is read
// as us-ascii with other bytes dropped.
func decode(raw []byte, charset string, unknown bool) string {
	if unknown || charset == "" || charset == "us-ascii" || charset == "ascii" {
		out := make([]byte, 0, len(raw))
		for _, c := range raw {
			if c < 0x80 && c != 0 {
				out = append(out, c)
			}
		}
		return string(out)
	}
	// PostgreSQL text columns reject NUL.
	return strings.ReplaceAll(strings.ToValidUTF8(string(raw), ""), "\x00", "")
}

// messageTime parses the Date header and keeps its wall clock, dropping the
// zone offset.
func messageTime(h mail.Header) (time.Time, error) {
	if h.Get("Date") == "" {
		return time.Time{}, fmt.Errorf("%w: missing", apperr.ErrMalformedDate)
	}
	t, err := h.Date()
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", apperr.ErrMalformedDate, err)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC), nil
}

// IsDataError reports whether err is a problem with the message itself
// rather than with the store or renderer.
func IsDataError(err error) bool {
	return errors.Is(err, apperr.ErrNoContent) ||
		errors.Is(err, apperr.ErrMalformedDate) ||
		errors.Is(err, apperr.ErrAccountResolution)
}
