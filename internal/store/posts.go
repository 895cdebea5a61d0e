package store

import (
	"context"
	"time"

	sb "github.com/starford/mailblog/internal/sqlbuilder"
)

// Post is one published article. Time is timezone-naive, held as UTC.
type Post struct {
	ID       int64
	Email    string
	Content  string
	Time     time.Time
	Subject  string
	Keywords string
	TootID   string
}

// Entry is a row of the posts view: a post together with its account.
type Entry struct {
	Account Account
	Post    Post
}

func postFromRow(r Row) Post {
	return Post{
		ID:       r.Int64("id"),
		Email:    r.String("post_email"),
		Content:  r.String("content"),
		Time:     r.Time("time"),
		Subject:  r.String("subject"),
		Keywords: r.String("keywords"),
		TootID:   r.String("toot_id"),
	}
}

func entryFromRow(r Row) Entry {
	return Entry{Account: accountFromRow(r), Post: postFromRow(r)}
}

// InsertPost stores p. p.ID is ignored; the database assigns it.
func (t *Tx) InsertPost(ctx context.Context, p Post) error {
	return t.Insert(ctx, TablePosts, sb.Columns{
		sb.Col("post_email", p.Email),
		sb.Col("time", p.Time),
		sb.Col("content", p.Content),
		sb.Col("subject", p.Subject),
		sb.Col("keywords", nullable(p.Keywords)),
		sb.Col("toot_id", nullable(p.TootID)),
	})
}

// PostsByEmail returns the posts of email, oldest first.
func (t *Tx) PostsByEmail(ctx context.Context, email string) ([]Post, error) {
	rows, err := t.Select(ctx, sb.Query{
		From:    []string{TablePosts},
		Where:   sb.Columns{sb.Col("post_email", email)},
		OrderBy: []string{`"time"`, `"id"`},
	})
	if err != nil {
		return nil, err
	}
	return collect(rows, postFromRow)
}

// DeletePostsByEmail removes every post of email.
func (t *Tx) DeletePostsByEmail(ctx context.Context, email string) (int64, error) {
	return t.Delete(ctx, TablePosts, sb.Columns{sb.Col("post_email", email)})
}

// AccountEntries returns the posts of one account with its account data,
// oldest first.
func (t *Tx) AccountEntries(ctx context.Context, email string) ([]Entry, error) {
	return t.entries(ctx, sb.Query{
		From:    []string{ViewPosts},
		Where:   sb.Columns{sb.Col("email", email)},
		OrderBy: []string{`"time"`, `"id"`},
	})
}

// RecentEntries returns the newest posts across all accounts, newest first.
func (t *Tx) RecentEntries(ctx context.Context, limit int) ([]Entry, error) {
	return t.entries(ctx, sb.Query{
		From:    []string{ViewPosts},
		OrderBy: []string{`"time" DESC`, `"id" DESC`},
		Limit:   limit,
	})
}

// NewAccountEntries returns posts of the most recently created accounts,
// ordered by account creation and then post time, newest first.
func (t *Tx) NewAccountEntries(ctx context.Context, limit int) ([]Entry, error) {
	return t.entries(ctx, sb.Query{
		From:    []string{ViewPosts},
		OrderBy: []string{`"created" DESC`, `"time" DESC`, `"id" DESC`},
		Limit:   limit,
	})
}

func (t *Tx) entries(ctx context.Context, q sb.Query) ([]Entry, error) {
	rows, err := t.Select(ctx, q)
	if err != nil {
		return nil, err
	}
	return collect(rows, entryFromRow)
}
