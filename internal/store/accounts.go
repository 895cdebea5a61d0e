package store

import (
	"context"
	"time"

	sb "github.com/starford/mailblog/internal/sqlbuilder"
)

// Account is a blog owner. Name is the slug used for output paths and URLs.
type Account struct {
	Email        string
	Name         string
	Author       string
	Images       string
	PaymentToken string
	CryptoToken  string
	Created      time.Time
}

func accountFromRow(r Row) Account {
	return Account{
		Email:        r.String("email"),
		Name:         r.String("name"),
		Author:       r.String("author"),
		Images:       r.String("images"),
		PaymentToken: r.String("payment_token"),
		CryptoToken:  r.String("crypto_token"),
		Created:      r.Time("created"),
	}
}

// AccountByEmail looks up the account owning email.
func (t *Tx) AccountByEmail(ctx context.Context, email string) (Account, bool, error) {
	return t.account(ctx, sb.Col("email", email))
}

// AccountByName looks up the account called name.
func (t *Tx) AccountByName(ctx context.Context, name string) (Account, bool, error) {
	return t.account(ctx, sb.Col("name", name))
}

func (t *Tx) account(ctx context.Context, where sb.Column) (Account, bool, error) {
	row, ok, err := t.First(ctx, sb.Query{From: []string{TableUsers}, Where: sb.Columns{where}})
	if err != nil || !ok {
		return Account{}, false, err
	}
	return accountFromRow(row), true, nil
}

// CreateAccount inserts a. A zero Created is filled in by the database clock.
func (t *Tx) CreateAccount(ctx context.Context, a Account) error {
	var created any = sb.Now()
	if !a.Created.IsZero() {
		created = a.Created
	}
	return t.Insert(ctx, TableUsers, sb.Columns{
		sb.Col("email", a.Email),
		sb.Col("name", a.Name),
		sb.Col("author", a.Author),
		sb.Col("images", nullable(a.Images)),
		sb.Col("payment_token", nullable(a.PaymentToken)),
		sb.Col("crypto_token", nullable(a.CryptoToken)),
		sb.Col("created", created),
	})
}

// DeleteAccountRow removes the account called name.
func (t *Tx) DeleteAccountRow(ctx context.Context, name string) (int64, error) {
	return t.Delete(ctx, TableUsers, sb.Columns{sb.Col("name", name)})
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
