package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/emersion/go-message/mail"

	"github.com/starford/mailblog/internal/apperr"
	"github.com/starford/mailblog/internal/publish"
	"github.com/starford/mailblog/internal/store"
)

// Repository is the slice of a store transaction the pipeline writes through.
type Repository interface {
	AccountByEmail(ctx context.Context, email string) (store.Account, bool, error)
	AccountByName(ctx context.Context, name string) (store.Account, bool, error)
	CreateAccount(ctx context.Context, a store.Account) error
	InsertPost(ctx context.Context, p store.Post) error
}

// Candidates returns the account names tried, in order, for a new sender.
// Names that cannot serve as an output directory are left out.
func Candidates(email string) ([]string, error) {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return nil, fmt.Errorf("%w: address %q has no domain", apperr.ErrAccountResolution, email)
	}
	local, domain := email[:at], email[at+1:]
	label, _, _ := strings.Cut(domain, ".")
	var names []string
	for _, name := range []string{
		local,
		local + "_" + label,
		local + "_1",
		local + "_" + domain,
	} {
		if publish.ValidAccountName(name) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no usable account name for %q", apperr.ErrAccountResolution, email)
	}
	return names, nil
}

// ResolveAccount finds the account for the From header, creating one under
// the first free candidate name when the sender is unknown. The returned bool
// reports whether the account was created.
func ResolveAccount(ctx context.Context, repo Repository, h mail.Header) (store.Account, bool, error) {
	addrs, err := h.AddressList("From")
	if err != nil {
		return store.Account{}, false, fmt.Errorf("%w: parse From: %w", apperr.ErrAccountResolution, err)
	}
	if len(addrs) == 0 || addrs[0].Address == "" {
		return store.Account{}, false, fmt.Errorf("%w: no sender", apperr.ErrAccountResolution)
	}
	from := addrs[0]

	acct, found, err := repo.AccountByEmail(ctx, from.Address)
	if err != nil {
		return store.Account{}, false, err
	}
	if found {
		return acct, false, nil
	}

	names, err := Candidates(from.Address)
	if err != nil {
		return store.Account{}, false, err
	}
	for _, name := range names {
		_, taken, err := repo.AccountByName(ctx, name)
		if err != nil {
			return store.Account{}, false, err
		}
		if taken {
			continue
		}
		if err := repo.CreateAccount(ctx, store.Account{
			Email:  from.Address,
			Name:   name,
			Author: from.Name,
		}); err != nil {
			return store.Account{}, false, err
		}
		// Re-read so the database-assigned creation time is populated.
		acct, found, err := repo.AccountByEmail(ctx, from.Address)
		if err != nil {
			return store.Account{}, false, err
		}
		if !found {
			return store.Account{}, false, fmt.Errorf("%w: account %q vanished after insert", apperr.ErrStore, name)
		}
		return acct, true, nil
	}
	return store.Account{}, false, fmt.Errorf("%w: every candidate name for %s is taken", apperr.ErrAccountResolution, from.Address)
}
