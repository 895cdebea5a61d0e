// Package lifecycle deletes and regenerates whole accounts.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/starford/mailblog/internal/apperr"
	"github.com/starford/mailblog/internal/publish"
	"github.com/starford/mailblog/internal/storage"
	"github.com/starford/mailblog/internal/store"
)

// Repository is the slice of a store transaction account operations need.
type Repository interface {
	publish.Reader
	AccountByName(ctx context.Context, name string) (store.Account, bool, error)
	DeleteAccountRow(ctx context.Context, name string) (int64, error)
	DeletePostsByEmail(ctx context.Context, email string) (int64, error)
}

// AccountPublisher regenerates the artifacts of one account.
type AccountPublisher interface {
	PublishAccount(ctx context.Context, rd publish.Reader, acct store.Account) error
}

// Manager runs account-level operations.
type Manager struct {
	out    storage.Provider
	pub    AccountPublisher
	logger *slog.Logger
}

// New creates a Manager.
func New(out storage.Provider, pub AccountPublisher, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{out: out, pub: pub, logger: logger}
}

func lookup(ctx context.Context, repo Repository, name string) (store.Account, error) {
	acct, found, err := repo.AccountByName(ctx, name)
	if err != nil {
		return store.Account{}, err
	}
	if !found {
		return store.Account{}, fmt.Errorf("%w: %s", apperr.ErrAccountNotFound, name)
	}
	return acct, nil
}

// Delete removes the account called name: its output directory and every
// artifact in it, its row, and its posts. An account whose name is not a
// valid output directory never had one, so only its rows are removed.
func (m *Manager) Delete(ctx context.Context, repo Repository, name string) error {
	acct, err := lookup(ctx, repo, name)
	if err != nil {
		return err
	}

	var files []string
	if publish.ValidAccountName(acct.Name) {
		files, err = m.removeArtifacts(ctx, acct.Name)
		if err != nil {
			return err
		}
	} else {
		m.logger.Warn("lifecycle: account name is not a directory, keeping output untouched",
			slog.String("account", acct.Name))
	}

	if _, err := repo.DeleteAccountRow(ctx, acct.Name); err != nil {
		return err
	}
	n, err := repo.DeletePostsByEmail(ctx, acct.Email)
	if err != nil {
		return err
	}
	m.logger.Info("lifecycle: account deleted",
		slog.String("account", acct.Name),
		slog.Int("artifacts", len(files)),
		slog.Int64("posts", n))
	return nil
}

func (m *Manager) removeArtifacts(ctx context.Context, dir string) ([]string, error) {
	files, err := m.out.List(ctx, dir)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if err := m.out.Delete(ctx, path.Join(dir, f)); err != nil {
			return nil, err
		}
	}
	if err := m.out.RemoveDir(ctx, dir); err != nil {
		return nil, err
	}
	return files, nil
}

// Refresh regenerates every artifact of the account called name.
func (m *Manager) Refresh(ctx context.Context, repo Repository, name string) error {
	acct, err := lookup(ctx, repo, name)
	if err != nil {
		return err
	}
	return m.pub.PublishAccount(ctx, repo, acct)
}
