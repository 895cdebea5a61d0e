// Package blogservice runs each mailblog command inside one store transaction.
package blogservice

import (
	"context"
	"io"
	"log/slog"

	"github.com/starford/mailblog/internal/ingest"
	"github.com/starford/mailblog/internal/lifecycle"
	"github.com/starford/mailblog/internal/publish"
	"github.com/starford/mailblog/internal/store"
)

// Service coordinates the store, the ingestion pipeline and the publisher.
type Service struct {
	db       *store.Store
	pipeline *ingest.Pipeline
	pub      *publish.Publisher
	accounts *lifecycle.Manager
	logger   *slog.Logger
}

// NewService creates a new blog service.
func NewService(db *store.Store, pipeline *ingest.Pipeline, pub *publish.Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:       db,
		pipeline: pipeline,
		pub:      pub,
		accounts: lifecycle.New(pub.Output(), pub, logger),
		logger:   logger,
	}
}

// InitSchema creates the tables and view.
func (s *Service) InitSchema(ctx context.Context) error {
	return s.db.Migrate(ctx)
}

// ProcessMail ingests one message and regenerates the sender's blog. Every
// artifact is rendered inside the transaction, so a render failure rolls
// the rows back, and written only once the rows are committed.
func (s *Service) ProcessMail(ctx context.Context, r io.Reader) (ingest.Result, error) {
	var (
		res   ingest.Result
		batch publish.Batch
	)
	err := s.db.InTx(ctx, func(tx *store.Tx) error {
		var err error
		res, err = s.pipeline.Process(ctx, tx, r)
		if err != nil {
			return err
		}
		if err := s.pub.RenderAccount(ctx, tx, res.Account, &batch); err != nil {
			return err
		}
		if res.NewAccount {
			return s.pub.RenderNewAccounts(ctx, tx, &batch)
		}
		return nil
	})
	if err != nil {
		return ingest.Result{}, err
	}
	if err := s.pub.Write(ctx, &batch); err != nil {
		s.logger.Error("blogservice: post stored but artifacts incomplete",
			slog.String("account", res.Account.Name),
			slog.String("error", err.Error()))
		return ingest.Result{}, err
	}
	return res, nil
}

// DeleteAccount removes an account, its posts and its artifacts.
func (s *Service) DeleteAccount(ctx context.Context, name string) error {
	return s.db.InTx(ctx, func(tx *store.Tx) error {
		return s.accounts.Delete(ctx, tx, name)
	})
}

// RefreshAccount regenerates the artifacts of an account.
func (s *Service) RefreshAccount(ctx context.Context, name string) error {
	return s.db.InTx(ctx, func(tx *store.Tx) error {
		return s.accounts.Refresh(ctx, tx, name)
	})
}
