package worker

import (
	"context"

	"github.com/go-notify/internal/application/notification"
	"github.com/go-notify/internal/infrastructure/postgres"
)

// AssemblerStore exposes a postgres.Repo as the assembler's transactional store.
type AssemblerStore struct {
	Repo *postgres.Repo
}

func (s AssemblerStore) Transaction(ctx context.Context, fn func(tx notification.Tx) error) error {
	return s.Repo.Transaction(ctx, func(tx *postgres.Repo) error {
		return fn(tx)
	})
}
