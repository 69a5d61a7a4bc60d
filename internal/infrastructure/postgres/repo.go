package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Repo provides typed PostgreSQL operations for the notification tables.
// A Repo obtained inside Transaction runs every call on that transaction.
type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// Transaction runs fn on a transactional Repo. It commits when fn returns nil
// and rolls back otherwise.
func (r *Repo) Transaction(ctx context.Context, fn func(tx *Repo) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repo{db: tx})
	})
}

// Ping checks that the database accepts connections.
func (r *Repo) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("postgres pool: %w", err)
	}
	return sqlDB.PingContext(ctx)
}
