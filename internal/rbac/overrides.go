package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-cafe/internal/platform/db"
)

// OverrideStore persists per-user grant overrides.
type OverrideStore interface {
	ListForUser(ctx context.Context, userID int64) ([]Override, error)
	ReplaceForUser(ctx context.Context, userID int64, overrides []Override) error
}

// OverrideDB is the postgres surface the repository needs.
type OverrideDB interface {
	db.DBTX
	db.TxBeginner
}

// OverrideRepository stores overrides in postgres.
type OverrideRepository struct {
	db OverrideDB
}

// NewOverrideRepository constructs an OverrideRepository.
func NewOverrideRepository(conn OverrideDB) *OverrideRepository {
	return &OverrideRepository{db: conn}
}

const listOverridesSQL = `SELECT user_id, module, can_view, can_create, can_update, can_delete, can_export, can_admin
FROM user_permission_overrides WHERE user_id = $1 ORDER BY module`

// ListForUser returns the overrides of a user ordered by module.
func (r *OverrideRepository) ListForUser(ctx context.Context, userID int64) ([]Override, error) {
	rows, err := r.db.Query(ctx, listOverridesSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("rbac: list overrides: %w", err)
	}
	defer rows.Close()
	var out []Override
	for rows.Next() {
		var (
			o      Override
			module string
		)
		if err := rows.Scan(&o.UserID, &module, &o.Grants.View, &o.Grants.Create, &o.Grants.Update, &o.Grants.Delete, &o.Grants.Export, &o.Grants.Admin); err != nil {
			return nil, fmt.Errorf("rbac: scan override: %w", err)
		}
		o.Module = Module(module)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rbac: list overrides: %w", err)
	}
	return out, nil
}

const deleteOverridesSQL = `DELETE FROM user_permission_overrides WHERE user_id = $1`

const insertOverrideSQL = `INSERT INTO user_permission_overrides
(user_id, module, can_view, can_create, can_update, can_delete, can_export, can_admin)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// ReplaceForUser swaps the whole override set of a user in one transaction.
func (r *OverrideRepository) ReplaceForUser(ctx context.Context, userID int64, overrides []Override) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, deleteOverridesSQL, userID); err != nil {
			return fmt.Errorf("rbac: clear overrides: %w", err)
		}
		for _, o := range overrides {
			g := o.Grants
			if _, err := tx.Exec(ctx, insertOverrideSQL, userID, string(o.Module), g.View, g.Create, g.Update, g.Delete, g.Export, g.Admin); err != nil {
				return fmt.Errorf("rbac: insert override %s: %w", o.Module, err)
			}
		}
		return nil
	})
}

var _ OverrideStore = (*OverrideRepository)(nil)

// OverrideService caches override lookups per user.
type OverrideService struct {
	store  OverrideStore
	cache  *expirable.LRU[int64, []Override]
	logger *slog.Logger
}

// NewOverrideService wraps store with an expiring LRU cache.
func NewOverrideService(store OverrideStore, ttl time.Duration, logger *slog.Logger) *OverrideService {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OverrideService{
		store:  store,
		cache:  expirable.NewLRU[int64, []Override](1024, nil, ttl),
		logger: logger,
	}
}

// ForUser returns the overrides of userID, from cache when fresh.
func (s *OverrideService) ForUser(ctx context.Context, userID int64) ([]Override, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	if cached, ok := s.cache.Get(userID); ok {
		return cached, nil
	}
	overrides, err := s.store.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.cache.Add(userID, overrides)
	return overrides, nil
}

// Replace stores a new override set and drops the cached entry.
func (s *OverrideService) Replace(ctx context.Context, userID int64, overrides []Override) error {
	for _, o := range overrides {
		if !o.Module.IsKnown() {
			return fmt.Errorf("rbac: unknown module %q", o.Module)
		}
	}
	if err := s.store.ReplaceForUser(ctx, userID, overrides); err != nil {
		return err
	}
	s.cache.Remove(userID)
	s.logger.Info("permission overrides replaced", slog.Int64("user_id", userID), slog.Int("count", len(overrides)))
	return nil
}
