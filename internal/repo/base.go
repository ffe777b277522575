package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketplace-engine/pkg/pagination"
)

// Base is embedded by the domain repositories. It carries either the root
// connection or, after Bind, a transaction handle.
type Base struct {
	db *gorm.DB
}

func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the connection scoped to ctx. A nil ctx returns it unscoped.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Locked returns a query that takes row locks (SELECT ... FOR UPDATE) on the
// rows it reads. Dialects without row locks ignore the clause.
func (b Base) Locked(ctx context.Context) *gorm.DB {
	return b.DB(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
}

// Bind returns a Base that runs every query on tx.
func (b Base) Bind(tx *gorm.DB) Base {
	return Base{db: tx}
}

// NewestFirst orders query by (created_at, id) descending and resumes after
// cursor when one is given. Callers pass pagination.LimitWithBuffer so the
// extra row tells pagination.Slice whether another page exists.
func NewestFirst(query *gorm.DB, cursor *pagination.Cursor, limit int) *gorm.DB {
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	query = query.Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	return query
}
