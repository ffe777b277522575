package repo

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketplace-engine/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-engine/pkg/db/models"
	"github.com/angelmondragon/marketplace-engine/pkg/enums"
	"github.com/angelmondragon/marketplace-engine/pkg/pagination"
)

func TestBaseDBScopesContext(t *testing.T) {
	db := dbtest.Open(t)
	base := NewBase(db)

	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "value")
	scoped := base.DB(ctx)
	require.NotNil(t, scoped.Statement)
	assert.Equal(t, ctx, scoped.Statement.Context)

	assert.Same(t, db, base.DB(nil))
}

func TestBaseLockedAddsLockingClause(t *testing.T) {
	locked := NewBase(dbtest.Open(t)).Locked(context.Background())
	_, ok := locked.Statement.Clauses[clause.Locking{}.Name()]
	assert.True(t, ok, "expected locking clause on statement")
}

func TestBaseBindSwapsConnection(t *testing.T) {
	db := dbtest.Open(t)
	other := db.Session(&gorm.Session{NewDB: true})
	assert.Same(t, other, NewBase(db).Bind(other).db)
}

func TestNewestFirstWalksPages(t *testing.T) {
	db := dbtest.Open(t)
	userID := uuid.New()
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	// Two rows share a timestamp so the id tiebreak is exercised.
	stamps := []time.Time{base, base.Add(time.Minute), base.Add(time.Minute), base.Add(2 * time.Minute)}
	for _, at := range stamps {
		require.NoError(t, db.Create(&models.Notification{
			ID:        uuid.New(),
			UserID:    userID,
			Type:      enums.NotificationTypeSystem,
			Title:     "t",
			Message:   "m",
			CreatedAt: at,
		}).Error)
	}

	var seen []uuid.UUID
	var cursor *pagination.Cursor
	for page := 0; page < 4; page++ {
		var rows []models.Notification
		query := db.Model(&models.Notification{}).Where("user_id = ?", userID)
		require.NoError(t, NewestFirst(query, cursor, 2).Find(&rows).Error)
		if len(rows) == 0 {
			break
		}
		for _, row := range rows {
			seen = append(seen, row.ID)
		}
		last := rows[len(rows)-1]
		cursor = &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}

	assert.Len(t, seen, len(stamps))
	unique := map[uuid.UUID]struct{}{}
	for _, id := range seen {
		unique[id] = struct{}{}
	}
	assert.Len(t, unique, len(stamps), "pages must not overlap")
}
