package db

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-engine/pkg/config"
	"github.com/angelmondragon/marketplace-engine/pkg/logger"
)

type testModel struct {
	ID   int
	Name string `gorm:"uniqueIndex"`
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), gormConfig(newQueryLogger(nil, 0)))
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&testModel{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return conn
}

func countModels(t *testing.T, conn *gorm.DB) int64 {
	t.Helper()
	var count int64
	if err := conn.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	return count
}

func TestWithTxCommitsAndRollsBack(t *testing.T) {
	conn := newTestDB(t)
	client := Wrap(conn)
	ctx := context.Background()

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testModel{Name: "committed"}).Error
	}))
	require.EqualValues(t, 1, countModels(t, conn))

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{Name: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.EqualError(t, err, "boom")
	require.EqualValues(t, 1, countModels(t, conn))
}

func TestWithTxReplaysSerializationFailures(t *testing.T) {
	conn := newTestDB(t)
	client := &Client{conn: conn, txRetries: 2}

	attempts := 0
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		attempts++
		if err := tx.Create(&testModel{Name: fmt.Sprintf("try-%d", attempts)}).Error; err != nil {
			return err
		}
		if attempts == 1 {
			return fmt.Errorf("update: %w", &pgconn.PgError{Code: codeSerializationFailure})
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, attempts)
	require.EqualValues(t, 1, countModels(t, conn))
}

func TestWithTxStopsReplayingAfterRetries(t *testing.T) {
	client := &Client{conn: newTestDB(t), txRetries: 1}

	attempts := 0
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		attempts++
		return &pgconn.PgError{Code: codeDeadlockDetected}
	})
	require.True(t, IsSerializationFailure(err))
	require.Equal(t, 2, attempts)
}

func TestWithTxDoesNotReplayOtherErrors(t *testing.T) {
	client := &Client{conn: newTestDB(t), txRetries: 3}

	attempts := 0
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		attempts++
		return &pgconn.PgError{Code: codeUniqueViolation}
	})
	require.Error(t, err)
	require.Equal(t, 1, attempts)
}

func TestIsUniqueViolation(t *testing.T) {
	conn := newTestDB(t)
	require.NoError(t, conn.Create(&testModel{Name: "dup"}).Error)

	err := conn.Create(&testModel{Name: "dup"}).Error
	require.Error(t, err)
	require.True(t, IsUniqueViolation(err))
	require.True(t, IsUniqueViolation(err, "test_models.name"))
	require.False(t, IsUniqueViolation(err, "orders.id"))
	require.False(t, IsUniqueViolation(errors.New("other")))
	require.False(t, IsUniqueViolation(nil))

	pgErr := &pgconn.PgError{Code: codeUniqueViolation, ConstraintName: "settlements_period_key"}
	require.True(t, IsUniqueViolation(pgErr, "settlements_period_key"))
	require.False(t, IsUniqueViolation(pgErr, "payouts_pkey"))
}

func TestNewSQLiteDriver(t *testing.T) {
	cfg := config.DBConfig{
		Driver: config.DBDriverSQLite,
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
	}
	client, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()))

	_, err = New(context.Background(), config.DBConfig{}, nil)
	require.ErrorContains(t, err, "DSN is required")
}

func TestQueryLoggerReportsFailedAndSlowStatements(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: buf, Format: "json"})
	q := newQueryLogger(logg, 50*time.Millisecond)
	ctx := context.Background()
	stmt := func() (string, int64) { return "SELECT 1", 1 }

	q.Trace(ctx, time.Now(), stmt, nil)
	q.Trace(ctx, time.Now(), stmt, gorm.ErrRecordNotFound)
	require.Zero(t, buf.Len())

	q.Trace(ctx, time.Now(), stmt, errors.New("syntax error"))
	require.Contains(t, buf.String(), `"message":"query failed"`)
	require.Contains(t, buf.String(), `"sql":"SELECT 1"`)

	buf.Reset()
	q.Trace(ctx, time.Now().Add(-time.Second), stmt, nil)
	require.Contains(t, buf.String(), `"message":"slow query"`)

	buf.Reset()
	q.LogMode(1).Trace(ctx, time.Now().Add(-time.Second), stmt, errors.New("ignored"))
	require.Zero(t, buf.Len())
}
