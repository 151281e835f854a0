package ch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clickhouseTC "github.com/testcontainers/testcontainers-go/modules/clickhouse"

	"bookshare/internal/models"
	"bookshare/internal/storage"
)

// runMigrations manually creates the schema (goose doesn't work well with
// ClickHouse inside the container lifecycle).
func runMigrations(ctx context.Context, db *ClickHouseDB) error {
	for _, table := range []string{"reader_stats", "borrow_records", "completion_events", "books", "readers"} {
		_ = db.conn.Exec(ctx, "DROP TABLE IF EXISTS "+table)
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS readers (
			id String,
			name String,
			community String,
			age Int32
		) ENGINE = MergeTree()
		ORDER BY id`,
		`CREATE TABLE IF NOT EXISTS books (
			id String,
			title String,
			author String,
			genre String,
			age_bracket String,
			available Bool,
			community String
		) ENGINE = ReplacingMergeTree()
		ORDER BY id`,
		`CREATE TABLE IF NOT EXISTS completion_events (
			id String,
			reader_id String,
			book_id String,
			rating Int32,
			review String,
			completed_at DateTime
		) ENGINE = MergeTree()
		ORDER BY (reader_id, completed_at)`,
		`CREATE TABLE IF NOT EXISTS borrow_records (
			book_id String,
			borrower_id String,
			borrow_date DateTime,
			status String
		) ENGINE = MergeTree()
		ORDER BY (book_id, borrow_date)`,
		`CREATE TABLE IF NOT EXISTS reader_stats (
			reader_id String,
			total_completions Int32,
			current_streak Int32,
			longest_streak Int32,
			total_points Int32,
			badges Array(String),
			last_activity DateTime,
			version UInt64
		) ENGINE = ReplacingMergeTree(version)
		ORDER BY reader_id`,
	}

	for _, stmt := range statements {
		if err := db.conn.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// setupTestDB creates a test ClickHouse instance using testcontainers
func setupTestDB(t *testing.T) (*ClickHouseDB, func()) {
	ctx := context.Background()

	clickhouseContainer, err := clickhouseTC.Run(ctx,
		"clickhouse/clickhouse-server:24.3.3.102-alpine",
		clickhouseTC.WithUsername("default"),
		clickhouseTC.WithPassword("password"),
		clickhouseTC.WithDatabase("default"),
	)
	require.NoError(t, err, "Failed to start ClickHouse container")

	host, err := clickhouseContainer.Host(ctx)
	require.NoError(t, err)

	port, err := clickhouseContainer.MappedPort(ctx, "9000/tcp")
	require.NoError(t, err)

	db, err := NewClickHouseDB(host, port.Int(), "default", "default", "password", false)
	require.NoError(t, err, "Failed to connect to ClickHouse")

	err = runMigrations(ctx, db)
	require.NoError(t, err, "Failed to run migrations")

	cleanup := func() {
		db.Close()
		clickhouseContainer.Terminate(ctx)
	}

	return db, cleanup
}

func seedCatalog(t *testing.T, db *ClickHouseDB) {
	t.Helper()
	ctx := context.Background()

	readers := []models.Reader{
		{ID: "r1", Name: "Maya", Community: "Maple Street", Age: 10},
		{ID: "r2", Name: "Theo", Community: "Maple Street", Age: 11},
	}
	for _, r := range readers {
		require.NoError(t, db.ProvisionReader(ctx, r))
	}

	books := []models.Book{
		{ID: "b1", Title: "Harry Potter", Author: "J.K. Rowling", Genre: "Fantasy", AgeBracket: models.AgeBracket9to12, Available: true, Community: "Maple Street"},
		{ID: "b2", Title: "Percy Jackson", Author: "Rick Riordan", Genre: "Fantasy", AgeBracket: models.AgeBracket9to12, Available: true, Community: "Maple Street"},
		{ID: "b3", Title: "Dune", Author: "Frank Herbert", Genre: "SciFi", AgeBracket: models.AgeBracket16Plus, Available: true, Community: "Maple Street"},
	}
	for _, b := range books {
		require.NoError(t, db.AddBook(ctx, b))
	}
}

func TestClickHouseDB_ReaderLifecycle(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	seedCatalog(t, db)

	reader, err := db.GetReader(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "Maya", reader.Name)
	assert.Equal(t, models.AgeBracket9to12, reader.AgeBracket())

	_, err = db.GetReader(ctx, "ghost")
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	// Provisioning also creates the zero-valued stats record.
	stats, err := db.GetReaderStats(ctx, "r1")
	require.NoError(t, err)
	assert.Zero(t, stats.TotalCompletions)
	assert.Zero(t, stats.TotalPoints)
	assert.True(t, stats.LastActivityDate.IsZero())
}

func TestClickHouseDB_CompletionHistory(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	seedCatalog(t, db)

	eventDate := time.Now().UTC().Truncate(time.Second)
	err := db.AppendCompletion(ctx, models.CompletionEvent{
		ID: "e1", ReaderID: "r1", BookID: "b1", Rating: 5, Review: "great", CompletedAt: eventDate,
	})
	require.NoError(t, err)

	history, err := db.GetCompletionHistory(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "b1", history[0].BookID)
	assert.Equal(t, 5, history[0].Rating)
	assert.Equal(t, "great", history[0].Review)
	assert.WithinDuration(t, eventDate, history[0].CompletedAt, time.Second)

	history, err = db.GetCompletionHistory(ctx, "r2")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestClickHouseDB_GetCandidatePool(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	seedCatalog(t, db)

	// r1 completed b1 and actively borrows b2.
	err := db.AppendCompletion(ctx, models.CompletionEvent{
		ID: "e1", ReaderID: "r1", BookID: "b1", Rating: 5, CompletedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.NoError(t, db.RecordBorrow(ctx, "b2", "r1", time.Now().UTC(), "active"))

	pool, err := db.GetCandidatePool(ctx, "Maple Street", models.AgeBracket9to12, "r1")
	require.NoError(t, err)
	assert.Empty(t, pool)

	pool, err = db.GetCandidatePool(ctx, "Maple Street", models.AgeBracket9to12, "r2")
	require.NoError(t, err)
	require.Len(t, pool, 2)
	assert.Equal(t, "b1", pool[0].ID)
	assert.Equal(t, "b2", pool[1].ID)
}

func TestClickHouseDB_GetCommunityAverageRating(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	seedCatalog(t, db)

	_, ok, err := db.GetCommunityAverageRating(ctx, "b1")
	require.NoError(t, err)
	assert.False(t, ok)

	events := []models.CompletionEvent{
		{ID: "e1", ReaderID: "r1", BookID: "b1", Rating: 5, CompletedAt: time.Now().UTC()},
		{ID: "e2", ReaderID: "r2", BookID: "b1", Rating: 4, CompletedAt: time.Now().UTC()},
		{ID: "e3", ReaderID: "r2", BookID: "b1", Rating: 0, CompletedAt: time.Now().UTC()},
	}
	for _, e := range events {
		require.NoError(t, db.AppendCompletion(ctx, e))
	}

	avg, ok, err := db.GetCommunityAverageRating(ctx, "b1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 4.5, avg)
}

func TestClickHouseDB_GetPeerAffinityCount(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	seedCatalog(t, db)

	events := []models.CompletionEvent{
		{ID: "e1", ReaderID: "r1", BookID: "b1", Rating: 5, CompletedAt: time.Now().UTC()},
		{ID: "e2", ReaderID: "r2", BookID: "b1", Rating: 4, CompletedAt: time.Now().UTC()},
		{ID: "e3", ReaderID: "r2", BookID: "b2", Rating: 5, CompletedAt: time.Now().UTC()},
	}
	for _, e := range events {
		require.NoError(t, db.AppendCompletion(ctx, e))
	}

	count, err := db.GetPeerAffinityCount(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestClickHouseDB_SaveReaderStats(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	seedCatalog(t, db)

	stats, err := db.GetReaderStats(ctx, "r1")
	require.NoError(t, err)

	stats.TotalCompletions = 1
	stats.CurrentStreak = 1
	stats.LongestStreak = 1
	stats.TotalPoints = 12
	stats.Badges = []string{"first_book"}
	stats.LastActivityDate = time.Now().UTC().Truncate(time.Second)
	require.NoError(t, db.SaveReaderStats(ctx, stats))

	reloaded, err := db.GetReaderStats(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.TotalCompletions)
	assert.Equal(t, 12, reloaded.TotalPoints)
	assert.Equal(t, []string{"first_book"}, reloaded.Badges)
	assert.Equal(t, stats.Version+1, reloaded.Version)
	assert.False(t, reloaded.LastActivityDate.IsZero())

	// Stale version must conflict.
	err = db.SaveReaderStats(ctx, stats)
	assert.True(t, errors.Is(err, storage.ErrConflict))
}

func TestClickHouseDB_GetLeaderboardRows(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	seedCatalog(t, db)

	stats, err := db.GetReaderStats(ctx, "r2")
	require.NoError(t, err)
	stats.TotalPoints = 40
	require.NoError(t, db.SaveReaderStats(ctx, stats))

	rows, err := db.GetLeaderboardRows(ctx, "Maple Street")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byID := make(map[string]models.LeaderboardRow)
	for _, row := range rows {
		byID[row.Reader.ID] = row
	}
	assert.Equal(t, 40, byID["r2"].Stats.TotalPoints)
	assert.Zero(t, byID["r1"].Stats.TotalPoints)
}

func TestClickHouseDB_GetTrendingBooks(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	seedCatalog(t, db)

	now := time.Now().UTC()
	require.NoError(t, db.RecordBorrow(ctx, "b1", "r1", now.AddDate(0, 0, -1), "returned"))
	require.NoError(t, db.RecordBorrow(ctx, "b1", "r2", now.AddDate(0, 0, -2), "returned"))
	require.NoError(t, db.RecordBorrow(ctx, "b2", "r1", now.AddDate(0, 0, -3), "returned"))
	require.NoError(t, db.RecordBorrow(ctx, "b2", "r2", now.AddDate(0, 0, -90), "returned"))

	trending, err := db.GetTrendingBooks(ctx, "Maple Street", now.AddDate(0, 0, -30), 5)
	require.NoError(t, err)
	require.Len(t, trending, 2)
	assert.Equal(t, "b1", trending[0].Book.ID)
	assert.Equal(t, 2, trending[0].BorrowCount)
	assert.Equal(t, "b2", trending[1].Book.ID)
	assert.Equal(t, 1, trending[1].BorrowCount)
}

func TestClickHouseDB_Close(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	err := db.Close()
	assert.NoError(t, err)

	// Second close should not panic
	err = db.Close()
	assert.NoError(t, err)
}
