package ch

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"bookshare/internal/models"
	"bookshare/internal/storage"
)

type ClickHouseDB struct {
	conn clickhouse.Conn
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(host string, port int, database, user, password string, useTLS bool) (*ClickHouseDB, error) {
	addr := fmt.Sprintf("%s:%d", host, port)

	options := &clickhouse.Options{
		Addr:     []string{addr},
		Protocol: clickhouse.Native,
		Auth: clickhouse.Auth{
			Database: database,
			Username: user,
			Password: password,
		},
	}

	// Configure TLS if enabled
	if useTLS {
		options.TLS = &tls.Config{
			InsecureSkipVerify: false,
		}
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	// Test the connection
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Initialize is a no-op - tables are managed via migrations
func (db *ClickHouseDB) Initialize(ctx context.Context) error {
	// Tables are managed via migrations (see migrations/ directory)
	return nil
}

// GetReader returns the reader or storage.ErrNotFound.
func (db *ClickHouseDB) GetReader(ctx context.Context, readerID string) (models.Reader, error) {
	rows, err := db.conn.Query(ctx,
		`SELECT id, name, community, age FROM readers WHERE id = ? LIMIT 1`, readerID)
	if err != nil {
		return models.Reader{}, fmt.Errorf("failed to get reader: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return models.Reader{}, storage.ErrNotFound
	}

	var reader models.Reader
	var age int32
	if err := rows.Scan(&reader.ID, &reader.Name, &reader.Community, &age); err != nil {
		return models.Reader{}, fmt.Errorf("failed to scan reader: %w", err)
	}
	reader.Age = int(age)
	return reader, nil
}

// ProvisionReader creates the reader together with a zero-valued stats record.
func (db *ClickHouseDB) ProvisionReader(ctx context.Context, reader models.Reader) error {
	err := db.conn.Exec(ctx,
		`INSERT INTO readers (id, name, community, age) VALUES (?, ?, ?, ?)`,
		reader.ID, reader.Name, reader.Community, int32(reader.Age))
	if err != nil {
		return fmt.Errorf("failed to create reader: %w", err)
	}

	err = db.conn.Exec(ctx,
		`INSERT INTO reader_stats (reader_id, total_completions, current_streak, longest_streak, total_points, badges, last_activity, version)
		 VALUES (?, 0, 0, 0, 0, [], toDateTime(0), 0)`, reader.ID)
	if err != nil {
		return fmt.Errorf("failed to create reader stats: %w", err)
	}
	return nil
}

// GetBook returns the book or storage.ErrNotFound.
func (db *ClickHouseDB) GetBook(ctx context.Context, bookID string) (models.Book, error) {
	rows, err := db.conn.Query(ctx,
		`SELECT id, title, author, genre, age_bracket, available, community
		 FROM books FINAL WHERE id = ? LIMIT 1`, bookID)
	if err != nil {
		return models.Book{}, fmt.Errorf("failed to get book: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return models.Book{}, storage.ErrNotFound
	}

	book, err := scanBook(rows)
	if err != nil {
		return models.Book{}, err
	}
	return book, nil
}

// AddBook adds a book to the catalog.
func (db *ClickHouseDB) AddBook(ctx context.Context, book models.Book) error {
	err := db.conn.Exec(ctx,
		`INSERT INTO books (id, title, author, genre, age_bracket, available, community)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		book.ID, book.Title, book.Author, book.Genre, string(book.AgeBracket), book.Available, book.Community)
	if err != nil {
		return fmt.Errorf("failed to add book: %w", err)
	}
	return nil
}

type bookScanner interface {
	Scan(dest ...any) error
}

func scanBook(rows bookScanner) (models.Book, error) {
	var book models.Book
	var bracket string
	if err := rows.Scan(&book.ID, &book.Title, &book.Author, &book.Genre, &bracket, &book.Available, &book.Community); err != nil {
		return models.Book{}, fmt.Errorf("failed to scan book: %w", err)
	}
	book.AgeBracket = models.AgeBracket(bracket)
	return book, nil
}

// GetCompletionHistory returns all completion events for the reader.
func (db *ClickHouseDB) GetCompletionHistory(ctx context.Context, readerID string) ([]models.CompletionEvent, error) {
	rows, err := db.conn.Query(ctx,
		`SELECT id, reader_id, book_id, rating, review, completed_at
		 FROM completion_events WHERE reader_id = ? ORDER BY completed_at`, readerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get completion history: %w", err)
	}
	defer rows.Close()

	var history []models.CompletionEvent
	for rows.Next() {
		var event models.CompletionEvent
		var rating int32
		if err := rows.Scan(&event.ID, &event.ReaderID, &event.BookID, &rating, &event.Review, &event.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan completion event: %w", err)
		}
		event.Rating = int(rating)
		history = append(history, event)
	}
	return history, nil
}

// AppendCompletion appends an event to the ledger.
func (db *ClickHouseDB) AppendCompletion(ctx context.Context, event models.CompletionEvent) error {
	err := db.conn.Exec(ctx,
		`INSERT INTO completion_events (id, reader_id, book_id, rating, review, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.ID, event.ReaderID, event.BookID, int32(event.Rating), event.Review, event.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to append completion: %w", err)
	}
	return nil
}

// GetCandidatePool returns eligible books ordered by book id ascending.
func (db *ClickHouseDB) GetCandidatePool(ctx context.Context, community string, bracket models.AgeBracket, excludeReaderID string) ([]models.Book, error) {
	rows, err := db.conn.Query(ctx,
		`SELECT id, title, author, genre, age_bracket, available, community
		 FROM books FINAL
		 WHERE community = ?
		   AND age_bracket = ?
		   AND available = true
		   AND id NOT IN (SELECT book_id FROM completion_events WHERE reader_id = ?)
		   AND id NOT IN (SELECT book_id FROM borrow_records WHERE borrower_id = ? AND status = 'active')
		 ORDER BY id`,
		community, string(bracket), excludeReaderID, excludeReaderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get candidate pool: %w", err)
	}
	defer rows.Close()

	var pool []models.Book
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		pool = append(pool, book)
	}
	return pool, nil
}

// GetCommunityAverageRating returns the mean rating over rated completions.
func (db *ClickHouseDB) GetCommunityAverageRating(ctx context.Context, bookID string) (float64, bool, error) {
	rows, err := db.conn.Query(ctx,
		`SELECT sum(rating), count() FROM completion_events WHERE book_id = ? AND rating > 0`, bookID)
	if err != nil {
		return 0, false, fmt.Errorf("failed to get average rating: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return 0, false, nil
	}

	var sum int64
	var count uint64
	if err := rows.Scan(&sum, &count); err != nil {
		return 0, false, fmt.Errorf("failed to scan average rating: %w", err)
	}
	if count == 0 {
		return 0, false, nil
	}
	return float64(sum) / float64(count), true, nil
}

// GetPeerAffinityCount counts distinct other readers sharing at least one
// book both parties rated >= 4 with the given reader.
func (db *ClickHouseDB) GetPeerAffinityCount(ctx context.Context, readerID string) (int, error) {
	rows, err := db.conn.Query(ctx,
		`SELECT count(DISTINCT peer.reader_id)
		 FROM completion_events AS own
		 INNER JOIN completion_events AS peer ON own.book_id = peer.book_id
		 WHERE own.reader_id = ?
		   AND peer.reader_id != ?
		   AND own.rating >= 4
		   AND peer.rating >= 4`,
		readerID, readerID)
	if err != nil {
		return 0, fmt.Errorf("failed to get peer affinity count: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return 0, nil
	}

	var count uint64
	if err := rows.Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to scan peer affinity count: %w", err)
	}
	return int(count), nil
}

// ListAvailableByAgeBracket returns available books of the bracket ordered by
// book id ascending, excluding the given id.
func (db *ClickHouseDB) ListAvailableByAgeBracket(ctx context.Context, bracket models.AgeBracket, excludeBookID string) ([]models.Book, error) {
	rows, err := db.conn.Query(ctx,
		`SELECT id, title, author, genre, age_bracket, available, community
		 FROM books FINAL
		 WHERE age_bracket = ? AND available = true AND id != ?
		 ORDER BY id`,
		string(bracket), excludeBookID)
	if err != nil {
		return nil, fmt.Errorf("failed to list books by age bracket: %w", err)
	}
	defer rows.Close()

	var books []models.Book
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	return books, nil
}

// GetTrendingBooks counts borrows per book since the cutoff.
func (db *ClickHouseDB) GetTrendingBooks(ctx context.Context, community string, since time.Time, limit int) ([]models.TrendingBook, error) {
	rows, err := db.conn.Query(ctx,
		`SELECT b.id, b.title, b.author, b.genre, b.age_bracket, b.available, b.community, count() AS borrow_count
		 FROM borrow_records AS br
		 INNER JOIN books AS b ON br.book_id = b.id
		 WHERE b.community = ? AND br.borrow_date >= ?
		 GROUP BY b.id, b.title, b.author, b.genre, b.age_bracket, b.available, b.community
		 ORDER BY borrow_count DESC, b.id
		 LIMIT ?`,
		community, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get trending books: %w", err)
	}
	defer rows.Close()

	var trending []models.TrendingBook
	for rows.Next() {
		var entry models.TrendingBook
		var bracket string
		var count uint64
		if err := rows.Scan(&entry.Book.ID, &entry.Book.Title, &entry.Book.Author, &entry.Book.Genre,
			&bracket, &entry.Book.Available, &entry.Book.Community, &count); err != nil {
			return nil, fmt.Errorf("failed to scan trending book: %w", err)
		}
		entry.Book.AgeBracket = models.AgeBracket(bracket)
		entry.BorrowCount = int(count)
		trending = append(trending, entry)
	}
	return trending, nil
}

// RecordBorrow appends a borrow-ledger row. The ledger itself is owned by an
// external collaborator; this write exists for provisioning and tests.
func (db *ClickHouseDB) RecordBorrow(ctx context.Context, bookID, borrowerID string, borrowDate time.Time, status string) error {
	err := db.conn.Exec(ctx,
		`INSERT INTO borrow_records (book_id, borrower_id, borrow_date, status) VALUES (?, ?, ?, ?)`,
		bookID, borrowerID, borrowDate, status)
	if err != nil {
		return fmt.Errorf("failed to record borrow: %w", err)
	}
	return nil
}

// GetReaderStats returns the stats record or storage.ErrNotFound.
func (db *ClickHouseDB) GetReaderStats(ctx context.Context, readerID string) (models.ReaderStats, error) {
	rows, err := db.conn.Query(ctx,
		`SELECT reader_id, total_completions, current_streak, longest_streak, total_points, badges, last_activity, version
		 FROM reader_stats FINAL WHERE reader_id = ? LIMIT 1`, readerID)
	if err != nil {
		return models.ReaderStats{}, fmt.Errorf("failed to get reader stats: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return models.ReaderStats{}, storage.ErrNotFound
	}

	var stats models.ReaderStats
	var completions, current, longest, points int32
	var lastActivity time.Time
	if err := rows.Scan(&stats.ReaderID, &completions, &current, &longest, &points,
		&stats.Badges, &lastActivity, &stats.Version); err != nil {
		return models.ReaderStats{}, fmt.Errorf("failed to scan reader stats: %w", err)
	}
	stats.TotalCompletions = int(completions)
	stats.CurrentStreak = int(current)
	stats.LongestStreak = int(longest)
	stats.TotalPoints = int(points)
	// toDateTime(0) marks "no activity yet".
	if lastActivity.Unix() > 0 {
		stats.LastActivityDate = lastActivity
	}
	return stats, nil
}

// SaveReaderStats inserts a new stats row with a bumped version after checking
// the caller's version is still current. The ReplacingMergeTree keeps the
// highest version per reader. The check-then-insert is not atomic on its own;
// the streak engine serializes writers per reader, this check catches stale
// saves across processes.
func (db *ClickHouseDB) SaveReaderStats(ctx context.Context, stats models.ReaderStats) error {
	current, err := db.GetReaderStats(ctx, stats.ReaderID)
	if err != nil {
		return err
	}
	if current.Version != stats.Version {
		return storage.ErrConflict
	}

	lastActivity := stats.LastActivityDate
	if lastActivity.IsZero() {
		lastActivity = time.Unix(0, 0).UTC()
	}

	err = db.conn.Exec(ctx,
		`INSERT INTO reader_stats (reader_id, total_completions, current_streak, longest_streak, total_points, badges, last_activity, version)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		stats.ReaderID, int32(stats.TotalCompletions), int32(stats.CurrentStreak), int32(stats.LongestStreak),
		int32(stats.TotalPoints), stats.Badges, lastActivity, stats.Version+1)
	if err != nil {
		return fmt.Errorf("failed to save reader stats: %w", err)
	}
	return nil
}

// GetLeaderboardRows returns reader/stats pairs for the community.
func (db *ClickHouseDB) GetLeaderboardRows(ctx context.Context, community string) ([]models.LeaderboardRow, error) {
	rows, err := db.conn.Query(ctx,
		`SELECT r.id, r.name, r.community, r.age,
		        s.total_completions, s.current_streak, s.longest_streak, s.total_points, s.badges, s.last_activity, s.version
		 FROM reader_stats AS s FINAL
		 INNER JOIN readers AS r ON s.reader_id = r.id
		 WHERE r.community = ?`, community)
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard rows: %w", err)
	}
	defer rows.Close()

	var result []models.LeaderboardRow
	for rows.Next() {
		var row models.LeaderboardRow
		var age, completions, current, longest, points int32
		var lastActivity time.Time
		if err := rows.Scan(&row.Reader.ID, &row.Reader.Name, &row.Reader.Community, &age,
			&completions, &current, &longest, &points, &row.Stats.Badges, &lastActivity, &row.Stats.Version); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}
		row.Reader.Age = int(age)
		row.Stats.ReaderID = row.Reader.ID
		row.Stats.TotalCompletions = int(completions)
		row.Stats.CurrentStreak = int(current)
		row.Stats.LongestStreak = int(longest)
		row.Stats.TotalPoints = int(points)
		if lastActivity.Unix() > 0 {
			row.Stats.LastActivityDate = lastActivity
		}
		result = append(result, row)
	}
	return result, nil
}

// Close closes the database connection
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
