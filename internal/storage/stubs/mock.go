package stubs

import (
	"context"
	"sort"
	"sync"
	"time"

	"bookshare/internal/models"
	"bookshare/internal/storage"
)

// borrow is a minimal borrow-ledger row; the real ledger is owned by an
// external collaborator, the mock only keeps what the queries need.
type borrow struct {
	BookID     string
	BorrowerID string
	BorrowDate time.Time
	Active     bool
}

// MockDB is an in-memory implementation of the Storage interface for testing
type MockDB struct {
	mu          sync.RWMutex
	readers     map[string]models.Reader
	books       map[string]models.Book
	stats       map[string]models.ReaderStats
	completions []models.CompletionEvent
	borrows     []borrow
}

// NewMockDB creates a new mock database
func NewMockDB() *MockDB {
	return &MockDB{
		readers: make(map[string]models.Reader),
		books:   make(map[string]models.Book),
		stats:   make(map[string]models.ReaderStats),
	}
}

// Initialize is a no-op for the mock; tests seed their own data.
func (m *MockDB) Initialize(ctx context.Context) error {
	return nil
}

// GetReader returns the reader or storage.ErrNotFound.
func (m *MockDB) GetReader(ctx context.Context, readerID string) (models.Reader, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	reader, ok := m.readers[readerID]
	if !ok {
		return models.Reader{}, storage.ErrNotFound
	}
	return reader, nil
}

// ProvisionReader creates the reader and a zero-valued stats record.
func (m *MockDB) ProvisionReader(ctx context.Context, reader models.Reader) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.readers[reader.ID] = reader
	if _, ok := m.stats[reader.ID]; !ok {
		m.stats[reader.ID] = models.ReaderStats{ReaderID: reader.ID}
	}
	return nil
}

// GetBook returns the book or storage.ErrNotFound.
func (m *MockDB) GetBook(ctx context.Context, bookID string) (models.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	book, ok := m.books[bookID]
	if !ok {
		return models.Book{}, storage.ErrNotFound
	}
	return book, nil
}

// AddBook adds a book to the catalog.
func (m *MockDB) AddBook(ctx context.Context, book models.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.books[book.ID] = book
	return nil
}

// AddBorrow appends a borrow-ledger row. Test helper, not part of Storage.
func (m *MockDB) AddBorrow(bookID, borrowerID string, borrowDate time.Time, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.borrows = append(m.borrows, borrow{
		BookID:     bookID,
		BorrowerID: borrowerID,
		BorrowDate: borrowDate,
		Active:     active,
	})
}

// GetCompletionHistory returns all completion events for the reader.
func (m *MockDB) GetCompletionHistory(ctx context.Context, readerID string) ([]models.CompletionEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var history []models.CompletionEvent
	for _, e := range m.completions {
		if e.ReaderID == readerID {
			history = append(history, e)
		}
	}
	return history, nil
}

// AppendCompletion appends an event to the ledger.
func (m *MockDB) AppendCompletion(ctx context.Context, event models.CompletionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.completions = append(m.completions, event)
	return nil
}

// GetCandidatePool returns eligible books ordered by book id ascending.
func (m *MockDB) GetCandidatePool(ctx context.Context, community string, bracket models.AgeBracket, excludeReaderID string) ([]models.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	completed := make(map[string]bool)
	for _, e := range m.completions {
		if e.ReaderID == excludeReaderID {
			completed[e.BookID] = true
		}
	}
	borrowed := make(map[string]bool)
	for _, b := range m.borrows {
		if b.BorrowerID == excludeReaderID && b.Active {
			borrowed[b.BookID] = true
		}
	}

	var pool []models.Book
	for _, book := range m.books {
		if book.Community != community || book.AgeBracket != bracket || !book.Available {
			continue
		}
		if completed[book.ID] || borrowed[book.ID] {
			continue
		}
		pool = append(pool, book)
	}

	sort.Slice(pool, func(i, j int) bool {
		return pool[i].ID < pool[j].ID
	})

	return pool, nil
}

// GetCommunityAverageRating returns the mean rating over rated completions.
func (m *MockDB) GetCommunityAverageRating(ctx context.Context, bookID string) (float64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sum, count := 0, 0
	for _, e := range m.completions {
		if e.BookID == bookID && e.Rated() {
			sum += e.Rating
			count++
		}
	}
	if count == 0 {
		return 0, false, nil
	}
	return float64(sum) / float64(count), true, nil
}

// GetPeerAffinityCount counts distinct other readers sharing at least one
// book that both parties rated >= 4 with the given reader.
func (m *MockDB) GetPeerAffinityCount(ctx context.Context, readerID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	liked := make(map[string]bool)
	for _, e := range m.completions {
		if e.ReaderID == readerID && e.Rating >= 4 {
			liked[e.BookID] = true
		}
	}

	peers := make(map[string]bool)
	for _, e := range m.completions {
		if e.ReaderID != readerID && e.Rating >= 4 && liked[e.BookID] {
			peers[e.ReaderID] = true
		}
	}
	return len(peers), nil
}

// ListAvailableByAgeBracket returns available books of the bracket ordered by
// book id ascending, excluding the given id.
func (m *MockDB) ListAvailableByAgeBracket(ctx context.Context, bracket models.AgeBracket, excludeBookID string) ([]models.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var books []models.Book
	for _, book := range m.books {
		if book.ID == excludeBookID || book.AgeBracket != bracket || !book.Available {
			continue
		}
		books = append(books, book)
	}

	sort.Slice(books, func(i, j int) bool {
		return books[i].ID < books[j].ID
	})

	return books, nil
}

// GetTrendingBooks counts borrows per book since the cutoff.
func (m *MockDB) GetTrendingBooks(ctx context.Context, community string, since time.Time, limit int) ([]models.TrendingBook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[string]int)
	for _, b := range m.borrows {
		if b.BorrowDate.Before(since) {
			continue
		}
		book, ok := m.books[b.BookID]
		if !ok || book.Community != community {
			continue
		}
		counts[b.BookID]++
	}

	var trending []models.TrendingBook
	for bookID, count := range counts {
		trending = append(trending, models.TrendingBook{Book: m.books[bookID], BorrowCount: count})
	}

	sort.Slice(trending, func(i, j int) bool {
		if trending[i].BorrowCount != trending[j].BorrowCount {
			return trending[i].BorrowCount > trending[j].BorrowCount
		}
		return trending[i].Book.ID < trending[j].Book.ID
	})

	if limit > 0 && limit < len(trending) {
		trending = trending[:limit]
	}

	return trending, nil
}

// GetReaderStats returns the stats record or storage.ErrNotFound.
func (m *MockDB) GetReaderStats(ctx context.Context, readerID string) (models.ReaderStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats, ok := m.stats[readerID]
	if !ok {
		return models.ReaderStats{}, storage.ErrNotFound
	}
	// Copy the badge slice so callers cannot mutate stored state.
	stats.Badges = append([]string(nil), stats.Badges...)
	return stats, nil
}

// SaveReaderStats persists the record if the version still matches, bumping
// it on success. Returns storage.ErrConflict on a stale version.
func (m *MockDB) SaveReaderStats(ctx context.Context, stats models.ReaderStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.stats[stats.ReaderID]
	if !ok {
		return storage.ErrNotFound
	}
	if current.Version != stats.Version {
		return storage.ErrConflict
	}

	stats.Version++
	stats.Badges = append([]string(nil), stats.Badges...)
	m.stats[stats.ReaderID] = stats
	return nil
}

// GetLeaderboardRows returns reader/stats pairs for the community.
func (m *MockDB) GetLeaderboardRows(ctx context.Context, community string) ([]models.LeaderboardRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var rows []models.LeaderboardRow
	for _, reader := range m.readers {
		if reader.Community != community {
			continue
		}
		stats, ok := m.stats[reader.ID]
		if !ok {
			continue
		}
		rows = append(rows, models.LeaderboardRow{Reader: reader, Stats: stats})
	}
	return rows, nil
}

// Close does nothing for mock DB
func (m *MockDB) Close() error {
	return nil
}
