package storage

import (
	"context"
	"errors"
	"time"

	"bookshare/internal/models"
)

// ErrNotFound is returned when a reader, book or stats record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned by SaveReaderStats when the record was modified
// since it was read (version mismatch). Callers re-read and retry.
var ErrConflict = errors.New("concurrent update conflict")

// Storage defines the interface for data storage operations
type Storage interface {
	// Reader operations
	GetReader(ctx context.Context, readerID string) (models.Reader, error)
	// ProvisionReader creates the reader together with a zero-valued stats
	// record. Stats must exist before the reader's first completion.
	ProvisionReader(ctx context.Context, reader models.Reader) error

	// Book operations
	GetBook(ctx context.Context, bookID string) (models.Book, error)
	AddBook(ctx context.Context, book models.Book) error

	// Completion ledger operations
	GetCompletionHistory(ctx context.Context, readerID string) ([]models.CompletionEvent, error)
	AppendCompletion(ctx context.Context, event models.CompletionEvent) error

	// Recommendation queries

	// GetCandidatePool returns available books of the given community and age
	// bracket, excluding books the reader has completed or currently holds an
	// active borrow on. Ordered by book id ascending so ranking output is
	// reproducible.
	GetCandidatePool(ctx context.Context, community string, bracket models.AgeBracket, excludeReaderID string) ([]models.Book, error)

	// GetCommunityAverageRating returns the mean rating across all readers'
	// rated completions of the book. ok is false when no rated completions
	// exist.
	GetCommunityAverageRating(ctx context.Context, bookID string) (avg float64, ok bool, err error)

	// GetPeerAffinityCount counts other readers who share at least one book
	// that both the given reader and that peer rated >= 4.
	GetPeerAffinityCount(ctx context.Context, readerID string) (int, error)

	// ListAvailableByAgeBracket returns available books of the bracket,
	// excluding the given book id, ordered by book id ascending.
	ListAvailableByAgeBracket(ctx context.Context, bracket models.AgeBracket, excludeBookID string) ([]models.Book, error)

	// GetTrendingBooks returns the community's most borrowed books since the
	// cutoff, ordered by borrow count descending then book id.
	GetTrendingBooks(ctx context.Context, community string, since time.Time, limit int) ([]models.TrendingBook, error)

	// Gamification operations

	// GetReaderStats returns ErrNotFound when no stats record exists; records
	// are provisioned at onboarding, never lazily.
	GetReaderStats(ctx context.Context, readerID string) (models.ReaderStats, error)

	// SaveReaderStats persists the record if stats.Version still matches the
	// stored version, then bumps it. Returns ErrConflict on mismatch.
	SaveReaderStats(ctx context.Context, stats models.ReaderStats) error

	GetLeaderboardRows(ctx context.Context, community string) ([]models.LeaderboardRow, error)

	// Lifecycle
	Initialize(ctx context.Context) error
	Close() error
}
