package models

import "time"

// AgeBracket groups readers and books into catalog age ranges.
type AgeBracket string

const (
	AgeBracket5to8   AgeBracket = "5-8"
	AgeBracket9to12  AgeBracket = "9-12"
	AgeBracket13to16 AgeBracket = "13-16"
	AgeBracket16Plus AgeBracket = "16+"
)

// AgeBracketForAge maps a reader's age to the catalog bracket used for
// candidate filtering.
func AgeBracketForAge(age int) AgeBracket {
	switch {
	case age <= 8:
		return AgeBracket5to8
	case age <= 12:
		return AgeBracket9to12
	case age <= 16:
		return AgeBracket13to16
	default:
		return AgeBracket16Plus
	}
}

// Reader represents a community member who completes and rates books.
type Reader struct {
	ID        string
	Name      string
	Community string
	Age       int
}

// AgeBracket returns the catalog bracket for the reader's age.
func (r Reader) AgeBracket() AgeBracket {
	return AgeBracketForAge(r.Age)
}

// Book represents a catalog item owned by a community.
type Book struct {
	ID         string
	Title      string
	Author     string
	Genre      string
	AgeBracket AgeBracket
	Available  bool
	Community  string
}

// CompletionEvent records that a reader finished a book. Rating is 1-5, or 0
// when the reader did not rate. The ledger is append-only.
type CompletionEvent struct {
	ID          string
	ReaderID    string
	BookID      string
	Rating      int
	Review      string
	CompletedAt time.Time
}

// Rated reports whether the event carries a rating.
func (e CompletionEvent) Rated() bool {
	return e.Rating > 0
}

// ReaderStats is the per-reader gamification record. One row per reader,
// created zero-valued at onboarding and mutated only by the streak engine.
// Version backs the optimistic save check in storage.
type ReaderStats struct {
	ReaderID         string
	TotalCompletions int
	CurrentStreak    int
	LongestStreak    int
	TotalPoints      int
	Badges           []string
	LastActivityDate time.Time
	Version          uint64
}

// HasBadge reports whether the badge id is already unlocked.
func (s ReaderStats) HasBadge(id string) bool {
	for _, b := range s.Badges {
		if b == id {
			return true
		}
	}
	return false
}

// StatsDelta describes what a single completion event changed.
type StatsDelta struct {
	PointsEarned     int
	TotalPoints      int
	NewBadges        []string
	CurrentStreak    int
	LongestStreak    int
	TotalCompletions int
}

// ScoredBook is a recommendation candidate with its computed score.
type ScoredBook struct {
	Book  Book
	Score float64
}

// SimilarBook is a "find similar" result; Score is the integer 0-5
// genre/author match score.
type SimilarBook struct {
	Book  Book
	Score int
}

// TrendingBook is a borrow-ledger aggregate for the trending surface.
type TrendingBook struct {
	Book        Book
	BorrowCount int
}

// LeaderboardRow pairs a reader with their stats, as read from storage.
type LeaderboardRow struct {
	Reader Reader
	Stats  ReaderStats
}

// LeaderboardEntry is a ranked leaderboard position.
type LeaderboardEntry struct {
	Rank   int
	Reader Reader
	Stats  ReaderStats
}
