package gamify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bookshare/internal/models"
	"bookshare/internal/storage"
)

// Points formula: a flat base per completion plus a streak bonus.
const (
	basePoints      = 10
	streakBonusPer  = 2
	maxSaveAttempts = 3
)

// InvalidRatingError is returned when a rating is outside 1-5.
type InvalidRatingError struct {
	Rating int
}

func (e InvalidRatingError) Error() string {
	return fmt.Sprintf("rating %d is out of range (want 1-5)", e.Rating)
}

// Service drives the per-reader streak/points/badge state machine and the
// community leaderboard. Updates to one reader's stats are serialized by a
// per-reader mutex; a version check in storage catches anything that still
// slips through and is retried with a fresh read.
type Service struct {
	db     storage.Storage
	logger *zap.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	now func() time.Time
}

// NewService creates a gamification service
func NewService(db storage.Storage, logger *zap.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) readerLock(readerID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	lock, ok := s.locks[readerID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[readerID] = lock
	}
	return lock
}

// RecordCompletion appends a completion event to the ledger and, for rated
// events, runs the streak transition. rating 0 means the reader did not rate;
// unrated events are recorded but do not drive the state machine, so the
// returned delta reflects current stats with zero points earned.
func (s *Service) RecordCompletion(ctx context.Context, readerID, bookID string, rating int, review string) (models.StatsDelta, error) {
	if rating < 0 || rating > 5 {
		return models.StatsDelta{}, InvalidRatingError{Rating: rating}
	}

	if _, err := s.db.GetReader(ctx, readerID); err != nil {
		return models.StatsDelta{}, fmt.Errorf("get reader: %w", err)
	}
	if _, err := s.db.GetBook(ctx, bookID); err != nil {
		return models.StatsDelta{}, fmt.Errorf("get book: %w", err)
	}

	lock := s.readerLock(readerID)
	lock.Lock()
	defer lock.Unlock()

	// Stats are provisioned at onboarding; a missing record is a hard failure
	// and nothing is appended to the ledger.
	stats, err := s.db.GetReaderStats(ctx, readerID)
	if err != nil {
		return models.StatsDelta{}, fmt.Errorf("get reader stats: %w", err)
	}

	eventDate := s.now()
	event := models.CompletionEvent{
		ID:          uuid.NewString(),
		ReaderID:    readerID,
		BookID:      bookID,
		Rating:      rating,
		Review:      review,
		CompletedAt: eventDate,
	}
	if err := s.db.AppendCompletion(ctx, event); err != nil {
		return models.StatsDelta{}, fmt.Errorf("append completion: %w", err)
	}

	if rating == 0 {
		return models.StatsDelta{
			TotalPoints:      stats.TotalPoints,
			CurrentStreak:    stats.CurrentStreak,
			LongestStreak:    stats.LongestStreak,
			TotalCompletions: stats.TotalCompletions,
		}, nil
	}

	for attempt := 1; ; attempt++ {
		updated, delta := applyCompletion(stats, eventDate)

		err := s.db.SaveReaderStats(ctx, updated)
		if err == nil {
			if len(delta.NewBadges) > 0 {
				s.logger.Info("badges unlocked",
					zap.String("reader_id", readerID),
					zap.Strings("badges", delta.NewBadges))
			}
			return delta, nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return models.StatsDelta{}, fmt.Errorf("save reader stats: %w", err)
		}
		if attempt >= maxSaveAttempts {
			return models.StatsDelta{}, fmt.Errorf("save reader stats after %d attempts: %w", attempt, err)
		}

		s.logger.Warn("stats version conflict, retrying",
			zap.String("reader_id", readerID),
			zap.Int("attempt", attempt))
		stats, err = s.db.GetReaderStats(ctx, readerID)
		if err != nil {
			return models.StatsDelta{}, fmt.Errorf("reload reader stats: %w", err)
		}
	}
}

// applyCompletion runs one state-machine transition and returns the updated
// stats together with the delta.
//
// Streak rules: first-ever activity starts at 1, a one-day gap extends the
// streak, a longer gap resets it to 1, and a same-day repeat leaves it
// unchanged (a streak counts distinct days). Points and badges accrue on
// every rated completion regardless.
func applyCompletion(stats models.ReaderStats, eventDate time.Time) (models.ReaderStats, models.StatsDelta) {
	switch {
	case stats.LastActivityDate.IsZero():
		stats.CurrentStreak = 1
	default:
		switch gap := daysBetween(stats.LastActivityDate, eventDate); {
		case gap == 1:
			stats.CurrentStreak++
		case gap > 1:
			stats.CurrentStreak = 1
		}
	}

	if stats.CurrentStreak > stats.LongestStreak {
		stats.LongestStreak = stats.CurrentStreak
	}

	pointsEarned := basePoints + stats.CurrentStreak*streakBonusPer
	stats.TotalPoints += pointsEarned
	stats.TotalCompletions++

	var newBadges []string
	for _, badge := range BadgeCatalog {
		if stats.HasBadge(badge.ID) {
			continue
		}
		if badge.Unlocked(stats.TotalCompletions, stats.CurrentStreak) {
			stats.Badges = append(stats.Badges, badge.ID)
			newBadges = append(newBadges, badge.ID)
		}
	}

	stats.LastActivityDate = eventDate

	return stats, models.StatsDelta{
		PointsEarned:     pointsEarned,
		TotalPoints:      stats.TotalPoints,
		NewBadges:        newBadges,
		CurrentStreak:    stats.CurrentStreak,
		LongestStreak:    stats.LongestStreak,
		TotalCompletions: stats.TotalCompletions,
	}
}

// daysBetween returns the number of calendar days (UTC) from a to b.
func daysBetween(a, b time.Time) int {
	a = a.UTC()
	b = b.UTC()
	dayA := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	dayB := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(dayB.Sub(dayA) / (24 * time.Hour))
}

// GetReaderStats returns the reader's stats together with the resolved badge
// definitions for display.
func (s *Service) GetReaderStats(ctx context.Context, readerID string) (models.ReaderStats, []Badge, error) {
	stats, err := s.db.GetReaderStats(ctx, readerID)
	if err != nil {
		return models.ReaderStats{}, nil, fmt.Errorf("get reader stats: %w", err)
	}

	badges := make([]Badge, 0, len(stats.Badges))
	for _, id := range stats.Badges {
		if badge, ok := BadgeByID(id); ok {
			badges = append(badges, badge)
		}
	}
	return stats, badges, nil
}
