package recommend

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"bookshare/internal/models"
	"bookshare/internal/storage"
)

// Scoring weights for the content/collaborative hybrid. The scorer is a
// deterministic heuristic, not a trained model; the same inputs always
// produce the same ranking.
const (
	genreWeightFactor  = 2.0
	authorWeightFactor = 1.5
	neutralRating      = 3.0
	peerAffinityFactor = 0.5

	// DefaultLimit is used when a caller passes a non-positive limit.
	DefaultLimit = 5

	// DefaultTrendingWindowDays bounds the borrow-ledger lookback for the
	// trending surface.
	DefaultTrendingWindowDays = 30
)

// Service ranks catalog books for readers. All state lives in storage.
type Service struct {
	db     storage.Storage
	logger *zap.Logger
}

// NewService creates a recommendation service
func NewService(db storage.Storage, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// RecommendBooks ranks the reader's candidate pool by the hybrid score and
// returns the top limit entries. An empty pool yields an empty result.
func (s *Service) RecommendBooks(ctx context.Context, readerID string, limit int) ([]models.ScoredBook, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	reader, err := s.db.GetReader(ctx, readerID)
	if err != nil {
		return nil, err
	}

	profile, err := BuildProfile(ctx, s.db, readerID)
	if err != nil {
		return nil, err
	}

	pool, err := s.db.GetCandidatePool(ctx, reader.Community, reader.AgeBracket(), readerID)
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		s.logger.Info("empty candidate pool",
			zap.String("reader_id", readerID),
			zap.String("community", reader.Community))
		return []models.ScoredBook{}, nil
	}

	peerCount, err := s.db.GetPeerAffinityCount(ctx, readerID)
	if err != nil {
		return nil, err
	}
	peerBonus := float64(peerCount) * peerAffinityFactor

	scored := make([]models.ScoredBook, 0, len(pool))
	for _, book := range pool {
		score := profile.Genres[book.Genre]*genreWeightFactor +
			profile.Authors[book.Author]*authorWeightFactor

		avg, ok, err := s.db.GetCommunityAverageRating(ctx, book.ID)
		if err != nil {
			return nil, err
		}
		if ok {
			score += avg
		} else {
			score += neutralRating
		}

		score += peerBonus

		scored = append(scored, models.ScoredBook{Book: book, Score: score})
	}

	// Pool arrives ordered by book id; a stable sort keeps ties in that order.
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if limit < len(scored) {
		scored = scored[:limit]
	}

	s.logger.Debug("recommendations generated",
		zap.String("reader_id", readerID),
		zap.Int("pool_size", len(pool)),
		zap.Int("returned", len(scored)))

	return scored, nil
}

// RecommendByGenre ranks the reader's candidate pool within a single genre by
// community average rating (neutral 3.0 when unrated).
func (s *Service) RecommendByGenre(ctx context.Context, readerID, genre string, limit int) ([]models.ScoredBook, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	reader, err := s.db.GetReader(ctx, readerID)
	if err != nil {
		return nil, err
	}

	pool, err := s.db.GetCandidatePool(ctx, reader.Community, reader.AgeBracket(), readerID)
	if err != nil {
		return nil, err
	}

	scored := make([]models.ScoredBook, 0, len(pool))
	for _, book := range pool {
		if book.Genre != genre {
			continue
		}
		avg, ok, err := s.db.GetCommunityAverageRating(ctx, book.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			avg = neutralRating
		}
		scored = append(scored, models.ScoredBook{Book: book, Score: avg})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if limit < len(scored) {
		scored = scored[:limit]
	}

	return scored, nil
}

// GetTrendingBooks returns the community's most borrowed books within the
// window. The counts come from the borrow-ledger collaborator.
func (s *Service) GetTrendingBooks(ctx context.Context, community string, windowDays, limit int) ([]models.TrendingBook, error) {
	if windowDays <= 0 {
		windowDays = DefaultTrendingWindowDays
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	since := time.Now().UTC().AddDate(0, 0, -windowDays)
	return s.db.GetTrendingBooks(ctx, community, since, limit)
}
