package recommend

import (
	"context"
	"sort"

	"bookshare/internal/models"
)

// Similarity scores: books are compared on genre and author only, within the
// reference book's age bracket.
const (
	genreMatchScore  = 3
	authorMatchScore = 2
)

// SimilarityScore computes the 0-5 match score between two books.
func SimilarityScore(reference, other models.Book) int {
	score := 0
	if other.Genre == reference.Genre {
		score += genreMatchScore
	}
	if other.Author == reference.Author {
		score += authorMatchScore
	}
	return score
}

// FindSimilarBooks ranks available same-age-bracket books by similarity to
// the reference book. Returns storage.ErrNotFound (wrapped by GetBook) when
// the reference does not exist.
func (s *Service) FindSimilarBooks(ctx context.Context, bookID string, limit int) ([]models.SimilarBook, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	reference, err := s.db.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}

	candidates, err := s.db.ListAvailableByAgeBracket(ctx, reference.AgeBracket, reference.ID)
	if err != nil {
		return nil, err
	}

	similar := make([]models.SimilarBook, 0, len(candidates))
	for _, book := range candidates {
		similar = append(similar, models.SimilarBook{
			Book:  book,
			Score: SimilarityScore(reference, book),
		})
	}

	// Candidates arrive ordered by book id; stable sort makes score ties
	// deterministic (id ascending).
	sort.SliceStable(similar, func(i, j int) bool {
		return similar[i].Score > similar[j].Score
	})

	if limit < len(similar) {
		similar = similar[:limit]
	}

	return similar, nil
}
