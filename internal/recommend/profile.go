package recommend

import (
	"context"

	"bookshare/internal/storage"
)

// Profile holds a reader's derived genre and author affinity weights. Weights
// are sums of the ratings the reader gave to books of that genre/author;
// unrated completions contribute nothing.
type Profile struct {
	Genres           map[string]float64
	Authors          map[string]float64
	TotalCompletions int
}

// BuildProfile derives the reader's profile from their completion history.
// A reader with no rated completions yields empty weight maps, which is valid
// scorer input.
func BuildProfile(ctx context.Context, db storage.Storage, readerID string) (Profile, error) {
	history, err := db.GetCompletionHistory(ctx, readerID)
	if err != nil {
		return Profile{}, err
	}

	profile := Profile{
		Genres:           make(map[string]float64),
		Authors:          make(map[string]float64),
		TotalCompletions: len(history),
	}

	for _, event := range history {
		if !event.Rated() {
			continue
		}
		book, err := db.GetBook(ctx, event.BookID)
		if err != nil {
			return Profile{}, err
		}
		profile.Genres[book.Genre] += float64(event.Rating)
		profile.Authors[book.Author] += float64(event.Rating)
	}

	return profile, nil
}
