package recommend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookshare/internal/models"
	"bookshare/internal/storage/stubs"
)

func seedBook(t *testing.T, db *stubs.MockDB, id, title, author, genre string) {
	t.Helper()
	err := db.AddBook(context.Background(), models.Book{
		ID:         id,
		Title:      title,
		Author:     author,
		Genre:      genre,
		AgeBracket: models.AgeBracket9to12,
		Available:  true,
		Community:  "Maple Street",
	})
	require.NoError(t, err)
}

func seedCompletion(t *testing.T, db *stubs.MockDB, readerID, bookID string, rating int, day time.Time) {
	t.Helper()
	err := db.AppendCompletion(context.Background(), models.CompletionEvent{
		ID:          readerID + "-" + bookID,
		ReaderID:    readerID,
		BookID:      bookID,
		Rating:      rating,
		CompletedAt: day,
	})
	require.NoError(t, err)
}

func TestBuildProfile(t *testing.T) {
	db := stubs.NewMockDB()
	ctx := context.Background()

	require.NoError(t, db.ProvisionReader(ctx, models.Reader{ID: "r1", Name: "Maya", Community: "Maple Street", Age: 10}))
	seedBook(t, db, "b1", "Harry Potter", "J.K. Rowling", "Fantasy")
	seedBook(t, db, "b2", "Percy Jackson", "Rick Riordan", "Fantasy")
	seedBook(t, db, "b3", "Wonder", "R.J. Palacio", "Drama")

	day := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	seedCompletion(t, db, "r1", "b1", 5, day)
	seedCompletion(t, db, "r1", "b2", 4, day)
	seedCompletion(t, db, "r1", "b3", 0, day) // unrated, contributes nothing

	profile, err := BuildProfile(ctx, db, "r1")
	require.NoError(t, err)

	assert.Equal(t, 3, profile.TotalCompletions)
	assert.Equal(t, 9.0, profile.Genres["Fantasy"])
	assert.NotContains(t, profile.Genres, "Drama")
	assert.Equal(t, 5.0, profile.Authors["J.K. Rowling"])
	assert.Equal(t, 4.0, profile.Authors["Rick Riordan"])
	assert.NotContains(t, profile.Authors, "R.J. Palacio")
}

func TestBuildProfile_NoHistory(t *testing.T) {
	db := stubs.NewMockDB()
	ctx := context.Background()

	require.NoError(t, db.ProvisionReader(ctx, models.Reader{ID: "r1", Name: "Maya", Community: "Maple Street", Age: 10}))

	profile, err := BuildProfile(ctx, db, "r1")
	require.NoError(t, err)

	assert.Empty(t, profile.Genres)
	assert.Empty(t, profile.Authors)
	assert.Zero(t, profile.TotalCompletions)
}
