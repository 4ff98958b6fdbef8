package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campus-notify-go/internal/models"
)

func seed(t *testing.T, s *MemoryStore, recipientID, n int) []models.Notification {
	t.Helper()
	out := make([]models.Notification, 0, n)
	for i := 0; i < n; i++ {
		item, err := s.Create(context.Background(), recipientID, models.CategoryNotice, "t", "b", 0)
		require.NoError(t, err)
		out = append(out, item)
	}
	return out
}

func TestMemoryStore_ListByRecipient(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seed(t, s, 1, 5)
	seed(t, s, 2, 2) // another recipient, must not leak

	t.Run("newest first with keyset pages", func(t *testing.T) {
		page1, next, err := s.ListByRecipient(ctx, 1, 0, 2)
		require.NoError(t, err)
		require.Len(t, page1, 2)
		assert.Equal(t, 5, page1[0].ID)
		assert.Equal(t, 4, page1[1].ID)
		require.Equal(t, 4, next)

		page2, next, err := s.ListByRecipient(ctx, 1, next, 2)
		require.NoError(t, err)
		require.Len(t, page2, 2)
		assert.Equal(t, 3, page2[0].ID)
		assert.Equal(t, 2, page2[1].ID)
		require.Equal(t, 2, next)

		page3, next, err := s.ListByRecipient(ctx, 1, next, 2)
		require.NoError(t, err)
		require.Len(t, page3, 1)
		assert.Equal(t, 1, page3[0].ID)
		assert.Zero(t, next, "last page has no cursor")
	})

	t.Run("scoped to recipient", func(t *testing.T) {
		items, _, err := s.ListByRecipient(ctx, 2, 0, 10)
		require.NoError(t, err)
		assert.Len(t, items, 2)
	})
}

func TestMemoryStore_MarkRead(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	items := seed(t, s, 1, 2)

	changed, err := s.MarkRead(ctx, 1, items[0].ID)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.MarkRead(ctx, 1, items[0].ID)
	require.NoError(t, err)
	assert.False(t, changed, "second flip is a no-op")

	changed, err = s.MarkRead(ctx, 2, items[1].ID)
	require.NoError(t, err)
	assert.False(t, changed, "wrong recipient cannot flip the record")

	changed, err = s.MarkRead(ctx, 1, 999)
	require.NoError(t, err)
	assert.False(t, changed)

	count, err := s.UnreadCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMemoryStore_MarkAllRead(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seed(t, s, 1, 3)
	seed(t, s, 2, 1)

	count, err := s.MarkAllRead(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	count, err = s.MarkAllRead(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, count)

	other, err := s.UnreadCount(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, other, "other recipients untouched")
}
