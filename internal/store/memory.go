package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"campus-notify-go/internal/models"
)

// MemoryStore is an in-process NotificationStore used by tests and
// single-node development runs. It applies the same conditional,
// idempotent mutation semantics as the Postgres implementation.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int
	items  map[int]models.Notification
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[int]models.Notification)}
}

func (s *MemoryStore) Create(ctx context.Context, recipientID int, category models.Category, title, body string, relatedID int) (models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	n := models.Notification{
		ID:          s.nextID,
		RecipientID: recipientID,
		Category:    category,
		Title:       title,
		Body:        body,
		RelatedID:   relatedID,
		CreatedAt:   time.Now().UTC(),
	}
	s.items[n.ID] = n
	return n, nil
}

func (s *MemoryStore) ListByRecipient(ctx context.Context, recipientID, cursor, limit int) ([]models.Notification, int, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var all []models.Notification
	for _, n := range s.items {
		if n.RecipientID != recipientID {
			continue
		}
		if cursor > 0 && n.ID >= cursor {
			continue
		}
		all = append(all, n)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })

	nextCursor := 0
	if len(all) > limit {
		all = all[:limit]
		nextCursor = all[len(all)-1].ID
	}
	return all, nextCursor, nil
}

func (s *MemoryStore) UnreadCount(ctx context.Context, recipientID int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, n := range s.items {
		if n.RecipientID == recipientID && !n.Read {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) MarkRead(ctx context.Context, recipientID, notificationID int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.items[notificationID]
	if !ok || n.RecipientID != recipientID || n.Read {
		return false, nil
	}
	n.Read = true
	s.items[notificationID] = n
	return true, nil
}

func (s *MemoryStore) MarkAllRead(ctx context.Context, recipientID int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, n := range s.items {
		if n.RecipientID == recipientID && !n.Read {
			n.Read = true
			s.items[id] = n
			count++
		}
	}
	return count, nil
}
