package client

import (
	"sync"

	"campus-notify-go/internal/models"
)

// View is the client-local projection: an ordered, newest-first sequence
// of notification snapshots plus a single unread counter. All transitions
// are monotone (unread to read, never back), which is what lets duplicate
// and out-of-order deliveries commute.
//
// Mutations are only issued from the engine's event loop; the mutex exists
// so Snapshot and Unread can be read from other goroutines.
type View struct {
	mu     sync.RWMutex
	items  []models.Notification
	unread int
}

func NewView() *View {
	return &View{}
}

func (v *View) find(id int) int {
	for i := range v.items {
		if v.items[i].ID == id {
			return i
		}
	}
	return -1
}

// ApplyNew inserts the notification at the head of the view unless its id
// is already present. The counter is incremented only on an actual insert,
// which guards against the same record arriving on both the push and poll
// paths. Returns whether an insert happened.
func (v *View) ApplyNew(n models.Notification) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.find(n.ID) >= 0 {
		return false
	}

	v.items = append([]models.Notification{n}, v.items...)
	if !n.Read {
		v.unread++
	}
	return true
}

// ApplyRead flips one entry to read. Idempotent: a duplicate confirmation
// or a confirmation racing a local optimistic flip is a no-op, as is a
// confirmation for an id never seen locally (out-of-order arrival; a later
// catch-up fetch reconciles it).
func (v *View) ApplyRead(id int) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	i := v.find(id)
	if i < 0 || v.items[i].Read {
		return false
	}

	v.items[i].Read = true
	v.unread--
	return true
}

// ApplyAllRead marks every entry read and zeroes the counter
// unconditionally. This is a full-state overwrite that also corrects any
// prior counter drift.
func (v *View) ApplyAllRead() {
	v.mu.Lock()
	defer v.mu.Unlock()

	for i := range v.items {
		v.items[i].Read = true
	}
	v.unread = 0
}

// SetUnread replaces the counter with the authoritative server count,
// closing any gap left by push events missed while disconnected.
func (v *View) SetUnread(count int) {
	v.mu.Lock()
	v.unread = count
	v.mu.Unlock()
}

// Merge folds one fetched page into the view. New items are inserted with
// the same de-duplication rule as push events; items already present only
// have their read flag advanced (monotone), and local items absent from
// the page are left alone since fetches are paginated.
func (v *View) Merge(items []models.Notification) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, n := range items {
		i := v.find(n.ID)
		if i < 0 {
			v.insertOrdered(n)
			if !n.Read {
				v.unread++
			}
			continue
		}
		if n.Read && !v.items[i].Read {
			v.items[i].Read = true
			v.unread--
		}
	}
}

// insertOrdered places n by descending id so merged pages interleave with
// pushed items in server order. Caller holds the lock.
func (v *View) insertOrdered(n models.Notification) {
	pos := len(v.items)
	for i := range v.items {
		if n.ID > v.items[i].ID {
			pos = i
			break
		}
	}
	v.items = append(v.items, models.Notification{})
	copy(v.items[pos+1:], v.items[pos:])
	v.items[pos] = n
}

// Unread returns the current counter.
func (v *View) Unread() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.unread
}

// Snapshot returns a copy of the ordered view.
func (v *View) Snapshot() []models.Notification {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]models.Notification, len(v.items))
	copy(out, v.items)
	return out
}
