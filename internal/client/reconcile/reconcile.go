// Package reconcile merges messages from fetches, the cache and live
// events into one ordered, duplicate-free list.
package reconcile

import (
	"slices"
	"sync"

	"duet/internal/models"
)

// Reconciler holds the canonical message list of one chat. The list is
// always sorted ascending by CreatedAt, ties keep their insertion order,
// and each id appears once with its most recently upserted version.
type Reconciler struct {
	mu       sync.Mutex
	messages []models.Message
}

func New() *Reconciler {
	return &Reconciler{}
}

// Upsert replaces the message with the same id or appends it.
func (r *Reconciler) Upsert(msg models.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upsert(msg)
	r.sort()
}

// UpsertAll upserts msgs in order and sorts once.
func (r *Reconciler) UpsertAll(msgs []models.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range msgs {
		r.upsert(msg)
	}
	r.sort()
}

func (r *Reconciler) upsert(msg models.Message) {
	i := slices.IndexFunc(r.messages, func(m models.Message) bool {
		return m.ID == msg.ID
	})
	if i >= 0 {
		r.messages[i] = msg
		return
	}
	r.messages = append(r.messages, msg)
}

func (r *Reconciler) sort() {
	slices.SortStableFunc(r.messages, func(a, b models.Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}

// Messages returns a copy of the current list.
func (r *Reconciler) Messages() []models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.messages)
}

func (r *Reconciler) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = nil
}
