// Package batch owns the line and batch records of a run and schedules their
// conversion: one concurrent run per line, one batch at a time.
package batch

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mangarecapmsc-coder/mangarecapmsc/internal/ttypes"
)

var (
	// ErrBatchNotFound is returned for an unknown batch ID
	ErrBatchNotFound = errors.New("batch not found")

	// ErrLineNotFound is returned when an update names a line the batch does not have
	ErrLineNotFound = errors.New("line not found")

	// ErrDuplicateBatch is returned when adding a batch whose ID is taken
	ErrDuplicateBatch = errors.New("batch already exists")

	// ErrBatchBusy is returned when converting a batch that is already in flight
	ErrBatchBusy = errors.New("batch is already converting")
)

// Update describes one change published by the repository.
// Line is nil for batch status changes.
type Update struct {
	BatchID     string
	BatchStatus ttypes.Status
	Line        *ttypes.Line
}

// Repository holds every batch of a run. All reads return copies and all
// writes replace whole records, so callers never share state with it.
type Repository struct {
	mu      sync.RWMutex
	batches map[string]*ttypes.FileBatch
	order   []string

	onUpdate func(Update)
}

// NewRepository creates an empty repository.
func NewRepository() *Repository {
	return &Repository{
		batches: make(map[string]*ttypes.FileBatch),
	}
}

// SetUpdateCallback sets the function called after every change.
// It runs outside the repository lock.
func (r *Repository) SetUpdateCallback(callback func(Update)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onUpdate = callback
}

// Add stores a new batch. Lines keep the given order.
func (r *Repository) Add(b ttypes.FileBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.batches[b.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateBatch, b.ID)
	}

	seen := make(map[string]bool, len(b.Lines))
	for _, l := range b.Lines {
		if seen[l.ID] {
			return fmt.Errorf("batch %s: duplicate line id %q", b.ID, l.ID)
		}
		seen[l.ID] = true
	}

	c := b.Clone()
	if c.Status == "" {
		c.Status = ttypes.StatusPending
	}
	r.batches[b.ID] = &c
	r.order = append(r.order, b.ID)
	return nil
}

// Get returns a copy of a batch.
func (r *Repository) Get(id string) (ttypes.FileBatch, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.batches[id]
	if !ok {
		return ttypes.FileBatch{}, false
	}
	return b.Clone(), true
}

// All returns copies of every batch in insertion order.
func (r *Repository) All() []ttypes.FileBatch {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ttypes.FileBatch, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.batches[id].Clone())
	}
	return out
}

// IDs returns batch IDs in insertion order, optionally filtered by status.
func (r *Repository) IDs(status ...ttypes.Status) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.order))
	for _, id := range r.order {
		if len(status) == 0 || hasStatus(r.batches[id].Status, status) {
			out = append(out, id)
		}
	}
	return out
}

// UpdateLine replaces the line with the same ID. A terminal line is never
// moved back to a non-terminal status; such updates are dropped.
func (r *Repository) UpdateLine(batchID string, line ttypes.Line) error {
	r.mu.Lock()
	b, ok := r.batches[batchID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrBatchNotFound, batchID)
	}

	idx := -1
	for i := range b.Lines {
		if b.Lines[i].ID == line.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s/%s", ErrLineNotFound, batchID, line.ID)
	}

	current := b.Lines[idx]
	if current.Status.IsTerminal() && !line.Status.IsTerminal() {
		r.mu.Unlock()
		return nil
	}

	stored := line.Clone()
	b.Lines[idx] = stored
	callback := r.onUpdate
	status := b.Status
	r.mu.Unlock()

	if callback != nil {
		snapshot := stored.Clone()
		callback(Update{BatchID: batchID, BatchStatus: status, Line: &snapshot})
	}
	return nil
}

// SetStatus sets a batch status.
func (r *Repository) SetStatus(batchID string, status ttypes.Status) error {
	r.mu.Lock()
	b, ok := r.batches[batchID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrBatchNotFound, batchID)
	}
	b.Status = status
	callback := r.onUpdate
	r.mu.Unlock()

	if callback != nil {
		callback(Update{BatchID: batchID, BatchStatus: status})
	}
	return nil
}

// begin moves a batch to Converting and returns a copy of it.
func (r *Repository) begin(batchID string) (ttypes.FileBatch, error) {
	r.mu.Lock()
	b, ok := r.batches[batchID]
	if !ok {
		r.mu.Unlock()
		return ttypes.FileBatch{}, fmt.Errorf("%w: %s", ErrBatchNotFound, batchID)
	}
	if b.Status == ttypes.StatusConverting {
		r.mu.Unlock()
		return ttypes.FileBatch{}, fmt.Errorf("%w: %s", ErrBatchBusy, batchID)
	}
	b.Status = ttypes.StatusConverting
	snapshot := b.Clone()
	callback := r.onUpdate
	r.mu.Unlock()

	if callback != nil {
		callback(Update{BatchID: batchID, BatchStatus: ttypes.StatusConverting})
	}
	return snapshot, nil
}

// Remove deletes a batch together with its lines.
func (r *Repository) Remove(batchID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.batches[batchID]; !ok {
		return fmt.Errorf("%w: %s", ErrBatchNotFound, batchID)
	}
	delete(r.batches, batchID)
	for i, id := range r.order {
		if id == batchID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func hasStatus(s ttypes.Status, set []ttypes.Status) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}
