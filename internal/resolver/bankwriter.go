package resolver

import (
	"context"
	"sync"

	"github.com/kozaktomas/face-identity/internal/database"
)

// BankWriter serialises bank writes per identity inside this process. The
// store's compare-and-swap covers writers in other processes.
type BankWriter struct {
	store database.PersonWriter

	mu    sync.Mutex
	locks map[string]*identityLock
}

type identityLock struct {
	mu   sync.Mutex
	refs int
}

// NewBankWriter creates a writer on top of store.
func NewBankWriter(store database.PersonWriter) *BankWriter {
	return &BankWriter{store: store, locks: make(map[string]*identityLock)}
}

// Append folds vector into the bank of identity id. Appends for the same
// identity run one at a time; different identities proceed in parallel.
func (w *BankWriter) Append(ctx context.Context, id string, vector []float32, dupThreshold float64) (database.AppendResult, error) {
	unlock := w.lock(id)
	defer unlock()
	return w.store.AppendToBank(ctx, id, vector, dupThreshold)
}

func (w *BankWriter) lock(id string) func() {
	w.mu.Lock()
	l, ok := w.locks[id]
	if !ok {
		l = &identityLock{}
		w.locks[id] = l
	}
	l.refs++
	w.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		w.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(w.locks, id)
		}
		w.mu.Unlock()
	}
}

// pending returns the number of identities with a writer holding or
// waiting for the lock.
func (w *BankWriter) pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.locks)
}
