package resolver

import (
	"context"
	"sync"
	"testing"

	"github.com/kozaktomas/face-identity/internal/database"
	"github.com/kozaktomas/face-identity/internal/database/mock"
	"github.com/kozaktomas/face-identity/internal/facematch"
)

func TestBankWriter_ConcurrentAppendsKeepEveryVector(t *testing.T) {
	store := mock.NewMockPersonWriter()
	id := store.AddPerson(database.StoredPerson{Owner: "default", Name: "Alice", Bank: mustBank(t, unit(0))})
	w := NewBankWriter(store)

	const writers = 19
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 1; i <= writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := w.Append(context.Background(), id, unit(float64(i)*0.1), facematch.DefaultDuplicateSimilarity); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("append failed: %v", err)
	}

	person, _ := store.GetPerson(context.Background(), id)
	if person.Bank.Len() != writers+1 {
		t.Errorf("expected %d vectors, got %d", writers+1, person.Bank.Len())
	}
	if person.Version != writers+1 {
		t.Errorf("expected version %d, got %d", writers+1, person.Version)
	}
	if n := w.pending(); n != 0 {
		t.Errorf("expected no pending locks, got %d", n)
	}
}

func TestBankWriter_RetriesInjectedConflicts(t *testing.T) {
	store := mock.NewMockPersonWriter()
	id := store.AddPerson(database.StoredPerson{Owner: "default", Name: "Alice", Bank: mustBank(t, unit(0))})
	store.SwapConflicts = 2
	w := NewBankWriter(store)

	res, err := w.Append(context.Background(), id, unit(1), facematch.DefaultDuplicateSimilarity)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if !res.Added || res.BankSize != 2 {
		t.Errorf("unexpected result %+v", res)
	}
	if store.SwapCalls != 3 {
		t.Errorf("expected 3 swap attempts, got %d", store.SwapCalls)
	}
}
