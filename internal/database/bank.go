package database

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-identity/internal/constants"
)

// AppendWithRetry folds vector into the bank of person id using optimistic
// compare-and-swap. On a lost race the fresh bank is reloaded and dedup runs
// again, so a vector another writer already added is not stored twice.
func AppendWithRetry(ctx context.Context, store BankStore, id string, vector []float32, dupThreshold float64) (AppendResult, error) {
	for attempt := 1; attempt <= constants.BankWriteRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return AppendResult{}, err
		}

		person, err := store.LoadBank(ctx, id)
		if err != nil {
			return AppendResult{}, fmt.Errorf("load bank: %w", err)
		}
		if person == nil {
			return AppendResult{}, fmt.Errorf("person %s: %w", id, ErrNotFound)
		}

		bank := person.Bank.Clone()
		added, err := bank.Append(vector, dupThreshold)
		if err != nil {
			return AppendResult{}, err
		}
		if !added {
			return AppendResult{Added: false, BankSize: bank.Len(), Version: person.Version}, nil
		}

		swapped, err := store.SwapBank(ctx, id, person.Version, bank)
		if err != nil {
			return AppendResult{}, fmt.Errorf("swap bank: %w", err)
		}
		if swapped {
			return AppendResult{Added: true, BankSize: bank.Len(), Version: person.Version + 1}, nil
		}
	}
	return AppendResult{}, fmt.Errorf("person %s after %d attempts: %w", id, constants.BankWriteRetries, ErrVersionConflict)
}
