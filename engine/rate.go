package engine

import (
	"context"

	"github.com/google/uuid"
)

// =============================================================================
// RATE RESOLVER - worker override first, task-type default second
// =============================================================================

// RateResolver resolves the per-unit pay rate for a (worker, task type)
// pair. Pure read, no side effects.
type RateResolver struct {
	Rates RateStore
	Types TaskTypeStore
}

// Resolve returns the worker's override rate when one exists, otherwise the
// task type's default rate. A missing task type resolves to zero; callers
// that consider that a data error check for it themselves.
func (rr *RateResolver) Resolve(ctx context.Context, workerID, taskTypeID uuid.UUID) (Money, error) {
	override, err := rr.Rates.GetWorkerRate(ctx, workerID, taskTypeID)
	if err != nil {
		return ZeroMoney(), err
	}
	if override != nil {
		return override.Rate, nil
	}

	tt, err := rr.Types.GetTaskType(ctx, taskTypeID)
	if err != nil {
		return ZeroMoney(), err
	}
	if tt == nil {
		return ZeroMoney(), nil
	}
	return tt.DefaultRate, nil
}
