// Package bulk runs per-item operations where one failure must not abort the batch.
package bulk

import (
	"context"
	"fmt"

	pkgerrors "github.com/angelmondragon/marketplace-engine/pkg/errors"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// Failure describes why a single id was not updated.
type Failure struct {
	ID      uuid.UUID      `json:"id"`
	Code    pkgerrors.Code `json:"code"`
	Message string         `json:"message"`
}

// Result summarizes a batch.
type Result struct {
	UpdatedCount int       `json:"updatedCount"`
	FailedCount  int       `json:"failedCount"`
	Failures     []Failure `json:"failures,omitempty"`
}

// Run applies fn to each distinct id in order. The returned error combines
// every per-item failure for logging; the Result is always complete.
func Run(ctx context.Context, ids []uuid.UUID, fn func(ctx context.Context, id uuid.UUID) error) (Result, error) {
	var (
		result Result
		errs   error
	)
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		err := fn(ctx, id)
		if err == nil {
			result.UpdatedCount++
			continue
		}
		result.FailedCount++
		failure := Failure{ID: id, Code: pkgerrors.CodeOf(err), Message: err.Error()}
		if typed := pkgerrors.As(err); typed != nil {
			failure.Message = typed.Message()
		}
		result.Failures = append(result.Failures, failure)
		errs = multierr.Append(errs, fmt.Errorf("%s: %w", id, err))
	}
	return result, errs
}
