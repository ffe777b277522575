package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/marketplace-engine/pkg/logger"
)

// PurgeFunc deletes rows older than cutoff and reports how many went.
type PurgeFunc func(ctx context.Context, cutoff time.Time) (int64, error)

type RetentionJobParams struct {
	Name      string
	Logger    *logger.Logger
	Retention time.Duration
	Purge     PurgeFunc
}

// RetentionJob trims one table to a rolling window.
type RetentionJob struct {
	name      string
	logg      *logger.Logger
	retention time.Duration
	purge     PurgeFunc
	now       func() time.Time
}

func NewRetentionJob(params RetentionJobParams) (*RetentionJob, error) {
	if params.Name == "" {
		return nil, fmt.Errorf("job name required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Purge == nil {
		return nil, fmt.Errorf("%s: purge func required", params.Name)
	}
	if params.Retention <= 0 {
		return nil, fmt.Errorf("%s: retention must be positive", params.Name)
	}
	return &RetentionJob{
		name:      params.Name,
		logg:      params.Logger,
		retention: params.Retention,
		purge:     params.Purge,
		now:       time.Now,
	}, nil
}

func (j *RetentionJob) Name() string { return j.name }

func (j *RetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	deleted, err := j.purge(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"retention":    j.retention.String(),
		"rows_deleted": deleted,
	}), "retention sweep complete")
	return nil
}
