package cron

import (
	"context"
	"fmt"

	"github.com/beartask/beartask-backend/internal/collections"
	"github.com/beartask/beartask-backend/pkg/logger"
)

const cagnotteReconcileBatch = 250

// CagnotteReconcileJob rewrites every live pot from the paid purchase
// aggregate. Settlement keeps the pot current in the happy path; this job
// heals drift left behind by partial settlement runs.
type CagnotteReconcileJob struct {
	repo collections.Repository
	logg *logger.Logger
}

// NewCagnotteReconcileJob builds the reconcile job.
func NewCagnotteReconcileJob(repo collections.Repository, logg *logger.Logger) (*CagnotteReconcileJob, error) {
	if repo == nil {
		return nil, fmt.Errorf("collection repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &CagnotteReconcileJob{repo: repo, logg: logg}, nil
}

// Name identifies the job in logs and metrics.
func (j *CagnotteReconcileJob) Name() string {
	return "cagnotte-reconcile"
}

// Run recomputes the pot for every collection still accepting money.
func (j *CagnotteReconcileJob) Run(ctx context.Context) error {
	rows, err := j.repo.ListForReconciliation(ctx, cagnotteReconcileBatch)
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}

	var failures int
	for _, collection := range rows {
		logCtx := j.logg.WithCollectionID(ctx, collection.ID.String())
		total, err := j.repo.RecomputeCagnotte(ctx, collection.ID)
		if err != nil {
			failures++
			j.logg.Error(logCtx, "cagnotte recompute failed", err)
			continue
		}
		if total != collection.CagnotteTotalCents {
			j.logg.Warn(logCtx, fmt.Sprintf("cagnotte drift corrected: %d -> %d cents",
				collection.CagnotteTotalCents, total))
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d collections failed to reconcile", failures, len(rows))
	}
	return nil
}
