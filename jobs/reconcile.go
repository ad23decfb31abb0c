package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/stockledger/internal/inventory"
	jobmetrics "github.com/odyssey-erp/stockledger/internal/jobs"
	"github.com/odyssey-erp/stockledger/internal/observability"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Reconciler walks stocked products and reports unbalanced ones.
type Reconciler interface {
	ReconcileAll(ctx context.Context, companyID int64) (int, []inventory.Reconciliation, error)
}

// ReconcileJob checks that every product's ledger sum matches its stock.
type ReconcileJob struct {
	Service Reconciler
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Ledger  *observability.Ledger
}

// NewReconcileJob initialises the reconcile handler.
func NewReconcileJob(service Reconciler, logger *slog.Logger, metrics *jobmetrics.Metrics, ledger *observability.Ledger) *ReconcileJob {
	return &ReconcileJob{Service: service, Logger: logger, Metrics: metrics, Ledger: ledger}
}

// Handle executes one reconcile run.
func (j *ReconcileJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Service == nil {
		return errors.New("ledger reconcile: handler not configured")
	}
	var payload ReconcilePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.metrics().Track(TaskLedgerReconcile)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := time.Now()
	logger := j.logger().With(slog.Int64("company_id", payload.CompanyID))
	logger.Info("starting ledger reconcile")

	checked, mismatches, err := j.Service.ReconcileAll(ctx, payload.CompanyID)
	j.metrics().AddReconciled(payload.CompanyID, checked, len(mismatches))
	j.Ledger.ReconciliationMismatches(len(mismatches))
	if err != nil {
		logger.Error("reconcile failed", slog.Int("checked", checked), slog.Any("error", err))
		return err
	}

	logger.Info("completed ledger reconcile",
		slog.Int("checked", checked),
		slog.Int("mismatches", len(mismatches)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *ReconcileJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerReconcile))
	}
	return slog.Default().With(slog.String("job", TaskLedgerReconcile))
}

func (j *ReconcileJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
