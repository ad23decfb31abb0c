package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerReconcile compares stock rows against the transaction ledger.
	TaskLedgerReconcile = "ledger:reconcile"
	// TaskIdempotencyCleanup prunes expired payment idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// ReconcilePayload scopes a reconcile run. CompanyID 0 walks every company.
type ReconcilePayload struct {
	CompanyID    int64     `json:"company_id"`
	ScheduledFor time.Time `json:"scheduled_for,omitempty"`
}

// NewReconcileTask constructs an Asynq task for ledger reconciliation.
func NewReconcileTask(payload ReconcilePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerReconcile, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// NewIdempotencyCleanupTask constructs the key pruning task. It carries no
// payload; retention comes from the worker's configuration.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(1))
}
