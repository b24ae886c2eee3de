package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLowStockScan evaluates minimum stock levels across warehouses.
	TaskLowStockScan = "stock:low_stock_scan"
	// TaskSendAlertMail delivers a low-stock alert summary mail.
	TaskSendAlertMail = "mail:send_alert"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// LowStockScanPayload parameterises a scan run.
type LowStockScanPayload struct {
	RequestedAt time.Time `json:"requested_at"`
}

// NewLowStockScanTask constructs an Asynq task.
func NewLowStockScanTask() (*asynq.Task, error) {
	data, err := json.Marshal(LowStockScanPayload{RequestedAt: time.Now().UTC()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockScan, data), nil
}

// SendAlertMailPayload describes a low-stock alert mail.
type SendAlertMailPayload struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendAlertMailTask constructs an Asynq task.
func NewSendAlertMailTask(payload SendAlertMailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSendAlertMail, data), nil
}

// HandleSendAlertMailTask processes TaskSendAlertMail tasks. Mail transport is
// a collaborator concern; the handler logs the dispatch.
func HandleSendAlertMailTask(ctx context.Context, t *asynq.Task) error {
	var payload SendAlertMailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	// Placeholder: hand off to SMTP relay once the mail service lands.
	fmt.Printf("[jobs] alert mail to %s subject=%s\n", payload.To, payload.Subject)
	return nil
}

// IdempotencyCleanupPayload parameterises a cleanup run.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewIdempotencyCleanupTask constructs an Asynq task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}
