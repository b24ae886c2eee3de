package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/timberline-erp/timberline/internal/stock"
)

// AlertEvaluator abstracts the ledger's low-stock evaluation.
type AlertEvaluator interface {
	EvaluateLowStock(ctx context.Context) ([]stock.LowStockAlert, error)
}

// AlertGauge receives the current alert count for the metrics gauge.
type AlertGauge interface {
	SetLowStockAlerts(count int)
}

// MailEnqueuer submits alert mails to the queue.
type MailEnqueuer interface {
	EnqueueSendAlertMail(ctx context.Context, payload SendAlertMailPayload) (*asynq.TaskInfo, error)
}

// LowStockScanJob runs the periodic minimum-level evaluation and dispatches a
// summary mail when shortfalls exist.
type LowStockScanJob struct {
	Evaluator AlertEvaluator
	Gauge     AlertGauge
	Mailer    MailEnqueuer
	MailTo    string
	MailFrom  string
	Logger    *slog.Logger
}

// NewLowStockScanJob initialises the scan handler.
func NewLowStockScanJob(evaluator AlertEvaluator, gauge AlertGauge, mailer MailEnqueuer, mailTo, mailFrom string, logger *slog.Logger) *LowStockScanJob {
	return &LowStockScanJob{
		Evaluator: evaluator,
		Gauge:     gauge,
		Mailer:    mailer,
		MailTo:    mailTo,
		MailFrom:  mailFrom,
		Logger:    logger,
	}
}

// Handle executes one scan.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Evaluator == nil {
		return errors.New("low stock scan: handler not configured")
	}
	var payload LowStockScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	start := time.Now()
	logger := j.logger()
	alerts, err := j.Evaluator.EvaluateLowStock(ctx)
	if err != nil {
		logger.Error("scan failed", slog.Any("error", err))
		return err
	}
	if j.Gauge != nil {
		j.Gauge.SetLowStockAlerts(len(alerts))
	}

	for _, a := range alerts {
		logger.Warn("low stock",
			slog.Int64("warehouse_id", a.WarehouseID),
			slog.Int64("wood_type_id", a.WoodTypeID),
			slog.Int("thickness", a.Thickness),
			slog.Int64("available", a.Available),
			slog.Int64("minimum", a.MinimumStockLevel),
			slog.Int64("shortfall", a.Shortfall),
		)
	}

	if len(alerts) > 0 && j.Mailer != nil && j.MailTo != "" {
		if _, err := j.Mailer.EnqueueSendAlertMail(ctx, SendAlertMailPayload{
			To:      j.MailTo,
			From:    j.MailFrom,
			Subject: fmt.Sprintf("Low stock: %d combination(s) under minimum", len(alerts)),
			Body:    formatAlertBody(alerts),
		}); err != nil {
			logger.Error("enqueue alert mail", slog.Any("error", err))
			return err
		}
	}

	logger.Info("completed low stock scan",
		slog.Int("alerts", len(alerts)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func formatAlertBody(alerts []stock.LowStockAlert) string {
	var b strings.Builder
	b.WriteString("Stock positions under their configured minimum:\n\n")
	for _, a := range alerts {
		fmt.Fprintf(&b, "- warehouse %d, wood type %d, %dmm: available %d, minimum %d (short %d)\n",
			a.WarehouseID, a.WoodTypeID, a.Thickness, a.Available, a.MinimumStockLevel, a.Shortfall)
	}
	return b.String()
}

func (j *LowStockScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLowStockScan))
	}
	return slog.Default().With(slog.String("job", TaskLowStockScan))
}
