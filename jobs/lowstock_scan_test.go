package jobs

import (
	"context"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/timberline-erp/timberline/internal/stock"
)

type fakeEvaluator struct {
	alerts []stock.LowStockAlert
}

func (f *fakeEvaluator) EvaluateLowStock(ctx context.Context) ([]stock.LowStockAlert, error) {
	return f.alerts, nil
}

type fakeGauge struct {
	last int
}

func (f *fakeGauge) SetLowStockAlerts(count int) { f.last = count }

type fakeMailer struct {
	sent []SendAlertMailPayload
}

func (f *fakeMailer) EnqueueSendAlertMail(ctx context.Context, payload SendAlertMailPayload) (*asynq.TaskInfo, error) {
	f.sent = append(f.sent, payload)
	return &asynq.TaskInfo{}, nil
}

func TestLowStockScanDispatchesMail(t *testing.T) {
	evaluator := &fakeEvaluator{alerts: []stock.LowStockAlert{
		{WarehouseID: 1, WoodTypeID: 1, Thickness: 25, Available: 70, MinimumStockLevel: 100, Shortfall: 30},
		{WarehouseID: 2, WoodTypeID: 1, Thickness: 50, Available: 5, MinimumStockLevel: 20, Shortfall: 15},
	}}
	gauge := &fakeGauge{}
	mailer := &fakeMailer{}
	job := NewLowStockScanJob(evaluator, gauge, mailer, "warehouse@timberline.local", "no-reply@timberline.local", nil)

	task, err := NewLowStockScanTask()
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	require.Equal(t, 2, gauge.last)
	require.Len(t, mailer.sent, 1)
	require.Contains(t, mailer.sent[0].Subject, "2 combination(s)")
	require.Contains(t, mailer.sent[0].Body, "short 30")
}

func TestLowStockScanNoAlertsNoMail(t *testing.T) {
	gauge := &fakeGauge{last: 5}
	mailer := &fakeMailer{}
	job := NewLowStockScanJob(&fakeEvaluator{}, gauge, mailer, "warehouse@timberline.local", "", nil)

	task, err := NewLowStockScanTask()
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	require.Zero(t, gauge.last)
	require.Empty(t, mailer.sent)
}
