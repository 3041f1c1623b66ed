package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/hibiken/asynq"

	"github.com/noah-isme/cabinet-quote/internal/obs"
	"github.com/noah-isme/cabinet-quote/internal/quote"
)

// TaskClient is the subset of *asynq.Client the enqueuer needs.
type TaskClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer hands assembled calculations to the audit worker.
type Enqueuer struct {
	Client       TaskClient
	Queue        string
	MaxRetry     int
	Retention    time.Duration
	Enabled      bool
	SamplingRate float64
}

// Record enqueues calc for auditing. It returns quickly; the row is written
// by the worker.
func (e Enqueuer) Record(ctx context.Context, calc quote.Calculation) error {
	if !e.Enabled {
		return nil
	}
	if e.SamplingRate > 0 && e.SamplingRate < 1 {
		if rand.Float64() > e.SamplingRate {
			obs.AuditEventsTotal.WithLabelValues("enqueue", "sampled_out").Inc()
			return nil
		}
	}
	if e.Client == nil {
		return errors.New("audit: task client not configured")
	}

	entry, err := NewEntry(calc, middleware.GetReqID(ctx))
	if err != nil {
		obs.AuditEventsTotal.WithLabelValues("enqueue", "error").Inc()
		return fmt.Errorf("audit: encode entry: %w", err)
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		obs.AuditEventsTotal.WithLabelValues("enqueue", "error").Inc()
		return fmt.Errorf("audit: encode entry: %w", err)
	}

	opts := []asynq.Option{asynq.MaxRetry(e.maxRetry())}
	if e.Queue != "" {
		opts = append(opts, asynq.Queue(e.Queue))
	}
	if e.Retention > 0 {
		opts = append(opts, asynq.Retention(e.Retention))
	}
	if _, err := e.Client.EnqueueContext(ctx, asynq.NewTask(TaskQuoteCalculated, payload), opts...); err != nil {
		obs.AuditEventsTotal.WithLabelValues("enqueue", "error").Inc()
		return fmt.Errorf("audit: enqueue %s: %w", calc.Reference, err)
	}
	obs.AuditEventsTotal.WithLabelValues("enqueue", "ok").Inc()
	return nil
}

func (e Enqueuer) maxRetry() int {
	if e.MaxRetry <= 0 {
		return 5
	}
	return e.MaxRetry
}
