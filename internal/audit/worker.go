package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/cabinet-quote/internal/obs"
)

// Writer persists audit entries.
type Writer interface {
	InsertQuoteAudit(ctx context.Context, e Entry) error
}

// Handler processes audit tasks on the worker.
type Handler struct {
	Writer Writer
	Logger *zerolog.Logger
}

// Register binds the handler to its task type.
func (h Handler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskQuoteCalculated, h.ProcessTask)
}

// ProcessTask writes one audit entry. Undecodable payloads are not retried.
func (h Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var e Entry
	if err := json.Unmarshal(t.Payload(), &e); err != nil {
		obs.AuditEventsTotal.WithLabelValues("write", "invalid").Inc()
		return fmt.Errorf("audit: decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	if e.Reference == "" {
		obs.AuditEventsTotal.WithLabelValues("write", "invalid").Inc()
		return fmt.Errorf("audit: entry without reference: %w", asynq.SkipRetry)
	}
	if err := h.Writer.InsertQuoteAudit(ctx, e); err != nil {
		obs.AuditEventsTotal.WithLabelValues("write", "error").Inc()
		h.logger().Error().Err(err).Str("reference", e.Reference).Msg("write quote audit")
		return err
	}
	obs.AuditEventsTotal.WithLabelValues("write", "ok").Inc()
	h.logger().Debug().Str("reference", e.Reference).Str("customer_id", e.CustomerID).Msg("quote audit written")
	return nil
}

func (h Handler) logger() *zerolog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	l := zerolog.Nop()
	return &l
}
