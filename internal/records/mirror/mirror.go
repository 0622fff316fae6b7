// Package mirror streams committed audit entries to an external sink (Kafka in
// production). The mirror is strictly best-effort: entries arrive over a
// bounded channel after the owning transaction has committed, so it can never
// widen or break the pipeline's atomicity.
package mirror

import (
	"context"
	"log/slog"

	"padron/internal/records"
)

// Sink receives committed audit entries.
type Sink interface {
	Publish(ctx context.Context, entry records.AuditEntry) error
	Close()
}

// Worker consumes audit entries from the inbox and hands them to the sink. It
// keeps background processing testable without wiring broker implementations.
type Worker struct {
	sink   Sink
	inbox  <-chan records.AuditEntry
	logger *slog.Logger
}

func NewWorker(sink Sink, inbox <-chan records.AuditEntry, logger *slog.Logger) *Worker {
	return &Worker{sink: sink, inbox: inbox, logger: logger}
}

// Run drains the inbox until the context ends or the inbox closes. Publish
// failures are logged and skipped; the durable copy already lives in the
// auditoria table.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry, ok := <-w.inbox:
			if !ok {
				return nil
			}
			if err := w.sink.Publish(ctx, entry); err != nil {
				w.logger.Error("audit mirror publish failed",
					"audit_id", entry.ID,
					"cliente_id", entry.ClientID,
					"error", err.Error(),
				)
			}
		}
	}
}
