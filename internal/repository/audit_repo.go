package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// AuditEntry is one journaled request outcome.
type AuditEntry struct {
	TraceID   string
	Message   string
	Intent    string
	TaskID    string
	Outcome   string
	Raw       string
	CreatedAt time.Time
}

// AuditRepository journals every resolved request into Postgres. Writes are
// best-effort at the call site; a failed insert never changes the response.
type AuditRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewAuditRepository(db *pgxpool.Pool, logger *zap.Logger) *AuditRepository {
	return &AuditRepository{db: db, logger: logger}
}

func (r *AuditRepository) Record(ctx context.Context, entry AuditEntry) error {
	query := `
        INSERT INTO route_audit (trace_id, message, intent, task_id, outcome, raw, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `
	_, err := r.db.Exec(ctx, query,
		entry.TraceID,
		entry.Message,
		entry.Intent,
		entry.TaskID,
		entry.Outcome,
		entry.Raw,
		entry.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to journal request",
			zap.Error(err),
			zap.String("trace_id", entry.TraceID),
			zap.String("intent", entry.Intent),
		)
		return err
	}
	r.logger.Debug("Request journaled",
		zap.String("trace_id", entry.TraceID),
		zap.String("intent", entry.Intent),
	)
	return nil
}
