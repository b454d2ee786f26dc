package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cermofi/ReserveUMT/pkg/logger"
)

// AuditLog appends mutation records. Failures are logged and swallowed; a
// broken audit trail must not fail the mutation it describes.
type AuditLog struct {
	pool *pgxpool.Pool
}

func NewAuditLog(pool *pgxpool.Pool) *AuditLog {
	return &AuditLog{pool: pool}
}

func (a *AuditLog) Record(ctx context.Context, actor, action, ip string, details map[string]any) {
	const q = `INSERT INTO audit_log (ts, action, actor, ip, details)
		VALUES ($1,$2,$3,$4,$5)`

	payload, err := json.Marshal(details)
	if err != nil {
		logger.WarnContext(ctx, "failed to encode audit details", "action", action, "error", err)
		payload = []byte("null")
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if _, err := a.pool.Exec(ctx, q, time.Now().Unix(), action, actor, ip, payload); err != nil {
		logger.WarnContext(ctx, "failed to record audit entry", "action", action, "error", err)
	}
}
