package domain

import "encoding/json"

// AuditEntry is one row of the append-only mutation trail.
type AuditEntry struct {
	ID      int64           `json:"id"`
	Ts      int64           `json:"ts"`
	Action  string          `json:"action"`
	Actor   string          `json:"actor"`
	IP      string          `json:"ip"`
	Details json.RawMessage `json:"details"`
}
