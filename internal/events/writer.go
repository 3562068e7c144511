package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"sprintlens/internal/domain"
)

// Event types appended by entity writes.
const (
	CompanyCreated     = "company.created"
	UserCreated        = "user.created"
	CompanyMemberAdded = "company.member_added"
	ProjectCreated     = "project.created"
	ProjectMemberAdded = "project.member_added"
	SprintCreated      = "sprint.created"
	TaskCreated        = "task.created"
	TaskUpdated        = "task.updated"
	TaskStatusChanged  = "task.status_changed"
	TasksImported      = "task.imported"
	APIKeyCreated      = "api_key.created"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

type Entry struct {
	Type       string
	CompanyID  string
	EntityKind string
	EntityID   string
	ActorID    string
	Payload    EventPayload
}

// Append records an event inside the caller's transaction.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, e Entry) error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	payload := e.Payload
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	actor := e.ActorID
	if actor == "" {
		actor = "system"
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,company_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		domain.FormatTime(now()), e.Type, nullable(e.CompanyID), e.EntityKind, nullable(e.EntityID), actor, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
