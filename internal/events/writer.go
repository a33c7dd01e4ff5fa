// Package events appends audit entries for accepted pipeline mutations.
// Every event is written in the same transaction as the mutation it
// records, so the log never claims something the database did not do.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types, one per accepted mutation kind.
const (
	ProjectCreated  = "project.created"
	ProjectUpdated  = "project.updated"
	ProjectDeleted  = "project.deleted"
	StageChanged    = "project.stage.changed"
	ScopeVersioned  = "project.scope.versioned"
	AdvanceRecorded = "advance.recorded"
	SerialRecorded  = "serial.recorded"
	StatusRecorded  = "status.recorded"
)

// Writer appends to the events table. Now is injectable for tests and
// defaults to the wall clock.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append inserts one audit event inside the caller's transaction. Empty
// projectNo and entityID are stored as NULL so global events stay queryable.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, projectNo, entityKind, entityID, actorID string, payload EventPayload) error {
	clock := w.Now
	if clock == nil {
		clock = time.Now
	}
	ts := clock().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,project_no,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, evtType, nullable(projectNo), entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
