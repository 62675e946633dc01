package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types written by the engine.
const (
	JobCreated         = "job.created"
	JobUpdated         = "job.updated"
	JobDeleted         = "job.deleted"
	JobsDoneToggled    = "job.done_toggled"
	JobReordered       = "job.reordered"
	NextTaskSet        = "job.next_task_set"
	NextTaskCleared    = "job.next_task_cleared"
	TaskCreated        = "task.created"
	TaskUpdated        = "task.updated"
	TaskCompleted      = "task.completed"
	TaskMoved          = "task.moved"
	TaskDeleted        = "task.deleted"
	BusinessFnCreated  = "business_function.created"
	BusinessFnUpdated  = "business_function.updated"
	BusinessFnDeleted  = "business_function.deleted"
	PICreated          = "pi.created"
	PIUpdated          = "pi.updated"
	PIDeleted          = "pi.deleted"
	MappingCreated     = "mapping.created"
	MappingUpdated     = "mapping.updated"
	MappingDeleted     = "mapping.deleted"
	TaskOwnerCreated   = "task_owner.created"
	TaskOwnerUpdated   = "task_owner.updated"
	TaskOwnerDeleted   = "task_owner.deleted"
	QBOCreated         = "qbo.created"
	QBOUpdated         = "qbo.updated"
	QBODeleted         = "qbo.deleted"
	QBOMappingCreated  = "qbo_mapping.created"
	QBOMappingUpdated  = "qbo_mapping.updated"
	QBOMappingDeleted  = "qbo_mapping.deleted"
	ImpactRecalculated = "impact.recalculated"
)

type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

// Append records one event inside tx so it commits or rolls back with the
// change it describes.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, ownerID, entityKind, entityID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,owner_id,entity_kind,entity_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, ownerID, entityKind, nullable(entityID), string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
