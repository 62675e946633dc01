package server

import (
	"encoding/json"

	"jobline/internal/domain"
)

// Request payloads

type CreateJobRequest struct {
	ID                 *string `json:"id,omitempty"`
	Title              string  `json:"title"`
	Notes              *string `json:"notes,omitempty"`
	BusinessFunctionID *string `json:"business_function_id,omitempty"`
	DueDate            *string `json:"due_date,omitempty"`
	IsDone             *bool   `json:"is_done,omitempty"`
}

// UpdateJobRequest is a partial job update. Sending null or "" for
// business_function_id, due_date or next_task_id clears them; next_task_id
// also accepts "none".
type UpdateJobRequest struct {
	Title              *string  `json:"title,omitempty"`
	Notes              *string  `json:"notes,omitempty"`
	BusinessFunctionID *string  `json:"business_function_id,omitempty" nullable:"true"`
	DueDate            *string  `json:"due_date,omitempty" nullable:"true"`
	IsDone             *bool    `json:"is_done,omitempty"`
	NextTaskID         *string  `json:"next_task_id,omitempty" nullable:"true"`
	TaskIDs            []string `json:"task_ids,omitempty"`
}

type SetNextTaskRequest struct {
	TaskID string `json:"task_id" doc:"Task to mark as next, or \"none\" to clear"`
}

type ToggleDoneRequest struct {
	IDs    []string `json:"ids"`
	IsDone bool     `json:"is_done"`
}

type CreateTaskRequest struct {
	ID            *string  `json:"id,omitempty"`
	JobID         string   `json:"job_id"`
	Title         string   `json:"title"`
	Owner         *string  `json:"owner,omitempty"`
	Date          *string  `json:"date,omitempty"`
	RequiredHours *float64 `json:"required_hours,omitempty"`
	FocusLevel    *string  `json:"focus_level,omitempty" enum:"High,Medium,Low"`
	JoyLevel      *string  `json:"joy_level,omitempty" enum:"High,Medium,Low"`
	Notes         *string  `json:"notes,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	Completed     *bool    `json:"completed,omitempty"`
	// NextTask is accepted for symmetry with the task view and ignored;
	// use PUT /jobs/{job_id}/next-task to mark a task as next.
	NextTask *bool `json:"next_task,omitempty"`
}

type UpdateTaskRequest struct {
	JobID         *string  `json:"job_id,omitempty"`
	Title         *string  `json:"title,omitempty"`
	Owner         *string  `json:"owner,omitempty" nullable:"true"`
	Date          *string  `json:"date,omitempty" nullable:"true"`
	RequiredHours *float64 `json:"required_hours,omitempty" nullable:"true"`
	FocusLevel    *string  `json:"focus_level,omitempty" nullable:"true"`
	JoyLevel      *string  `json:"joy_level,omitempty" nullable:"true"`
	Notes         *string  `json:"notes,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	Completed     *bool    `json:"completed,omitempty"`
}

type CreateBusinessFunctionRequest struct {
	ID   *string `json:"id,omitempty"`
	Name string  `json:"name"`
}

type UpdateBusinessFunctionRequest struct {
	Name string `json:"name"`
}

type CreatePIRequest struct {
	ID          *string  `json:"id,omitempty"`
	Name        string   `json:"name"`
	TargetValue *float64 `json:"target_value,omitempty"`
}

type UpdatePIRequest struct {
	Name        *string  `json:"name,omitempty"`
	TargetValue *float64 `json:"target_value,omitempty"`
}

type CreateMappingRequest struct {
	ID            *string  `json:"id,omitempty"`
	JobID         string   `json:"job_id"`
	PIID          string   `json:"pi_id"`
	PITarget      *float64 `json:"pi_target,omitempty"`
	PIImpactValue *float64 `json:"pi_impact_value,omitempty"`
	Notes         *string  `json:"notes,omitempty"`
}

type UpdateMappingRequest struct {
	PITarget      *float64 `json:"pi_target,omitempty"`
	PIImpactValue *float64 `json:"pi_impact_value,omitempty"`
	Notes         *string  `json:"notes,omitempty"`
}

type CreateTaskOwnerRequest struct {
	ID   *string `json:"id,omitempty"`
	Name string  `json:"name"`
}

type UpdateTaskOwnerRequest struct {
	Name string `json:"name"`
}

type CreateQBORequest struct {
	ID          *string  `json:"id,omitempty"`
	Name        string   `json:"name"`
	TargetValue *float64 `json:"target_value,omitempty"`
}

type UpdateQBORequest struct {
	Name        *string  `json:"name,omitempty"`
	TargetValue *float64 `json:"target_value,omitempty"`
}

type CreateQBOMappingRequest struct {
	ID        *string  `json:"id,omitempty"`
	PIID      string   `json:"pi_id"`
	QBOID     string   `json:"qbo_id"`
	QBOImpact *float64 `json:"qbo_impact,omitempty"`
	Notes     *string  `json:"notes,omitempty"`
}

type UpdateQBOMappingRequest struct {
	QBOImpact *float64 `json:"qbo_impact,omitempty"`
	Notes     *string  `json:"notes,omitempty"`
}

type DevLoginRequest struct {
	OwnerID string `json:"owner_id"`
}

// Response payloads

type DevLoginResponse struct {
	Token string `json:"token"`
}

type WhoAmIResponse struct {
	OwnerID string `json:"owner_id"`
	Source  string `json:"source"`
}

type DeleteResponse struct {
	Deleted bool `json:"deleted"`
}

type ToggleDoneResponse struct {
	Changed int `json:"changed"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	Payload    map[string]any `json:"payload"`
}

type paginatedJobs struct {
	Items      []domain.Job `json:"items"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type taskList struct {
	Items []domain.Task `json:"items"`
}

type businessFunctionList struct {
	Items []domain.BusinessFunction `json:"items"`
}

type piList struct {
	Items []domain.PI `json:"items"`
}

type mappingList struct {
	Items []domain.Mapping `json:"items"`
}

type taskOwnerList struct {
	Items []domain.TaskOwner `json:"items"`
}

type qboList struct {
	Items []domain.QBO `json:"items"`
}

type qboMappingList struct {
	Items []domain.QBOMapping `json:"items"`
}

func eventResponse(evt domain.Event) EventResponse {
	payload := map[string]any{}
	if evt.Payload != "" {
		_ = json.Unmarshal([]byte(evt.Payload), &payload)
	}
	return EventResponse{
		ID:         evt.ID,
		TS:         evt.TS,
		Type:       evt.Type,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		Payload:    payload,
	}
}

func levelPtr(s *string) *domain.Level {
	if s == nil {
		return nil
	}
	l := domain.Level(*s)
	return &l
}

func stringOrEmpty(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func nonNilSlice[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
