package domain

// Level is the qualitative scale used for a task's focus and joy.
type Level string

const (
	LevelHigh   Level = "High"
	LevelMedium Level = "Medium"
	LevelLow    Level = "Low"
)

// Valid reports whether l is one of the known levels.
func (l Level) Valid() bool {
	switch l {
	case LevelHigh, LevelMedium, LevelLow:
		return true
	}
	return false
}

// NoTask is the sentinel used to clear a job's next task.
const NoTask = "none"

type Job struct {
	ID                 string   `json:"id"`
	OwnerID            string   `json:"owner_id"`
	Title              string   `json:"title"`
	Notes              string   `json:"notes,omitempty"`
	BusinessFunctionID *string  `json:"business_function_id,omitempty"`
	DueDate            *string  `json:"due_date,omitempty" format:"date"`
	IsDone             bool     `json:"is_done"`
	NextTaskID         *string  `json:"next_task_id,omitempty"`
	TaskIDs            []string `json:"task_ids"`
	CreatedAt          string   `json:"created_at" format:"date-time"`
	UpdatedAt          string   `json:"updated_at" format:"date-time"`
}

// Task is a unit of work inside a job. NextTask is derived from the owning
// job's next_task_id and is never stored on the task row.
type Task struct {
	ID            string   `json:"id"`
	OwnerID       string   `json:"owner_id"`
	JobID         string   `json:"job_id"`
	Title         string   `json:"title"`
	Owner         *string  `json:"owner,omitempty"`
	Date          *string  `json:"date,omitempty" format:"date"`
	RequiredHours *float64 `json:"required_hours,omitempty"`
	FocusLevel    *Level   `json:"focus_level,omitempty" enum:"High,Medium,Low"`
	JoyLevel      *Level   `json:"joy_level,omitempty" enum:"High,Medium,Low"`
	Notes         string   `json:"notes,omitempty"`
	Tags          []string `json:"tags"`
	Completed     bool     `json:"completed"`
	NextTask      bool     `json:"next_task"`
	Position      int      `json:"position"`
	CreatedAt     string   `json:"created_at" format:"date-time"`
	UpdatedAt     string   `json:"updated_at" format:"date-time"`
}

type BusinessFunction struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	Name      string `json:"name"`
	JobCount  int    `json:"job_count"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

// TaskOwner is a person tasks can be assigned to. Task.Owner holds its id.
type TaskOwner struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type PI struct {
	ID          string  `json:"id"`
	OwnerID     string  `json:"owner_id"`
	Name        string  `json:"name"`
	TargetValue float64 `json:"target_value"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

// Mapping records how much a job contributes toward a PI. JobName, PIName and
// PITarget are snapshots taken when the mapping is created; renaming the job
// or PI afterwards does not change them.
type Mapping struct {
	ID            string  `json:"id"`
	OwnerID       string  `json:"owner_id"`
	JobID         string  `json:"job_id"`
	PIID          string  `json:"pi_id"`
	JobName       string  `json:"job_name"`
	PIName        string  `json:"pi_name"`
	PITarget      float64 `json:"pi_target"`
	PIImpactValue float64 `json:"pi_impact_value"`
	Notes         string  `json:"notes,omitempty"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
	UpdatedAt     string  `json:"updated_at" format:"date-time"`
}

// QBO is a higher-level objective that PIs roll up into.
type QBO struct {
	ID          string  `json:"id"`
	OwnerID     string  `json:"owner_id"`
	Name        string  `json:"name"`
	TargetValue float64 `json:"target_value"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

// QBOMapping records what a PI contributes to a QBO once the PI reaches its
// target. PIName and QBOName are snapshots, like Mapping's.
type QBOMapping struct {
	ID        string  `json:"id"`
	OwnerID   string  `json:"owner_id"`
	PIID      string  `json:"pi_id"`
	QBOID     string  `json:"qbo_id"`
	PIName    string  `json:"pi_name"`
	QBOName   string  `json:"qbo_name"`
	QBOImpact float64 `json:"qbo_impact"`
	Notes     string  `json:"notes,omitempty"`
	CreatedAt string  `json:"created_at" format:"date-time"`
	UpdatedAt string  `json:"updated_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	OwnerID    string `json:"owner_id"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// PITotal rolls up every mapping of one PI.
type PITotal struct {
	PIID         string  `json:"pi_id"`
	Name         string  `json:"name"`
	Target       float64 `json:"target"`
	Impact       float64 `json:"impact"`
	Progress     float64 `json:"progress"`
	MappingCount int     `json:"mapping_count"`
}

// BusinessFunctionTotal rolls up the impact of every job in one business function.
type BusinessFunctionTotal struct {
	BusinessFunctionID string  `json:"business_function_id"`
	Name               string  `json:"name"`
	JobCount           int     `json:"job_count"`
	Impact             float64 `json:"impact"`
}

// QBOTotal rolls up PI progress into one QBO.
type QBOTotal struct {
	QBOID        string  `json:"qbo_id"`
	Name         string  `json:"name"`
	Target       float64 `json:"target"`
	Impact       float64 `json:"impact"`
	Progress     float64 `json:"progress"`
	MappingCount int     `json:"mapping_count"`
}
