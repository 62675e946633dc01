package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"jobline/internal/domain"
)

// next_task is read through the owning job's pointer; tasks never store it.
const taskSelect = `SELECT t.id,t.owner_id,t.job_id,t.title,t.assignee,t.date,t.required_hours,t.focus_level,t.joy_level,COALESCE(t.notes,''),t.tags_json,t.completed,
(j.next_task_id IS NOT NULL) AS next_task,t.position,t.created_at,t.updated_at
FROM tasks t LEFT JOIN jobs j ON j.owner_id=t.owner_id AND j.id=t.job_id AND j.next_task_id=t.id`

func scanTask(s rowScanner) (domain.Task, error) {
	var t domain.Task
	var assignee, date, focus, joy sql.NullString
	var hours sql.NullFloat64
	var tags string
	var completed, next int
	if err := s.Scan(&t.ID, &t.OwnerID, &t.JobID, &t.Title, &assignee, &date, &hours, &focus, &joy, &t.Notes, &tags, &completed, &next, &t.Position, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return t, err
	}
	if assignee.Valid {
		t.Owner = &assignee.String
	}
	if date.Valid {
		t.Date = &date.String
	}
	if hours.Valid {
		t.RequiredHours = &hours.Float64
	}
	if focus.Valid {
		l := domain.Level(focus.String)
		t.FocusLevel = &l
	}
	if joy.Valid {
		l := domain.Level(joy.String)
		t.JoyLevel = &l
	}
	t.Tags = []string{}
	if tags != "" {
		if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
			return t, fmt.Errorf("decode tags of task %s: %w", t.ID, err)
		}
	}
	t.Completed = completed != 0
	t.NextTask = next != 0
	return t, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func levelArg(l *domain.Level) any {
	if l == nil || *l == "" {
		return nil
	}
	return string(*l)
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	tags, err := encodeTags(t.Tags)
	if err != nil {
		return err
	}
	_, err = r.conn(tx).ExecContext(ctx, `INSERT INTO tasks(id,owner_id,job_id,title,assignee,date,required_hours,focus_level,joy_level,notes,tags_json,completed,position,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.OwnerID, t.JobID, t.Title, nullableStringPtr(t.Owner), nullableStringPtr(t.Date), nullableFloatPtr(t.RequiredHours),
		levelArg(t.FocusLevel), levelArg(t.JoyLevel), nullable(t.Notes), tags, boolInt(t.Completed), t.Position, t.CreatedAt, t.UpdatedAt)
	return Classify(err)
}

// UpdateTask rewrites every stored column of the task.
func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	tags, err := encodeTags(t.Tags)
	if err != nil {
		return err
	}
	res, err := r.conn(tx).ExecContext(ctx, `UPDATE tasks SET job_id=?, title=?, assignee=?, date=?, required_hours=?, focus_level=?, joy_level=?, notes=?, tags_json=?, completed=?, position=?, updated_at=? WHERE id=? AND owner_id=?`,
		t.JobID, t.Title, nullableStringPtr(t.Owner), nullableStringPtr(t.Date), nullableFloatPtr(t.RequiredHours),
		levelArg(t.FocusLevel), levelArg(t.JoyLevel), nullable(t.Notes), tags, boolInt(t.Completed), t.Position, t.UpdatedAt, t.ID, t.OwnerID)
	if err != nil {
		return Classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetTask(ctx context.Context, tx *sql.Tx, ownerID, id string) (domain.Task, error) {
	t, err := scanTask(r.conn(tx).QueryRowContext(ctx, taskSelect+` WHERE t.id=? AND t.owner_id=?`, id, ownerID))
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

type TaskFilters struct {
	OwnerID   string
	JobID     string
	Completed *bool
	Tag       string
	IDs       []string
}

// ListTasks returns tasks ordered by job then position.
func (r Repo) ListTasks(ctx context.Context, tx *sql.Tx, f TaskFilters) ([]domain.Task, error) {
	clauses := []string{"t.owner_id=?"}
	args := []any{f.OwnerID}
	if f.JobID != "" {
		clauses = append(clauses, "t.job_id=?")
		args = append(args, f.JobID)
	}
	if f.Completed != nil {
		clauses = append(clauses, "t.completed=?")
		args = append(args, boolInt(*f.Completed))
	}
	if f.Tag != "" {
		clauses = append(clauses, "EXISTS (SELECT 1 FROM json_each(t.tags_json) WHERE json_each.value=?)")
		args = append(args, f.Tag)
	}
	if f.IDs != nil {
		if len(f.IDs) == 0 {
			return []domain.Task{}, nil
		}
		clauses = append(clauses, "t.id IN ("+placeholders(len(f.IDs))+")")
		args = append(args, stringArgs(f.IDs)...)
	}
	query := taskSelect + ` WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY t.job_id, t.position, t.id`
	rows, err := r.conn(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, ownerID, id string) (bool, error) {
	res, err := r.conn(tx).ExecContext(ctx, `DELETE FROM tasks WHERE id=? AND owner_id=?`, id, ownerID)
	if err != nil {
		return false, Classify(err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// NextPosition returns the position a task appended to jobID should take.
func (r Repo) NextPosition(ctx context.Context, tx *sql.Tx, ownerID, jobID string) (int, error) {
	var pos int
	err := r.conn(tx).QueryRowContext(ctx, `SELECT COALESCE(MAX(position),-1)+1 FROM tasks WHERE owner_id=? AND job_id=?`, ownerID, jobID).Scan(&pos)
	return pos, err
}

// ListTaskIDs returns the job's task ids in membership order.
func (r Repo) ListTaskIDs(ctx context.Context, tx *sql.Tx, ownerID, jobID string) ([]string, error) {
	rows, err := r.conn(tx).QueryContext(ctx, `SELECT id FROM tasks WHERE owner_id=? AND job_id=? ORDER BY position, id`, ownerID, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r Repo) taskIDsByJob(ctx context.Context, tx *sql.Tx, ownerID string) (map[string][]string, error) {
	rows, err := r.conn(tx).QueryContext(ctx, `SELECT job_id,id FROM tasks WHERE owner_id=? ORDER BY job_id, position, id`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string][]string{}
	for rows.Next() {
		var jobID, id string
		if err := rows.Scan(&jobID, &id); err != nil {
			return nil, err
		}
		res[jobID] = append(res[jobID], id)
	}
	return res, rows.Err()
}

// SetTaskPositions renumbers the job's tasks to follow ids.
func (r Repo) SetTaskPositions(ctx context.Context, tx *sql.Tx, ownerID, jobID string, ids []string, updatedAt string) error {
	c := r.conn(tx)
	for i, id := range ids {
		if _, err := c.ExecContext(ctx, `UPDATE tasks SET position=?, updated_at=? WHERE owner_id=? AND id=? AND job_id=? AND position != ?`, i, updatedAt, ownerID, id, jobID, i); err != nil {
			return Classify(err)
		}
	}
	return nil
}

// TaskStats summarises the tasks of one job for impact rules.
type TaskStats struct {
	Total          int
	Completed      int
	CompletedHours float64
}

func (r Repo) TaskStatsByJob(ctx context.Context, tx *sql.Tx, ownerID string) (map[string]TaskStats, error) {
	rows, err := r.conn(tx).QueryContext(ctx, `SELECT job_id, count(*), COALESCE(SUM(completed),0), COALESCE(SUM(CASE WHEN completed=1 THEN required_hours ELSE 0 END),0)
FROM tasks WHERE owner_id=? GROUP BY job_id`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]TaskStats{}
	for rows.Next() {
		var jobID string
		var st TaskStats
		if err := rows.Scan(&jobID, &st.Total, &st.Completed, &st.CompletedHours); err != nil {
			return nil, err
		}
		res[jobID] = st
	}
	return res, rows.Err()
}
