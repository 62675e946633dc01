package engine

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"slices"
	"strings"

	"jobline/internal/domain"
	"jobline/internal/events"
	"jobline/internal/repo"
)

// nextTaskObserver is told when the task a job points at stops being
// eligible. It runs inside the caller's transaction.
type nextTaskObserver interface {
	nextTaskGone(ctx context.Context, tx *sql.Tx, owner, taskID, reason string) error
}

type TaskManager struct {
	d        *Deps
	observer nextTaskObserver
}

type TaskInput struct {
	ID            string
	JobID         string
	Title         string
	Owner         *string
	Date          *string
	RequiredHours *float64
	FocusLevel    *domain.Level
	JoyLevel      *domain.Level
	Notes         string
	Tags          []string
	Completed     bool
}

// TaskPatch merges into an existing task. Nil fields are untouched; an empty
// string clears Owner, Date, FocusLevel and JoyLevel.
type TaskPatch struct {
	JobID              *string
	Title              *string
	Owner              *string
	Date               *string
	RequiredHours      *float64
	ClearRequiredHours bool
	FocusLevel         *domain.Level
	JoyLevel           *domain.Level
	Notes              *string
	Tags               *[]string
	Completed          *bool
}

type TaskFilter struct {
	JobID     string
	Completed *bool
	Tag       string
}

func checkHours(v *float64) error {
	if v == nil {
		return nil
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0 {
		return invalid("required_hours", "must be a non-negative number")
	}
	return nil
}

func checkLevel(field string, l *domain.Level) error {
	if l == nil || *l == "" {
		return nil
	}
	if !l.Valid() {
		return invalid(field, "must be one of High, Medium, Low")
	}
	return nil
}

// checkAssignee requires a task's owner to be a registered person of the
// account. A nil owner leaves the task unassigned.
func (m *TaskManager) checkAssignee(ctx context.Context, tx *sql.Tx, owner string, assignee *string) error {
	if assignee == nil {
		return nil
	}
	if _, err := m.d.Repo.GetTaskOwner(ctx, tx, owner, *assignee); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return invalid("owner", "task owner %s does not exist", *assignee)
		}
		return err
	}
	return nil
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

// Create adds a task at the end of its job. New tasks are never the next task.
func (m *TaskManager) Create(ctx context.Context, owner string, in TaskInput) (domain.Task, error) {
	if err := requireOwner(owner); err != nil {
		return domain.Task{}, err
	}
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return domain.Task{}, invalid("title", "is required")
	}
	if in.JobID == "" {
		return domain.Task{}, invalid("job_id", "is required")
	}
	if err := checkHours(in.RequiredHours); err != nil {
		return domain.Task{}, err
	}
	if err := checkLevel("focus_level", in.FocusLevel); err != nil {
		return domain.Task{}, err
	}
	if err := checkLevel("joy_level", in.JoyLevel); err != nil {
		return domain.Task{}, err
	}
	if err := checkDate("date", in.Date); err != nil {
		return domain.Task{}, err
	}
	if in.Owner != nil && strings.TrimSpace(*in.Owner) == "" {
		in.Owner = nil
	}
	now := m.d.stamp()
	t := domain.Task{
		ID:            newID(in.ID),
		OwnerID:       owner,
		JobID:         in.JobID,
		Title:         in.Title,
		Owner:         in.Owner,
		Date:          in.Date,
		RequiredHours: in.RequiredHours,
		FocusLevel:    in.FocusLevel,
		JoyLevel:      in.JoyLevel,
		Notes:         in.Notes,
		Tags:          cleanTags(in.Tags),
		Completed:     in.Completed,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := m.d.withTx(ctx, "create task", func(tx *sql.Tx) error {
		if _, err := m.d.Repo.GetJob(ctx, tx, owner, in.JobID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return invalid("job_id", "job %s does not exist", in.JobID)
			}
			return err
		}
		if err := m.checkAssignee(ctx, tx, owner, t.Owner); err != nil {
			return err
		}
		pos, err := m.d.Repo.NextPosition(ctx, tx, owner, in.JobID)
		if err != nil {
			return err
		}
		t.Position = pos
		if err := m.d.Repo.InsertTask(ctx, tx, t); err != nil {
			return err
		}
		return m.d.Events.Append(ctx, tx, events.TaskCreated, owner, "task", t.ID, events.EventPayload{"job_id": t.JobID, "title": t.Title})
	})
	if err != nil {
		return domain.Task{}, err
	}
	m.d.Log.Debug("task created", "owner", owner, "task", t.ID, "job", t.JobID)
	return t, nil
}

func (m *TaskManager) Get(ctx context.Context, owner, id string) (domain.Task, error) {
	if err := requireOwner(owner); err != nil {
		return domain.Task{}, err
	}
	t, err := m.d.Repo.GetTask(ctx, nil, owner, id)
	if errors.Is(err, repo.ErrNotFound) {
		return t, notFound("task", id)
	}
	return t, storeErr("get task", err)
}

// ListByJob returns the job's tasks in membership order.
func (m *TaskManager) ListByJob(ctx context.Context, owner, jobID string) ([]domain.Task, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	if _, err := m.d.Repo.GetJob(ctx, nil, owner, jobID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, notFound("job", jobID)
		}
		return nil, storeErr("list tasks", err)
	}
	res, err := m.d.Repo.ListTasks(ctx, nil, repo.TaskFilters{OwnerID: owner, JobID: jobID})
	return res, storeErr("list tasks", err)
}

func (m *TaskManager) List(ctx context.Context, owner string, f TaskFilter) ([]domain.Task, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	res, err := m.d.Repo.ListTasks(ctx, nil, repo.TaskFilters{OwnerID: owner, JobID: f.JobID, Completed: f.Completed, Tag: f.Tag})
	return res, storeErr("list tasks", err)
}

// GetMany returns the owner's tasks among ids. Unknown ids are skipped.
func (m *TaskManager) GetMany(ctx context.Context, owner string, ids []string) ([]domain.Task, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	res, err := m.d.Repo.ListTasks(ctx, nil, repo.TaskFilters{OwnerID: owner, IDs: ids})
	return res, storeErr("batch tasks", err)
}

// Update merges p into the task. Completing or moving the current next task
// clears its job's pointer in the same transaction.
func (m *TaskManager) Update(ctx context.Context, owner, id string, p TaskPatch) (domain.Task, error) {
	if err := requireOwner(owner); err != nil {
		return domain.Task{}, err
	}
	var out domain.Task
	err := m.d.withTx(ctx, "update task", func(tx *sql.Tx) error {
		cur, err := m.d.Repo.GetTask(ctx, tx, owner, id)
		if errors.Is(err, repo.ErrNotFound) {
			return notFound("task", id)
		}
		if err != nil {
			return err
		}
		next, changed, err := applyTaskPatch(cur, p)
		if err != nil {
			return err
		}
		if !changed {
			out = cur
			return nil
		}
		if p.Owner != nil {
			if err := m.checkAssignee(ctx, tx, owner, next.Owner); err != nil {
				return err
			}
		}
		moved := next.JobID != cur.JobID
		completed := next.Completed && !cur.Completed
		if moved {
			if _, err := m.d.Repo.GetJob(ctx, tx, owner, next.JobID); err != nil {
				if errors.Is(err, repo.ErrNotFound) {
					return invalid("job_id", "job %s does not exist", next.JobID)
				}
				return err
			}
			pos, err := m.d.Repo.NextPosition(ctx, tx, owner, next.JobID)
			if err != nil {
				return err
			}
			next.Position = pos
		}
		if cur.NextTask && (moved || completed) {
			reason := "completed"
			if moved {
				reason = "moved"
			}
			if err := m.observer.nextTaskGone(ctx, tx, owner, cur.ID, reason); err != nil {
				return err
			}
		}
		next.UpdatedAt = m.d.stamp()
		if err := m.d.Repo.UpdateTask(ctx, tx, next); err != nil {
			return err
		}
		evt := events.TaskUpdated
		payload := events.EventPayload{"job_id": next.JobID}
		switch {
		case moved:
			evt = events.TaskMoved
			payload["from_job_id"] = cur.JobID
		case completed:
			evt = events.TaskCompleted
		}
		if err := m.d.Events.Append(ctx, tx, evt, owner, "task", id, payload); err != nil {
			return err
		}
		out, err = m.d.Repo.GetTask(ctx, tx, owner, id)
		return err
	})
	if err != nil {
		return domain.Task{}, err
	}
	return out, nil
}

func applyTaskPatch(cur domain.Task, p TaskPatch) (domain.Task, bool, error) {
	next := cur
	changed := false
	setStr := func(dst **string, v *string) {
		if v == nil {
			return
		}
		var nv *string
		if *v != "" {
			s := *v
			nv = &s
		}
		if (*dst == nil) != (nv == nil) || (nv != nil && **dst != *nv) {
			*dst = nv
			changed = true
		}
	}
	setLevel := func(dst **domain.Level, v *domain.Level) {
		if v == nil {
			return
		}
		var nv *domain.Level
		if *v != "" {
			l := *v
			nv = &l
		}
		if (*dst == nil) != (nv == nil) || (nv != nil && **dst != *nv) {
			*dst = nv
			changed = true
		}
	}
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return cur, false, invalid("title", "is required")
		}
		if title != cur.Title {
			next.Title = title
			changed = true
		}
	}
	if p.JobID != nil {
		if *p.JobID == "" {
			return cur, false, invalid("job_id", "is required")
		}
		if *p.JobID != cur.JobID {
			next.JobID = *p.JobID
			changed = true
		}
	}
	if err := checkDate("date", p.Date); err != nil {
		return cur, false, err
	}
	if err := checkHours(p.RequiredHours); err != nil {
		return cur, false, err
	}
	if err := checkLevel("focus_level", p.FocusLevel); err != nil {
		return cur, false, err
	}
	if err := checkLevel("joy_level", p.JoyLevel); err != nil {
		return cur, false, err
	}
	setStr(&next.Owner, p.Owner)
	setStr(&next.Date, p.Date)
	setLevel(&next.FocusLevel, p.FocusLevel)
	setLevel(&next.JoyLevel, p.JoyLevel)
	switch {
	case p.ClearRequiredHours:
		if cur.RequiredHours != nil {
			next.RequiredHours = nil
			changed = true
		}
	case p.RequiredHours != nil:
		if cur.RequiredHours == nil || *cur.RequiredHours != *p.RequiredHours {
			h := *p.RequiredHours
			next.RequiredHours = &h
			changed = true
		}
	}
	if p.Notes != nil && *p.Notes != cur.Notes {
		next.Notes = *p.Notes
		changed = true
	}
	if p.Tags != nil {
		tags := cleanTags(*p.Tags)
		if !slices.Equal(tags, cur.Tags) {
			next.Tags = tags
			changed = true
		}
	}
	if p.Completed != nil && *p.Completed != cur.Completed {
		next.Completed = *p.Completed
		changed = true
	}
	return next, changed, nil
}

// Delete removes the task and reports whether it existed.
func (m *TaskManager) Delete(ctx context.Context, owner, id string) (bool, error) {
	if err := requireOwner(owner); err != nil {
		return false, err
	}
	var deleted bool
	err := m.d.withTx(ctx, "delete task", func(tx *sql.Tx) error {
		cur, err := m.d.Repo.GetTask(ctx, tx, owner, id)
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if cur.NextTask {
			if err := m.observer.nextTaskGone(ctx, tx, owner, id, "deleted"); err != nil {
				return err
			}
		}
		if deleted, err = m.d.Repo.DeleteTask(ctx, tx, owner, id); err != nil {
			return err
		}
		return m.d.Events.Append(ctx, tx, events.TaskDeleted, owner, "task", id, events.EventPayload{"job_id": cur.JobID})
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

// SetNextTask points the job at taskID. An empty id or domain.NoTask clears
// the pointer.
func (m *TaskManager) SetNextTask(ctx context.Context, owner, jobID, taskID string) (domain.Job, error) {
	if err := requireOwner(owner); err != nil {
		return domain.Job{}, err
	}
	var job domain.Job
	err := m.d.withTx(ctx, "set next task", func(tx *sql.Tx) error {
		if err := m.setNextTaskTx(ctx, tx, owner, jobID, taskID); err != nil {
			return err
		}
		var err error
		job, err = m.d.Repo.GetJob(ctx, tx, owner, jobID)
		return err
	})
	if err != nil {
		return domain.Job{}, err
	}
	return job, nil
}

// setNextTaskTx swaps the pointer with a single conditional update, so no
// reader can ever see two tasks of the job marked as next.
func (m *TaskManager) setNextTaskTx(ctx context.Context, tx *sql.Tx, owner, jobID, taskID string) error {
	job, err := m.d.Repo.GetJob(ctx, tx, owner, jobID)
	if errors.Is(err, repo.ErrNotFound) {
		return notFound("job", jobID)
	}
	if err != nil {
		return err
	}
	var target *string
	if taskID != "" && taskID != domain.NoTask {
		t, err := m.d.Repo.GetTask(ctx, tx, owner, taskID)
		if errors.Is(err, repo.ErrNotFound) {
			return notFound("task", taskID)
		}
		if err != nil {
			return err
		}
		if t.JobID != jobID {
			return invalid("next_task_id", "task %s does not belong to job %s", taskID, jobID)
		}
		if t.Completed {
			return invalid("next_task_id", "task %s is already completed", taskID)
		}
		target = &taskID
	}
	if samePointer(job.NextTaskID, target) {
		return nil
	}
	if err := m.d.Repo.SwapNextTask(ctx, tx, owner, jobID, job.NextTaskID, target, m.d.stamp()); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return &ConflictError{Message: "next task of job " + jobID + " changed concurrently", Err: err}
		}
		return err
	}
	payload := events.EventPayload{}
	if job.NextTaskID != nil {
		payload["previous_task_id"] = *job.NextTaskID
	}
	evt := events.NextTaskCleared
	if target != nil {
		evt = events.NextTaskSet
		payload["task_id"] = *target
	}
	if err := m.d.Events.Append(ctx, tx, evt, owner, "job", jobID, payload); err != nil {
		return err
	}
	m.d.Log.Debug("next task changed", "owner", owner, "job", jobID, "task", taskID)
	return nil
}

func samePointer(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
