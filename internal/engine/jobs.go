package engine

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"strings"

	"jobline/internal/domain"
	"jobline/internal/events"
	"jobline/internal/repo"
)

type JobManager struct {
	d     *Deps
	tasks *TaskManager
}

type JobInput struct {
	ID                 string
	Title              string
	Notes              string
	BusinessFunctionID *string
	DueDate            *string
	IsDone             bool
}

// JobPatch is a partial job update. An empty string clears
// BusinessFunctionID and DueDate; NextTaskID accepts "" or domain.NoTask to
// clear the pointer. TaskIDs reorders the job and must list exactly its
// current tasks.
type JobPatch struct {
	Title              *string
	Notes              *string
	BusinessFunctionID *string
	DueDate            *string
	IsDone             *bool
	NextTaskID         *string
	TaskIDs            *[]string
}

type JobFilter struct {
	Done               *bool
	BusinessFunctionID string
	Limit              int
	CursorCreatedAt    string
	CursorID           string
}

func (m *JobManager) checkBusinessFunction(ctx context.Context, tx *sql.Tx, owner string, id *string) error {
	if id == nil || *id == "" {
		return nil
	}
	if _, err := m.d.Repo.GetBusinessFunction(ctx, tx, owner, *id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return invalid("business_function_id", "business function %s does not exist", *id)
		}
		return err
	}
	return nil
}

// Create stores a job with no tasks and no next task.
func (m *JobManager) Create(ctx context.Context, owner string, in JobInput) (domain.Job, error) {
	if err := requireOwner(owner); err != nil {
		return domain.Job{}, err
	}
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return domain.Job{}, invalid("title", "is required")
	}
	if err := checkDate("due_date", in.DueDate); err != nil {
		return domain.Job{}, err
	}
	now := m.d.stamp()
	j := domain.Job{
		ID:                 newID(in.ID),
		OwnerID:            owner,
		Title:              in.Title,
		Notes:              in.Notes,
		BusinessFunctionID: emptyToNil(in.BusinessFunctionID),
		DueDate:            emptyToNil(in.DueDate),
		IsDone:             in.IsDone,
		TaskIDs:            []string{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	err := m.d.withTx(ctx, "create job", func(tx *sql.Tx) error {
		if err := m.checkBusinessFunction(ctx, tx, owner, j.BusinessFunctionID); err != nil {
			return err
		}
		if err := m.d.Repo.InsertJob(ctx, tx, j); err != nil {
			return err
		}
		return m.d.Events.Append(ctx, tx, events.JobCreated, owner, "job", j.ID, events.EventPayload{"title": j.Title})
	})
	if err != nil {
		return domain.Job{}, err
	}
	m.d.Log.Debug("job created", "owner", owner, "job", j.ID)
	return j, nil
}

// Update applies p in one transaction. Pointer changes go through the task
// manager so the job and task views of the next task stay one fact.
func (m *JobManager) Update(ctx context.Context, owner, id string, p JobPatch) (domain.Job, error) {
	if err := requireOwner(owner); err != nil {
		return domain.Job{}, err
	}
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return domain.Job{}, invalid("title", "is required")
		}
		p.Title = &title
	}
	if err := checkDate("due_date", p.DueDate); err != nil {
		return domain.Job{}, err
	}
	var out domain.Job
	err := m.d.withTx(ctx, "update job", func(tx *sql.Tx) error {
		cur, err := m.d.Repo.GetJob(ctx, tx, owner, id)
		if errors.Is(err, repo.ErrNotFound) {
			return notFound("job", id)
		}
		if err != nil {
			return err
		}
		if err := m.checkBusinessFunction(ctx, tx, owner, p.BusinessFunctionID); err != nil {
			return err
		}
		now := m.d.stamp()
		var changed []string
		u := repo.JobUpdate{
			Title:              p.Title,
			Notes:              p.Notes,
			BusinessFunctionID: p.BusinessFunctionID,
			DueDate:            p.DueDate,
			IsDone:             p.IsDone,
			UpdatedAt:          now,
		}
		if err := m.d.Repo.UpdateJob(ctx, tx, owner, id, u); err != nil {
			return err
		}
		for name, set := range map[string]bool{
			"title": p.Title != nil, "notes": p.Notes != nil, "business_function_id": p.BusinessFunctionID != nil,
			"due_date": p.DueDate != nil, "is_done": p.IsDone != nil,
		} {
			if set {
				changed = append(changed, name)
			}
		}
		if p.TaskIDs != nil {
			order := *p.TaskIDs
			if !isPermutation(cur.TaskIDs, order) {
				return invalid("task_ids", "must list exactly the job's current tasks")
			}
			if !slices.Equal(cur.TaskIDs, order) {
				if err := m.d.Repo.SetTaskPositions(ctx, tx, owner, id, order, now); err != nil {
					return err
				}
				if err := m.d.Events.Append(ctx, tx, events.JobReordered, owner, "job", id, events.EventPayload{"task_ids": order}); err != nil {
					return err
				}
			}
		}
		if p.NextTaskID != nil {
			if err := m.tasks.setNextTaskTx(ctx, tx, owner, id, *p.NextTaskID); err != nil {
				return err
			}
		}
		if len(changed) > 0 {
			slices.Sort(changed)
			if err := m.d.Events.Append(ctx, tx, events.JobUpdated, owner, "job", id, events.EventPayload{"fields": changed}); err != nil {
				return err
			}
		}
		out, err = m.d.Repo.GetJob(ctx, tx, owner, id)
		return err
	})
	if err != nil {
		return domain.Job{}, err
	}
	return out, nil
}

func isPermutation(have, want []string) bool {
	if len(have) != len(want) {
		return false
	}
	a := slices.Clone(have)
	b := slices.Clone(want)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}

// Delete removes the job together with its tasks and mappings.
func (m *JobManager) Delete(ctx context.Context, owner, id string) (bool, error) {
	if err := requireOwner(owner); err != nil {
		return false, err
	}
	var deleted bool
	err := m.d.withTx(ctx, "delete job", func(tx *sql.Tx) error {
		cur, err := m.d.Repo.GetJob(ctx, tx, owner, id)
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		mappings, err := m.d.Repo.ListMappings(ctx, tx, repo.MappingFilters{OwnerID: owner, JobID: id})
		if err != nil {
			return err
		}
		if deleted, err = m.d.Repo.DeleteJob(ctx, tx, owner, id); err != nil {
			return err
		}
		return m.d.Events.Append(ctx, tx, events.JobDeleted, owner, "job", id, events.EventPayload{
			"tasks":    len(cur.TaskIDs),
			"mappings": len(mappings),
		})
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

// ToggleDone sets is_done on every listed job and returns how many changed.
// Unknown ids and jobs of other owners are ignored.
func (m *JobManager) ToggleDone(ctx context.Context, owner string, ids []string, done bool) (int, error) {
	if err := requireOwner(owner); err != nil {
		return 0, err
	}
	var uniq []string
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" && !slices.Contains(uniq, id) {
			uniq = append(uniq, id)
		}
	}
	if len(uniq) == 0 {
		return 0, nil
	}
	var n int
	err := m.d.withTx(ctx, "toggle done", func(tx *sql.Tx) error {
		var err error
		if n, err = m.d.Repo.SetJobsDone(ctx, tx, owner, uniq, done, m.d.stamp()); err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		return m.d.Events.Append(ctx, tx, events.JobsDoneToggled, owner, "job", "", events.EventPayload{"ids": uniq, "is_done": done, "changed": n})
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (m *JobManager) Get(ctx context.Context, owner, id string) (domain.Job, error) {
	if err := requireOwner(owner); err != nil {
		return domain.Job{}, err
	}
	j, err := m.d.Repo.GetJob(ctx, nil, owner, id)
	if errors.Is(err, repo.ErrNotFound) {
		return j, notFound("job", id)
	}
	return j, storeErr("get job", err)
}

func (m *JobManager) List(ctx context.Context, owner string, f JobFilter) ([]domain.Job, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	res, err := m.d.Repo.ListJobs(ctx, nil, repo.JobFilters{
		OwnerID:            owner,
		Done:               f.Done,
		BusinessFunctionID: f.BusinessFunctionID,
		Limit:              f.Limit,
		CursorCreatedAt:    f.CursorCreatedAt,
		CursorID:           f.CursorID,
	})
	if res == nil && err == nil {
		res = []domain.Job{}
	}
	return res, storeErr("list jobs", err)
}

// All returns every job of the owner.
func (m *JobManager) All(ctx context.Context, owner string) ([]domain.Job, error) {
	return m.List(ctx, owner, JobFilter{})
}

func (m *JobManager) nextTaskGone(ctx context.Context, tx *sql.Tx, owner, taskID, reason string) error {
	jobID, err := m.d.Repo.ClearNextTaskFor(ctx, tx, owner, taskID, m.d.stamp())
	if err != nil || jobID == "" {
		return err
	}
	m.d.Log.Debug("next task cleared", "owner", owner, "job", jobID, "task", taskID, "reason", reason)
	return m.d.Events.Append(ctx, tx, events.NextTaskCleared, owner, "job", jobID, events.EventPayload{
		"previous_task_id": taskID,
		"reason":           reason,
	})
}

func emptyToNil(v *string) *string {
	if v == nil || *v == "" {
		return nil
	}
	return v
}
