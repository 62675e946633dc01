package engine_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobline/internal/config"
	"jobline/internal/db"
	"jobline/internal/domain"
	"jobline/internal/engine"
	"jobline/internal/migrate"
	"jobline/internal/repo"
)

const owner = "alice"

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	require.NoError(t, err, "open db")
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn), "migrate")
	eng := engine.New(conn, config.Default(), nil)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func (env testEnv) job(t *testing.T, title string) domain.Job {
	t.Helper()
	j, err := env.Engine.Jobs.Create(env.Ctx, owner, engine.JobInput{Title: title})
	require.NoError(t, err)
	return j
}

func (env testEnv) task(t *testing.T, jobID, title string) domain.Task {
	t.Helper()
	tk, err := env.Engine.Tasks.Create(env.Ctx, owner, engine.TaskInput{JobID: jobID, Title: title})
	require.NoError(t, err)
	return tk
}

// assertNext checks both views of the pointer: the job's next_task_id and the
// tasks flagged next. want "" means no next task.
func (env testEnv) assertNext(t *testing.T, jobID, want string) {
	t.Helper()
	tasks, err := env.Engine.Tasks.ListByJob(env.Ctx, owner, jobID)
	require.NoError(t, err)
	var marked []string
	for _, tk := range tasks {
		if tk.NextTask {
			marked = append(marked, tk.ID)
		}
	}
	job, err := env.Engine.Jobs.Get(env.Ctx, owner, jobID)
	require.NoError(t, err)
	if want == "" {
		assert.Empty(t, marked)
		assert.Nil(t, job.NextTaskID)
		return
	}
	assert.Equal(t, []string{want}, marked)
	require.NotNil(t, job.NextTaskID)
	assert.Equal(t, want, *job.NextTaskID)
}

func TestMigrateDBScenario(t *testing.T) {
	env := newTestEnv(t)
	j := env.job(t, "Migrate DB")
	assert.Empty(t, j.TaskIDs)
	assert.Nil(t, j.NextTaskID)
	a := env.task(t, j.ID, "A")
	b := env.task(t, j.ID, "B")
	assert.False(t, a.NextTask)

	got, err := env.Engine.Tasks.SetNextTask(env.Ctx, owner, j.ID, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got.NextTaskID)
	assert.Equal(t, a.ID, *got.NextTaskID)
	env.assertNext(t, j.ID, a.ID)

	_, err = env.Engine.Tasks.SetNextTask(env.Ctx, owner, j.ID, b.ID)
	require.NoError(t, err)
	env.assertNext(t, j.ID, b.ID)
	ta, err := env.Engine.Tasks.Get(env.Ctx, owner, a.ID)
	require.NoError(t, err)
	assert.False(t, ta.NextTask)

	ok, err := env.Engine.Tasks.Delete(env.Ctx, owner, b.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	env.assertNext(t, j.ID, "")

	job, err := env.Engine.Jobs.Get(env.Ctx, owner, j.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, job.TaskIDs)
}

func TestCompletingNextTaskClearsPointer(t *testing.T) {
	env := newTestEnv(t)
	j := env.job(t, "Ship release")
	a := env.task(t, j.ID, "tag build")
	_, err := env.Engine.Tasks.SetNextTask(env.Ctx, owner, j.ID, a.ID)
	require.NoError(t, err)

	done := true
	got, err := env.Engine.Tasks.Update(env.Ctx, owner, a.ID, engine.TaskPatch{Completed: &done})
	require.NoError(t, err)
	assert.True(t, got.Completed)
	assert.False(t, got.NextTask)
	env.assertNext(t, j.ID, "")

	again, err := env.Engine.Tasks.Update(env.Ctx, owner, a.ID, engine.TaskPatch{Completed: &done})
	require.NoError(t, err)
	assert.True(t, again.Completed)
	env.assertNext(t, j.ID, "")
}

func TestCompletingOtherTaskKeepsPointer(t *testing.T) {
	env := newTestEnv(t)
	j := env.job(t, "Write docs")
	a := env.task(t, j.ID, "outline")
	b := env.task(t, j.ID, "draft")
	_, err := env.Engine.Tasks.SetNextTask(env.Ctx, owner, j.ID, a.ID)
	require.NoError(t, err)
	done := true
	_, err = env.Engine.Tasks.Update(env.Ctx, owner, b.ID, engine.TaskPatch{Completed: &done})
	require.NoError(t, err)
	env.assertNext(t, j.ID, a.ID)
}

func TestSetNextTaskErrors(t *testing.T) {
	env := newTestEnv(t)
	j1 := env.job(t, "one")
	j2 := env.job(t, "two")
	foreign := env.task(t, j2.ID, "elsewhere")
	done := env.task(t, j1.ID, "finished")
	yes := true
	_, err := env.Engine.Tasks.Update(env.Ctx, owner, done.ID, engine.TaskPatch{Completed: &yes})
	require.NoError(t, err)

	_, err = env.Engine.Tasks.SetNextTask(env.Ctx, owner, j1.ID, foreign.ID)
	var ve *engine.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "next_task_id", ve.Field)

	_, err = env.Engine.Tasks.SetNextTask(env.Ctx, owner, j1.ID, done.ID)
	require.ErrorIs(t, err, engine.ErrValidation)

	_, err = env.Engine.Tasks.SetNextTask(env.Ctx, owner, j1.ID, "missing")
	require.ErrorIs(t, err, engine.ErrNotFound)

	_, err = env.Engine.Tasks.SetNextTask(env.Ctx, owner, "missing", foreign.ID)
	var nf *engine.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "job", nf.Kind)

	env.assertNext(t, j1.ID, "")
}

func TestSetNextTaskNoneClears(t *testing.T) {
	env := newTestEnv(t)
	j := env.job(t, "plan")
	a := env.task(t, j.ID, "a")
	_, err := env.Engine.Tasks.SetNextTask(env.Ctx, owner, j.ID, a.ID)
	require.NoError(t, err)
	_, err = env.Engine.Tasks.SetNextTask(env.Ctx, owner, j.ID, domain.NoTask)
	require.NoError(t, err)
	env.assertNext(t, j.ID, "")
	// clearing twice is harmless
	_, err = env.Engine.Tasks.SetNextTask(env.Ctx, owner, j.ID, "")
	require.NoError(t, err)
}

func TestUpdateJobDelegatesNextTask(t *testing.T) {
	env := newTestEnv(t)
	j := env.job(t, "Refactor")
	a := env.task(t, j.ID, "a")
	b := env.task(t, j.ID, "b")

	title := "Refactor storage"
	next := a.ID
	got, err := env.Engine.Jobs.Update(env.Ctx, owner, j.ID, engine.JobPatch{Title: &title, NextTaskID: &next})
	require.NoError(t, err)
	assert.Equal(t, title, got.Title)
	env.assertNext(t, j.ID, a.ID)

	next = b.ID
	_, err = env.Engine.Jobs.Update(env.Ctx, owner, j.ID, engine.JobPatch{NextTaskID: &next})
	require.NoError(t, err)
	env.assertNext(t, j.ID, b.ID)

	none := domain.NoTask
	got, err = env.Engine.Jobs.Update(env.Ctx, owner, j.ID, engine.JobPatch{NextTaskID: &none})
	require.NoError(t, err)
	assert.Nil(t, got.NextTaskID)
	env.assertNext(t, j.ID, "")
}

func TestUpdateJobRollsBackOnBadNextTask(t *testing.T) {
	env := newTestEnv(t)
	j := env.job(t, "Budget")
	title := "Budget 2025"
	bad := "missing"
	_, err := env.Engine.Jobs.Update(env.Ctx, owner, j.ID, engine.JobPatch{Title: &title, NextTaskID: &bad})
	require.ErrorIs(t, err, engine.ErrNotFound)
	got, err := env.Engine.Jobs.Get(env.Ctx, owner, j.ID)
	require.NoError(t, err)
	assert.Equal(t, "Budget", got.Title)
}

func TestConcurrentSetNextTaskKeepsSingleMarker(t *testing.T) {
	env := newTestEnv(t)
	j := env.job(t, "race")
	var ids []string
	for _, title := range []string{"a", "b", "c", "d", "e", "f"} {
		ids = append(ids, env.task(t, j.ID, title).ID)
	}
	var wg sync.WaitGroup
	errs := make(chan error, len(ids))
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := env.Engine.Tasks.SetNextTask(env.Ctx, owner, j.ID, id)
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, engine.ErrConflict)
		}
	}
	job, err := env.Engine.Jobs.Get(env.Ctx, owner, j.ID)
	require.NoError(t, err)
	require.NotNil(t, job.NextTaskID)
	env.assertNext(t, j.ID, *job.NextTaskID)
}

func TestMoveTaskClearsOldPointer(t *testing.T) {
	env := newTestEnv(t)
	from := env.job(t, "from")
	to := env.job(t, "to")
	existing := env.task(t, to.ID, "already there")
	a := env.task(t, from.ID, "a")
	_, err := env.Engine.Tasks.SetNextTask(env.Ctx, owner, from.ID, a.ID)
	require.NoError(t, err)

	got, err := env.Engine.Tasks.Update(env.Ctx, owner, a.ID, engine.TaskPatch{JobID: &to.ID})
	require.NoError(t, err)
	assert.Equal(t, to.ID, got.JobID)
	assert.False(t, got.NextTask)
	env.assertNext(t, from.ID, "")

	job, err := env.Engine.Jobs.Get(env.Ctx, owner, to.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{existing.ID, a.ID}, job.TaskIDs)

	missing := "nope"
	_, err = env.Engine.Tasks.Update(env.Ctx, owner, a.ID, engine.TaskPatch{JobID: &missing})
	require.ErrorIs(t, err, engine.ErrValidation)
}

func TestDeleteMissingTask(t *testing.T) {
	env := newTestEnv(t)
	ok, err := env.Engine.Tasks.Delete(env.Ctx, owner, "ghost")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCreateTaskValidation(t *testing.T) {
	env := newTestEnv(t)
	j := env.job(t, "validate")
	neg := -1.0
	nan := math.NaN()
	bad := domain.Level("Extreme")
	badDate := "2024-13-40"
	cases := map[string]engine.TaskInput{
		"missing title":  {JobID: j.ID},
		"missing job":    {JobID: "nope", Title: "x"},
		"negative hours": {JobID: j.ID, Title: "x", RequiredHours: &neg},
		"nan hours":      {JobID: j.ID, Title: "x", RequiredHours: &nan},
		"bad level":      {JobID: j.ID, Title: "x", FocusLevel: &bad},
		"bad date":       {JobID: j.ID, Title: "x", Date: &badDate},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := env.Engine.Tasks.Create(env.Ctx, owner, in)
			require.ErrorIs(t, err, engine.ErrValidation)
		})
	}
	_, err := env.Engine.Tasks.Create(env.Ctx, "", engine.TaskInput{JobID: j.ID, Title: "x"})
	require.ErrorIs(t, err, engine.ErrValidation)
}

func TestTaskFieldsRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	j := env.job(t, "fields")
	hours := 2.5
	high := domain.LevelHigh
	low := domain.LevelLow
	sam, err := env.Engine.Catalog.CreateTaskOwner(env.Ctx, owner, "sam", "Sam")
	require.NoError(t, err)
	who := sam.ID
	date := "2024-02-01"
	tk, err := env.Engine.Tasks.Create(env.Ctx, owner, engine.TaskInput{
		JobID: j.ID, Title: "fields", Owner: &who, Date: &date, RequiredHours: &hours,
		FocusLevel: &high, JoyLevel: &low, Notes: "n", Tags: []string{"ops", " ops", "db", ""},
	})
	require.NoError(t, err)
	got, err := env.Engine.Tasks.Get(env.Ctx, owner, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"ops", "db"}, got.Tags)
	require.NotNil(t, got.RequiredHours)
	assert.Equal(t, 2.5, *got.RequiredHours)
	require.NotNil(t, got.FocusLevel)
	assert.Equal(t, domain.LevelHigh, *got.FocusLevel)
	assert.Equal(t, "sam", *got.Owner)

	empty := ""
	got, err = env.Engine.Tasks.Update(env.Ctx, owner, tk.ID, engine.TaskPatch{Owner: &empty, ClearRequiredHours: true})
	require.NoError(t, err)
	assert.Nil(t, got.Owner)
	assert.Nil(t, got.RequiredHours)

	tagged, err := env.Engine.Tasks.List(env.Ctx, owner, engine.TaskFilter{Tag: "db"})
	require.NoError(t, err)
	require.Len(t, tagged, 1)
	assert.Equal(t, tk.ID, tagged[0].ID)
}

func TestGetManySkipsUnknownAndForeign(t *testing.T) {
	env := newTestEnv(t)
	j := env.job(t, "batch")
	a := env.task(t, j.ID, "a")
	b := env.task(t, j.ID, "b")
	other, err := env.Engine.Jobs.Create(env.Ctx, "bob", engine.JobInput{Title: "bob's"})
	require.NoError(t, err)
	bobTask, err := env.Engine.Tasks.Create(env.Ctx, "bob", engine.TaskInput{JobID: other.ID, Title: "secret"})
	require.NoError(t, err)

	got, err := env.Engine.Tasks.GetMany(env.Ctx, owner, []string{a.ID, "ghost", b.ID, bobTask.ID})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, []string{got[0].ID, got[1].ID})

	none, err := env.Engine.Tasks.GetMany(env.Ctx, owner, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCrossOwnerIsolation(t *testing.T) {
	env := newTestEnv(t)
	j := env.job(t, "private")
	a := env.task(t, j.ID, "a")

	_, err := env.Engine.Jobs.Get(env.Ctx, "bob", j.ID)
	require.ErrorIs(t, err, engine.ErrNotFound)
	_, err = env.Engine.Tasks.Get(env.Ctx, "bob", a.ID)
	require.ErrorIs(t, err, engine.ErrNotFound)
	_, err = env.Engine.Tasks.Create(env.Ctx, "bob", engine.TaskInput{JobID: j.ID, Title: "sneak"})
	require.ErrorIs(t, err, engine.ErrValidation)
	_, err = env.Engine.Tasks.SetNextTask(env.Ctx, "bob", j.ID, a.ID)
	require.ErrorIs(t, err, engine.ErrNotFound)
	ok, err := env.Engine.Jobs.Delete(env.Ctx, "bob", j.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	jobs, err := env.Engine.Jobs.All(env.Ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestReorderTasks(t *testing.T) {
	env := newTestEnv(t)
	j := env.job(t, "order")
	a := env.task(t, j.ID, "a")
	b := env.task(t, j.ID, "b")
	c := env.task(t, j.ID, "c")

	order := []string{c.ID, a.ID, b.ID}
	got, err := env.Engine.Jobs.Update(env.Ctx, owner, j.ID, engine.JobPatch{TaskIDs: &order})
	require.NoError(t, err)
	assert.Equal(t, order, got.TaskIDs)

	partial := []string{a.ID, b.ID}
	_, err = env.Engine.Jobs.Update(env.Ctx, owner, j.ID, engine.JobPatch{TaskIDs: &partial})
	require.ErrorIs(t, err, engine.ErrValidation)

	foreign := []string{a.ID, b.ID, "x"}
	_, err = env.Engine.Jobs.Update(env.Ctx, owner, j.ID, engine.JobPatch{TaskIDs: &foreign})
	require.ErrorIs(t, err, engine.ErrValidation)
}

func TestDeleteJobCascades(t *testing.T) {
	env := newTestEnv(t)
	j := env.job(t, "doomed")
	a := env.task(t, j.ID, "a")
	env.task(t, j.ID, "b")
	_, err := env.Engine.Tasks.SetNextTask(env.Ctx, owner, j.ID, a.ID)
	require.NoError(t, err)
	pi, err := env.Engine.Catalog.CreatePI(env.Ctx, owner, engine.PIInput{Name: "Uptime", TargetValue: 10})
	require.NoError(t, err)
	_, err = env.Engine.Impact.CreateMapping(env.Ctx, owner, engine.MappingInput{JobID: j.ID, PIID: pi.ID})
	require.NoError(t, err)

	ok, err := env.Engine.Jobs.Delete(env.Ctx, owner, j.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = env.Engine.Tasks.Get(env.Ctx, owner, a.ID)
	require.ErrorIs(t, err, engine.ErrNotFound)
	mappings, err := env.Engine.Impact.ListMappings(env.Ctx, owner, engine.MappingFilter{})
	require.NoError(t, err)
	assert.Empty(t, mappings)

	ok, err = env.Engine.Jobs.Delete(env.Ctx, owner, j.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, repo.EventFilters{OwnerID: owner, EntityKind: "job", EntityID: j.ID, Limit: 1})
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, "job.deleted", evts[0].Type)
}

func TestToggleDone(t *testing.T) {
	env := newTestEnv(t)
	a := env.job(t, "a")
	b := env.job(t, "b")
	n, err := env.Engine.Jobs.ToggleDone(env.Ctx, owner, []string{a.ID, b.ID, "ghost", a.ID}, true)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = env.Engine.Jobs.ToggleDone(env.Ctx, owner, []string{a.ID}, true)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	done := true
	jobs, err := env.Engine.Jobs.List(env.Ctx, owner, engine.JobFilter{Done: &done})
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	n, err = env.Engine.Jobs.ToggleDone(env.Ctx, "bob", []string{a.ID}, false)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCreateJobValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.Jobs.Create(env.Ctx, owner, engine.JobInput{Title: "  "})
	require.ErrorIs(t, err, engine.ErrValidation)
	bf := "nope"
	_, err = env.Engine.Jobs.Create(env.Ctx, owner, engine.JobInput{Title: "x", BusinessFunctionID: &bf})
	require.ErrorIs(t, err, engine.ErrValidation)
	due := "tomorrow"
	_, err = env.Engine.Jobs.Create(env.Ctx, owner, engine.JobInput{Title: "x", DueDate: &due})
	require.ErrorIs(t, err, engine.ErrValidation)
}

func TestRetryConflict(t *testing.T) {
	calls := 0
	v, err := engine.RetryConflict(context.Background(), func() (int, error) {
		calls++
		if calls < 3 {
			return 0, &engine.ConflictError{Message: "busy"}
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, calls)

	calls = 0
	_, err = engine.RetryConflict(context.Background(), func() (int, error) {
		calls++
		return 0, &engine.ValidationError{Field: "x", Message: "bad"}
	})
	require.ErrorIs(t, err, engine.ErrValidation)
	assert.Equal(t, 1, calls)

	calls = 0
	_, err = engine.RetryConflict(context.Background(), func() (int, error) {
		calls++
		return 0, &engine.ConflictError{Message: "still busy"}
	})
	require.ErrorIs(t, err, engine.ErrConflict)
	assert.Equal(t, 3, calls)
}

func TestErrorKinds(t *testing.T) {
	err := error(&engine.StoreError{Op: "read", Err: errors.New("disk gone")})
	assert.ErrorIs(t, err, engine.ErrStore)
	assert.NotErrorIs(t, err, engine.ErrNotFound)
	assert.True(t, engine.IsTyped(err))
	assert.False(t, engine.IsTyped(errors.New("plain")))
}

func TestStoreFailureSurfacesAsErrStore(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, migrate.Migrate(conn))
	eng := engine.New(conn, config.Default(), nil)
	require.NoError(t, conn.Close())

	_, err = eng.Jobs.Create(context.Background(), owner, engine.JobInput{Title: "lost"})
	require.ErrorIs(t, err, engine.ErrStore)
	var se *engine.StoreError
	require.ErrorAs(t, err, &se)
	assert.NotEmpty(t, se.Op)

	_, err = eng.Impact.Totals(context.Background(), owner)
	require.ErrorIs(t, err, engine.ErrStore)
}

func TestCallerIDsAreScopedPerOwner(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.Jobs.Create(env.Ctx, owner, engine.JobInput{ID: "shared", Title: "alice's"})
	require.NoError(t, err)
	bobs, err := env.Engine.Jobs.Create(env.Ctx, "bob", engine.JobInput{ID: "shared", Title: "bob's"})
	require.NoError(t, err)
	assert.Equal(t, "shared", bobs.ID)

	_, err = env.Engine.Jobs.Create(env.Ctx, owner, engine.JobInput{ID: "shared", Title: "again"})
	var ve *engine.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "id", ve.Field)
	assert.NotErrorIs(t, err, engine.ErrConflict)

	_, err = env.Engine.Tasks.Create(env.Ctx, owner, engine.TaskInput{ID: "t1", JobID: "shared", Title: "a"})
	require.NoError(t, err)
	_, err = env.Engine.Tasks.Create(env.Ctx, "bob", engine.TaskInput{ID: "t1", JobID: "shared", Title: "b"})
	require.NoError(t, err)
	_, err = env.Engine.Tasks.SetNextTask(env.Ctx, "bob", "shared", "t1")
	require.NoError(t, err)

	env.assertNext(t, "shared", "")
	got, err := env.Engine.Jobs.Get(env.Ctx, "bob", "shared")
	require.NoError(t, err)
	assert.Equal(t, "bob's", got.Title)
	require.NotNil(t, got.NextTaskID)
	assert.Equal(t, "t1", *got.NextTaskID)
}

func TestTaskOwnerMustBeRegistered(t *testing.T) {
	env := newTestEnv(t)
	j := env.job(t, "assign")
	ghost := "ghost"
	_, err := env.Engine.Tasks.Create(env.Ctx, owner, engine.TaskInput{JobID: j.ID, Title: "x", Owner: &ghost})
	var ve *engine.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "owner", ve.Field)

	// Another account's person is not visible either.
	_, err = env.Engine.Catalog.CreateTaskOwner(env.Ctx, "bob", "kim", "Kim")
	require.NoError(t, err)
	kim := "kim"
	_, err = env.Engine.Tasks.Create(env.Ctx, owner, engine.TaskInput{JobID: j.ID, Title: "x", Owner: &kim})
	require.ErrorIs(t, err, engine.ErrValidation)

	tk := env.task(t, j.ID, "unassigned")
	_, err = env.Engine.Tasks.Update(env.Ctx, owner, tk.ID, engine.TaskPatch{Owner: &ghost})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "owner", ve.Field)

	lee, err := env.Engine.Catalog.CreateTaskOwner(env.Ctx, owner, "", "Lee")
	require.NoError(t, err)
	got, err := env.Engine.Tasks.Update(env.Ctx, owner, tk.ID, engine.TaskPatch{Owner: &lee.ID})
	require.NoError(t, err)
	require.NotNil(t, got.Owner)
	assert.Equal(t, lee.ID, *got.Owner)

	ok, err := env.Engine.Catalog.DeleteTaskOwner(env.Ctx, owner, lee.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	got, err = env.Engine.Tasks.Get(env.Ctx, owner, tk.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Owner)
}

func TestTaskOwnerCRUD(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.Catalog.CreateTaskOwner(env.Ctx, owner, "", "  ")
	require.ErrorIs(t, err, engine.ErrValidation)

	o, err := env.Engine.Catalog.CreateTaskOwner(env.Ctx, owner, "", "Robin")
	require.NoError(t, err)
	renamed, err := env.Engine.Catalog.UpdateTaskOwner(env.Ctx, owner, o.ID, "Robin B")
	require.NoError(t, err)
	assert.Equal(t, "Robin B", renamed.Name)

	all, err := env.Engine.Catalog.ListTaskOwners(env.Ctx, owner)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, o.ID, all[0].ID)

	_, err = env.Engine.Catalog.GetTaskOwner(env.Ctx, "bob", o.ID)
	require.ErrorIs(t, err, engine.ErrNotFound)
	_, err = env.Engine.Catalog.UpdateTaskOwner(env.Ctx, "bob", o.ID, "x")
	require.ErrorIs(t, err, engine.ErrNotFound)
}
