package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobline/internal/config"
	"jobline/internal/db"
	"jobline/internal/domain"
	"jobline/internal/engine"
	"jobline/internal/logger"
	"jobline/internal/migrate"
	"jobline/internal/repo"
	joblinesdk "jobline/sdk/go"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

// sdk returns a client logged in as owner through the dev login endpoint.
func (s *testServer) sdk(t *testing.T, owner string) *joblinesdk.Client {
	t.Helper()
	c := joblinesdk.New(s.URL)
	_, err := c.DevLogin(context.Background(), owner)
	require.NoError(t, err, "dev login")
	return c
}

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	return newTestServerWithAuth(t, AuthConfig{JWTSecret: testSecret, AllowDevLogin: true})
}

func newTestServerWithAuth(t *testing.T, auth AuthConfig) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	require.NoError(t, err, "open db")
	require.NoError(t, migrate.Migrate(conn), "migrate")
	e := engine.New(conn, config.Default(), logger.Nop())
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     auth,
		Logger:   logger.Nop(),
	})
	require.NoError(t, err, "build handler")
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err, "listen")
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err, "marshal body")
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err, "new request")
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	require.NoError(t, err, "do request")
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err, "read body")
	return res, data
}

func apiCode(t *testing.T, err error) string {
	t.Helper()
	var apiErr *joblinesdk.APIError
	require.ErrorAs(t, err, &apiErr)
	return apiErr.Code
}

func TestHealthAndOpenAPIArePublic(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.JSONEq(t, `{"status":"ok"}`, string(data))

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/openapi.json", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Contains(t, string(data), "/v0/jobs/{job_id}/next-task")
	assert.Contains(t, string(data), "bearerAuth")
}

func TestMissingCredentialsRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/jobs", nil, nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "unauthorized", env.Error.Code)

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/jobs", nil, map[string]string{"Authorization": "Bearer not-a-jwt"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestDevLoginIdentifiesOwner(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	c := srv.sdk(t, "alice")

	me, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", me.OwnerID)
	assert.Equal(t, "jwt", me.Source)
}

func TestDevLoginDisabledByDefault(t *testing.T) {
	srv, cleanup := newTestServerWithAuth(t, AuthConfig{JWTSecret: testSecret})
	defer cleanup()

	res, _ := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]string{"owner_id": "alice"}, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	token, err := signDevToken(testSecret, "alice")
	require.NoError(t, err)
	res, _ = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]string{"owner_id": "bob"},
		map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/openapi.json", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.NotContains(t, string(data), "auth/dev/login")
}

func TestInternalErrorsHideCause(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	c := srv.sdk(t, "alice")
	require.NoError(t, srv.Engine.DB.Close())

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/jobs", nil, map[string]string{"Authorization": "Bearer " + c.BearerToken})
	require.Equal(t, http.StatusInternalServerError, res.StatusCode, string(data))
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "internal_error", env.Error.Code)
	assert.Equal(t, "internal error", env.Error.Message)
	assert.Empty(t, env.Error.Details)
	assert.NotContains(t, string(data), "closed")
}

func TestAPIKeyAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ctx := context.Background()
	require.NoError(t, srv.Engine.Repo.InsertAPIKey(ctx, nil, domain.APIKey{
		ID:      "k1",
		OwnerID: "carol",
		KeyHash: repo.HashAPIKey("secret-key"),
	}))

	c := joblinesdk.New(srv.URL)
	c.APIKey = "secret-key"
	me, err := c.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "carol", me.OwnerID)
	assert.Equal(t, "api_key", me.Source)

	c.APIKey = "wrong"
	_, err = c.Me(ctx)
	assert.Equal(t, http.StatusUnauthorized, joblinesdk.StatusCode(err))
}

func TestNextTaskLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ctx := context.Background()
	c := srv.sdk(t, "alice")

	job, err := c.CreateJob(ctx, "Migrate DB", nil)
	require.NoError(t, err)
	a, err := c.CreateTask(ctx, job.ID, "A", map[string]any{"next_task": true})
	require.NoError(t, err)
	assert.False(t, a.NextTask, "next_task is ignored on create")
	b, err := c.CreateTask(ctx, job.ID, "B", nil)
	require.NoError(t, err)

	job, err = c.SetNextTask(ctx, job.ID, a.ID)
	require.NoError(t, err)
	require.NotNil(t, job.NextTaskID)
	assert.Equal(t, a.ID, *job.NextTaskID)
	assert.Equal(t, []string{a.ID, b.ID}, job.TaskIDs)

	job, err = c.SetNextTask(ctx, job.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, *job.NextTaskID)
	tasks, err := c.JobTasks(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.False(t, tasks[0].NextTask)
	assert.True(t, tasks[1].NextTask)

	done, err := c.UpdateTask(ctx, b.ID, map[string]any{"completed": true})
	require.NoError(t, err)
	assert.True(t, done.Completed)
	assert.False(t, done.NextTask)
	job, err = c.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Nil(t, job.NextTaskID)

	job, err = c.SetNextTask(ctx, job.ID, a.ID)
	require.NoError(t, err)
	require.NotNil(t, job.NextTaskID)
	job, err = c.ClearNextTask(ctx, job.ID)
	require.NoError(t, err)
	assert.Nil(t, job.NextTaskID)
}

func TestPatchJobDelegatesNextTaskAndReorders(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ctx := context.Background()
	c := srv.sdk(t, "alice")

	job, err := c.CreateJob(ctx, "Launch", nil)
	require.NoError(t, err)
	a, err := c.CreateTask(ctx, job.ID, "A", nil)
	require.NoError(t, err)
	b, err := c.CreateTask(ctx, job.ID, "B", nil)
	require.NoError(t, err)

	job, err = c.UpdateJob(ctx, job.ID, map[string]any{
		"title":        "Launch v2",
		"next_task_id": b.ID,
		"task_ids":     []string{b.ID, a.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, "Launch v2", job.Title)
	assert.Equal(t, b.ID, *job.NextTaskID)
	assert.Equal(t, []string{b.ID, a.ID}, job.TaskIDs)

	job, err = c.UpdateJob(ctx, job.ID, map[string]any{"next_task_id": "none"})
	require.NoError(t, err)
	assert.Nil(t, job.NextTaskID)

	_, err = c.UpdateJob(ctx, job.ID, map[string]any{"task_ids": []string{a.ID}})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, joblinesdk.StatusCode(err))
}

func TestErrorStatusMapping(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ctx := context.Background()
	c := srv.sdk(t, "alice")

	_, err := c.GetJob(ctx, "missing")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, joblinesdk.StatusCode(err))
	assert.Equal(t, "not_found", apiCode(t, err))

	_, err = c.CreateTask(ctx, "missing", "orphan", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, joblinesdk.StatusCode(err))

	job, err := c.CreateJob(ctx, "J", nil)
	require.NoError(t, err)
	other, err := c.CreateJob(ctx, "K", nil)
	require.NoError(t, err)
	foreign, err := c.CreateTask(ctx, other.ID, "foreign", nil)
	require.NoError(t, err)
	_, err = c.SetNextTask(ctx, job.ID, foreign.ID)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, joblinesdk.StatusCode(err))

	_, err = c.SetNextTask(ctx, job.ID, "no-such-task")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, joblinesdk.StatusCode(err))

	_, err = c.CreateMapping(ctx, job.ID, "no-such-pi", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, joblinesdk.StatusCode(err))
	mappings, err := c.ListMappings(ctx, url.Values{"job_id": {job.ID}})
	require.NoError(t, err)
	assert.Empty(t, mappings)

	_, err = c.CreateJob(ctx, "dup", map[string]any{"id": job.ID})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, joblinesdk.StatusCode(err))
	// Ids are per owner, so another owner neither collides nor learns anything.
	reused, err := srv.sdk(t, "bob").CreateJob(ctx, "bob's", map[string]any{"id": job.ID})
	require.NoError(t, err)
	assert.Equal(t, job.ID, reused.ID)

	err = c.DeleteTask(ctx, "missing")
	assert.Equal(t, http.StatusNotFound, joblinesdk.StatusCode(err))
}

func TestOwnersAreIsolated(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ctx := context.Background()
	alice := srv.sdk(t, "alice")
	bob := srv.sdk(t, "bob")

	job, err := alice.CreateJob(ctx, "private", nil)
	require.NoError(t, err)
	task, err := alice.CreateTask(ctx, job.ID, "t", nil)
	require.NoError(t, err)

	_, err = bob.GetJob(ctx, job.ID)
	assert.Equal(t, http.StatusNotFound, joblinesdk.StatusCode(err))
	_, err = bob.SetNextTask(ctx, job.ID, task.ID)
	assert.Equal(t, http.StatusNotFound, joblinesdk.StatusCode(err))
	page, err := bob.ListJobs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	tasks, err := bob.BatchTasks(ctx, []string{task.ID})
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestListJobsFiltersAndPaginates(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ctx := context.Background()
	c := srv.sdk(t, "alice")

	var ids []string
	for _, title := range []string{"one", "two", "three"} {
		j, err := c.CreateJob(ctx, title, nil)
		require.NoError(t, err)
		ids = append(ids, j.ID)
	}
	changed, err := c.ToggleDone(ctx, []string{ids[0], ids[0], "unknown"}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	open, err := c.ListJobs(ctx, url.Values{"done": {"false"}})
	require.NoError(t, err)
	assert.Len(t, open.Items, 2)

	seen := map[string]bool{}
	page, err := c.ListJobs(ctx, url.Values{"limit": {"2"}})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.NotEmpty(t, page.NextCursor)
	for _, j := range page.Items {
		seen[j.ID] = true
	}
	page, err = c.ListJobs(ctx, url.Values{"limit": {"2"}, "cursor": {page.NextCursor}})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Empty(t, page.NextCursor)
	seen[page.Items[0].ID] = true
	assert.Len(t, seen, 3)

	_, err = c.ListJobs(ctx, url.Values{"done": {"maybe"}})
	assert.Equal(t, http.StatusBadRequest, joblinesdk.StatusCode(err))
}

func TestTaskFiltersAndBatch(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ctx := context.Background()
	c := srv.sdk(t, "alice")

	job, err := c.CreateJob(ctx, "J", nil)
	require.NoError(t, err)
	a, err := c.CreateTask(ctx, job.ID, "A", map[string]any{
		"tags":           []string{"db", "infra"},
		"required_hours": 3,
		"focus_level":    "High",
	})
	require.NoError(t, err)
	require.NotNil(t, a.RequiredHours)
	assert.Equal(t, 3.0, *a.RequiredHours)
	b, err := c.CreateTask(ctx, job.ID, "B", map[string]any{"completed": true})
	require.NoError(t, err)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/tasks?tag=db", nil, map[string]string{"Authorization": "Bearer " + c.BearerToken})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var list taskList
	require.NoError(t, json.Unmarshal(data, &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, a.ID, list.Items[0].ID)

	batch, err := c.BatchTasks(ctx, []string{b.ID, "missing", a.ID})
	require.NoError(t, err)
	assert.Len(t, batch, 2)

	cleared, err := c.UpdateTask(ctx, a.ID, map[string]any{"required_hours": nil, "focus_level": ""})
	require.NoError(t, err)
	assert.Nil(t, cleared.RequiredHours)
	assert.Nil(t, cleared.FocusLevel)
}

func TestImpactOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ctx := context.Background()
	c := srv.sdk(t, "alice")

	bf, err := c.CreateBusinessFunction(ctx, "Finance")
	require.NoError(t, err)
	j1, err := c.CreateJob(ctx, "J1", map[string]any{"business_function_id": bf.ID})
	require.NoError(t, err)
	_, err = c.CreateJob(ctx, "J2", map[string]any{"business_function_id": bf.ID})
	require.NoError(t, err)
	_, err = c.CreateJob(ctx, "J3", nil)
	require.NoError(t, err)

	counts, err := c.JobCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{bf.ID: 2}, counts)

	t1, err := c.CreateTask(ctx, j1.ID, "t1", map[string]any{"completed": true})
	require.NoError(t, err)
	_, err = c.CreateTask(ctx, j1.ID, "t2", nil)
	require.NoError(t, err)
	pi, err := c.CreatePI(ctx, "Revenue", 10)
	require.NoError(t, err)
	m, err := c.CreateMapping(ctx, j1.ID, pi.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, "J1", m.JobName)
	assert.Equal(t, 10.0, m.PITarget)

	sum, err := c.RecalculateImpact(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Evaluated)
	assert.Equal(t, 1, sum.Updated)
	assert.Equal(t, config.RuleCompletionShare, sum.Rule)

	totals, err := c.ImpactTotals(ctx)
	require.NoError(t, err)
	require.Len(t, totals.PIs, 1)
	assert.InDelta(t, 5.0, totals.PIs[0].Impact, 1e-9)
	assert.InDelta(t, 0.5, totals.PIs[0].Progress, 1e-9)

	_, err = c.UpdateTask(ctx, t1.ID, map[string]any{"completed": false})
	require.NoError(t, err)
	sum, err = c.RecalculateImpact(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Updated)

	fns, err := c.ListBusinessFunctions(ctx)
	require.NoError(t, err)
	require.Len(t, fns, 1)
	assert.Equal(t, 2, fns[0].JobCount)
}

func TestQBOsAndTaskOwnersOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ctx := context.Background()
	c := srv.sdk(t, "alice")

	job, err := c.CreateJob(ctx, "J", nil)
	require.NoError(t, err)
	_, err = c.CreateTask(ctx, job.ID, "t", map[string]any{"owner": "nobody"})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, joblinesdk.StatusCode(err))

	sam, err := c.CreateTaskOwner(ctx, "Sam")
	require.NoError(t, err)
	task, err := c.CreateTask(ctx, job.ID, "t", map[string]any{"owner": sam.ID, "completed": true})
	require.NoError(t, err)
	require.NotNil(t, task.Owner)
	assert.Equal(t, sam.ID, *task.Owner)
	people, err := c.ListTaskOwners(ctx)
	require.NoError(t, err)
	assert.Len(t, people, 1)
	others, err := srv.sdk(t, "bob").ListTaskOwners(ctx)
	require.NoError(t, err)
	assert.Empty(t, others)

	pi, err := c.CreatePI(ctx, "Revenue", 10)
	require.NoError(t, err)
	_, err = c.CreateMapping(ctx, job.ID, pi.ID, nil)
	require.NoError(t, err)
	_, err = c.RecalculateImpact(ctx)
	require.NoError(t, err)

	q, err := c.CreateQBO(ctx, "Grow", 2)
	require.NoError(t, err)
	_, err = c.CreateQBOMapping(ctx, pi.ID, "ghost", 1)
	assert.Equal(t, http.StatusBadRequest, joblinesdk.StatusCode(err))
	m, err := c.CreateQBOMapping(ctx, pi.ID, q.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "Revenue", m.PIName)
	assert.Equal(t, "Grow", m.QBOName)

	byQBO, err := c.ListQBOMappings(ctx, url.Values{"qbo_id": {q.ID}})
	require.NoError(t, err)
	assert.Len(t, byQBO, 1)
	byOther, err := c.ListQBOMappings(ctx, url.Values{"pi_id": {"ghost"}})
	require.NoError(t, err)
	assert.Empty(t, byOther)

	totals, err := c.ImpactTotals(ctx)
	require.NoError(t, err)
	require.Len(t, totals.QBOs, 1)
	assert.InDelta(t, 1.0, totals.QBOs[0].Impact, 1e-9)
	assert.InDelta(t, 0.5, totals.QBOs[0].Progress, 1e-9)

	require.NoError(t, c.DeleteTaskOwner(ctx, sam.ID))
	got, err := c.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Owner)
}

func TestEventsPaginateNewestFirst(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ctx := context.Background()
	c := srv.sdk(t, "alice")

	for _, title := range []string{"a", "b", "c"} {
		_, err := c.CreateJob(ctx, title, nil)
		require.NoError(t, err)
	}
	first, err := c.EventsPage(ctx, 2, "")
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	require.NotEmpty(t, first.NextCursor)
	assert.Greater(t, first.Items[0].ID, first.Items[1].ID)
	assert.Equal(t, "job.created", first.Items[0].Type)

	second, err := c.EventsPage(ctx, 2, first.NextCursor)
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.Less(t, second.Items[0].ID, first.Items[1].ID)
}
