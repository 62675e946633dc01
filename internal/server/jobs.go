package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"jobline/internal/domain"
	"jobline/internal/engine"
)

type jobPath struct {
	JobID string `path:"job_id"`
}

func registerJobs(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-job",
		Method:        http.MethodPost,
		Path:          "/jobs",
		Summary:       "Create job",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateJobRequest `json:"body"`
	}) (*struct {
		Body domain.Job `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		in := engine.JobInput{
			ID:                 stringOrEmpty(input.Body.ID),
			Title:              input.Body.Title,
			Notes:              stringOrEmpty(input.Body.Notes),
			BusinessFunctionID: input.Body.BusinessFunctionID,
			DueDate:            input.Body.DueDate,
		}
		if input.Body.IsDone != nil {
			in.IsDone = *input.Body.IsDone
		}
		j, err := e.Jobs.Create(ctx, owner, in)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.Job `json:"body"`
		}{Body: j}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-jobs",
		Method:      http.MethodGet,
		Path:        "/jobs",
		Summary:     "List jobs",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Done               string `query:"done" doc:"true or false"`
		BusinessFunctionID string `query:"business_function_id"`
		Limit              int    `query:"limit" default:"50"`
		Cursor             string `query:"cursor"`
	}) (*struct {
		Body paginatedJobs `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		done, qErr := parseBoolQuery("done", input.Done)
		if qErr != nil {
			return nil, qErr
		}
		limit := normalizeLimit(input.Limit)
		cursorCreated, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		jobs, err := e.Jobs.List(ctx, owner, engine.JobFilter{
			Done:               done,
			BusinessFunctionID: input.BusinessFunctionID,
			Limit:              limit + 1,
			CursorCreatedAt:    cursorCreated,
			CursorID:           cursorID,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		resp := paginatedJobs{Items: nonNilSlice(jobs)}
		if len(jobs) > limit {
			resp.Items = jobs[:limit]
			last := resp.Items[limit-1]
			resp.NextCursor = composeCursor(last.CreatedAt, last.ID)
		}
		return &struct {
			Body paginatedJobs `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-job",
		Method:      http.MethodGet,
		Path:        "/jobs/{job_id}",
		Summary:     "Get job",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *jobPath) (*struct {
		Body domain.Job `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		j, err := e.Jobs.Get(ctx, owner, input.JobID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.Job `json:"body"`
		}{Body: j}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-job",
		Method:      http.MethodPatch,
		Path:        "/jobs/{job_id}",
		Summary:     "Update job",
		Description: "Partial update. next_task_id is delegated to the next-task operation in the same transaction; task_ids reorders the job's tasks.",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		JobID string           `path:"job_id"`
		Body  UpdateJobRequest `json:"body"`
	}) (*struct {
		Body domain.Job `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		raw := rawBodyMap(ctx)
		p := engine.JobPatch{
			Title:              input.Body.Title,
			Notes:              input.Body.Notes,
			BusinessFunctionID: clearedOrValue(raw, "business_function_id", input.Body.BusinessFunctionID),
			DueDate:            clearedOrValue(raw, "due_date", input.Body.DueDate),
			IsDone:             input.Body.IsDone,
			NextTaskID:         clearedOrValue(raw, "next_task_id", input.Body.NextTaskID),
		}
		if rawIDs, ok := raw["task_ids"]; ok {
			if isNullRaw(rawIDs) {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "task_ids must be array", map[string]any{"field": "task_ids", "reason": "must be array"})
			}
			ids := nonNilSlice(input.Body.TaskIDs)
			p.TaskIDs = &ids
		}
		j, err := e.Jobs.Update(ctx, owner, input.JobID, p)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.Job `json:"body"`
		}{Body: j}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-job",
		Method:      http.MethodDelete,
		Path:        "/jobs/{job_id}",
		Summary:     "Delete job with its tasks and mappings",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *jobPath) (*struct {
		Body DeleteResponse `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		deleted, err := e.Jobs.Delete(ctx, owner, input.JobID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		if !deleted {
			return nil, newAPIError(http.StatusNotFound, "not_found", "job "+input.JobID+" not found", map[string]any{"kind": "job", "id": input.JobID})
		}
		return &struct {
			Body DeleteResponse `json:"body"`
		}{Body: DeleteResponse{Deleted: true}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-next-task",
		Method:      http.MethodPut,
		Path:        "/jobs/{job_id}/next-task",
		Summary:     "Set the job's next task",
		Description: "Marks one task of the job as next and unmarks the previous one atomically. task_id \"none\" clears the marker.",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		JobID string             `path:"job_id"`
		Body  SetNextTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Job `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		j, err := engine.RetryConflict(ctx, func() (domain.Job, error) {
			return e.Tasks.SetNextTask(ctx, owner, input.JobID, input.Body.TaskID)
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.Job `json:"body"`
		}{Body: j}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "clear-next-task",
		Method:      http.MethodDelete,
		Path:        "/jobs/{job_id}/next-task",
		Summary:     "Clear the job's next task",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *jobPath) (*struct {
		Body domain.Job `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		j, err := engine.RetryConflict(ctx, func() (domain.Job, error) {
			return e.Tasks.SetNextTask(ctx, owner, input.JobID, domain.NoTask)
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.Job `json:"body"`
		}{Body: j}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-job-tasks",
		Method:      http.MethodGet,
		Path:        "/jobs/{job_id}/tasks",
		Summary:     "List the job's tasks in order",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *jobPath) (*struct {
		Body taskList `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		tasks, err := e.Tasks.ListByJob(ctx, owner, input.JobID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body taskList `json:"body"`
		}{Body: taskList{Items: nonNilSlice(tasks)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-job-mappings",
		Method:      http.MethodGet,
		Path:        "/jobs/{job_id}/mappings",
		Summary:     "List the job's PI mappings",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *jobPath) (*struct {
		Body mappingList `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Impact.MappingsForJob(ctx, owner, input.JobID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body mappingList `json:"body"`
		}{Body: mappingList{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "toggle-jobs-done",
		Method:      http.MethodPost,
		Path:        "/jobs/done",
		Summary:     "Set is_done on several jobs",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body ToggleDoneRequest `json:"body"`
	}) (*struct {
		Body ToggleDoneResponse `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if isNullRaw(rawBodyMap(ctx)["ids"]) {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "ids must be array", map[string]any{"field": "ids", "reason": "must be array"})
		}
		n, err := e.Jobs.ToggleDone(ctx, owner, input.Body.IDs, input.Body.IsDone)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body ToggleDoneResponse `json:"body"`
		}{Body: ToggleDoneResponse{Changed: n}}, nil
	})
}

