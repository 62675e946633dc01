package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"jobline/internal/domain"
	"jobline/internal/engine"
)

type taskPath struct {
	TaskID string `path:"task_id"`
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		Description:   "Appends a task to an existing job. next_task is ignored; use the job's next-task operation.",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if isNullRaw(rawBodyMap(ctx)["tags"]) {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "tags must be array", map[string]any{"field": "tags", "reason": "must be array"})
		}
		in := engine.TaskInput{
			ID:            stringOrEmpty(input.Body.ID),
			JobID:         input.Body.JobID,
			Title:         input.Body.Title,
			Owner:         input.Body.Owner,
			Date:          input.Body.Date,
			RequiredHours: input.Body.RequiredHours,
			FocusLevel:    levelPtr(input.Body.FocusLevel),
			JoyLevel:      levelPtr(input.Body.JoyLevel),
			Notes:         stringOrEmpty(input.Body.Notes),
			Tags:          input.Body.Tags,
		}
		if input.Body.Completed != nil {
			in.Completed = *input.Body.Completed
		}
		t, err := e.Tasks.Create(ctx, owner, in)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		JobID     string `query:"job_id"`
		Completed string `query:"completed" doc:"true or false"`
		Tag       string `query:"tag"`
	}) (*struct {
		Body taskList `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		completed, qErr := parseBoolQuery("completed", input.Completed)
		if qErr != nil {
			return nil, qErr
		}
		tasks, err := e.Tasks.List(ctx, owner, engine.TaskFilter{JobID: input.JobID, Completed: completed, Tag: input.Tag})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body taskList `json:"body"`
		}{Body: taskList{Items: nonNilSlice(tasks)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "batch-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks/batch",
		Summary:     "Fetch several tasks by id",
		Description: "ids is comma separated. Unknown ids are skipped.",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		IDs string `query:"ids"`
	}) (*struct {
		Body taskList `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ids := []string{}
		for _, id := range strings.Split(input.IDs, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		tasks, err := e.Tasks.GetMany(ctx, owner, ids)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body taskList `json:"body"`
		}{Body: taskList{Items: nonNilSlice(tasks)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.Tasks.Get(ctx, owner, input.TaskID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{task_id}",
		Summary:     "Update task",
		Description: "Partial update. Completing or moving the job's next task clears the job's marker.",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		TaskID string            `path:"task_id"`
		Body   UpdateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		raw := rawBodyMap(ctx)
		p := engine.TaskPatch{
			JobID:         input.Body.JobID,
			Title:         input.Body.Title,
			Owner:         clearedOrValue(raw, "owner", input.Body.Owner),
			Date:          clearedOrValue(raw, "date", input.Body.Date),
			RequiredHours: input.Body.RequiredHours,
			FocusLevel:    levelPtr(clearedOrValue(raw, "focus_level", input.Body.FocusLevel)),
			JoyLevel:      levelPtr(clearedOrValue(raw, "joy_level", input.Body.JoyLevel)),
			Notes:         input.Body.Notes,
			Completed:     input.Body.Completed,
		}
		if isNullRaw(raw["required_hours"]) {
			p.ClearRequiredHours = true
		}
		if rawTags, ok := raw["tags"]; ok {
			if isNullRaw(rawTags) {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "tags must be array", map[string]any{"field": "tags", "reason": "must be array"})
			}
			tags := nonNilSlice(input.Body.Tags)
			p.Tags = &tags
		}
		t, err := e.Tasks.Update(ctx, owner, input.TaskID, p)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-task",
		Method:      http.MethodDelete,
		Path:        "/tasks/{task_id}",
		Summary:     "Delete task",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*struct {
		Body DeleteResponse `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		deleted, err := e.Tasks.Delete(ctx, owner, input.TaskID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		if !deleted {
			return nil, newAPIError(http.StatusNotFound, "not_found", "task "+input.TaskID+" not found", map[string]any{"kind": "task", "id": input.TaskID})
		}
		return &struct {
			Body DeleteResponse `json:"body"`
		}{Body: DeleteResponse{Deleted: true}}, nil
	})
}
