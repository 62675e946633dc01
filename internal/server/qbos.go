package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"jobline/internal/domain"
	"jobline/internal/engine"
)

type taskOwnerPath struct {
	ID string `path:"task_owner_id"`
}

type qboPath struct {
	ID string `path:"qbo_id"`
}

type qboMappingPath struct {
	ID string `path:"qbo_mapping_id"`
}

func registerTaskOwners(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task-owner",
		Method:        http.MethodPost,
		Path:          "/owners",
		Summary:       "Register a person tasks can be assigned to",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskOwnerRequest `json:"body"`
	}) (*struct {
		Body domain.TaskOwner `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.Catalog.CreateTaskOwner(ctx, owner, stringOrEmpty(input.Body.ID), input.Body.Name)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.TaskOwner `json:"body"`
		}{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-task-owners",
		Method:      http.MethodGet,
		Path:        "/owners",
		Summary:     "List task owners",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body taskOwnerList `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Catalog.ListTaskOwners(ctx, owner)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body taskOwnerList `json:"body"`
		}{Body: taskOwnerList{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task-owner",
		Method:      http.MethodGet,
		Path:        "/owners/{task_owner_id}",
		Summary:     "Get task owner",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *taskOwnerPath) (*struct {
		Body domain.TaskOwner `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.Catalog.GetTaskOwner(ctx, owner, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.TaskOwner `json:"body"`
		}{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task-owner",
		Method:      http.MethodPatch,
		Path:        "/owners/{task_owner_id}",
		Summary:     "Rename task owner",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string                 `path:"task_owner_id"`
		Body UpdateTaskOwnerRequest `json:"body"`
	}) (*struct {
		Body domain.TaskOwner `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.Catalog.UpdateTaskOwner(ctx, owner, input.ID, input.Body.Name)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.TaskOwner `json:"body"`
		}{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-task-owner",
		Method:      http.MethodDelete,
		Path:        "/owners/{task_owner_id}",
		Summary:     "Delete task owner and unassign their tasks",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *taskOwnerPath) (*struct {
		Body DeleteResponse `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		deleted, err := e.Catalog.DeleteTaskOwner(ctx, owner, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		if !deleted {
			return nil, newAPIError(http.StatusNotFound, "not_found", "task owner "+input.ID+" not found", map[string]any{"kind": "task owner", "id": input.ID})
		}
		return &struct {
			Body DeleteResponse `json:"body"`
		}{Body: DeleteResponse{Deleted: true}}, nil
	})
}

func registerQBOs(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-qbo",
		Method:        http.MethodPost,
		Path:          "/qbos",
		Summary:       "Create quarterly business objective",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateQBORequest `json:"body"`
	}) (*struct {
		Body domain.QBO `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		in := engine.QBOInput{ID: stringOrEmpty(input.Body.ID), Name: input.Body.Name}
		if input.Body.TargetValue != nil {
			in.TargetValue = *input.Body.TargetValue
		}
		q, err := e.Catalog.CreateQBO(ctx, owner, in)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.QBO `json:"body"`
		}{Body: q}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-qbos",
		Method:      http.MethodGet,
		Path:        "/qbos",
		Summary:     "List quarterly business objectives",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body qboList `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Catalog.ListQBOs(ctx, owner)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body qboList `json:"body"`
		}{Body: qboList{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-qbo",
		Method:      http.MethodGet,
		Path:        "/qbos/{qbo_id}",
		Summary:     "Get quarterly business objective",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *qboPath) (*struct {
		Body domain.QBO `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		q, err := e.Catalog.GetQBO(ctx, owner, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.QBO `json:"body"`
		}{Body: q}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-qbo",
		Method:      http.MethodPatch,
		Path:        "/qbos/{qbo_id}",
		Summary:     "Update quarterly business objective",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string           `path:"qbo_id"`
		Body UpdateQBORequest `json:"body"`
	}) (*struct {
		Body domain.QBO `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		q, err := e.Catalog.UpdateQBO(ctx, owner, input.ID, engine.QBOPatch{Name: input.Body.Name, TargetValue: input.Body.TargetValue})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.QBO `json:"body"`
		}{Body: q}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-qbo",
		Method:      http.MethodDelete,
		Path:        "/qbos/{qbo_id}",
		Summary:     "Delete quarterly business objective and its PI mappings",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *qboPath) (*struct {
		Body DeleteResponse `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		deleted, err := e.Catalog.DeleteQBO(ctx, owner, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		if !deleted {
			return nil, newAPIError(http.StatusNotFound, "not_found", "qbo "+input.ID+" not found", map[string]any{"kind": "qbo", "id": input.ID})
		}
		return &struct {
			Body DeleteResponse `json:"body"`
		}{Body: DeleteResponse{Deleted: true}}, nil
	})
}

func registerQBOMappings(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-qbo-mapping",
		Method:        http.MethodPost,
		Path:          "/qbo-mappings",
		Summary:       "Map a PI to a QBO",
		Description:   "PI and QBO names are snapshotted. qbo_impact weighs the PI's progress toward the QBO.",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateQBOMappingRequest `json:"body"`
	}) (*struct {
		Body domain.QBOMapping `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		in := engine.QBOMappingInput{
			ID:    stringOrEmpty(input.Body.ID),
			PIID:  input.Body.PIID,
			QBOID: input.Body.QBOID,
			Notes: stringOrEmpty(input.Body.Notes),
		}
		if input.Body.QBOImpact != nil {
			in.QBOImpact = *input.Body.QBOImpact
		}
		m, err := e.Impact.CreateQBOMapping(ctx, owner, in)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.QBOMapping `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-qbo-mappings",
		Method:      http.MethodGet,
		Path:        "/qbo-mappings",
		Summary:     "List PI to QBO mappings",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		PIID  string `query:"pi_id"`
		QBOID string `query:"qbo_id"`
	}) (*struct {
		Body qboMappingList `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Impact.ListQBOMappings(ctx, owner, engine.QBOMappingFilter{PIID: input.PIID, QBOID: input.QBOID})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body qboMappingList `json:"body"`
		}{Body: qboMappingList{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-qbo-mapping",
		Method:      http.MethodGet,
		Path:        "/qbo-mappings/{qbo_mapping_id}",
		Summary:     "Get PI to QBO mapping",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *qboMappingPath) (*struct {
		Body domain.QBOMapping `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.Impact.GetQBOMapping(ctx, owner, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.QBOMapping `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-qbo-mapping",
		Method:      http.MethodPatch,
		Path:        "/qbo-mappings/{qbo_mapping_id}",
		Summary:     "Update PI to QBO mapping",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string                  `path:"qbo_mapping_id"`
		Body UpdateQBOMappingRequest `json:"body"`
	}) (*struct {
		Body domain.QBOMapping `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.Impact.UpdateQBOMapping(ctx, owner, input.ID, engine.QBOMappingPatch{QBOImpact: input.Body.QBOImpact, Notes: input.Body.Notes})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.QBOMapping `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-qbo-mapping",
		Method:      http.MethodDelete,
		Path:        "/qbo-mappings/{qbo_mapping_id}",
		Summary:     "Delete PI to QBO mapping",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *qboMappingPath) (*struct {
		Body DeleteResponse `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		deleted, err := e.Impact.DeleteQBOMapping(ctx, owner, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		if !deleted {
			return nil, newAPIError(http.StatusNotFound, "not_found", "qbo mapping "+input.ID+" not found", map[string]any{"kind": "qbo mapping", "id": input.ID})
		}
		return &struct {
			Body DeleteResponse `json:"body"`
		}{Body: DeleteResponse{Deleted: true}}, nil
	})
}
