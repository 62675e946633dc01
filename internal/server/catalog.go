package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"jobline/internal/domain"
	"jobline/internal/engine"
)

type businessFunctionPath struct {
	ID string `path:"bf_id"`
}

type piPath struct {
	ID string `path:"pi_id"`
}

func registerBusinessFunctions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-business-function",
		Method:        http.MethodPost,
		Path:          "/business-functions",
		Summary:       "Create business function",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateBusinessFunctionRequest `json:"body"`
	}) (*struct {
		Body domain.BusinessFunction `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		bf, err := e.Catalog.CreateBusinessFunction(ctx, owner, stringOrEmpty(input.Body.ID), input.Body.Name)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.BusinessFunction `json:"body"`
		}{Body: bf}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-business-functions",
		Method:      http.MethodGet,
		Path:        "/business-functions",
		Summary:     "List business functions with job counts",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body businessFunctionList `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Catalog.ListBusinessFunctions(ctx, owner)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body businessFunctionList `json:"body"`
		}{Body: businessFunctionList{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-business-function",
		Method:      http.MethodGet,
		Path:        "/business-functions/{bf_id}",
		Summary:     "Get business function",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *businessFunctionPath) (*struct {
		Body domain.BusinessFunction `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		bf, err := e.Catalog.GetBusinessFunction(ctx, owner, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.BusinessFunction `json:"body"`
		}{Body: bf}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "rename-business-function",
		Method:      http.MethodPatch,
		Path:        "/business-functions/{bf_id}",
		Summary:     "Rename business function",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string                        `path:"bf_id"`
		Body UpdateBusinessFunctionRequest `json:"body"`
	}) (*struct {
		Body domain.BusinessFunction `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		bf, err := e.Catalog.UpdateBusinessFunction(ctx, owner, input.ID, input.Body.Name)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.BusinessFunction `json:"body"`
		}{Body: bf}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-business-function",
		Method:      http.MethodDelete,
		Path:        "/business-functions/{bf_id}",
		Summary:     "Delete business function",
		Description: "Jobs in the function are kept and detached from it.",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *businessFunctionPath) (*struct {
		Body DeleteResponse `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		deleted, err := e.Catalog.DeleteBusinessFunction(ctx, owner, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		if !deleted {
			return nil, newAPIError(http.StatusNotFound, "not_found", "business function "+input.ID+" not found", map[string]any{"kind": "business_function", "id": input.ID})
		}
		return &struct {
			Body DeleteResponse `json:"body"`
		}{Body: DeleteResponse{Deleted: true}}, nil
	})
}

func registerPIs(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-pi",
		Method:        http.MethodPost,
		Path:          "/pis",
		Summary:       "Create performance indicator",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreatePIRequest `json:"body"`
	}) (*struct {
		Body domain.PI `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		in := engine.PIInput{ID: stringOrEmpty(input.Body.ID), Name: input.Body.Name}
		if input.Body.TargetValue != nil {
			in.TargetValue = *input.Body.TargetValue
		}
		pi, err := e.Catalog.CreatePI(ctx, owner, in)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.PI `json:"body"`
		}{Body: pi}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-pis",
		Method:      http.MethodGet,
		Path:        "/pis",
		Summary:     "List performance indicators",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body piList `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Catalog.ListPIs(ctx, owner)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body piList `json:"body"`
		}{Body: piList{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-pi",
		Method:      http.MethodGet,
		Path:        "/pis/{pi_id}",
		Summary:     "Get performance indicator",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *piPath) (*struct {
		Body domain.PI `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		pi, err := e.Catalog.GetPI(ctx, owner, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.PI `json:"body"`
		}{Body: pi}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-pi",
		Method:      http.MethodPatch,
		Path:        "/pis/{pi_id}",
		Summary:     "Update performance indicator",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string          `path:"pi_id"`
		Body UpdatePIRequest `json:"body"`
	}) (*struct {
		Body domain.PI `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		pi, err := e.Catalog.UpdatePI(ctx, owner, input.ID, engine.PIPatch{Name: input.Body.Name, TargetValue: input.Body.TargetValue})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.PI `json:"body"`
		}{Body: pi}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-pi",
		Method:      http.MethodDelete,
		Path:        "/pis/{pi_id}",
		Summary:     "Delete performance indicator and its mappings",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *piPath) (*struct {
		Body DeleteResponse `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		deleted, err := e.Catalog.DeletePI(ctx, owner, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		if !deleted {
			return nil, newAPIError(http.StatusNotFound, "not_found", "pi "+input.ID+" not found", map[string]any{"kind": "pi", "id": input.ID})
		}
		return &struct {
			Body DeleteResponse `json:"body"`
		}{Body: DeleteResponse{Deleted: true}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-pi-mappings",
		Method:      http.MethodGet,
		Path:        "/pis/{pi_id}/mappings",
		Summary:     "List the PI's job mappings",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *piPath) (*struct {
		Body mappingList `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Impact.MappingsForPI(ctx, owner, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body mappingList `json:"body"`
		}{Body: mappingList{Items: nonNilSlice(items)}}, nil
	})
}
