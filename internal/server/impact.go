package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"jobline/internal/domain"
	"jobline/internal/engine"
)

type mappingPath struct {
	ID string `path:"mapping_id"`
}

func registerMappings(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-mapping",
		Method:        http.MethodPost,
		Path:          "/mappings",
		Summary:       "Map a job to a PI",
		Description:   "Job and PI names are snapshotted. pi_target defaults to the PI's target value.",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateMappingRequest `json:"body"`
	}) (*struct {
		Body domain.Mapping `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		in := engine.MappingInput{
			ID:       stringOrEmpty(input.Body.ID),
			JobID:    input.Body.JobID,
			PIID:     input.Body.PIID,
			PITarget: input.Body.PITarget,
			Notes:    stringOrEmpty(input.Body.Notes),
		}
		if input.Body.PIImpactValue != nil {
			in.PIImpactValue = *input.Body.PIImpactValue
		}
		m, err := e.Impact.CreateMapping(ctx, owner, in)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.Mapping `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-mappings",
		Method:      http.MethodGet,
		Path:        "/mappings",
		Summary:     "List mappings",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		JobID string `query:"job_id"`
		PIID  string `query:"pi_id"`
	}) (*struct {
		Body mappingList `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Impact.ListMappings(ctx, owner, engine.MappingFilter{JobID: input.JobID, PIID: input.PIID})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body mappingList `json:"body"`
		}{Body: mappingList{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-mapping",
		Method:      http.MethodGet,
		Path:        "/mappings/{mapping_id}",
		Summary:     "Get mapping",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *mappingPath) (*struct {
		Body domain.Mapping `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.Impact.GetMapping(ctx, owner, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.Mapping `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-mapping",
		Method:      http.MethodPatch,
		Path:        "/mappings/{mapping_id}",
		Summary:     "Update mapping",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"mapping_id"`
		Body UpdateMappingRequest `json:"body"`
	}) (*struct {
		Body domain.Mapping `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.Impact.UpdateMapping(ctx, owner, input.ID, engine.MappingPatch{
			PITarget:      input.Body.PITarget,
			PIImpactValue: input.Body.PIImpactValue,
			Notes:         input.Body.Notes,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.Mapping `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-mapping",
		Method:      http.MethodDelete,
		Path:        "/mappings/{mapping_id}",
		Summary:     "Delete mapping",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *mappingPath) (*struct {
		Body DeleteResponse `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		deleted, err := e.Impact.DeleteMapping(ctx, owner, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		if !deleted {
			return nil, newAPIError(http.StatusNotFound, "not_found", "mapping "+input.ID+" not found", map[string]any{"kind": "mapping", "id": input.ID})
		}
		return &struct {
			Body DeleteResponse `json:"body"`
		}{Body: DeleteResponse{Deleted: true}}, nil
	})
}

func registerImpact(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "recalculate-impact",
		Method:      http.MethodPost,
		Path:        "/impact/recalculate",
		Summary:     "Recompute every mapping's impact value",
		Errors:      []int{http.StatusUnauthorized, http.StatusInternalServerError},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body engine.ImpactSummary `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		sum, err := e.Impact.RecalculateImpact(ctx, owner)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body engine.ImpactSummary `json:"body"`
		}{Body: sum}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "impact-totals",
		Method:      http.MethodGet,
		Path:        "/impact/totals",
		Summary:     "Impact rolled up per PI and per business function",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body engine.ImpactTotals `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		totals, err := e.Impact.Totals(ctx, owner)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		totals.PIs = nonNilSlice(totals.PIs)
		totals.BusinessFunctions = nonNilSlice(totals.BusinessFunctions)
		return &struct {
			Body engine.ImpactTotals `json:"body"`
		}{Body: totals}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "job-counts",
		Method:      http.MethodGet,
		Path:        "/impact/job-counts",
		Summary:     "Number of jobs per business function",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]int `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		counts, err := e.Impact.JobCountsByBusinessFunction(ctx, owner)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		if counts == nil {
			counts = map[string]int{}
		}
		return &struct {
			Body map[string]int `json:"body"`
		}{Body: counts}, nil
	})
}
