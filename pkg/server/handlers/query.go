// Package handlers implements the HTTP endpoints.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/soundprediction/expertgraph/pkg/search"
	"github.com/soundprediction/expertgraph/pkg/server/dto"
	"github.com/soundprediction/expertgraph/pkg/types"
)

// Querier is the retrieval surface the handlers need.
type Querier interface {
	Query(ctx context.Context, query string) (*types.RetrievalResponse, error)
	BatchQuery(ctx context.Context, queries []string) []types.QueryResult
}

// QueryHandler handles retrieval requests
type QueryHandler struct {
	client Querier
}

// NewQueryHandler creates a new query handler
func NewQueryHandler(client Querier) *QueryHandler {
	return &QueryHandler{client: client}
}

// Query handles POST /api/v1/query
func (h *QueryHandler) Query(c *gin.Context) {
	var req dto.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Code:    "invalid_request",
			Message: err.Error(),
		})
		return
	}

	resp, err := h.client.Query(c.Request.Context(), req.Query)
	if err != nil {
		status, code := classify(err)
		c.JSON(status, dto.ErrorResponse{Code: code, Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.FromRetrieval(resp))
}

// BatchQuery handles POST /api/v1/query/batch
func (h *QueryHandler) BatchQuery(c *gin.Context) {
	var req dto.BatchQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Code:    "invalid_request",
			Message: err.Error(),
		})
		return
	}
	if len(req.Queries) == 0 {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Code:    "invalid_request",
			Message: "queries cannot be empty",
		})
		return
	}

	results := h.client.BatchQuery(c.Request.Context(), req.Queries)
	out := dto.BatchQueryResponse{Results: make([]dto.BatchQuerySlot, len(results))}
	for i, r := range results {
		if r.Err != nil {
			out.Results[i] = dto.BatchQuerySlot{Error: r.Err.Error()}
			continue
		}
		out.Results[i] = dto.BatchQuerySlot{Response: dto.FromRetrieval(r.Response)}
	}
	c.JSON(http.StatusOK, out)
}

func classify(err error) (int, string) {
	var unavailable *search.StoreUnavailableError
	switch {
	case errors.Is(err, types.ErrEmptyQuery):
		return http.StatusBadRequest, "invalid_request"
	case errors.As(err, &unavailable):
		return http.StatusServiceUnavailable, "store_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
