// internal/handler/ingest_handler.go
package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	appErrors "github.com/unclebandit/draftdesk/internal/errors"
	"github.com/unclebandit/draftdesk/internal/middleware"
	"github.com/unclebandit/draftdesk/internal/model"
	"github.com/unclebandit/draftdesk/internal/service"
)

// IngestHandler accepts content from generators and reports pipeline counts.
type IngestHandler struct {
	Generator *service.Generator
	Review    *service.ReviewService
}

func NewIngestHandler(gen *service.Generator, review *service.ReviewService) *IngestHandler {
	return &IngestHandler{Generator: gen, Review: review}
}

func (h *IngestHandler) Routes(r chi.Router) {
	r.Post("/items", h.CreateItem)
	r.Post("/items/batch", h.CreateBatch)
	r.Get("/stats", h.Stats)
	r.Get("/platforms", h.Platforms)
}

// maxBatchSize bounds the number of items accepted by one batch request.
const maxBatchSize = 100

type createItemRequest struct {
	Kind     model.Kind        `json:"kind"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

func (h *IngestHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var payload createItemRequest
	if err := render.DecodeJSON(r.Body, &payload); err != nil {
		middleware.RenderError(w, r, appErrors.NewValidation("invalid request body: %v", err))
		return
	}

	item, err := h.Generator.Emit(r.Context(), middleware.CredentialFrom(r.Context()),
		payload.Kind, payload.Content, payload.Metadata)
	if err != nil {
		middleware.RenderError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, item)
}

type batchRequest struct {
	Items []createItemRequest `json:"items"`
}

type batchResult struct {
	Index   int                   `json:"index"`
	Success bool                  `json:"success"`
	Item    *model.ContentItem    `json:"item,omitempty"`
	Error   *middleware.ErrorBody `json:"error,omitempty"`
}

type batchResponse struct {
	Results      []batchResult `json:"results"`
	SuccessCount int           `json:"success_count"`
	FailureCount int           `json:"failure_count"`
}

// CreateBatch emits each item independently and reports the outcome per item.
// One invalid item does not stop the rest of the batch.
func (h *IngestHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var payload batchRequest
	if err := render.DecodeJSON(r.Body, &payload); err != nil {
		middleware.RenderError(w, r, appErrors.NewValidation("invalid request body: %v", err))
		return
	}
	if len(payload.Items) == 0 || len(payload.Items) > maxBatchSize {
		middleware.RenderError(w, r, appErrors.NewValidation("a batch holds between 1 and %d items", maxBatchSize))
		return
	}

	cred := middleware.CredentialFrom(r.Context())
	resp := batchResponse{Results: make([]batchResult, 0, len(payload.Items))}
	for i, req := range payload.Items {
		item, err := h.Generator.Emit(r.Context(), cred, req.Kind, req.Content, req.Metadata)
		if err != nil {
			// a credential problem applies to every item, so fail the whole request
			if errors.Is(err, appErrors.ErrUnauthenticated) || errors.Is(err, appErrors.ErrForbidden) {
				middleware.RenderError(w, r, err)
				return
			}
			body := middleware.ErrorFor(r, err)
			resp.Results = append(resp.Results, batchResult{Index: i, Error: &body})
			resp.FailureCount++
			continue
		}
		resp.Results = append(resp.Results, batchResult{Index: i, Success: true, Item: item})
		resp.SuccessCount++
	}
	render.JSON(w, r, resp)
}

type platformsResponse struct {
	Platforms []model.Platform `json:"platforms"`
}

// Platforms lists the known post platforms and their length limits.
func (h *IngestHandler) Platforms(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, platformsResponse{Platforms: model.Platforms})
}

type statsResponse struct {
	Total  int                  `json:"total"`
	Counts map[model.Status]int `json:"counts"`
}

func (h *IngestHandler) Stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.Review.Stats(r.Context(), middleware.CredentialFrom(r.Context()))
	if err != nil {
		middleware.RenderError(w, r, err)
		return
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	render.JSON(w, r, statsResponse{Total: total, Counts: counts})
}

// Health answers liveness probes.
func Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}
