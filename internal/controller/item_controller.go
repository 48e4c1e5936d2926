// internal/controller/item_controller.go
package controller

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	appErrors "github.com/unclebandit/draftdesk/internal/errors"
	"github.com/unclebandit/draftdesk/internal/middleware"
	"github.com/unclebandit/draftdesk/internal/model"
	"github.com/unclebandit/draftdesk/internal/repository"
	"github.com/unclebandit/draftdesk/internal/sanitize"
	"github.com/unclebandit/draftdesk/internal/service"
)

// ItemController serves the reviewer API.
type ItemController struct {
	Review   *service.ReviewService
	Renderer *sanitize.Renderer
}

func NewItemController(review *service.ReviewService, renderer *sanitize.Renderer) *ItemController {
	return &ItemController{Review: review, Renderer: renderer}
}

// ItemResponse is an item as the reviewer UI sees it.
type ItemResponse struct {
	*model.ContentItem
	ContentHTML string `json:"content_html"`
	Terminal    bool   `json:"terminal"`
}

type ListResponse struct {
	Items      []ItemResponse `json:"items"`
	NextCursor *string        `json:"next_cursor"`
}

func (c *ItemController) Routes(r chi.Router) {
	r.Get("/items", c.ListItems)
	r.Get("/items/pending", c.ListPending)
	r.Get("/items/{id}", c.GetItem)
	r.Put("/items/{id}", c.EditItem)
	r.Post("/items/{id}/submit", c.transition(c.Review.Submit))
	r.Post("/items/{id}/approve", c.ApproveItem)
	r.Post("/items/{id}/reject", c.transition(c.Review.Reject))
	r.Post("/items/{id}/requeue", c.transition(c.Review.Requeue))
}

func (c *ItemController) toResponse(item *model.ContentItem) ItemResponse {
	return ItemResponse{
		ContentItem: item,
		ContentHTML: c.Renderer.HTML(item.Content),
		Terminal:    c.Review.IsTerminal(item),
	}
}

func (c *ItemController) renderPage(w http.ResponseWriter, r *http.Request, page *repository.Page) {
	resp := ListResponse{Items: make([]ItemResponse, 0, len(page.Items))}
	for _, item := range page.Items {
		resp.Items = append(resp.Items, c.toResponse(item))
	}
	if page.NextCursor != "" {
		next := page.NextCursor
		resp.NextCursor = &next
	}
	render.JSON(w, r, resp)
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, appErrors.NewValidation("limit must be a non-negative integer")
	}
	return limit, nil
}

// parseStatuses accepts ?status=a,b as well as repeated status parameters.
func parseStatuses(r *http.Request) []model.Status {
	var statuses []model.Status
	for _, v := range r.URL.Query()["status"] {
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				statuses = append(statuses, model.Status(s))
			}
		}
	}
	return statuses
}

func (c *ItemController) ListItems(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		middleware.RenderError(w, r, err)
		return
	}
	q := r.URL.Query()
	page, err := c.Review.ListItems(r.Context(), middleware.CredentialFrom(r.Context()),
		parseStatuses(r), model.Kind(q.Get("kind")), q.Get("cursor"), limit)
	if err != nil {
		middleware.RenderError(w, r, err)
		return
	}
	c.renderPage(w, r, page)
}

func (c *ItemController) ListPending(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		middleware.RenderError(w, r, err)
		return
	}
	q := r.URL.Query()
	page, err := c.Review.ListPending(r.Context(), middleware.CredentialFrom(r.Context()),
		model.Kind(q.Get("kind")), q.Get("cursor"), limit)
	if err != nil {
		middleware.RenderError(w, r, err)
		return
	}
	c.renderPage(w, r, page)
}

func (c *ItemController) GetItem(w http.ResponseWriter, r *http.Request) {
	item, err := c.Review.Get(r.Context(), middleware.CredentialFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		middleware.RenderError(w, r, err)
		return
	}
	render.JSON(w, r, c.toResponse(item))
}

// versionBody accepts the expected version as expected_version or expectedVersion.
type versionBody struct {
	ExpectedVersion      *int64     `json:"expected_version"`
	ExpectedVersionCamel *int64     `json:"expectedVersion"`
	ScheduledAt          *time.Time `json:"scheduled_at"`
}

func (b versionBody) version() *int64 {
	if b.ExpectedVersion != nil {
		return b.ExpectedVersion
	}
	return b.ExpectedVersionCamel
}

type editBody struct {
	versionBody
	Content *string `json:"content"`
}

func decodeVersionBody(w http.ResponseWriter, r *http.Request) (versionBody, bool) {
	var body versionBody
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		middleware.RenderError(w, r, appErrors.NewValidation("invalid body: %v", err))
		return body, false
	}
	if body.version() == nil {
		middleware.RenderError(w, r, appErrors.NewValidation("expected_version is required"))
		return body, false
	}
	return body, true
}

func (c *ItemController) EditItem(w http.ResponseWriter, r *http.Request) {
	var body editBody
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		middleware.RenderError(w, r, appErrors.NewValidation("invalid body: %v", err))
		return
	}
	if body.version() == nil || body.Content == nil {
		middleware.RenderError(w, r, appErrors.NewValidation("expected_version and content are required"))
		return
	}

	item, err := c.Review.Edit(r.Context(), middleware.CredentialFrom(r.Context()),
		chi.URLParam(r, "id"), *body.version(), *body.Content)
	if err != nil {
		middleware.RenderError(w, r, err)
		return
	}
	render.JSON(w, r, c.toResponse(item))
}

type transitionFunc func(ctx context.Context, cred service.Credential, id string, expectedVersion int64) (*model.ContentItem, error)

// transition adapts one of the reviewer actions that only carry an expected version.
func (c *ItemController) transition(action transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := decodeVersionBody(w, r)
		if !ok {
			return
		}

		item, err := action(r.Context(), middleware.CredentialFrom(r.Context()), chi.URLParam(r, "id"), *body.version())
		if err != nil {
			middleware.RenderError(w, r, err)
			return
		}
		render.JSON(w, r, c.toResponse(item))
	}
}

// ApproveItem approves an item, optionally for dispatch at scheduled_at.
func (c *ItemController) ApproveItem(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeVersionBody(w, r)
	if !ok {
		return
	}

	item, err := c.Review.ApproveAt(r.Context(), middleware.CredentialFrom(r.Context()),
		chi.URLParam(r, "id"), *body.version(), body.ScheduledAt)
	if err != nil {
		middleware.RenderError(w, r, err)
		return
	}
	render.JSON(w, r, c.toResponse(item))
}
