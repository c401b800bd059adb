package book

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"libraryapi/internal/httpx"
)

type HTTPHandler struct {
	service  *Service
	importer *Importer
}

func NewHTTPHandler(service *Service) *HTTPHandler {
	return &HTTPHandler{service: service}
}

// WithImporter enables POST /v1/books/import.
func (h *HTTPHandler) WithImporter(im *Importer) *HTTPHandler {
	h.importer = im
	return h
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.JSONError(w, r, http.StatusNotFound, "NOT_FOUND", "Book not found", nil)
	case errors.Is(err, ErrDuplicateISBN):
		httpx.JSONError(w, r, http.StatusConflict, "ALREADY_EXISTS", "A book with this ISBN already exists", nil)
	case errors.Is(err, ErrQuantityBelowBorrowed):
		httpx.JSONError(w, r, http.StatusConflict, "QUANTITY_BELOW_BORROWED", err.Error(), nil)
	case errors.Is(err, ErrInUse):
		httpx.JSONError(w, r, http.StatusConflict, "BOOK_IN_USE", "Book has copies on loan or circulation history", nil)
	case errors.Is(err, ErrInvalidQuantity):
		httpx.JSONError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
	default:
		httpx.InternalError(w, r)
	}
}

// List handles GET /v1/books
func (h *HTTPHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	params := Query{
		Title:  query.Get("title"),
		Author: query.Get("author"),
		ISBN:   query.Get("isbn"),
		Q:      strings.TrimSpace(query.Get("q")),
		Sort:   query.Get("sort"),
		Desc:   query.Get("desc") == "true",
	}
	if v := query.Get("available"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			params.Available = &b
		}
	}

	page, _ := strconv.Atoi(query.Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(query.Get("page_size"))
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	params.Limit = pageSize
	params.Offset = (page - 1) * pageSize

	books, total, err := h.service.List(r.Context(), params)
	if err != nil {
		httpx.InternalError(w, r)
		return
	}

	httpx.JSONSuccess(w, r, books, map[string]any{
		"page":        page,
		"page_size":   pageSize,
		"total":       total,
		"total_pages": (total + pageSize - 1) / pageSize,
	})
}

// Get handles GET /v1/books/{id}
func (h *HTTPHandler) Get(w http.ResponseWriter, r *http.Request) {
	b, err := h.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSONSuccess(w, r, b, nil)
}

// Availability handles GET /v1/books/{id}/availability
func (h *HTTPHandler) Availability(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.Availability(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSONSuccess(w, r, a, nil)
}

type createReq struct {
	Title       string `json:"title" validate:"required,max=255"`
	Author      string `json:"author" validate:"required,max=255"`
	ISBN        string `json:"isbn" validate:"omitempty,isbn"`
	Description string `json:"description" validate:"max=5000"`
	Quantity    int    `json:"quantity" validate:"min=1,max=10000"`
}

// Create handles POST /v1/books (librarian only)
func (h *HTTPHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createReq
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.JSONError(w, r, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body", nil)
		return
	}
	if details := httpx.ValidateStruct(req); len(details) > 0 {
		httpx.JSONError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid input", details)
		return
	}

	b := &Book{
		Title:       req.Title,
		Author:      req.Author,
		ISBN:        req.ISBN,
		Description: req.Description,
		Quantity:    req.Quantity,
	}
	if uid := httpx.UserIDFrom(r); uid != "" {
		b.CreatedBy = &uid
	}
	if err := h.service.Create(r.Context(), b); err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSONCreated(w, r, b)
}

type updateReq struct {
	Title       *string `json:"title" validate:"omitempty,min=1,max=255"`
	Author      *string `json:"author" validate:"omitempty,min=1,max=255"`
	ISBN        *string `json:"isbn" validate:"omitempty,isbn"`
	Description *string `json:"description" validate:"omitempty,max=5000"`
	Quantity    *int    `json:"quantity" validate:"omitempty,min=1,max=10000"`
}

// Update handles PATCH /v1/books/{id} (librarian only)
func (h *HTTPHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateReq
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.JSONError(w, r, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body", nil)
		return
	}
	if details := httpx.ValidateStruct(req); len(details) > 0 {
		httpx.JSONError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid input", details)
		return
	}

	b, err := h.service.Update(r.Context(), r.PathValue("id"), Update{
		Title:       req.Title,
		Author:      req.Author,
		ISBN:        req.ISBN,
		Description: req.Description,
		Quantity:    req.Quantity,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSONSuccess(w, r, b, nil)
}

// Delete handles DELETE /v1/books/{id} (librarian only)
func (h *HTTPHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSONNoContent(w)
}

type importReq struct {
	ISBNs    []string `json:"isbns" validate:"required,min=1,max=100,dive,required,isbn"`
	Quantity int      `json:"quantity" validate:"min=1,max=10000"`
}

// Import handles POST /v1/books/import (librarian only)
func (h *HTTPHandler) Import(w http.ResponseWriter, r *http.Request) {
	if h.importer == nil {
		httpx.JSONError(w, r, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Import is not enabled", nil)
		return
	}
	var req importReq
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.JSONError(w, r, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body", nil)
		return
	}
	if details := httpx.ValidateStruct(req); len(details) > 0 {
		httpx.JSONError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid input", details)
		return
	}

	var createdBy *string
	if uid := httpx.UserIDFrom(r); uid != "" {
		createdBy = &uid
	}
	res, err := h.importer.Import(r.Context(), req.ISBNs, req.Quantity, createdBy)
	if err != nil {
		if errors.Is(err, ErrInvalidQuantity) {
			h.writeError(w, r, err)
			return
		}
		httpx.JSONError(w, r, http.StatusBadGateway, "UPSTREAM_ERROR", "Book metadata lookup failed", nil)
		return
	}
	httpx.JSONSuccess(w, r, res, nil)
}
