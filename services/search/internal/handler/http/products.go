package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/barbmarcio/megastore-search/pkg/httputil"
	"github.com/barbmarcio/megastore-search/pkg/validator"
	"github.com/barbmarcio/megastore-search/services/search/internal/service"
)

const (
	maxBodyBytes     = 1 << 20
	maxBulkBodyBytes = 10 << 20
	maxSnapshotBytes = 512 << 20
)

// BulkIndexRequest is the JSON request body for bulk indexing products.
type BulkIndexRequest struct {
	Products []service.IndexProductInput `json:"products" validate:"required,min=1,max=5000"`
}

// IndexProduct handles POST /api/v1/products
func (h *SearchHandler) IndexProduct(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req service.IndexProductInput
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	p, err := h.service.IndexProduct(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: p})
}

// DeleteProduct handles DELETE /api/v1/products/{id}
func (h *SearchHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if err := h.service.DeleteProduct(r.Context(), id); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// BulkIndex handles POST /api/v1/products/bulk
func (h *SearchHandler) BulkIndex(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBulkBodyBytes)

	var req BulkIndexRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	res, err := h.service.BulkIndex(r.Context(), req.Products)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: res})
}

// AddRelation handles POST /api/v1/relations
func (h *SearchHandler) AddRelation(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req service.AddRelationInput
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	rel, err := h.service.AddRelation(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: rel})
}

// Reindex handles POST /api/v1/reindex. The reindex runs within the request
// so the caller sees its outcome.
func (h *SearchHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Reindex(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: res})
}

// ExportSnapshot handles GET /api/v1/snapshot
func (h *SearchHandler) ExportSnapshot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="search-snapshot.json"`)
	if _, err := h.service.ExportSnapshot(r.Context(), w); err != nil {
		// Headers may already be on the wire; the client sees a truncated body.
		h.logger.ErrorContext(r.Context(), "snapshot export failed", "error", err)
	}
}

// ImportSnapshot handles POST /api/v1/snapshot
func (h *SearchHandler) ImportSnapshot(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSnapshotBytes)

	st, err := h.service.ImportSnapshot(r.Context(), r.Body)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: st})
}
