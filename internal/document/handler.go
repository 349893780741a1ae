package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"docspace/internal/document/model"
	"docspace/internal/document/service"
	"docspace/pkg/logger"

	"github.com/go-chi/chi/v5"
)

// How long ?wait=true holds the response for a cascade. Kept below the
// router's request timeout so the reply is still ours to write.
const cascadeWaitTimeout = 10 * time.Second

type DocumentHandler struct {
	Service *service.DocumentService
}

func NewDocumentHandler(service *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{Service: service}
}

func (h *DocumentHandler) Routes(r chi.Router) {
	r.Route("/api/documents", func(r chi.Router) {
		r.Post("/", h.CreateDocument)
		r.Get("/", h.GetDocuments)
		r.Get("/sidebar", h.GetSidebar)
		r.Get("/trash", h.GetTrash)
		r.Get("/search", h.GetSearch)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetDocument)
			r.Patch("/", h.UpdateDocument)
			r.Delete("/", h.RemoveDocument)
			r.Post("/archive", h.ArchiveDocument)
			r.Post("/restore", h.RestoreDocument)
			r.Delete("/icon", h.RemoveIcon)
			r.Delete("/cover-image", h.RemoveCoverImage)
		})
	})
}

func (h *DocumentHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var req model.CreateDocRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	doc, err := h.Service.Create(r.Context(), req.Title, req.ParentDocument)
	if err != nil {
		logFailure("create", "", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (h *DocumentHandler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.Service.Get)
}

// GetSidebar lists root documents unless ?parentDocument= names a parent.
func (h *DocumentHandler) GetSidebar(w http.ResponseWriter, r *http.Request) {
	var parent *string
	if p := r.URL.Query().Get("parentDocument"); p != "" {
		parent = &p
	}
	h.list(w, r, func(ctx context.Context) ([]*model.Document, error) {
		return h.Service.GetSidebar(ctx, parent)
	})
}

func (h *DocumentHandler) GetTrash(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.Service.GetTrash)
}

func (h *DocumentHandler) GetSearch(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.Service.GetSearch)
}

func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.Service.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req model.UpdateDocRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	doc, err := h.Service.Update(r.Context(), id, req)
	if err != nil {
		logFailure("update", id, err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) ArchiveDocument(w http.ResponseWriter, r *http.Request) {
	h.cascade(w, r, "archive", h.Service.Archive)
}

func (h *DocumentHandler) RestoreDocument(w http.ResponseWriter, r *http.Request) {
	h.cascade(w, r, "restore", h.Service.Restore)
}

func (h *DocumentHandler) RemoveDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := h.Service.Remove(r.Context(), id)
	if err != nil {
		logFailure("remove", id, err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) RemoveIcon(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "remove icon", h.Service.RemoveIcon)
}

func (h *DocumentHandler) RemoveCoverImage(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "remove cover image", h.Service.RemoveCoverImage)
}

func (h *DocumentHandler) list(w http.ResponseWriter, r *http.Request, fetch func(context.Context) ([]*model.Document, error)) {
	docs, err := fetch(r.Context())
	if err != nil {
		logger.Sugar.Errorf("Error fetching documents: %v", err)
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *DocumentHandler) mutate(w http.ResponseWriter, r *http.Request, name string, op func(context.Context, string) (*model.Document, error)) {
	id := chi.URLParam(r, "id")
	doc, err := op(r.Context(), id)
	if err != nil {
		logFailure(name, id, err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// cascade runs archive/restore. With ?wait=true the response is held until
// every descendant has been updated. If the wait runs out first the
// cascade keeps going and the reply says it is still pending.
func (h *DocumentHandler) cascade(w http.ResponseWriter, r *http.Request, name string, op func(context.Context, string) (*model.Document, *service.Cascade, error)) {
	id := chi.URLParam(r, "id")
	doc, c, err := op(r.Context(), id)
	if err != nil {
		logFailure(name, id, err)
		writeServiceError(w, err)
		return
	}

	resp := model.CascadeResponse{Document: doc, Pending: true}
	if r.URL.Query().Get("wait") == "true" {
		ctx, cancel := context.WithTimeout(r.Context(), cascadeWaitTimeout)
		defer cancel()
		err := c.Wait(ctx)
		switch {
		case c.Err() != nil:
			logger.Sugar.Errorf("Handler: Cascade from doc %s failed: %v", id, c.Err())
			writeError(w, http.StatusInternalServerError, "Cascade to child documents failed: "+c.Err().Error())
			return
		case err != nil:
			logger.Sugar.Infof("Handler: Stopped waiting for cascade from doc %s: %v", id, err)
		default:
			resp.Pending = false
			resp.Affected = c.Affected()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// logFailure keeps unknown ids out of the error log.
func logFailure(op, id string, err error) {
	if errors.Is(err, service.ErrNotFound) {
		logger.Sugar.Warnf("Handler: %s doc %s: %v", op, id, err)
		return
	}
	logger.Sugar.Errorf("Handler: Failed to %s doc %s: %v", op, id, err)
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, service.ErrInvalidParent):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "Database error")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Sugar.Errorf("Error encoding response: %v", err)
	}
}
