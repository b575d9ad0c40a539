package handlers

import (
	"net/http"

	"github.com/diewo77/go-workshop/internal/httpx"
	"github.com/diewo77/go-workshop/internal/services"
	"github.com/sirupsen/logrus"
)

type CatalogHandler struct {
	guard *services.ReferenceGuard
	log   logrus.FieldLogger
}

func NewCatalogHandler(guard *services.ReferenceGuard, log logrus.FieldLogger) *CatalogHandler {
	return &CatalogHandler{guard: guard, log: log}
}

func (h *CatalogHandler) target(w http.ResponseWriter, r *http.Request) (services.Kind, uint, bool) {
	kind, ok := services.ParseKind(r.PathValue("kind"))
	if !ok {
		httpx.JSONError(w, http.StatusNotFound, "not_found", "unknown kind")
		return "", 0, false
	}
	id, ok := pathID(w, r, "id")
	return kind, id, ok
}

// References: GET /catalog/{kind}/{id}/references
func (h *CatalogHandler) References(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := h.target(w, r)
	if !ok {
		return
	}
	referenced, err := h.guard.IsReferenced(r.Context(), kind, id)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"kind": kind, "id": id, "referenced": referenced})
}

// Delete: POST /catalog/{kind}/{id}/delete
func (h *CatalogHandler) Delete(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := h.target(w, r)
	if !ok {
		return
	}
	if err := h.guard.Delete(r.Context(), kind, id); err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
