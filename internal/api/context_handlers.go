package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/shehryarbajwa/browsercontext/pkg/models"
)

// CreateContext handles POST /v1/contexts
func (h *Handler) CreateContext(w http.ResponseWriter, r *http.Request) {
	var req models.CreateContextRequest

	// an empty body means all defaults
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	info, err := h.browser.NewContext(r.Context(), req)
	if err != nil {
		h.writeFailure(w, "CreateContext", err)
		return
	}

	writeJSON(w, http.StatusCreated, info)
}

// ListContexts handles GET /v1/contexts
func (h *Handler) ListContexts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.browser.List())
}

// GetContext handles GET /v1/contexts/{id}
func (h *Handler) GetContext(w http.ResponseWriter, r *http.Request) {
	info, err := h.browser.Info(mux.Vars(r)["id"])
	if err != nil {
		h.writeFailure(w, "GetContext", err)
		return
	}

	writeJSON(w, http.StatusOK, info)
}

// DeleteContext handles DELETE /v1/contexts/{id}
func (h *Handler) DeleteContext(w http.ResponseWriter, r *http.Request) {
	if _, err := h.browser.CloseContext(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.writeFailure(w, "DeleteContext", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SaveStorageState handles POST /v1/contexts/{id}/storage-state
func (h *Handler) SaveStorageState(w http.ResponseWriter, r *http.Request) {
	state, err := h.browser.SaveStorageState(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeFailure(w, "SaveStorageState", err)
		return
	}

	writeJSON(w, http.StatusCreated, state)
}
