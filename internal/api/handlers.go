package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/shehryarbajwa/browsercontext/internal/browser"
	"github.com/shehryarbajwa/browsercontext/internal/storagestate"
	"github.com/shehryarbajwa/browsercontext/pkg/browsercontext"
	"github.com/shehryarbajwa/browsercontext/pkg/models"
)

// describedPage is implemented by the engine pages
type describedPage interface {
	ID() string
	URL() string
}

// GetCookies handles GET /v1/contexts/{id}/cookies?url=...
func (h *Handler) GetCookies(w http.ResponseWriter, r *http.Request) {
	bctx, ok := h.lookup(w, r)
	if !ok {
		return
	}

	cookies, err := bctx.Cookies(r.Context(), r.URL.Query()["url"]...)
	if err != nil {
		h.writeFailure(w, "GetCookies", err)
		return
	}
	if cookies == nil {
		cookies = []models.Cookie{}
	}

	writeJSON(w, http.StatusOK, cookies)
}

// SetCookies handles POST /v1/contexts/{id}/cookies
func (h *Handler) SetCookies(w http.ResponseWriter, r *http.Request) {
	bctx, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var cookies []models.SetCookieParam
	if err := decodeJSON(r, &cookies); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := bctx.SetCookies(r.Context(), cookies...); err != nil {
		h.writeFailure(w, "SetCookies", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ClearCookies handles DELETE /v1/contexts/{id}/cookies
func (h *Handler) ClearCookies(w http.ResponseWriter, r *http.Request) {
	bctx, ok := h.lookup(w, r)
	if !ok {
		return
	}

	if err := bctx.ClearCookies(r.Context()); err != nil {
		h.writeFailure(w, "ClearCookies", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SetGeolocation handles PUT /v1/contexts/{id}/geolocation. A null body
// clears the override.
func (h *Handler) SetGeolocation(w http.ResponseWriter, r *http.Request) {
	bctx, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var g *models.Geolocation
	if err := decodeJSON(r, &g); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := bctx.SetGeolocation(r.Context(), g); err != nil {
		h.writeFailure(w, "SetGeolocation", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GrantPermissions handles POST /v1/contexts/{id}/permissions
func (h *Handler) GrantPermissions(w http.ResponseWriter, r *http.Request) {
	bctx, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req models.PermissionsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := bctx.SetPermissions(r.Context(), req.Origin, req.Permissions...); err != nil {
		h.writeFailure(w, "GrantPermissions", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ClearPermissions handles DELETE /v1/contexts/{id}/permissions
func (h *Handler) ClearPermissions(w http.ResponseWriter, r *http.Request) {
	bctx, ok := h.lookup(w, r)
	if !ok {
		return
	}

	if err := bctx.ClearPermissions(r.Context()); err != nil {
		h.writeFailure(w, "ClearPermissions", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListPages handles GET /v1/contexts/{id}/pages
func (h *Handler) ListPages(w http.ResponseWriter, r *http.Request) {
	bctx, ok := h.lookup(w, r)
	if !ok {
		return
	}

	pages, err := bctx.Pages(r.Context())
	if err != nil {
		h.writeFailure(w, "ListPages", err)
		return
	}

	out := make([]models.Page, 0, len(pages))
	for _, p := range pages {
		out = append(out, describePage(p))
	}

	writeJSON(w, http.StatusOK, out)
}

// NewPage handles POST /v1/contexts/{id}/pages
func (h *Handler) NewPage(w http.ResponseWriter, r *http.Request) {
	bctx, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req models.NewPageRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	page, err := bctx.NewPage(r.Context(), req.URL)
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			// navigation errors come back from the page as is
			err = &browsercontext.BackendError{Op: "goto", Err: err}
		}
		h.writeFailure(w, "NewPage", err)
		return
	}

	writeJSON(w, http.StatusCreated, describePage(page))
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*browsercontext.Context, bool) {
	bctx, err := h.browser.Context(mux.Vars(r)["id"])
	if err != nil {
		h.writeFailure(w, "Lookup", err)
		return nil, false
	}
	return bctx, true
}

// writeFailure maps err onto a status code and writes it
func (h *Handler) writeFailure(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Warnf("API:"+op, "%v", err)
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	var (
		verr *browsercontext.ValidationError
		berr *browsercontext.BackendError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, browser.ErrContextNotFound), errors.Is(err, storagestate.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, browser.ErrLimitReached):
		return http.StatusTooManyRequests
	case errors.Is(err, browser.ErrNoStateStore):
		return http.StatusNotImplemented
	case errors.Is(err, browser.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.As(err, &berr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func describePage(p browsercontext.Page) models.Page {
	if d, ok := p.(describedPage); ok {
		return models.Page{ID: d.ID(), URL: d.URL()}
	}
	return models.Page{}
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
