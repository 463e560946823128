package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/wadjakorntonsri/tinylink/pkg/core/domain"
	"github.com/wadjakorntonsri/tinylink/pkg/ports"
)

type HTTPHandler struct {
	service ports.LinkService
}

func NewHTTPHandler(service ports.LinkService) *HTTPHandler {
	return &HTTPHandler{service: service}
}

// Create Link
func (h *HTTPHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, envelope{"success": false, "message": "Unauthorized"})
		return
	}

	var req domain.CreateLinkInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{"success": false, "message": "Invalid request body"})
		return
	}

	link, err := h.service.Create(r.Context(), user, req)
	if err != nil {
		writeDomainError(w, r, err, "Link not found")
		return
	}

	writeJSON(w, http.StatusCreated, envelope{
		"success": true,
		"message": "Short link created",
		"link":    link,
	})
}

// MyLinks lists the caller's links with dashboard stats
func (h *HTTPHandler) MyLinks(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, envelope{"success": false, "message": "Unauthorized"})
		return
	}

	links, stats, err := h.service.ListWithStats(r.Context(), user, publicBaseURL(r))
	if err != nil {
		writeDomainError(w, r, err, "Link not found")
		return
	}

	writeJSON(w, http.StatusOK, envelope{
		"success": true,
		"stats":   stats,
		"links":   links,
	})
}

// Get a single link with its 12 month click series
func (h *HTTPHandler) Get(w http.ResponseWriter, r *http.Request) {
	link, err := h.service.Detail(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err, "Link not found")
		return
	}

	writeJSON(w, http.StatusOK, envelope{"success": true, "data": link})
}

// Update Link
func (h *HTTPHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, envelope{"success": false, "message": "Unauthorized"})
		return
	}

	var req domain.UpdateLinkInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{"success": false, "message": "Invalid request body"})
		return
	}

	link, err := h.service.Update(r.Context(), r.PathValue("id"), user, req)
	if err != nil {
		writeDomainError(w, r, err, "Link not found or unauthorized")
		return
	}

	writeJSON(w, http.StatusOK, envelope{
		"success": true,
		"message": "Short link updated successfully",
		"link":    link,
	})
}

// Delete Link
func (h *HTTPHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, envelope{"success": false, "message": "Unauthorized"})
		return
	}

	if err := h.service.Delete(r.Context(), r.PathValue("id"), user); err != nil {
		writeDomainError(w, r, err, "Link not found or unauthorized")
		return
	}

	writeJSON(w, http.StatusOK, envelope{
		"success": true,
		"message": "Short link deleted successfully",
	})
}

// Redirect to the long URL. Public.
func (h *HTTPHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if code == "" {
		writeJSON(w, http.StatusNotFound, envelope{"message": "Link not found"})
		return
	}

	longURL, err := h.service.Redirect(r.Context(), code)
	if err != nil {
		writeDomainError(w, r, err, "Link not found")
		return
	}

	http.Redirect(w, r, longURL, http.StatusFound)
}

// publicBaseURL is scheme://host as seen by the client.
func publicBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme, _, _ = strings.Cut(proto, ",")
		scheme = strings.TrimSpace(scheme)
	}
	return scheme + "://" + r.Host
}
