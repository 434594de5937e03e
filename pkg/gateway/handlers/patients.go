package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ruralmed/ruralmed/pkg/gateway/mw"
	"github.com/ruralmed/ruralmed/pkg/gateway/store"
)

// PatientsHandler serves the committed record collection: list, fetch one,
// delete one.
type PatientsHandler struct {
	Store  store.Store
	Logger *slog.Logger
}

func (h PatientsHandler) List(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	recs, err := h.Store.List(r.Context())
	if err != nil {
		h.logError("list patients", err)
		writeErrorJSON(w, reqID, http.StatusInternalServerError, "api_error", "store_error", "failed to list patients", "")
		return
	}
	if recs == nil {
		recs = []*store.PatientRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h PatientsHandler) Get(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	id, ok := h.pathID(w, r, reqID)
	if !ok {
		return
	}
	rec, err := h.Store.Get(r.Context(), id)
	if err != nil {
		h.logError("get patient", err)
		writeErrorJSON(w, reqID, http.StatusInternalServerError, "api_error", "store_error", "failed to load patient", "")
		return
	}
	if rec == nil {
		writeErrorJSON(w, reqID, http.StatusNotFound, "invalid_request_error", "not_found", fmt.Sprintf("patient %d not found", id), "id")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h PatientsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	id, ok := h.pathID(w, r, reqID)
	if !ok {
		return
	}
	if err := h.Store.Delete(r.Context(), id); err != nil {
		h.logError("delete patient", err)
		writeErrorJSON(w, reqID, http.StatusInternalServerError, "api_error", "store_error", "failed to delete patient", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": fmt.Sprintf("Patient %d deleted", id),
	})
}

func (h PatientsHandler) pathID(w http.ResponseWriter, r *http.Request, reqID string) (int64, bool) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeErrorJSON(w, reqID, http.StatusBadRequest, "invalid_request_error", "bad_request", "patient id must be a positive integer", "id")
		return 0, false
	}
	return id, true
}

func (h PatientsHandler) logError(msg string, err error) {
	if h.Logger != nil {
		h.Logger.Error(msg, "error", err)
	}
}
