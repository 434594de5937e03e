package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ruralmed/ruralmed/pkg/gateway/mw"
	"github.com/ruralmed/ruralmed/pkg/gateway/store"
	"github.com/ruralmed/ruralmed/pkg/gateway/summary"
)

// CommitHandler persists a finalized consultation. A record with an id
// updates in place; otherwise a new row is created. A non-empty transcript
// history kicks off a detached summary job against the stored record.
type CommitHandler struct {
	Store     store.Store
	Summaries *summary.Runner
	Logger    *slog.Logger
}

func (h CommitHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())

	var rec store.PatientRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeErrorJSON(w, reqID, http.StatusBadRequest, "invalid_request_error", "bad_request", "invalid patient record json", "")
		return
	}

	var (
		id  int64
		err error
	)
	if rec.ID > 0 {
		var found bool
		found, err = h.Store.Update(r.Context(), rec.ID, &rec)
		if err == nil && !found {
			writeErrorJSON(w, reqID, http.StatusNotFound, "invalid_request_error", "not_found", fmt.Sprintf("patient %d not found", rec.ID), "id")
			return
		}
		id = rec.ID
	} else {
		id, err = h.Store.Create(r.Context(), &rec)
	}
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("commit patient record", "error", err)
		}
		writeErrorJSON(w, reqID, http.StatusInternalServerError, "api_error", "store_error", "failed to commit patient record", "")
		return
	}

	if h.Summaries != nil && len(rec.TranscriptHistory) > 0 {
		h.Summaries.Submit(summary.Job{PatientID: id, Transcript: rec.TranscriptHistory})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "success",
		"message":    "Patient data committed to EHR",
		"patient_id": id,
	})
}
