package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ruralmed/ruralmed/pkg/gateway/mw"
	"github.com/ruralmed/ruralmed/pkg/gateway/store"
)

// NoteHandler renders a committed record as a printable clinical note.
type NoteHandler struct {
	Now func() time.Time
}

func (h NoteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())

	var rec store.PatientRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeErrorJSON(w, reqID, http.StatusBadRequest, "invalid_request_error", "bad_request", "invalid patient record json", "")
		return
	}

	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"note": renderNote(&rec, now()),
	})
}

func renderNote(rec *store.PatientRecord, now time.Time) string {
	diagnosis := rec.TentativeDoctorDiagnosis
	if diagnosis == "" {
		diagnosis = rec.InitialLLMDiagnosis
	}

	note := fmt.Sprintf(`RURALMED AI - CLINICAL NOTE
Date: %s
--------------------------------------------------
PATIENT DETAILS
Name: %s
Age: %s | Gender: %s

CHIEF COMPLAINT
%s

VITALS
BP: %s
Pulse: %s bpm
Temp: %s
SpO2: %s%%

SYMPTOMS
%s

DIAGNOSIS
%s

MEDICATIONS
%s
--------------------------------------------------`,
		now.Format("2006-01-02 15:04"),
		orNA(rec.Name),
		orNA(rec.Age), orNA(rec.Gender),
		orDefault(rec.ChiefComplaint, "Not recorded"),
		orNA(rec.Vitals.BloodPressure),
		orNA(rec.Vitals.Pulse),
		orNA(rec.Vitals.Temperature),
		orNA(rec.Vitals.SpO2),
		orDefault(strings.Join(rec.Symptoms, ", "), "None reported"),
		orDefault(diagnosis, "Pending"),
		orDefault(strings.Join(rec.Medications, ", "), "None prescribed"),
	)
	return note
}

func orNA(v string) string {
	return orDefault(v, "N/A")
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
