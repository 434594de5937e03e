// Package store persists committed consultation records in PostgreSQL with
// identifying fields encrypted at rest.
package store

import (
	"context"
	"time"
)

// Vitals groups the measured signs captured during a consultation. All values
// are free-text as spoken ("120/80 mmHg", "98.6 F").
type Vitals struct {
	Temperature   string `json:"temperature,omitempty"`
	BloodPressure string `json:"blood_pressure,omitempty"`
	Pulse         string `json:"pulse,omitempty"`
	SpO2          string `json:"spo2,omitempty"`
}

// PatientRecord is one committed consultation. Zero-valued fields were never
// captured. TranscriptHistory rides along on commit requests to feed the
// summarizer and is never persisted.
type PatientRecord struct {
	ID int64 `json:"id,omitempty"`

	Name   string `json:"name,omitempty"`
	Age    string `json:"age,omitempty"`
	Gender string `json:"gender,omitempty"`

	ChiefComplaint string   `json:"chief_complaint,omitempty"`
	Symptoms       []string `json:"symptoms,omitempty"`
	Vitals         Vitals   `json:"vitals"`

	MedicalHistory []string `json:"medical_history,omitempty"`
	FamilyHistory  []string `json:"family_history,omitempty"`
	Allergies      []string `json:"allergies,omitempty"`

	TentativeDoctorDiagnosis string `json:"tentative_doctor_diagnosis,omitempty"`
	InitialLLMDiagnosis      string `json:"initial_llm_diagnosis,omitempty"`

	Medications []string `json:"medications,omitempty"`

	RationCardType    string         `json:"ration_card_type,omitempty"`
	IncomeBracket     string         `json:"income_bracket,omitempty"`
	Occupation        string         `json:"occupation,omitempty"`
	CasteCategory     string         `json:"caste_category,omitempty"`
	HousingType       string         `json:"housing_type,omitempty"`
	Location          string         `json:"location,omitempty"`
	SchemeEligibility map[string]any `json:"scheme_eligibility,omitempty"`

	TranscriptSummary string   `json:"transcript_summary,omitempty"`
	TranscriptHistory []string `json:"transcript_history,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Store is the persistence contract for patient records. Get returns
// (nil, nil) when no record exists with the given id; Update reports whether
// a row was changed.
type Store interface {
	Create(ctx context.Context, rec *PatientRecord) (int64, error)
	Update(ctx context.Context, id int64, rec *PatientRecord) (bool, error)
	Get(ctx context.Context, id int64) (*PatientRecord, error)
	List(ctx context.Context) ([]*PatientRecord, error)
	Delete(ctx context.Context, id int64) error
	SetSummary(ctx context.Context, id int64, summary string) error
}
