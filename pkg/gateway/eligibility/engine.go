// Package eligibility evaluates social-welfare scheme eligibility from the
// socio-economic fields captured during a consultation. Evaluation is a pure
// function over the current field state: no I/O, deterministic output,
// callable any number of times.
package eligibility

import (
	"fmt"
	"strconv"
	"strings"
)

// TriggerFields are the field names whose update requires a fresh
// eligibility evaluation.
var TriggerFields = map[string]struct{}{
	"ration_card_type": {},
	"income_bracket":   {},
	"occupation":       {},
	"age":              {},
	"caste_category":   {},
	"housing_type":     {},
}

// IsTriggerField reports whether updating field must recompute eligibility.
func IsTriggerField(field string) bool {
	_, ok := TriggerFields[field]
	return ok
}

// SchemeResult is one scheme's verdict with its justification, reasons in
// rule-evaluation order.
type SchemeResult struct {
	Eligible   bool     `json:"eligible"`
	Reasons    []string `json:"reasons"`
	Confidence float64  `json:"confidence,omitempty"`
}

// Report is the full eligibility snapshot pushed to the client and merged
// into the committed record.
type Report struct {
	PMJAY       SchemeResult `json:"pmjay"`
	StateScheme SchemeResult `json:"state_scheme"`
}

var vulnerableOccupations = []string{"manual scavenger", "scavenger", "destitute", "beggar", "bonded labor"}

var kuchaHousing = []string{"kucha", "mud", "thatch"}

var scheduledCastes = []string{"sc", "st", "scheduled"}

var bplRationCards = []string{"bpl", "antyodaya", "aay", "yellow"}

// Evaluate runs the PM-JAY rural SECC deprivation rules plus the age-based
// state scheme over the whole field state. All rules are evaluated:
// eligibility is the OR of matches, confidence the maximum among matched
// rules, reasons accumulate in rule order.
func Evaluate(fields map[string]any) Report {
	var (
		eligible   bool
		confidence = 0.5
		reasons    []string
	)

	match := func(reason string, conf float64) {
		eligible = true
		reasons = append(reasons, reason)
		if conf > confidence {
			confidence = conf
		}
	}

	occupation := fieldString(fields, "occupation")
	if containsAny(occupation, vulnerableOccupations) {
		match("Automatic Inclusion: Vulnerable occupational group", 0.9)
	}

	if containsAny(fieldString(fields, "housing_type"), kuchaHousing) {
		match("D1: Living in kucha walls and kucha roof", 0.8)
	}

	if containsAny(fieldString(fields, "caste_category"), scheduledCastes) {
		match("D4: SC/ST household member identified", 0.8)
	}

	if strings.Contains(occupation, "labor") || strings.Contains(occupation, "labour") {
		match("D5: Landless household deriving income from casual manual labour", 0.8)
	}

	rationCard := fieldString(fields, "ration_card_type")
	if containsAny(rationCard, bplRationCards) {
		match(fmt.Sprintf("Proxy Inclusion: %s card holder", strings.ToUpper(rationCard)), 0.9)
	}

	age := parseAge(fields["age"])
	var stateReasons []string
	if age >= 60 {
		stateReasons = append(stateReasons, "Senior Citizen medical aid eligibility")
	}
	stateReasons = append(stateReasons, reasons...)

	report := Report{
		PMJAY: SchemeResult{
			Eligible:   eligible,
			Reasons:    reasons,
			Confidence: confidence,
		},
		StateScheme: SchemeResult{
			Eligible: age >= 60 || eligible,
			Reasons:  stateReasons,
		},
	}
	if report.PMJAY.Reasons == nil {
		report.PMJAY.Reasons = []string{}
	}
	if report.StateScheme.Reasons == nil {
		report.StateScheme.Reasons = []string{}
	}
	return report
}

// fieldString coerces any captured value to a lowercase matchable string.
// List values join with commas so a JSON-array occupation still matches.
func fieldString(fields map[string]any, key string) string {
	v, ok := fields[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(t))
	case []string:
		return strings.ToLower(strings.Join(t, ", "))
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			parts = append(parts, fmt.Sprint(e))
		}
		return strings.ToLower(strings.Join(parts, ", "))
	default:
		return strings.ToLower(strings.TrimSpace(fmt.Sprint(t)))
	}
}

func containsAny(haystack string, needles []string) bool {
	if haystack == "" {
		return false
	}
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// parseAge tolerates free-form age values; anything non-numeric is age 0.
func parseAge(v any) int {
	switch t := v.(type) {
	case nil:
		return 0
	case int:
		return t
	case float64:
		return int(t)
	case string:
		s := strings.TrimSpace(t)
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
		// "65 years" style values still count.
		if fieldsOf := strings.Fields(s); len(fieldsOf) > 0 {
			if n, err := strconv.Atoi(fieldsOf[0]); err == nil {
				return n
			}
		}
		return 0
	default:
		if n, err := strconv.Atoi(strings.TrimSpace(fmt.Sprint(t))); err == nil {
			return n
		}
		return 0
	}
}
