package session

import (
	"encoding/json"
	"strings"

	"github.com/ruralmed/ruralmed/pkg/gateway/eligibility"
	"github.com/ruralmed/ruralmed/pkg/gateway/extraction"
	"github.com/ruralmed/ruralmed/pkg/gateway/live/protocol"
)

// listFields are the known list-valued consultation fields. A plain
// comma-separated string targeting one of these is split into a list.
var listFields = map[string]struct{}{
	"symptoms":        {},
	"medications":     {},
	"allergies":       {},
	"medical_history": {},
	"family_history":  {},
}

// dispatch applies one extraction tool call: normalize the value, write it
// into the field state, push the update to the client, and recompute
// eligibility when a socio-economic field changed. Malformed calls are
// dropped with a warning; they never end the session.
func (s *Session) dispatch(call extraction.ToolCall) error {
	if call.Name != extraction.UpdateToolName {
		s.logger.Warn("dropping unknown tool call", "tool", call.Name)
		s.countToolCall("unknown")
		return nil
	}
	field, ok := call.Args["field"].(string)
	if !ok || strings.TrimSpace(field) == "" {
		s.logger.Warn("dropping tool call without field name")
		s.countToolCall("dropped")
		return nil
	}
	field = strings.TrimSpace(field)

	raw, ok := call.Args["value"]
	if !ok {
		s.logger.Warn("dropping tool call without value", "field", field)
		s.countToolCall("dropped")
		return nil
	}
	value := normalizeValue(field, raw)

	s.fields.Set(field, value)
	s.countToolCall("applied")
	if err := s.writeClient(protocol.NewUpdate(field, value)); err != nil {
		return err
	}

	if eligibility.IsTriggerField(field) {
		report := eligibility.Evaluate(s.fields.Flatten())
		if s.metrics != nil {
			s.metrics.EligibilityEvalsTotal.Inc()
		}
		if err := s.writeClient(protocol.NewUpdate(protocol.EligibilityField, report)); err != nil {
			return err
		}
	}
	return nil
}

// normalizeValue opportunistically parses the extraction service's free-form
// value text: structured JSON first, then a comma split for the known
// list-valued fields, else the scalar string as-is.
func normalizeValue(field string, raw any) any {
	text, ok := raw.(string)
	if !ok {
		// Already structured (the service sent real JSON args).
		return raw
	}
	trimmed := strings.TrimSpace(text)

	if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{") {
		var parsed any
		if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
			return parsed
		}
	}

	if _, listValued := listFields[field]; listValued {
		parts := strings.Split(trimmed, ",")
		items := make([]string, 0, len(parts))
		for _, part := range parts {
			if item := strings.TrimSpace(part); item != "" {
				items = append(items, item)
			}
		}
		return items
	}

	return trimmed
}

func (s *Session) countToolCall(result string) {
	if s.metrics != nil {
		s.metrics.ToolCallsTotal.WithLabelValues(result).Inc()
	}
}
