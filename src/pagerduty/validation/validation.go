// Package validation checks a normalized alarm event before any routing or
// network work is done.
package validation

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"incidentbridge/src/pagerduty/types"
)

// ValidateEvent returns nil for a usable event and an InvalidEvent error
// otherwise. Every problem found is reported in a single error, with the
// offending fields listed in event order.
func ValidateEvent(event types.AlarmStateChangeEvent) error {
	var problems, fields []string
	report := func(field, problem string) {
		fields = append(fields, field)
		problems = append(problems, problem)
	}

	for _, s := range []stateField{
		{"currentState", event.CurrentState},
		{"previousState", event.PreviousState},
	} {
		if problem := s.problem(); problem != "" {
			report(s.name, problem)
		}
	}

	md := event.RoutingMetadata
	required := []requiredField{
		{"alarmName", md.AlarmName},
		{"alarmId", md.AlarmID},
		{"region", md.Region},
		{"account", md.Account},
		{"severity", md.Severity},
		{"serviceKey", md.ServiceKey},
	}

	missing := lo.FilterMap(required, func(f requiredField, _ int) (string, bool) {
		return f.name, strings.TrimSpace(f.value) == ""
	})
	if len(missing) > 0 {
		fields = append(fields, missing...)
		problems = append(problems, "missing required routing metadata")
	}

	if !lo.Contains(missing, "severity") {
		if _, err := NormalizeSeverity(md.Severity); err != nil {
			report("severity", severityProblem(md.Severity))
		}
	}

	if len(fields) == 0 {
		return nil
	}
	return types.InvalidEventError(strings.Join(problems, "; "), fields...)
}

type requiredField struct {
	name  string
	value string
}

type stateField struct {
	name  string
	state types.AlarmState
}

func (f stateField) problem() string {
	if f.state == "" {
		return fmt.Sprintf("%s is required", f.name)
	}
	if !f.state.Valid() {
		return fmt.Sprintf("%s %q is not one of %v", f.name, f.state, types.AlarmStates)
	}
	return ""
}

func severityProblem(severity string) string {
	return fmt.Sprintf("severity %q is not one of %v", severity, types.Severities)
}

// NormalizeSeverity lowercases severity and checks it against the Events API
// v2 severities.
func NormalizeSeverity(severity string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(severity))
	if !lo.Contains(types.Severities, s) {
		return "", types.InvalidEventError(severityProblem(severity), "severity")
	}
	return s, nil
}
