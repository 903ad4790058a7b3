package domain

import (
	"fmt"
	"strings"
)

type DefectKind string

const (
	DefectPastDatetime       DefectKind = "past_datetime"
	DefectDurationOutOfRange DefectKind = "duration_out_of_range"
	DefectEmptyCity          DefectKind = "empty_city"
)

// Defect is a named Slot rule violation.
type Defect struct {
	Kind    DefectKind `json:"kind"`
	Field   Field      `json:"field"`
	Message string     `json:"message"`
}

// ExtractionGap reports required fields that extraction could not find.
type ExtractionGap struct {
	Fields []Field
}

func (e ExtractionGap) Error() string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = string(f)
	}
	return fmt.Sprintf("missing fields: %s", strings.Join(names, ", "))
}

// ValidationDefect reports rule violations on present fields.
type ValidationDefect struct {
	Defects []Defect
}

func (e ValidationDefect) Error() string {
	kinds := make([]string, len(e.Defects))
	for i, d := range e.Defects {
		kinds[i] = string(d.Kind)
	}
	return fmt.Sprintf("invalid fields: %s", strings.Join(kinds, ", "))
}

// ServiceError is a failure of an external capability call.
type ServiceError struct {
	Capability string
	Op         string
	Err        error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Capability, e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// ExhaustedClarification is terminal: the single clarification round did not complete the request.
type ExhaustedClarification struct {
	Missing []Field
	Defects []Defect
}

func (e ExhaustedClarification) Error() string {
	var parts []string
	for _, f := range e.Missing {
		parts = append(parts, string(f))
	}
	for _, d := range e.Defects {
		parts = append(parts, string(d.Kind))
	}
	return fmt.Sprintf("clarification exhausted; still unresolved: %s", strings.Join(parts, ", "))
}

// InternalFault wraps anything unanticipated.
type InternalFault struct {
	Stage string
	Err   error
}

func (e InternalFault) Error() string {
	return fmt.Sprintf("internal fault in %s: %v", e.Stage, e.Err)
}

func (e InternalFault) Unwrap() error { return e.Err }
