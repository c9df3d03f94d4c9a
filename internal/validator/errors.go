package validator

// Kind classifies a validation failure.
type Kind int

const (
	ConsentMissing Kind = iota + 1
	MedicationSelectionMissing
	MedicationSelectionConflict
	RequiredFieldMissing
	UnitMissing
	InvalidValue
	ValueOutOfRange
)

// String returns the snake_case name used in metrics and API error codes.
func (k Kind) String() string {
	switch k {
	case ConsentMissing:
		return "consent_missing"
	case MedicationSelectionMissing:
		return "medication_selection_missing"
	case MedicationSelectionConflict:
		return "medication_selection_conflict"
	case RequiredFieldMissing:
		return "required_field_missing"
	case UnitMissing:
		return "unit_missing"
	case InvalidValue:
		return "invalid_value"
	case ValueOutOfRange:
		return "value_out_of_range"
	default:
		return "unknown"
	}
}

// Error is a validation failure carrying one human-readable reason.
type Error struct {
	Kind   Kind
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return e.Reason
}

// Is matches any *Error of the same Kind, so callers can test against the
// sentinels below with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrConsentMissing              = &Error{Kind: ConsentMissing, Reason: "consent required"}
	ErrMedicationSelectionMissing  = &Error{Kind: MedicationSelectionMissing, Reason: "medication selection required"}
	ErrMedicationSelectionConflict = &Error{Kind: MedicationSelectionConflict, Reason: "none conflicts with other selections"}
	ErrRequiredFieldMissing        = &Error{Kind: RequiredFieldMissing, Reason: "all fields required"}
	ErrUnitMissing                 = &Error{Kind: UnitMissing, Reason: "units required"}
	ErrInvalidValue                = &Error{Kind: InvalidValue, Reason: "invalid value"}
	ErrValueOutOfRange             = &Error{Kind: ValueOutOfRange, Reason: "value out of range"}
)

func invalid(field, reason string) *Error {
	return &Error{Kind: InvalidValue, Field: field, Reason: reason}
}

func outOfRange(field, reason string) *Error {
	return &Error{Kind: ValueOutOfRange, Field: field, Reason: reason}
}
