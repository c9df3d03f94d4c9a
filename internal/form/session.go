// Package form models one clinician's pass through the intake form:
// field-by-field editing, submission and the resulting validation state.
package form

import (
	"errors"

	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/clinical"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/validator"
)

// State is the position of a session in its submission cycle.
type State int

const (
	// StateEditing accepts field edits
	StateEditing State = iota
	// StateValidating is held only while Submit runs
	StateValidating
	// StateNormalized holds a payload ready for the prediction service
	StateNormalized
	// StateRejected holds the reason of the last failed submission
	StateRejected
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateEditing:
		return "EDITING"
	case StateValidating:
		return "VALIDATING"
	case StateNormalized:
		return "NORMALIZED"
	case StateRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// Field names a free-text field on the form.
type Field int

const (
	FieldHbA1c Field = iota
	FieldBMI
	FieldAge
	FieldCPeptide
	FieldGlucose
)

// ErrHandedOff is returned for edits after a successful submission.
var ErrHandedOff = errors.New("form already submitted; reset to edit")

// Session holds the in-flight form. It is not safe for concurrent use.
type Session struct {
	validator *validator.Validator

	state   State
	raw     clinical.RawInput
	meds    clinical.MedicationSelection
	consent bool

	reason  error
	payload clinical.NormalizedRequest
}

// NewSession starts an empty form in the Editing state.
func NewSession(v *validator.Validator) *Session {
	return &Session{validator: v, state: StateEditing}
}

// State returns the current state.
func (s *Session) State() State {
	return s.state
}

// Raw returns a copy of the fields as entered.
func (s *Session) Raw() clinical.RawInput {
	return s.raw
}

// Medications returns the current checkbox state.
func (s *Session) Medications() clinical.MedicationSelection {
	return s.meds
}

// Reason returns the failure of the last rejected submission, if any.
func (s *Session) Reason() error {
	return s.reason
}

// Type enters text into a field. C-peptide and glucose go through the
// keystroke filter, so rejected characters are never stored. It returns
// the stored field value.
func (s *Session) Type(f Field, text string) (string, error) {
	if err := s.beginEdit(); err != nil {
		return "", err
	}

	switch f {
	case FieldHbA1c:
		s.raw.HbA1cPercent += text
		return s.raw.HbA1cPercent, nil
	case FieldBMI:
		s.raw.BMI += text
		return s.raw.BMI, nil
	case FieldAge:
		s.raw.AgeYears += text
		return s.raw.AgeYears, nil
	case FieldCPeptide:
		s.raw.CPeptideValue = validator.FilterTyped(s.raw.CPeptideValue, text)
		return s.raw.CPeptideValue, nil
	case FieldGlucose:
		s.raw.GlucoseValue = validator.FilterTyped(s.raw.GlucoseValue, text)
		return s.raw.GlucoseValue, nil
	}
	return "", errors.New("unknown field")
}

// Clear empties a field.
func (s *Session) Clear(f Field) error {
	if err := s.beginEdit(); err != nil {
		return err
	}

	switch f {
	case FieldHbA1c:
		s.raw.HbA1cPercent = ""
	case FieldBMI:
		s.raw.BMI = ""
	case FieldAge:
		s.raw.AgeYears = ""
	case FieldCPeptide:
		s.raw.CPeptideValue = ""
	case FieldGlucose:
		s.raw.GlucoseValue = ""
	default:
		return errors.New("unknown field")
	}
	return nil
}

// SetGADStatus selects the GAD antibody result.
func (s *Session) SetGADStatus(status clinical.GADStatus) error {
	if err := s.beginEdit(); err != nil {
		return err
	}
	s.raw.GADStatus = status
	return nil
}

// SetCPeptideUnit selects the C-peptide unit.
func (s *Session) SetCPeptideUnit(u clinical.CPeptideUnit) error {
	if err := s.beginEdit(); err != nil {
		return err
	}
	s.raw.CPeptideUnit = u
	return nil
}

// SetGlucoseUnit selects the glucose unit.
func (s *Session) SetGlucoseUnit(u clinical.GlucoseUnit) error {
	if err := s.beginEdit(); err != nil {
		return err
	}
	s.raw.GlucoseUnit = u
	return nil
}

// SetMedication checks or unchecks a medication box. The none/other
// exclusivity is not enforced here, only on Submit.
func (s *Session) SetMedication(m clinical.Medication, checked bool) error {
	if err := s.beginEdit(); err != nil {
		return err
	}
	s.meds.Set(m, checked)
	return nil
}

// SetConsent records the "verified real patient data" checkbox.
func (s *Session) SetConsent(consent bool) error {
	if err := s.beginEdit(); err != nil {
		return err
	}
	s.consent = consent
	return nil
}

// Submit validates the form. On success the session moves to Normalized and
// the payload is returned; on failure it moves to Rejected and the reason is
// returned and kept until the next submission.
func (s *Session) Submit() (clinical.NormalizedRequest, error) {
	if s.state == StateNormalized {
		return s.payload, ErrHandedOff
	}

	s.state = StateValidating
	payload, err := s.validator.Validate(s.raw, s.meds, s.consent)
	if err != nil {
		s.state = StateRejected
		s.reason = err
		return clinical.NormalizedRequest{}, err
	}

	s.state = StateNormalized
	s.reason = nil
	s.payload = payload
	return payload, nil
}

// Payload returns the normalized request once the session is Normalized.
func (s *Session) Payload() (clinical.NormalizedRequest, bool) {
	if s.state != StateNormalized {
		return clinical.NormalizedRequest{}, false
	}
	return s.payload, true
}

// Reset clears every field and returns to Editing.
func (s *Session) Reset() {
	*s = Session{validator: s.validator, state: StateEditing}
}

// beginEdit moves a rejected form back to Editing and refuses edits once
// the payload was handed off.
func (s *Session) beginEdit() error {
	switch s.state {
	case StateNormalized:
		return ErrHandedOff
	case StateRejected:
		s.state = StateEditing
	}
	return nil
}
