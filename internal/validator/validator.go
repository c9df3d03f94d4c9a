// Package validator checks raw clinical form input and normalizes it to the
// canonical unit system expected by the prediction service.
//
// Checks run in a fixed order and the first failure wins:
//  1. consent (when required)
//  2. at least one medication selected
//  3. "none" not combined with a medication
//  4. all six clinical fields present
//  5. both units selected
//  6. every value well formed and finite
//  7. canonical values inside the model's accepted ranges (optional)
//
// Validation performs no I/O. On failure no payload is produced.
package validator

import (
	"math"
	"strconv"
	"strings"

	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/clinical"
)

// Config controls the optional checks and the conversion constants.
type Config struct {
	// ConsentRequired enables the "verified real patient data" check.
	ConsentRequired bool
	// RangeChecks rejects canonical values the model does not accept.
	RangeChecks bool
	Conversion  Conversion
}

// DefaultConfig requires consent, skips range checks and uses the
// canonical conversion constants.
func DefaultConfig() Config {
	return Config{
		ConsentRequired: true,
		Conversion:      DefaultConversion(),
	}
}

// Validator validates and normalizes clinical input. It holds no mutable
// state and is safe for concurrent use.
type Validator struct {
	cfg Config
}

// New creates a validator. Zero conversion constants fall back to the
// canonical values.
func New(cfg Config) *Validator {
	if cfg.Conversion.GlucoseMgPerMmol <= 0 {
		cfg.Conversion.GlucoseMgPerMmol = DefaultGlucoseMgPerMmol
	}
	if cfg.Conversion.CPeptideNgToNmol <= 0 {
		cfg.Conversion.CPeptideNgToNmol = DefaultCPeptideNgToNmol
	}
	return &Validator{cfg: cfg}
}

// Conversion returns the constants in use.
func (v *Validator) Conversion() Conversion {
	return v.cfg.Conversion
}

// Validate runs every check against raw and meds and returns the
// normalized request. The returned error, if any, is an *Error.
func (v *Validator) Validate(raw clinical.RawInput, meds clinical.MedicationSelection, consent bool) (clinical.NormalizedRequest, error) {
	if v.cfg.ConsentRequired && !consent {
		return clinical.NormalizedRequest{}, ErrConsentMissing
	}

	if err := ValidateMedications(meds); err != nil {
		return clinical.NormalizedRequest{}, err
	}

	if !allPresent(raw) {
		return clinical.NormalizedRequest{}, ErrRequiredFieldMissing
	}

	if raw.CPeptideUnit == clinical.CPeptideUnitUnset || raw.GlucoseUnit == clinical.GlucoseUnitUnset {
		return clinical.NormalizedRequest{}, ErrUnitMissing
	}

	req, err := v.normalize(raw)
	if err != nil {
		return clinical.NormalizedRequest{}, err
	}
	req.Medications = meds

	if v.cfg.RangeChecks {
		if err := checkRanges(req); err != nil {
			return clinical.NormalizedRequest{}, err
		}
	}

	return req, nil
}

// ValidateMedications applies the medication checks on their own. The
// follow-up medication submission uses it without the clinical fields.
func ValidateMedications(meds clinical.MedicationSelection) error {
	if !meds.Any() {
		return ErrMedicationSelectionMissing
	}
	if meds.Conflicting() {
		return ErrMedicationSelectionConflict
	}
	return nil
}

func allPresent(raw clinical.RawInput) bool {
	fields := []string{
		string(raw.GADStatus),
		raw.HbA1cPercent,
		raw.BMI,
		raw.AgeYears,
		raw.CPeptideValue,
		raw.GlucoseValue,
	}
	for _, f := range fields {
		if strings.TrimSpace(f) == "" {
			return false
		}
	}
	return true
}

// normalize parses every field and converts units. It runs only after the
// presence checks passed.
func (v *Validator) normalize(raw clinical.RawInput) (clinical.NormalizedRequest, error) {
	var req clinical.NormalizedRequest

	gad, err := raw.GADStatus.Flag()
	if err != nil {
		return req, invalid("gad_status", "GAD status must be Positive or Negative")
	}
	if !raw.CPeptideUnit.Valid() {
		return req, invalid("cpeptide_unit", "C-peptide unit must be ng/mL or nmol/L")
	}
	if !raw.GlucoseUnit.Valid() {
		return req, invalid("glucose_unit", "glucose unit must be mg/dL or mmol/L")
	}

	hba1c, err := parseDecimal("hba1c", "HbA1c", raw.HbA1cPercent)
	if err != nil {
		return req, err
	}
	bmi, err := parseDecimal("bmi", "BMI", raw.BMI)
	if err != nil {
		return req, err
	}
	age, err := parseDecimal("age", "age", raw.AgeYears)
	if err != nil {
		return req, err
	}
	cpeptide, err := parseDecimal("cpeptide", "C-peptide", raw.CPeptideValue)
	if err != nil {
		return req, err
	}
	glucose, err := parseDecimal("glucose", "glucose", raw.GlucoseValue)
	if err != nil {
		return req, err
	}

	// Units were checked above, so conversion cannot fail here.
	cpeptide, _ = v.cfg.Conversion.CPeptideToNmol(cpeptide, raw.CPeptideUnit)
	glucose, _ = v.cfg.Conversion.GlucoseToMmol(glucose, raw.GlucoseUnit)
	if !finite(cpeptide) {
		return req, invalid("cpeptide", "C-peptide must be a finite number")
	}
	if !finite(glucose) {
		return req, invalid("glucose", "glucose must be a finite number")
	}

	req.GAD = gad
	req.HbA1c = hba1c
	req.BMI = bmi
	req.Age = age
	req.CPeptide = cpeptide
	req.Glucose = glucose
	return req, nil
}

func parseDecimal(field, label, text string) (float64, error) {
	text = strings.TrimSpace(text)
	if !IsDecimalText(text) {
		return 0, invalid(field, label+" must be a non-negative decimal number")
	}
	value, err := strconv.ParseFloat(text, 64)
	if err != nil || !finite(value) {
		return 0, invalid(field, label+" must be a non-negative decimal number")
	}
	return value, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
