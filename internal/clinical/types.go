// Package clinical defines the clinical intake types shared by the validator,
// the form session and the prediction service client.
package clinical

import (
	"encoding/json"
	"fmt"
)

// GADStatus is the GAD autoantibody result selected on the form.
type GADStatus string

const (
	// GADUnset means nothing was selected yet
	GADUnset GADStatus = ""
	// GADPositive is a positive antibody result
	GADPositive GADStatus = "Positive"
	// GADNegative is a negative antibody result
	GADNegative GADStatus = "Negative"
)

// Valid reports whether s is one of the selectable values.
func (s GADStatus) Valid() bool {
	return s == GADPositive || s == GADNegative
}

// Flag returns the model encoding of the status: Positive=1, Negative=0.
func (s GADStatus) Flag() (int, error) {
	switch s {
	case GADPositive:
		return 1, nil
	case GADNegative:
		return 0, nil
	default:
		return 0, fmt.Errorf("unknown GAD status %q", string(s))
	}
}

// CPeptideUnit is the unit the C-peptide value was entered in.
type CPeptideUnit string

const (
	CPeptideUnitUnset CPeptideUnit = ""
	CPeptideNgPerML   CPeptideUnit = "ng/mL"
	CPeptideNmolPerL  CPeptideUnit = "nmol/L"
)

// Valid reports whether u is a supported unit.
func (u CPeptideUnit) Valid() bool {
	return u == CPeptideNgPerML || u == CPeptideNmolPerL
}

// GlucoseUnit is the unit the fasting glucose value was entered in.
type GlucoseUnit string

const (
	GlucoseUnitUnset GlucoseUnit = ""
	GlucoseMgPerDL   GlucoseUnit = "mg/dL"
	GlucoseMmolPerL  GlucoseUnit = "mmol/L"
)

// Valid reports whether u is a supported unit.
func (u GlucoseUnit) Valid() bool {
	return u == GlucoseMgPerDL || u == GlucoseMmolPerL
}

// RawInput holds the clinical fields exactly as typed by the user.
// Numeric values stay strings until validation.
type RawInput struct {
	GADStatus     GADStatus    `json:"gad_status"`
	HbA1cPercent  string       `json:"hba1c"`
	BMI           string       `json:"bmi"`
	AgeYears      string       `json:"age"`
	CPeptideValue string       `json:"cpeptide"`
	CPeptideUnit  CPeptideUnit `json:"cpeptide_unit"`
	GlucoseValue  string       `json:"glucose"`
	GlucoseUnit   GlucoseUnit  `json:"glucose_unit"`
}

// NormalizedRequest is the unit-free payload sent to the prediction service.
// C-peptide is in nmol/L and glucose in mmol/L.
type NormalizedRequest struct {
	GAD         int                 `json:"gad"`
	HbA1c       float64             `json:"hba1c"`
	BMI         float64             `json:"bmi"`
	Age         float64             `json:"age"`
	CPeptide    float64             `json:"cpeptide"`
	Glucose     float64             `json:"glucose"`
	Medications MedicationSelection `json:"medications"`
}

// Fingerprint returns a stable JSON encoding of the request, used to check
// that a replayed submission carries the same form.
func (r NormalizedRequest) Fingerprint() string {
	data, _ := json.Marshal(r)
	return string(data)
}
