package validator

import "github.com/Jainish-S/playground/apps/subtype-intake-go/internal/clinical"

// Range is an accepted interval for one canonical value.
type Range struct {
	Field    string
	Min, Max float64
	// MinExclusive makes the lower bound open.
	MinExclusive bool
	Reason       string
}

// Contains reports whether x lies inside r.
func (r Range) Contains(x float64) bool {
	if r.MinExclusive {
		if x <= r.Min {
			return false
		}
	} else if x < r.Min {
		return false
	}
	return x <= r.Max
}

// Ranges are the inputs the prediction model was trained on, in the order
// they are checked.
var Ranges = []Range{
	{Field: "hba1c", Min: 4.7, Max: 18.1, Reason: "HbA1c value must be between 4.7 and 18.1%"},
	{Field: "bmi", Min: 19, Max: 60, Reason: "BMI value must be between 19 and 60 kg/m2"},
	{Field: "cpeptide", Min: 0.2, Max: 3.5, Reason: "C-peptide value must be between 0.2 and 3.5 nmol/L"},
	{Field: "glucose", Min: 3.5, Max: 25, MinExclusive: true, Reason: "glucose value must be greater than 3.5 and at most 25 mmol/L"},
	{Field: "age", Min: 18, Max: 88, Reason: "age must be between 18 and 88 years"},
}

func canonicalValue(req clinical.NormalizedRequest, field string) float64 {
	switch field {
	case "hba1c":
		return req.HbA1c
	case "bmi":
		return req.BMI
	case "cpeptide":
		return req.CPeptide
	case "glucose":
		return req.Glucose
	case "age":
		return req.Age
	}
	return 0
}

func checkRanges(req clinical.NormalizedRequest) error {
	if req.GAD != 0 && req.GAD != 1 {
		return outOfRange("gad_status", "GAD autoantibody value must be 0 (negative) or 1 (positive)")
	}
	for _, r := range Ranges {
		if !r.Contains(canonicalValue(req, r.Field)) {
			return outOfRange(r.Field, r.Reason)
		}
	}
	return nil
}
