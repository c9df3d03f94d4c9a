package clinical

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Medication is one of the fixed medication checkboxes on the form.
type Medication int

const (
	Insulin Medication = iota
	GLP1RAgonist
	SGLT2Inhibitor
	Metformin
	OtherMedication
	NoMedication

	medicationCount
)

// medicationKeys are the wire names, indexed by Medication.
var medicationKeys = [medicationCount]string{
	Insulin:         "insulin",
	GLP1RAgonist:    "glp1r_agonist",
	SGLT2Inhibitor:  "sglt2_inhibitor",
	Metformin:       "metformin",
	OtherMedication: "other",
	NoMedication:    "none",
}

// medicationAliases are camelCase spellings accepted on input. Output
// always uses medicationKeys.
var medicationAliases = map[string]Medication{
	"glp1rAgonist":   GLP1RAgonist,
	"sglt2Inhibitor": SGLT2Inhibitor,
}

// Medications lists every key in display order.
func Medications() []Medication {
	out := make([]Medication, 0, medicationCount)
	for m := Medication(0); m < medicationCount; m++ {
		out = append(out, m)
	}
	return out
}

// String returns the wire name of the medication.
func (m Medication) String() string {
	if m < 0 || m >= medicationCount {
		return fmt.Sprintf("medication(%d)", int(m))
	}
	return medicationKeys[m]
}

// ParseMedication maps a wire name or alias back to its key.
func ParseMedication(key string) (Medication, error) {
	for m, k := range medicationKeys {
		if k == key {
			return Medication(m), nil
		}
	}
	if m, ok := medicationAliases[key]; ok {
		return m, nil
	}
	return 0, fmt.Errorf("unknown medication %q", key)
}

// MedicationSelection maps every medication key to whether it is checked.
// The zero value has nothing selected.
type MedicationSelection struct {
	checked [medicationCount]bool
}

// NewMedicationSelection returns a selection with the given keys checked.
func NewMedicationSelection(meds ...Medication) MedicationSelection {
	var s MedicationSelection
	for _, m := range meds {
		s.Set(m, true)
	}
	return s
}

// Set checks or unchecks m. Out-of-range keys are ignored.
func (s *MedicationSelection) Set(m Medication, checked bool) {
	if m < 0 || m >= medicationCount {
		return
	}
	s.checked[m] = checked
}

// Has reports whether m is checked.
func (s MedicationSelection) Has(m Medication) bool {
	if m < 0 || m >= medicationCount {
		return false
	}
	return s.checked[m]
}

// Any reports whether at least one key is checked.
func (s MedicationSelection) Any() bool {
	for _, c := range s.checked {
		if c {
			return true
		}
	}
	return false
}

// Conflicting reports whether "none" is checked together with a medication.
func (s MedicationSelection) Conflicting() bool {
	if !s.checked[NoMedication] {
		return false
	}
	for m, c := range s.checked {
		if c && Medication(m) != NoMedication {
			return true
		}
	}
	return false
}

// Selected returns the checked keys in display order.
func (s MedicationSelection) Selected() []Medication {
	var out []Medication
	for m, c := range s.checked {
		if c {
			out = append(out, Medication(m))
		}
	}
	return out
}

// MarshalJSON encodes the selection as an object with every key present,
// in display order.
func (s MedicationSelection) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for m, c := range s.checked {
		if m > 0 {
			buf.WriteByte(',')
		}
		fmt.Fprintf(&buf, "%q:%t", medicationKeys[m], c)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object of key to bool. Missing keys are
// unchecked; unknown keys are an error. A key sent under both its wire name
// and its alias is checked if either is.
func (s *MedicationSelection) UnmarshalJSON(data []byte) error {
	var raw map[string]bool
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("medications must be an object of booleans: %w", err)
	}

	var next MedicationSelection
	for key, checked := range raw {
		m, err := ParseMedication(key)
		if err != nil {
			return err
		}
		next.checked[m] = next.checked[m] || checked
	}
	*s = next
	return nil
}
