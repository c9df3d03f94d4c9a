package validator

import (
	"fmt"

	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/clinical"
)

const (
	// DefaultGlucoseMgPerMmol is the molar mass of glucose in g/mol, i.e.
	// mg/dL per mmol/L. Older form revisions used 18.
	DefaultGlucoseMgPerMmol = 18.0182

	// DefaultCPeptideNgToNmol converts C-peptide ng/mL to nmol/L.
	// Older form revisions used 0.333.
	DefaultCPeptideNgToNmol = 0.3311
)

// Conversion holds the unit conversion constants.
type Conversion struct {
	GlucoseMgPerMmol float64
	CPeptideNgToNmol float64
}

// DefaultConversion returns the canonical constants.
func DefaultConversion() Conversion {
	return Conversion{
		GlucoseMgPerMmol: DefaultGlucoseMgPerMmol,
		CPeptideNgToNmol: DefaultCPeptideNgToNmol,
	}
}

// GlucoseToMmol converts a glucose value in unit u to mmol/L.
func (c Conversion) GlucoseToMmol(value float64, u clinical.GlucoseUnit) (float64, error) {
	switch u {
	case clinical.GlucoseMmolPerL:
		return value, nil
	case clinical.GlucoseMgPerDL:
		return value / c.GlucoseMgPerMmol, nil
	default:
		return 0, fmt.Errorf("unsupported glucose unit %q", string(u))
	}
}

// GlucoseFromMmol converts a glucose value in mmol/L back to unit u.
func (c Conversion) GlucoseFromMmol(value float64, u clinical.GlucoseUnit) (float64, error) {
	switch u {
	case clinical.GlucoseMmolPerL:
		return value, nil
	case clinical.GlucoseMgPerDL:
		return value * c.GlucoseMgPerMmol, nil
	default:
		return 0, fmt.Errorf("unsupported glucose unit %q", string(u))
	}
}

// CPeptideToNmol converts a C-peptide value in unit u to nmol/L.
func (c Conversion) CPeptideToNmol(value float64, u clinical.CPeptideUnit) (float64, error) {
	switch u {
	case clinical.CPeptideNmolPerL:
		return value, nil
	case clinical.CPeptideNgPerML:
		return value * c.CPeptideNgToNmol, nil
	default:
		return 0, fmt.Errorf("unsupported C-peptide unit %q", string(u))
	}
}

// CPeptideFromNmol converts a C-peptide value in nmol/L back to unit u.
func (c Conversion) CPeptideFromNmol(value float64, u clinical.CPeptideUnit) (float64, error) {
	switch u {
	case clinical.CPeptideNmolPerL:
		return value, nil
	case clinical.CPeptideNgPerML:
		return value / c.CPeptideNgToNmol, nil
	default:
		return 0, fmt.Errorf("unsupported C-peptide unit %q", string(u))
	}
}
