package validator

import (
	"testing"

	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/clinical"
)

func TestGlucoseRoundTrip(t *testing.T) {
	c := DefaultConversion()
	for _, mgdl := range []float64{54, 70, 90, 126, 180.5, 450} {
		mmol, err := c.GlucoseToMmol(mgdl, clinical.GlucoseMgPerDL)
		if err != nil {
			t.Fatalf("GlucoseToMmol(%v) error = %v", mgdl, err)
		}
		back, err := c.GlucoseFromMmol(mmol, clinical.GlucoseMgPerDL)
		if err != nil {
			t.Fatalf("GlucoseFromMmol(%v) error = %v", mmol, err)
		}
		if !almostEqual(back, mgdl, 1e-9) {
			t.Errorf("round trip %v -> %v -> %v", mgdl, mmol, back)
		}
	}
}

func TestCPeptideRoundTrip(t *testing.T) {
	c := DefaultConversion()
	for _, ngml := range []float64{0.5, 1, 2, 3.7} {
		nmol, _ := c.CPeptideToNmol(ngml, clinical.CPeptideNgPerML)
		back, _ := c.CPeptideFromNmol(nmol, clinical.CPeptideNgPerML)
		if !almostEqual(back, ngml, 1e-9) {
			t.Errorf("round trip %v -> %v -> %v", ngml, nmol, back)
		}
	}
}

func TestConversionUnsupportedUnit(t *testing.T) {
	c := DefaultConversion()
	if _, err := c.GlucoseToMmol(5, clinical.GlucoseUnitUnset); err == nil {
		t.Error("GlucoseToMmol with unset unit: want error")
	}
	if _, err := c.CPeptideToNmol(1, "pmol/L"); err == nil {
		t.Error("CPeptideToNmol with pmol/L: want error")
	}
}
