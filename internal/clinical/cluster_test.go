package clinical

import "testing"

func TestProbabilitiesFromSlice(t *testing.T) {
	p, err := ProbabilitiesFromSlice([]float64{0.05, 0.1, 0.15, 0.2, 0.5})
	if err != nil {
		t.Fatalf("ProbabilitiesFromSlice() error = %v", err)
	}
	if p.For(ClusterMARD) != 0.5 || p.For(ClusterSAID) != 0.05 {
		t.Errorf("For() = %v / %v", p.For(ClusterMARD), p.For(ClusterSAID))
	}

	if _, err := ProbabilitiesFromSlice([]float64{0.5, 0.5}); err == nil {
		t.Error("short vector: want error")
	}
	if _, err := ProbabilitiesFromSlice([]float64{0, 0, 0, 1.2, 0}); err == nil {
		t.Error("probability > 1: want error")
	}
}

func TestProbabilitiesByClusterRounds(t *testing.T) {
	p := Probabilities{0.12345, 0, 0, 0, 0.87655}
	got := p.ByCluster()
	if got[ClusterSAID] != 0.123 || got[ClusterMARD] != 0.877 {
		t.Errorf("ByCluster() = %v", got)
	}
}

func TestParseCluster(t *testing.T) {
	for _, c := range Clusters {
		got, err := ParseCluster(string(c))
		if err != nil || got != c {
			t.Errorf("ParseCluster(%q) = %v, %v", c, got, err)
		}
		if c.Description() == "" {
			t.Errorf("%s has no description", c)
		}
	}
	if _, err := ParseCluster("LADA"); err == nil {
		t.Error("ParseCluster(LADA): want error")
	}
}

func TestGADStatusFlag(t *testing.T) {
	if v, _ := GADPositive.Flag(); v != 1 {
		t.Errorf("Positive = %d", v)
	}
	if v, _ := GADNegative.Flag(); v != 0 {
		t.Errorf("Negative = %d", v)
	}
	if _, err := GADUnset.Flag(); err == nil {
		t.Error("unset: want error")
	}
}
