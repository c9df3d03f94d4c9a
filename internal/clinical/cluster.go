package clinical

import (
	"fmt"
	"math"
)

// Cluster is one of the five diabetes subtypes predicted by the model.
type Cluster string

const (
	ClusterSAID Cluster = "SAID"
	ClusterSIDD Cluster = "SIDD"
	ClusterSIRD Cluster = "SIRD"
	ClusterMOD  Cluster = "MOD"
	ClusterMARD Cluster = "MARD"
)

// Clusters is the order of the probability vector returned by the service.
var Clusters = [5]Cluster{ClusterSAID, ClusterSIDD, ClusterSIRD, ClusterMOD, ClusterMARD}

var clusterDescriptions = map[Cluster]string{
	ClusterSAID: "Severe autoimmune diabetes: early onset, low BMI, poor metabolic control, insulin deficiency and GAD antibodies present.",
	ClusterSIDD: "Severe insulin-deficient diabetes: GAD antibody negative but otherwise similar to SAID, with low insulin secretion and high HbA1c.",
	ClusterSIRD: "Severe insulin-resistant diabetes: marked insulin resistance and high BMI, with the highest risk of diabetic kidney disease.",
	ClusterMOD:  "Mild obesity-related diabetes: obesity without marked insulin resistance, usually diagnosed at a younger age.",
	ClusterMARD: "Mild age-related diabetes: diagnosed at an older age with only modest metabolic derangement.",
}

// ParseCluster validates a label returned by the service.
func ParseCluster(label string) (Cluster, error) {
	c := Cluster(label)
	if _, ok := clusterDescriptions[c]; !ok {
		return "", fmt.Errorf("unknown cluster label %q", label)
	}
	return c, nil
}

// Description returns the explanatory text shown next to the label.
func (c Cluster) Description() string {
	return clusterDescriptions[c]
}

// Probabilities is the model's probability vector, ordered as Clusters.
type Probabilities [5]float64

// ProbabilitiesFromSlice checks the length and range of a decoded vector.
func ProbabilitiesFromSlice(values []float64) (Probabilities, error) {
	var p Probabilities
	if len(values) != len(p) {
		return p, fmt.Errorf("expected %d probabilities, got %d", len(p), len(values))
	}
	for i, v := range values {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return p, fmt.Errorf("probability for %s out of range: %v", Clusters[i], v)
		}
		p[i] = v
	}
	return p, nil
}

// For returns the probability of cluster c, or 0 for an unknown label.
func (p Probabilities) For(c Cluster) float64 {
	for i, k := range Clusters {
		if k == c {
			return p[i]
		}
	}
	return 0
}

// ByCluster returns the vector keyed by label, rounded to three decimals.
func (p Probabilities) ByCluster() map[Cluster]float64 {
	out := make(map[Cluster]float64, len(p))
	for i, c := range Clusters {
		out[c] = math.Round(p[i]*1000) / 1000
	}
	return out
}

// Slice returns the vector as a slice, for storage drivers and JSON.
func (p Probabilities) Slice() []float64 {
	return append([]float64(nil), p[:]...)
}
