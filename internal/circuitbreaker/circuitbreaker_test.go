package circuitbreaker

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(clock *fakeClock, gauge *prometheus.GaugeVec) *CircuitBreaker {
	return New("predict", Settings{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		RecoveryTimeout:  30 * time.Second,
		StateGauge:       gauge,
		Now:              clock.Now,
	})
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	cb := newTestBreaker(clock, nil)

	cb.RecordFailure()
	cb.RecordFailure()
	if !cb.Allow() {
		t.Fatal("opened before threshold")
	}
	cb.RecordFailure()
	if cb.Allow() {
		t.Fatal("still closed after threshold")
	}
	if cb.State() != StateOpen {
		t.Errorf("State() = %v, want OPEN", cb.State())
	}
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	cb := newTestBreaker(clock, nil)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()
	if cb.State() != StateClosed {
		t.Errorf("State() = %v, want CLOSED", cb.State())
	}
}

func TestBreakerRecovery(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	cb := newTestBreaker(clock, nil)
	cb.ForceOpen()

	clock.Advance(29 * time.Second)
	if cb.Allow() {
		t.Fatal("allowed before recovery timeout")
	}

	clock.Advance(time.Second)
	if !cb.Allow() || cb.State() != StateHalfOpen {
		t.Fatalf("State() = %v, want HALF_OPEN", cb.State())
	}

	// A failed probe reopens immediately.
	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Fatalf("State() = %v, want OPEN after failed probe", cb.State())
	}

	clock.Advance(30 * time.Second)
	cb.Allow()
	cb.RecordSuccess()
	if cb.State() != StateHalfOpen {
		t.Fatalf("closed after one probe success")
	}
	cb.RecordSuccess()
	if cb.State() != StateClosed {
		t.Errorf("State() = %v, want CLOSED", cb.State())
	}
}

func TestBreakerPublishesGauge(t *testing.T) {
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "test_state"}, []string{"operation"})
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	cb := newTestBreaker(clock, gauge)

	cb.ForceOpen()
	if got := testutil.ToFloat64(gauge.WithLabelValues("predict")); got != float64(StateOpen) {
		t.Errorf("gauge = %v, want %v", got, float64(StateOpen))
	}
	cb.ForceClose()
	if got := testutil.ToFloat64(gauge.WithLabelValues("predict")); got != float64(StateClosed) {
		t.Errorf("gauge = %v, want %v", got, float64(StateClosed))
	}
}

func TestRegistryReusesBreakers(t *testing.T) {
	r := NewRegistry(Settings{FailureThreshold: 1, SuccessThreshold: 1, RecoveryTimeout: time.Minute})

	a := r.Get("predict")
	if r.Get("predict") != a {
		t.Error("Get() returned a new breaker for the same operation")
	}
	r.Get("medications").RecordFailure()

	statuses := r.Statuses()
	if len(statuses) != 2 {
		t.Fatalf("Statuses() len = %d, want 2", len(statuses))
	}
	for _, s := range statuses {
		if s.Operation == "medications" && s.State != "OPEN" {
			t.Errorf("medications state = %s, want OPEN", s.State)
		}
	}
}
