package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/clinical"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/metrics"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/prediction"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/validator"
)

func validSubmission() Submission {
	return Submission{
		Raw: clinical.RawInput{
			GADStatus:     clinical.GADNegative,
			HbA1cPercent:  "7.2",
			BMI:           "28.4",
			AgeYears:      "45",
			CPeptideValue: "2",
			CPeptideUnit:  clinical.CPeptideNgPerML,
			GlucoseValue:  "90",
			GlucoseUnit:   clinical.GlucoseMgPerDL,
		},
		Medications: clinical.NewMedicationSelection(clinical.Metformin),
		Consent:     true,
	}
}

type harness struct {
	svc       *IntakeService
	predictor *fakePredictor
	store     *fakeStore
	cache     *fakeCache
	metrics   *metrics.Metrics
}

func newHarness() *harness {
	h := &harness{
		predictor: &fakePredictor{},
		store:     newFakeStore(),
		cache:     newFakeCache(),
		metrics:   metrics.New("test", prometheus.NewRegistry()),
	}
	h.svc = NewIntakeService(validator.New(validator.DefaultConfig()), h.predictor, h.store, h.cache, h.metrics)
	return h
}

func TestSubmitStoresPrediction(t *testing.T) {
	h := newHarness()

	res, err := h.svc.Submit(context.Background(), validSubmission())
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if res.Cached {
		t.Error("first submission reported as cached")
	}
	if res.Prediction.Cluster != clinical.ClusterSIDD {
		t.Errorf("Cluster = %q", res.Prediction.Cluster)
	}
	if _, ok := h.store.predictions[res.Prediction.ID]; !ok {
		t.Error("prediction not stored")
	}
	if h.predictor.last.GAD != 0 {
		t.Errorf("sent GAD = %d, want 0", h.predictor.last.GAD)
	}
	if got := testutil.ToFloat64(h.metrics.ClusterTotal.WithLabelValues("SIDD")); got != 1 {
		t.Errorf("cluster counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(h.metrics.ValidationTotal.WithLabelValues("normalized")); got != 1 {
		t.Errorf("validation counter = %v, want 1", got)
	}
}

func TestSubmitIdenticalFormsGetSeparatePredictions(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	first, err := h.svc.Submit(ctx, validSubmission())
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	second, err := h.svc.Submit(ctx, validSubmission())
	if err != nil {
		t.Fatalf("second Submit() error = %v", err)
	}
	if second.Cached || second.Prediction.ID == first.Prediction.ID {
		t.Errorf("second patient got prediction %s of the first", second.Prediction.ID)
	}
	if h.predictor.calls != 2 {
		t.Errorf("predictor calls = %d, want 2", h.predictor.calls)
	}
	if len(h.store.predictions) != 2 {
		t.Errorf("stored predictions = %d, want 2", len(h.store.predictions))
	}
	if len(h.cache.entries) != 0 {
		t.Errorf("cached %d entries without an idempotency key", len(h.cache.entries))
	}
}

func TestSubmitReplaysIdempotencyKey(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	sub := validSubmission()
	sub.IdempotencyKey = "retry-1"
	first, err := h.svc.Submit(ctx, sub)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	second, err := h.svc.Submit(ctx, sub)
	if err != nil {
		t.Fatalf("retried Submit() error = %v", err)
	}
	if !second.Cached || second.Prediction.ID != first.Prediction.ID {
		t.Errorf("retry = %+v, want cached %s", second, first.Prediction.ID)
	}
	if h.predictor.calls != 1 {
		t.Errorf("predictor calls = %d, want 1", h.predictor.calls)
	}

	// The same key from another clinician is a separate submission.
	other := sub
	id := uuid.New()
	other.SubmittedBy = &id
	res, err := h.svc.Submit(ctx, other)
	if err != nil {
		t.Fatalf("other clinician Submit() error = %v", err)
	}
	if res.Cached {
		t.Error("idempotency key shared across clinicians")
	}
}

func TestSubmitRejectsReusedKeyWithDifferentForm(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	sub := validSubmission()
	sub.IdempotencyKey = "retry-2"
	if _, err := h.svc.Submit(ctx, sub); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	sub.Raw.AgeYears = "52"
	if _, err := h.svc.Submit(ctx, sub); !errors.Is(err, ErrIdempotencyConflict) {
		t.Errorf("error = %v, want ErrIdempotencyConflict", err)
	}
	if h.predictor.calls != 1 {
		t.Errorf("predictor calls = %d, want 1", h.predictor.calls)
	}
}

func TestSubmitValidationFailureSkipsPrediction(t *testing.T) {
	h := newHarness()

	sub := validSubmission()
	sub.Medications.Set(clinical.NoMedication, true)

	_, err := h.svc.Submit(context.Background(), sub)
	if !errors.Is(err, validator.ErrMedicationSelectionConflict) {
		t.Fatalf("error = %v, want conflict", err)
	}
	if h.predictor.calls != 0 {
		t.Error("predictor called after validation failure")
	}
	if got := testutil.ToFloat64(h.metrics.ValidationTotal.WithLabelValues("medication_selection_conflict")); got != 1 {
		t.Errorf("validation counter = %v, want 1", got)
	}
}

func TestSubmitPredictionFailure(t *testing.T) {
	h := newHarness()
	h.predictor.err = &prediction.ServiceError{Op: metrics.OpPredict, Err: prediction.ErrUnavailable}

	_, err := h.svc.Submit(context.Background(), validSubmission())
	if !errors.Is(err, prediction.ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
	if len(h.store.predictions) != 0 {
		t.Error("stored a prediction after service failure")
	}
}

func TestSubmitFollowUp(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	res, err := h.svc.Submit(ctx, validSubmission())
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	meds := clinical.NewMedicationSelection(clinical.Insulin)
	f, err := h.svc.SubmitFollowUp(ctx, res.Prediction.ID, nil, meds)
	if err != nil {
		t.Fatalf("SubmitFollowUp() error = %v", err)
	}
	if f.PredictionID != res.Prediction.ID {
		t.Errorf("PredictionID = %q", f.PredictionID)
	}
	if len(h.cache.queued) != 1 || h.cache.queued[0].FollowUpID != f.ID.String() {
		t.Errorf("queued = %+v", h.cache.queued)
	}
}

func TestSubmitFollowUpErrors(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	if _, err := h.svc.SubmitFollowUp(ctx, "unknown", nil, clinical.NewMedicationSelection(clinical.Insulin)); !errors.Is(err, ErrPredictionNotFound) {
		t.Errorf("unknown prediction error = %v", err)
	}
	if _, err := h.svc.SubmitFollowUp(ctx, "unknown", nil, clinical.MedicationSelection{}); !errors.Is(err, validator.ErrMedicationSelectionMissing) {
		t.Errorf("empty selection error = %v", err)
	}
	if len(h.cache.queued) != 0 {
		t.Error("queued a rejected follow-up")
	}
}

func TestGetPredictionNotFound(t *testing.T) {
	h := newHarness()
	if _, err := h.svc.GetPrediction(context.Background(), "nope", nil); !errors.Is(err, ErrPredictionNotFound) {
		t.Errorf("error = %v, want ErrPredictionNotFound", err)
	}
}

func TestPredictionsAreVisibleOnlyToTheirClinician(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	owner, _ := h.svc.ResolveClinician(ctx, "auth0|owner")
	other, _ := h.svc.ResolveClinician(ctx, "auth0|other")

	sub := validSubmission()
	sub.SubmittedBy = owner
	res, err := h.svc.Submit(ctx, sub)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	id := res.Prediction.ID

	if _, err := h.svc.GetPrediction(ctx, id, owner); err != nil {
		t.Errorf("owner GetPrediction() error = %v", err)
	}
	for name, caller := range map[string]*uuid.UUID{"other clinician": other, "anonymous": nil} {
		if _, err := h.svc.GetPrediction(ctx, id, caller); !errors.Is(err, ErrPredictionNotFound) {
			t.Errorf("%s GetPrediction() error = %v, want ErrPredictionNotFound", name, err)
		}
		if _, err := h.svc.SubmitFollowUp(ctx, id, caller, clinical.NewMedicationSelection(clinical.Insulin)); !errors.Is(err, ErrPredictionNotFound) {
			t.Errorf("%s SubmitFollowUp() error = %v, want ErrPredictionNotFound", name, err)
		}
	}
	if len(h.store.followUps) != 0 || len(h.cache.queued) != 0 {
		t.Error("recorded a follow-up for another clinician's prediction")
	}

	anon, err := h.svc.Submit(ctx, validSubmission())
	if err != nil {
		t.Fatalf("anonymous Submit() error = %v", err)
	}
	if _, err := h.svc.GetPrediction(ctx, anon.Prediction.ID, owner); !errors.Is(err, ErrPredictionNotFound) {
		t.Errorf("anonymous prediction visible to clinician: %v", err)
	}
}

func TestResolveClinicianAndList(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	if id, err := h.svc.ResolveClinician(ctx, ""); id != nil || err != nil {
		t.Errorf("ResolveClinician(\"\") = %v, %v", id, err)
	}

	id, err := h.svc.ResolveClinician(ctx, "auth0|c1")
	if err != nil {
		t.Fatalf("ResolveClinician() error = %v", err)
	}
	again, _ := h.svc.ResolveClinician(ctx, "auth0|c1")
	if *again != *id {
		t.Error("same subject resolved to different clinicians")
	}

	sub := validSubmission()
	sub.SubmittedBy = id
	if _, err := h.svc.Submit(ctx, sub); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if _, err := h.svc.Submit(ctx, validSubmission()); err != nil {
		t.Fatalf("anonymous Submit() error = %v", err)
	}

	list, err := h.svc.ListPredictions(ctx, *id, 10, 0)
	if err != nil || len(list) != 1 {
		t.Errorf("ListPredictions() = %d, %v; want 1", len(list), err)
	}
}
