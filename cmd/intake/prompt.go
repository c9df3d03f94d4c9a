package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/clinical"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/form"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/prediction"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/services"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/validator"
)

// predictor is the part of the prediction client the terminal uses.
type predictor interface {
	Predict(ctx context.Context, req clinical.NormalizedRequest) (prediction.Prediction, error)
	SubmitFollowUpMedications(ctx context.Context, predictionID string, meds clinical.MedicationSelection) error
}

// terminal drives a form session from line-oriented input.
type terminal struct {
	in  *bufio.Scanner
	out io.Writer

	session   *form.Session
	predictor predictor
	qr        *services.QRService
	timeout   time.Duration
}

func newTerminal(in io.Reader, out io.Writer, s *form.Session, p predictor, qr *services.QRService, timeout time.Duration) *terminal {
	return &terminal{
		in:        bufio.NewScanner(in),
		out:       out,
		session:   s,
		predictor: p,
		qr:        qr,
		timeout:   timeout,
	}
}

// ask prints label and returns the trimmed answer.
func (t *terminal) ask(label string) (string, error) {
	fmt.Fprint(t.out, label)
	if !t.in.Scan() {
		if err := t.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(t.in.Text()), nil
}

func (t *terminal) confirm(label string) (bool, error) {
	answer, err := t.ask(label + " [y/N]: ")
	if err != nil {
		return false, err
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes", nil
}

// choose asks for one of options; an empty answer selects nothing.
func (t *terminal) choose(label string, options ...string) (string, error) {
	for {
		answer, err := t.ask(fmt.Sprintf("%s [%s]: ", label, strings.Join(options, "/")))
		if err != nil || answer == "" {
			return "", err
		}
		for _, o := range options {
			if strings.EqualFold(answer, o) {
				return o, nil
			}
		}
		fmt.Fprintf(t.out, "  choose one of %s\n", strings.Join(options, ", "))
	}
}

// Run loops over forms until input ends or the clinician stops.
func (t *terminal) Run(ctx context.Context) error {
	return ignoreEOF(t.run(ctx))
}

func (t *terminal) run(ctx context.Context) error {
	for {
		if err := t.fillForm(); err != nil {
			return err
		}

		req, err := t.submitUntilValid()
		if err != nil {
			return err
		}

		pred, err := t.predict(ctx, req)
		if err != nil {
			return err
		}
		if pred != nil {
			t.printPrediction(pred)
			if err := t.followUp(ctx, pred.ID); err != nil {
				return err
			}
		}

		again, err := t.confirm("Start another form?")
		if err != nil || !again {
			return err
		}
		t.session.Reset()
	}
}

func (t *terminal) fillForm() error {
	fmt.Fprintln(t.out, "New intake form")
	for _, field := range []string{"gad", "hba1c", "bmi", "age", "cpeptide", "glucose", "medications", "consent"} {
		if err := t.edit(field); err != nil {
			return err
		}
	}
	return nil
}

var textFields = map[string]struct {
	field form.Field
	label string
}{
	"hba1c":    {form.FieldHbA1c, "HbA1c (%): "},
	"bmi":      {form.FieldBMI, "BMI (kg/m2): "},
	"age":      {form.FieldAge, "Age at diagnosis (years): "},
	"cpeptide": {form.FieldCPeptide, "Fasting C-peptide: "},
	"glucose":  {form.FieldGlucose, "Fasting glucose: "},
}

// edit prompts for one form field and stores the answer in the session.
func (t *terminal) edit(name string) error {
	switch name {
	case "gad":
		status, err := t.choose("GAD autoantibody status", string(clinical.GADPositive), string(clinical.GADNegative))
		if err != nil {
			return err
		}
		return t.session.SetGADStatus(clinical.GADStatus(status))

	case "medications":
		meds, err := t.askMedications("Current medications")
		if err != nil {
			return err
		}
		for _, m := range clinical.Medications() {
			if err := t.session.SetMedication(m, meds.Has(m)); err != nil {
				return err
			}
		}
		return nil

	case "consent":
		ok, err := t.confirm("I confirm this is verified real patient data")
		if err != nil {
			return err
		}
		return t.session.SetConsent(ok)
	}

	tf, ok := textFields[name]
	if !ok {
		return fmt.Errorf("unknown field %q", name)
	}
	answer, err := t.ask(tf.label)
	if err != nil {
		return err
	}
	if err := t.session.Clear(tf.field); err != nil {
		return err
	}
	stored, err := t.session.Type(tf.field, answer)
	if err != nil {
		return err
	}
	if stored != answer {
		fmt.Fprintf(t.out, "  entered as %q\n", stored)
	}

	switch name {
	case "cpeptide":
		unit, err := t.choose("C-peptide unit", string(clinical.CPeptideNgPerML), string(clinical.CPeptideNmolPerL))
		if err != nil {
			return err
		}
		return t.session.SetCPeptideUnit(clinical.CPeptideUnit(unit))
	case "glucose":
		unit, err := t.choose("Glucose unit", string(clinical.GlucoseMgPerDL), string(clinical.GlucoseMmolPerL))
		if err != nil {
			return err
		}
		return t.session.SetGlucoseUnit(clinical.GlucoseUnit(unit))
	}
	return nil
}

// askMedications reads a comma separated list of medication keys.
func (t *terminal) askMedications(label string) (clinical.MedicationSelection, error) {
	keys := make([]string, 0, len(clinical.Medications()))
	for _, m := range clinical.Medications() {
		keys = append(keys, m.String())
	}

	for {
		answer, err := t.ask(fmt.Sprintf("%s (comma separated: %s): ", label, strings.Join(keys, ", ")))
		if err != nil {
			return clinical.MedicationSelection{}, err
		}

		var sel clinical.MedicationSelection
		var bad string
		for _, part := range strings.Split(answer, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			m, err := clinical.ParseMedication(part)
			if err != nil {
				bad = part
				break
			}
			sel.Set(m, true)
		}
		if bad == "" {
			return sel, nil
		}
		fmt.Fprintf(t.out, "  unknown medication %q\n", bad)
	}
}

// submitUntilValid submits the form and, while it is rejected, shows the
// reason and lets the clinician correct a field.
func (t *terminal) submitUntilValid() (clinical.NormalizedRequest, error) {
	for {
		req, err := t.session.Submit()
		if err == nil {
			return req, nil
		}

		var verr *validator.Error
		if !errors.As(err, &verr) {
			return clinical.NormalizedRequest{}, err
		}
		fmt.Fprintf(t.out, "✗ %s\n", verr.Reason)

		field, err := t.ask("Edit which field? [gad/hba1c/bmi/age/cpeptide/glucose/medications/consent/quit]: ")
		if err != nil {
			return clinical.NormalizedRequest{}, err
		}
		field = strings.ToLower(field)
		if field == "" {
			field = strings.TrimSuffix(strings.TrimSuffix(verr.Field, "_status"), "_unit")
		}
		if field == "quit" {
			return clinical.NormalizedRequest{}, io.EOF
		}
		if err := t.edit(field); err != nil {
			if errors.Is(err, io.EOF) {
				return clinical.NormalizedRequest{}, err
			}
			fmt.Fprintf(t.out, "  %v\n", err)
		}
	}
}

// predict calls the prediction service, offering a retry on failure. A nil
// prediction means the clinician gave up.
func (t *terminal) predict(ctx context.Context, req clinical.NormalizedRequest) (*prediction.Prediction, error) {
	for {
		callCtx, cancel := context.WithTimeout(ctx, t.timeout)
		pred, err := t.predictor.Predict(callCtx, req)
		cancel()
		if err == nil {
			return &pred, nil
		}

		fmt.Fprintf(t.out, "✗ prediction failed: %s\n", predictionFailure(err))
		retry, err := t.confirm("Try again?")
		if err != nil {
			return nil, err
		}
		if !retry {
			return nil, nil
		}
	}
}

func predictionFailure(err error) string {
	var se *prediction.ServiceError
	switch {
	case errors.Is(err, prediction.ErrCircuitOpen):
		return "the prediction service is temporarily unavailable"
	case errors.Is(err, prediction.ErrRejected) && errors.As(err, &se) && se.Message != "":
		return se.Message
	default:
		return err.Error()
	}
}

func (t *terminal) printPrediction(pred *prediction.Prediction) {
	probs := pred.Probabilities.ByCluster()

	fmt.Fprintf(t.out, "\nPredicted subtype: %s\n", pred.Cluster)
	fmt.Fprintf(t.out, "  %s\n", pred.Cluster.Description())
	fmt.Fprintln(t.out, "  Probabilities:")
	for _, c := range clinical.Clusters {
		marker := " "
		if c == pred.Cluster {
			marker = "*"
		}
		fmt.Fprintf(t.out, "   %s %-4s %.3f\n", marker, c, probs[c])
	}
	fmt.Fprintf(t.out, "  Prediction ID: %s\n", pred.ID)

	if t.qr != nil {
		fmt.Fprintf(t.out, "  Link: %s\n", t.qr.PredictionLink(pred.ID))
		if text, err := t.qr.PredictionText(pred.ID); err == nil {
			fmt.Fprintln(t.out, text)
		}
	}
}

// followUp optionally sends medications chosen after the prediction.
func (t *terminal) followUp(ctx context.Context, predictionID string) error {
	ok, err := t.confirm("Record medications started after this prediction?")
	if err != nil || !ok {
		return err
	}

	for {
		meds, err := t.askMedications("Follow-up medications")
		if err != nil {
			return err
		}
		if verr := validator.ValidateMedications(meds); verr != nil {
			fmt.Fprintf(t.out, "✗ %v\n", verr)
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, t.timeout)
		err = t.predictor.SubmitFollowUpMedications(callCtx, predictionID, meds)
		cancel()
		if err == nil {
			fmt.Fprintln(t.out, "✓ follow-up medications recorded")
			return nil
		}

		fmt.Fprintf(t.out, "✗ follow-up failed: %s\n", predictionFailure(err))
		retry, err := t.confirm("Try again?")
		if err != nil || !retry {
			return err
		}
	}
}

func ignoreEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
