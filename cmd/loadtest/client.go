package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/clinical"
)

// Profile is a kind of synthetic intake form.
type Profile string

const (
	ProfileValid        Profile = "valid"
	ProfileNoConsent    Profile = "no_consent"
	ProfileMissingField Profile = "missing_field"
	ProfileBadNumber    Profile = "bad_number"
	ProfileMedConflict  Profile = "med_conflict"
	ProfileOutOfRange   Profile = "out_of_range"
	// ProfileReplay resends an answered valid form with its idempotency key.
	ProfileReplay Profile = "replay"
)

// profileMix is sampled uniformly; valid forms are weighted to dominate.
var profileMix = []Profile{
	ProfileValid, ProfileValid, ProfileValid, ProfileValid, ProfileValid,
	ProfileValid, ProfileValid,
	ProfileNoConsent,
	ProfileMissingField,
	ProfileBadNumber,
	ProfileMedConflict,
	ProfileOutOfRange,
}

// intakeRequest mirrors the POST /v1/predictions body.
type intakeRequest struct {
	clinical.RawInput
	Medications clinical.MedicationSelection `json:"medications"`
	Consent     bool                         `json:"consent"`
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type predictionBody struct {
	ClusterLabel string `json:"cluster_label"`
	Cached       bool   `json:"cached"`
}

// Client submits synthetic intake forms to the intake API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewClient creates a new intake API client.
func NewClient(baseURL, token string) *Client {
	transport := &http.Transport{
		MaxIdleConns:        200,
		MaxIdleConnsPerHost: 200,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
		},
		baseURL: baseURL,
		token:   token,
	}
}

// RequestResult holds the result of a single request
type RequestResult struct {
	Profile    Profile
	Latency    time.Duration
	StatusCode int
	// Code is the error envelope code, or the cluster label on success.
	Code    string
	Success bool
	Cached  bool
	Timeout bool
	Error   error
}

// Submit posts one job's form.
func (c *Client) Submit(ctx context.Context, j job) RequestResult {
	profile := j.profile
	body, err := json.Marshal(j.form)
	if err != nil {
		return RequestResult{Profile: profile, Error: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/predictions", bytes.NewReader(body))
	if err != nil {
		return RequestResult{Profile: profile, Error: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	req.Header.Set("Idempotency-Key", j.key)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	result := RequestResult{Profile: profile, Latency: time.Since(start)}
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			result.Timeout = true
		}
		result.Error = err
		return result
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		result.Error = err
		return result
	}

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		result.Success = true
		var pb predictionBody
		if json.Unmarshal(respBody, &pb) == nil {
			result.Code = pb.ClusterLabel
			result.Cached = pb.Cached
		}
		return result
	}

	var eb errorBody
	if json.Unmarshal(respBody, &eb) == nil && eb.Error.Code != "" {
		result.Code = eb.Error.Code
	} else {
		result.Code = fmt.Sprintf("http_%d", resp.StatusCode)
	}
	result.Error = fmt.Errorf("%d %s", resp.StatusCode, result.Code)
	return result
}

// Expected reports whether the outcome matches the profile: valid forms
// should predict, replays should come back cached, every other profile
// should be refused with a 422.
func (r RequestResult) Expected() bool {
	switch r.Profile {
	case ProfileValid:
		return r.Success
	case ProfileReplay:
		return r.Success && r.Cached
	default:
		return r.StatusCode == http.StatusUnprocessableEntity
	}
}

// generateForm builds a form for profile with plausible random values.
func generateForm(profile Profile) intakeRequest {
	form := intakeRequest{
		RawInput: clinical.RawInput{
			GADStatus:    clinical.GADNegative,
			HbA1cPercent: fmt.Sprintf("%.1f", 5.5+rand.Float64()*7),
			BMI:          fmt.Sprintf("%.1f", 19+rand.Float64()*18),
			AgeYears:     fmt.Sprintf("%d", 20+rand.Intn(55)),
			CPeptideUnit: clinical.CPeptideNgPerML,
			GlucoseUnit:  clinical.GlucoseMgPerDL,
		},
		Medications: clinical.NewMedicationSelection(clinical.Metformin),
		Consent:     true,
	}
	if rand.Intn(4) == 0 {
		form.GADStatus = clinical.GADPositive
	}
	if rand.Intn(2) == 0 {
		form.CPeptideValue = fmt.Sprintf("%.2f", 0.7+rand.Float64()*3.1)
	} else {
		form.CPeptideUnit = clinical.CPeptideNmolPerL
		form.CPeptideValue = fmt.Sprintf("%.3f", 0.25+rand.Float64()*1.2)
	}
	if rand.Intn(2) == 0 {
		form.GlucoseValue = fmt.Sprintf("%d", 80+rand.Intn(160))
	} else {
		form.GlucoseUnit = clinical.GlucoseMmolPerL
		form.GlucoseValue = fmt.Sprintf("%.1f", 4.4+rand.Float64()*9)
	}
	if rand.Intn(3) == 0 {
		form.Medications = clinical.NewMedicationSelection(clinical.NoMedication)
	}

	switch profile {
	case ProfileNoConsent:
		form.Consent = false
	case ProfileMissingField:
		form.BMI = ""
	case ProfileBadNumber:
		form.HbA1cPercent = "7..2"
	case ProfileMedConflict:
		form.Medications = clinical.NewMedicationSelection(clinical.NoMedication, clinical.Insulin)
	case ProfileOutOfRange:
		form.AgeYears = "250"
	}
	return form
}
