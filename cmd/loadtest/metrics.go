package main

import (
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Metrics collects and aggregates load test metrics
type Metrics struct {
	mu sync.Mutex

	startTime time.Time
	endTime   time.Time

	// Global histogram (microseconds for precision)
	histogram *hdrhistogram.Histogram

	// Per-profile histograms
	profileHistograms map[Profile]*hdrhistogram.Histogram
	profileExpected   map[Profile]int64
	profileTotal      map[Profile]int64

	// Response codes: cluster labels on success, error codes otherwise
	codes map[string]int64

	totalRequests int64
	successCount  int64
	cachedCount   int64
	rejectedCount int64
	timeoutCount  int64
	errorCount    int64
	rateLimited   int64
	unexpected    int64
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		// HDR Histogram: 1us to 60s range, 3 significant figures
		histogram:         hdrhistogram.New(1, 60_000_000, 3),
		profileHistograms: make(map[Profile]*hdrhistogram.Histogram),
		profileExpected:   make(map[Profile]int64),
		profileTotal:      make(map[Profile]int64),
		codes:             make(map[string]int64),
	}
}

// Start marks the beginning of the test
func (m *Metrics) Start() {
	m.mu.Lock()
	m.startTime = time.Now()
	m.mu.Unlock()
}

// Stop marks the end of the test
func (m *Metrics) Stop() {
	m.mu.Lock()
	m.endTime = time.Now()
	m.mu.Unlock()
}

// Record adds a request result to the metrics
func (m *Metrics) Record(result RequestResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalRequests++

	latencyUs := result.Latency.Microseconds()
	if latencyUs > 0 {
		m.histogram.RecordValue(latencyUs)

		if _, ok := m.profileHistograms[result.Profile]; !ok {
			m.profileHistograms[result.Profile] = hdrhistogram.New(1, 60_000_000, 3)
		}
		m.profileHistograms[result.Profile].RecordValue(latencyUs)
	}

	m.profileTotal[result.Profile]++
	if result.Expected() {
		m.profileExpected[result.Profile]++
	} else {
		m.unexpected++
	}
	if result.Code != "" {
		m.codes[result.Code]++
	}

	switch {
	case result.Success:
		m.successCount++
		if result.Cached {
			m.cachedCount++
		}
	case result.Timeout:
		m.timeoutCount++
	case result.StatusCode == 429:
		m.rateLimited++
	case result.StatusCode == 422:
		m.rejectedCount++
	default:
		m.errorCount++
	}
}

// Progress is a running tally for progress lines.
type Progress struct {
	Requests   int64
	Predicted  int64
	Refused    int64
	Unexpected int64
}

// Progress returns the tally so far.
func (m *Metrics) Progress() Progress {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Progress{
		Requests:   m.totalRequests,
		Predicted:  m.successCount,
		Refused:    m.rejectedCount,
		Unexpected: m.unexpected,
	}
}

// Results represents the final test results
type Results struct {
	Duration      time.Duration `json:"duration"`
	TargetRPS     int           `json:"target_rps"`
	AchievedRPS   float64       `json:"achieved_rps"`
	TotalRequests int64         `json:"total_requests"`

	// Latency percentiles in milliseconds
	LatencyP50 float64 `json:"latency_p50_ms"`
	LatencyP90 float64 `json:"latency_p90_ms"`
	LatencyP95 float64 `json:"latency_p95_ms"`
	LatencyP99 float64 `json:"latency_p99_ms"`
	LatencyMax float64 `json:"latency_max_ms"`
	LatencyMin float64 `json:"latency_min_ms"`
	LatencyAvg float64 `json:"latency_avg_ms"`

	SuccessCount    int64 `json:"success_count"`
	CachedCount     int64 `json:"cached_count"`
	RejectedCount   int64 `json:"rejected_count"`
	TimeoutCount    int64 `json:"timeout_count"`
	ErrorCount      int64 `json:"error_count"`
	RateLimited     int64 `json:"rate_limited_count"`
	UnexpectedCount int64 `json:"unexpected_count"`

	Codes          []CodeCount     `json:"codes,omitempty"`
	ProfileResults []ProfileResult `json:"profile_results,omitempty"`
}

// CodeCount is how often a response code was seen.
type CodeCount struct {
	Code  string `json:"code"`
	Count int64  `json:"count"`
}

// ProfileResult holds per-profile metrics
type ProfileResult struct {
	Profile      Profile `json:"profile"`
	Requests     int64   `json:"requests"`
	ExpectedRate float64 `json:"expected_rate"`
	LatencyP50   float64 `json:"latency_p50_ms"`
	LatencyP99   float64 `json:"latency_p99_ms"`
}

// GetResults computes the final results
func (m *Metrics) GetResults(targetRPS int) *Results {
	m.mu.Lock()
	defer m.mu.Unlock()

	duration := m.endTime.Sub(m.startTime)
	if duration <= 0 {
		duration = time.Second
	}

	results := &Results{
		Duration:      duration,
		TargetRPS:     targetRPS,
		AchievedRPS:   float64(m.totalRequests) / duration.Seconds(),
		TotalRequests: m.totalRequests,

		LatencyP50: float64(m.histogram.ValueAtPercentile(50)) / 1000.0,
		LatencyP90: float64(m.histogram.ValueAtPercentile(90)) / 1000.0,
		LatencyP95: float64(m.histogram.ValueAtPercentile(95)) / 1000.0,
		LatencyP99: float64(m.histogram.ValueAtPercentile(99)) / 1000.0,
		LatencyMax: float64(m.histogram.Max()) / 1000.0,
		LatencyMin: float64(m.histogram.Min()) / 1000.0,
		LatencyAvg: m.histogram.Mean() / 1000.0,

		SuccessCount:    m.successCount,
		CachedCount:     m.cachedCount,
		RejectedCount:   m.rejectedCount,
		TimeoutCount:    m.timeoutCount,
		ErrorCount:      m.errorCount,
		RateLimited:     m.rateLimited,
		UnexpectedCount: m.unexpected,
	}

	for code, n := range m.codes {
		results.Codes = append(results.Codes, CodeCount{Code: code, Count: n})
	}
	sort.Slice(results.Codes, func(i, j int) bool {
		if results.Codes[i].Count != results.Codes[j].Count {
			return results.Codes[i].Count > results.Codes[j].Count
		}
		return results.Codes[i].Code < results.Codes[j].Code
	})

	for profile, hist := range m.profileHistograms {
		total := m.profileTotal[profile]
		rate := float64(0)
		if total > 0 {
			rate = float64(m.profileExpected[profile]) / float64(total)
		}
		results.ProfileResults = append(results.ProfileResults, ProfileResult{
			Profile:      profile,
			Requests:     total,
			ExpectedRate: rate,
			LatencyP50:   float64(hist.ValueAtPercentile(50)) / 1000.0,
			LatencyP99:   float64(hist.ValueAtPercentile(99)) / 1000.0,
		})
	}
	sort.Slice(results.ProfileResults, func(i, j int) bool {
		return results.ProfileResults[i].Profile < results.ProfileResults[j].Profile
	})

	return results
}
