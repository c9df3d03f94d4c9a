package main

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// recentLimit bounds the successful submissions kept for replay.
const recentLimit = 32

// job is one scheduled submission. Replays resend an earlier form under
// its original idempotency key.
type job struct {
	profile Profile
	form    intakeRequest
	key     string
}

func newJob(p Profile) job {
	return job{profile: p, form: generateForm(p), key: uuid.NewString()}
}

// Runner paces synthetic submissions and tallies their outcomes.
type Runner struct {
	cfg     Config
	client  *Client
	metrics *Metrics
	limiter *rate.Limiter

	mu     sync.Mutex
	recent []job
}

// NewRunner creates a new load test runner
func NewRunner(cfg Config, client *Client) *Runner {
	return &Runner{
		cfg:     cfg,
		client:  client,
		metrics: NewMetrics(),
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Workers),
	}
}

// Run schedules jobs until ctx is done. Workers that fall behind hold back
// the schedule rather than drop jobs.
func (r *Runner) Run(ctx context.Context) *Results {
	jobs := make(chan job)

	var wg sync.WaitGroup
	r.metrics.Start()
	for i := 0; i < r.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				r.submit(ctx, j)
			}
		}()
	}

	fmt.Println("🚀 Load test started...")
	fmt.Println()

	progress := time.NewTicker(5 * time.Second)
	defer progress.Stop()
	start := time.Now()

schedule:
	for {
		if err := r.limiter.Wait(ctx); err != nil {
			break
		}
		select {
		case jobs <- r.next():
		case <-ctx.Done():
			break schedule
		}

		select {
		case <-progress.C:
			r.printProgress(time.Since(start))
		default:
		}
	}

	close(jobs)
	wg.Wait()
	r.metrics.Stop()

	fmt.Println()
	fmt.Println("✅ Load test completed!")

	return r.metrics.GetResults(r.cfg.RPS)
}

// next picks the profile of the next job.
func (r *Runner) next() job {
	if r.cfg.Replay > 0 && rand.Float64() < r.cfg.Replay {
		if j, ok := r.replay(); ok {
			return j
		}
	}
	if !r.cfg.Invalid {
		return newJob(ProfileValid)
	}
	return newJob(profileMix[rand.Intn(len(profileMix))])
}

func (r *Runner) replay() (job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.recent) == 0 {
		return job{}, false
	}
	j := r.recent[rand.Intn(len(r.recent))]
	j.profile = ProfileReplay
	return j, true
}

// submit sends one job. Only forms the server has already answered are
// replayed, so a replay must come back cached.
func (r *Runner) submit(ctx context.Context, j job) {
	reqCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	result := r.client.Submit(reqCtx, j)
	cancel()

	r.metrics.Record(result)
	if j.profile == ProfileValid && result.Success {
		r.remember(j)
	}
}

func (r *Runner) remember(j job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.recent) < recentLimit {
		r.recent = append(r.recent, j)
		return
	}
	r.recent[rand.Intn(recentLimit)] = j
}

func (r *Runner) printProgress(elapsed time.Duration) {
	p := r.metrics.Progress()
	fmt.Printf("⏱️  Elapsed: %s | Remaining: %s | Requests: %d | RPS: %.1f | Predicted: %d | Refused: %d | Unexpected: %d\n",
		formatDuration(elapsed),
		formatDuration(r.cfg.Duration-elapsed),
		p.Requests,
		float64(p.Requests)/elapsed.Seconds(),
		p.Predicted,
		p.Refused,
		p.Unexpected)
}

// formatDuration formats a duration for display
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "0s"
	}
	d = d.Round(time.Second)
	m := d / time.Minute
	s := (d % time.Minute) / time.Second
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
