// Package main provides a load testing tool for the subtype intake API.
// It submits a mix of valid and deliberately invalid intake forms and
// collects latency and outcome metrics.
//
// Out-of-range forms are only refused when the server runs with range
// checks enabled.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Config holds the load test configuration
type Config struct {
	Target   string        // Intake API URL
	Token    string        // Bearer token, when the API requires Auth0
	Duration time.Duration // Test duration
	RPS      int           // Target requests per second
	Workers  int           // Number of concurrent workers
	Timeout  time.Duration // Per-request timeout
	Invalid  bool          // Mix invalid forms into the load
	Replay   float64       // Share of jobs that resend an answered form
	Output   string        // Output format (json/text)
}

func main() {
	cfg := parseFlags()

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║              SUBTYPE INTAKE LOAD TEST                         ║")
	fmt.Println("╠═══════════════════════════════════════════════════════════════╣")
	fmt.Printf("║  Target       : %-45s ║\n", cfg.Target)
	fmt.Printf("║  Duration     : %-45s ║\n", cfg.Duration)
	fmt.Printf("║  Target RPS   : %-45d ║\n", cfg.RPS)
	fmt.Printf("║  Workers      : %-45d ║\n", cfg.Workers)
	fmt.Printf("║  Invalid mix  : %-45v ║\n", cfg.Invalid)
	fmt.Printf("║  Replay rate  : %-45.2f ║\n", cfg.Replay)
	fmt.Printf("║  Authorized   : %-45v ║\n", cfg.Token != "")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\n⚠️  Received shutdown signal, finishing current requests...")
		cancel()
	}()

	client := NewClient(cfg.Target, cfg.Token)
	runner := NewRunner(cfg, client)

	results := runner.Run(ctx)

	if cfg.Output == "json" {
		printJSONResults(results)
	} else {
		printTextResults(results)
	}
	if results.UnexpectedCount > 0 {
		os.Exit(1)
	}
}

func parseFlags() Config {
	cfg := Config{}

	flag.StringVar(&cfg.Target, "target", "http://localhost:8080", "Intake API URL")
	flag.StringVar(&cfg.Token, "token", os.Getenv("INTAKE_TOKEN"), "Bearer token (default $INTAKE_TOKEN)")
	flag.DurationVar(&cfg.Duration, "duration", 60*time.Second, "Test duration (e.g., 60s, 5m)")
	flag.IntVar(&cfg.RPS, "rps", 20, "Target requests per second")
	flag.IntVar(&cfg.Workers, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&cfg.Timeout, "timeout", 30*time.Second, "Per-request timeout")
	flag.BoolVar(&cfg.Invalid, "invalid", true, "Mix invalid forms into the load")
	flag.Float64Var(&cfg.Replay, "replay", 0.1, "Share of requests that retry an answered form with its Idempotency-Key")
	flag.StringVar(&cfg.Output, "output", "text", "Output format (json/text)")

	flag.Parse()

	if cfg.RPS < 1 {
		cfg.RPS = 1
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Replay < 0 || cfg.Replay > 1 {
		cfg.Replay = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return cfg
}

func printTextResults(results *Results) {
	total := max(results.TotalRequests, 1)
	pct := func(n int64) float64 { return float64(n) / float64(total) * 100 }

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                    LOAD TEST RESULTS                          ║")
	fmt.Println("╠═══════════════════════════════════════════════════════════════╣")
	fmt.Printf("║  Duration        : %-42.1fs ║\n", results.Duration.Seconds())
	fmt.Printf("║  Target RPS      : %-42d ║\n", results.TargetRPS)
	fmt.Printf("║  Achieved RPS    : %-42.1f ║\n", results.AchievedRPS)
	fmt.Printf("║  Total Requests  : %-42s ║\n", formatNumber(results.TotalRequests))
	fmt.Println("╠═══════════════════════════════════════════════════════════════╣")
	fmt.Println("║  LATENCY (ms)                                                 ║")
	fmt.Printf("║    P50           : %-42.1f ║\n", results.LatencyP50)
	fmt.Printf("║    P90           : %-42.1f ║\n", results.LatencyP90)
	fmt.Printf("║    P95           : %-42.1f ║\n", results.LatencyP95)
	fmt.Printf("║    P99           : %-42.1f ║\n", results.LatencyP99)
	fmt.Printf("║    Max           : %-42.1f ║\n", results.LatencyMax)
	fmt.Println("╠═══════════════════════════════════════════════════════════════╣")
	fmt.Println("║  OUTCOMES                                                     ║")
	fmt.Printf("║    Predicted     : %-7s (%5.1f%%)                            ║\n", formatNumber(results.SuccessCount), pct(results.SuccessCount))
	fmt.Printf("║      cached      : %-7s (%5.1f%%)                            ║\n", formatNumber(results.CachedCount), pct(results.CachedCount))
	fmt.Printf("║    Rejected      : %-7s (%5.1f%%)                            ║\n", formatNumber(results.RejectedCount), pct(results.RejectedCount))
	fmt.Printf("║    Rate Limited  : %-7s (%5.1f%%)                            ║\n", formatNumber(results.RateLimited), pct(results.RateLimited))
	fmt.Printf("║    Timeout       : %-7s (%5.1f%%)                            ║\n", formatNumber(results.TimeoutCount), pct(results.TimeoutCount))
	fmt.Printf("║    Server Error  : %-7s (%5.1f%%)                            ║\n", formatNumber(results.ErrorCount), pct(results.ErrorCount))
	fmt.Printf("║    Unexpected    : %-7s (%5.1f%%)                            ║\n", formatNumber(results.UnexpectedCount), pct(results.UnexpectedCount))
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	if len(results.Codes) > 0 {
		fmt.Println()
		fmt.Println("Response Codes:")
		fmt.Println("┌──────────────────────────────────────┬───────────┐")
		fmt.Println("│ Code                                 │ Count     │")
		fmt.Println("├──────────────────────────────────────┼───────────┤")
		for _, cc := range results.Codes {
			fmt.Printf("│ %-36s │ %9d │\n", cc.Code, cc.Count)
		}
		fmt.Println("└──────────────────────────────────────┴───────────┘")
	}

	if len(results.ProfileResults) > 1 {
		fmt.Println()
		fmt.Println("Per-Profile Breakdown:")
		fmt.Println("┌───────────────┬───────────┬──────────┬──────────┬──────────┐")
		fmt.Println("│ Profile       │ Requests  │ Expected │ P50 (ms) │ P99 (ms) │")
		fmt.Println("├───────────────┼───────────┼──────────┼──────────┼──────────┤")
		for _, pr := range results.ProfileResults {
			fmt.Printf("│ %-13s │ %9d │ %7.1f%% │ %8.1f │ %8.1f │\n",
				pr.Profile,
				pr.Requests,
				pr.ExpectedRate*100,
				pr.LatencyP50,
				pr.LatencyP99)
		}
		fmt.Println("└───────────────┴───────────┴──────────┴──────────┴──────────┘")
	}
}

func printJSONResults(results *Results) {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling results: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}

func formatNumber(n int64) string {
	if n >= 1000000 {
		return fmt.Sprintf("%.1fM", float64(n)/1000000)
	}
	if n >= 1000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%d", n)
}
