package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/vinayprograms/callguard/config"
	cgerrors "github.com/vinayprograms/callguard/errors"
	"github.com/vinayprograms/callguard/guard"
	"github.com/vinayprograms/callguard/logging"
	"github.com/vinayprograms/callguard/metrics"
	"github.com/vinayprograms/callguard/telemetry"
)

// simulateOptions are the knobs of one simulation run.
type simulateOptions struct {
	Guard       string
	Calls       int
	Workers     int
	Rate        float64 // offered calls per second; 0 means as fast as possible
	Keys        int
	FailRate    float64
	Latency     time.Duration
	MetricsAddr string
	Trace       bool
}

var simOpts simulateOptions

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Drive a guard with synthetic load and report the outcome",
	Long: `Offer a stream of synthetic calls to one configured guard and report
how many succeeded, failed or were cancelled, and how long they took.

Calls are offered at --rate per second by --workers goroutines, spread over
--keys keys. Each attempt fails with a retryable error with probability
--fail-rate. Interrupt with Ctrl-C to cancel in-flight waits.

Example:
  callguard simulate --guard github --calls 200 --rate 50 --fail-rate 0.2`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runSimulate(ctx, cmd.OutOrStdout(), cfg, logger, simOpts)
	},
}

func init() {
	f := simulateCmd.Flags()
	f.StringVar(&simOpts.Guard, "guard", "", "guard to drive (required)")
	f.IntVar(&simOpts.Calls, "calls", 100, "number of calls to offer")
	f.IntVar(&simOpts.Workers, "workers", 8, "concurrent callers")
	f.Float64Var(&simOpts.Rate, "rate", 0, "offered calls per second (0 = unpaced)")
	f.IntVar(&simOpts.Keys, "keys", 1, "number of distinct keys")
	f.Float64Var(&simOpts.FailRate, "fail-rate", 0, "probability that an attempt fails with a retryable error")
	f.DurationVar(&simOpts.Latency, "latency", 0, "simulated latency per attempt")
	f.StringVar(&simOpts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	f.BoolVar(&simOpts.Trace, "trace", false, "write OpenTelemetry spans to stderr")
	simulateCmd.MarkFlagRequired("guard")
	rootCmd.AddCommand(simulateCmd)
}

// simulateReport summarizes one run.
type simulateReport struct {
	OK       int64
	Failed   int64
	Canceled int64
	Attempts int64
	Elapsed  time.Duration
}

func runSimulate(ctx context.Context, out io.Writer, cfg *config.Config, logger *logging.Logger, opts simulateOptions) error {
	if opts.Calls < 1 || opts.Workers < 1 || opts.Keys < 1 {
		return fmt.Errorf("calls, workers and keys must be positive")
	}
	if opts.FailRate < 0 || opts.FailRate > 1 {
		return fmt.Errorf("fail-rate must be between 0 and 1")
	}
	if opts.Rate < 0 {
		return fmt.Errorf("rate must not be negative")
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	ro := guard.RegistryOptions{Logger: logger, Metrics: m}
	if opts.Trace {
		tp, err := telemetry.InitProvider(ctx, telemetry.ProviderConfig{Output: os.Stderr})
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			tp.Shutdown(shutdownCtx)
		}()
		ro.Tracer = tp.Tracer()
	}

	guards, err := guard.NewRegistry(cfg, ro)
	if err != nil {
		return err
	}
	g, ok := guards.Get(opts.Guard)
	if !ok {
		return fmt.Errorf("unknown guard %q", opts.Guard)
	}

	if opts.MetricsAddr != "" {
		srv := &http.Server{Addr: opts.MetricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		go srv.ListenAndServe()
		defer srv.Close()
	}

	report := simulate(ctx, g, opts)
	printReport(out, opts, report)
	return nil
}

func simulate(ctx context.Context, g *guard.Guard, opts simulateOptions) simulateReport {
	limit := rate.Inf
	if opts.Rate > 0 {
		limit = rate.Limit(opts.Rate)
	}
	pacer := rate.NewLimiter(limit, 1)

	var r simulateReport
	jobs := make(chan int)
	var wg sync.WaitGroup
	start := time.Now()

	for w := 0; w < opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				key := fmt.Sprintf("key-%d", i%opts.Keys)
				err := g.Do(ctx, key, func(ctx context.Context) error {
					atomic.AddInt64(&r.Attempts, 1)
					if opts.Latency > 0 {
						select {
						case <-ctx.Done():
							return ctx.Err()
						case <-time.After(opts.Latency):
						}
					}
					if rand.Float64() < opts.FailRate {
						return cgerrors.Unavailable("simulated upstream failure", cgerrors.WithService(key))
					}
					return nil
				})
				switch {
				case err == nil:
					atomic.AddInt64(&r.OK, 1)
				case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
					atomic.AddInt64(&r.Canceled, 1)
				default:
					atomic.AddInt64(&r.Failed, 1)
				}
			}
		}()
	}

offer:
	for i := 0; i < opts.Calls; i++ {
		if err := pacer.Wait(ctx); err != nil {
			break
		}
		select {
		case jobs <- i:
		case <-ctx.Done():
			break offer
		}
	}
	close(jobs)
	wg.Wait()

	r.Elapsed = time.Since(start)
	return r
}

func printReport(out io.Writer, opts simulateOptions, r simulateReport) {
	fmt.Fprintf(out, "guard:     %s\n", opts.Guard)
	fmt.Fprintf(out, "calls:     %d ok, %d failed, %d canceled\n", r.OK, r.Failed, r.Canceled)
	fmt.Fprintf(out, "attempts:  %d\n", r.Attempts)
	fmt.Fprintf(out, "elapsed:   %s\n", r.Elapsed.Round(time.Millisecond))
	if secs := r.Elapsed.Seconds(); secs > 0 {
		fmt.Fprintf(out, "throughput: %.1f calls/s\n", float64(r.OK)/secs)
	}
}
