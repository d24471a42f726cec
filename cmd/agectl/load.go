package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fyrsmithlabs/agecompute/internal/propagation"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/baggage"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// loadOptions controls the traffic generator.
type loadOptions struct {
	rate       float64 // requests per second, 0 for unlimited
	count      int     // total requests, 0 to run until interrupted
	workers    int
	invalid    float64 // fraction of requests that should be rejected
	maxRecords int
	users      []string
	seed       int64
}

// loadStats counts request outcomes.
type loadStats struct {
	sent     atomic.Int64
	ok       atomic.Int64
	rejected atomic.Int64
	failed   atomic.Int64
}

func (s *loadStats) String() string {
	return fmt.Sprintf("sent=%d ok=%d rejected=%d failed=%d",
		s.sent.Load(), s.ok.Load(), s.rejected.Load(), s.failed.Load())
}

func newLoadCmd(f *flags) *cobra.Command {
	opts := loadOptions{}

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Generate sample traffic for dashboards",
		Long: `Send a stream of randomized compute requests so traces, metrics and
logs have something to show. A share of the requests is deliberately
invalid to exercise the rejection paths.

Examples:
  # Five requests per second until Ctrl+C
  agectl load --rate 5

  # A fixed burst of 200 requests, a quarter of them invalid
  agectl load --count 200 --rate 0 --invalid 0.25`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			tel, err := setupTracing(ctx, f.otlpEndpoint)
			if err != nil {
				return fmt.Errorf("failed to initialize tracing: %w", err)
			}
			defer func() { _ = tel.Shutdown(context.Background()) }()

			c := newClient(f.serverURL, tel.TracerProvider(), f.timeout)
			stats, err := runLoad(ctx, c, opts, cmd.ErrOrStderr())
			fmt.Fprintln(cmd.OutOrStdout(), stats)
			return err
		},
	}
	cmd.Flags().Float64Var(&opts.rate, "rate", 2, "requests per second (0 for unlimited)")
	cmd.Flags().IntVar(&opts.count, "count", 0, "number of requests (0 runs until interrupted)")
	cmd.Flags().IntVar(&opts.workers, "workers", 4, "concurrent requests")
	cmd.Flags().Float64Var(&opts.invalid, "invalid", 0.1, "fraction of invalid requests (0-1)")
	cmd.Flags().IntVar(&opts.maxRecords, "max-records", 10, "maximum records per request")
	cmd.Flags().StringSliceVar(&opts.users, "users", []string{"john", "jane", "alex"}, "user names to attach as baggage")
	cmd.Flags().Int64Var(&opts.seed, "seed", 0, "random seed (0 uses the clock)")

	return cmd
}

// runLoad sends requests until opts.count is reached or ctx is done.
// Cancellation is a normal way to stop and is not reported as an error.
func runLoad(ctx context.Context, c *client, opts loadOptions, progress io.Writer) (*loadStats, error) {
	if err := opts.validate(); err != nil {
		return &loadStats{}, err
	}

	limit := rate.Inf
	if opts.rate > 0 {
		limit = rate.Limit(opts.rate)
	}
	limiter := rate.NewLimiter(limit, 1)

	seed := opts.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	gen := newGenerator(rand.New(rand.NewSource(seed)), opts)

	stats := &loadStats{}
	g := new(errgroup.Group)
	g.SetLimit(opts.workers)

	for i := 0; opts.count == 0 || i < opts.count; i++ {
		if err := limiter.Wait(ctx); err != nil {
			break
		}
		records, bag := gen.next()
		stats.sent.Add(1)

		g.Go(func() error {
			_, _, err := c.Average(ctx, records, bag)
			var apiErr *apiError
			switch {
			case err == nil:
				stats.ok.Add(1)
			case errors.As(err, &apiErr) && apiErr.Status == http.StatusBadRequest:
				stats.rejected.Add(1)
			default:
				stats.failed.Add(1)
				if ctx.Err() == nil {
					fmt.Fprintf(progress, "[agectl] request failed: %v\n", err)
				}
			}
			return nil
		})
	}

	_ = g.Wait()
	return stats, nil
}

func (o loadOptions) validate() error {
	if o.rate < 0 {
		return fmt.Errorf("rate must be >= 0, got %v", o.rate)
	}
	if o.count < 0 {
		return fmt.Errorf("count must be >= 0, got %d", o.count)
	}
	if o.workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", o.workers)
	}
	if o.invalid < 0 || o.invalid > 1 {
		return fmt.Errorf("invalid must be between 0 and 1, got %v", o.invalid)
	}
	if o.maxRecords < 1 {
		return fmt.Errorf("max-records must be >= 1, got %d", o.maxRecords)
	}
	if len(o.users) == 0 {
		return errors.New("at least one user is required")
	}
	return nil
}

// generator produces randomized request bodies and caller baggage.
// It is used from a single goroutine.
type generator struct {
	rng  *rand.Rand
	opts loadOptions
}

func newGenerator(rng *rand.Rand, opts loadOptions) *generator {
	return &generator{rng: rng, opts: opts}
}

// invalidBodies each trigger one of the server's rejection paths.
var invalidBodies = []string{
	`[]`,
	`[{"name":"nobody"},{"height":180}]`,
	`[{"age":"thirty"}]`,
	`[{"age":null}]`,
}

func (g *generator) next() ([]json.RawMessage, baggage.Baggage) {
	idx := g.rng.Intn(len(g.opts.users))
	bag, err := propagation.ParsePairs([]string{
		"user.id=" + strconv.Itoa(12345+idx),
		"user.name=" + g.opts.users[idx],
	})
	if err != nil {
		bag = baggage.Baggage{}
	}

	if g.rng.Float64() < g.opts.invalid {
		var records []json.RawMessage
		_ = json.Unmarshal([]byte(randomChoice(g.rng, invalidBodies)), &records)
		return records, bag
	}

	n := 1 + g.rng.Intn(g.opts.maxRecords)
	records := make([]json.RawMessage, 0, n+1)
	for i := 0; i < n; i++ {
		records = append(records, json.RawMessage(fmt.Sprintf(`{"age":%d}`, 18+g.rng.Intn(60))))
	}
	// Records without an age are skipped by the server.
	if g.rng.Intn(4) == 0 {
		records = append(records, json.RawMessage(`{"name":"anonymous"}`))
	}
	return records, bag
}

func randomChoice(rng *rand.Rand, choices []string) string {
	return choices[rng.Intn(len(choices))]
}
