// Package enrich runs one lookup per identifier on a bounded worker pool,
// keeping results aligned with the input order and reporting progress as
// lookups complete.
package enrich

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/ashby-resumes/pkg/progress"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

var (
	lookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ashby_enrich_lookups_total",
		Help: "Total enrichment lookups by result",
	}, []string{"result"})

	lookupsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ashby_enrich_lookups_in_flight",
		Help: "Enrichment lookups currently running",
	})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ashby_enrich_run_duration_seconds",
		Help:    "Duration of a complete enrichment run",
		Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
	})
)

// Config holds engine configuration
type Config struct {
	// Workers caps concurrent lookups.
	Workers int

	// ProgressEvery emits a progress event each time this many more
	// lookups have completed. The final completion always emits one.
	ProgressEvery int
}

// DefaultConfig returns the default engine configuration
func DefaultConfig() Config {
	return Config{
		Workers:       10,
		ProgressEvery: 10,
	}
}

// Task pairs an identifier with its position in the input.
type Task struct {
	Index int
	ID    string
}

// LookupFunc resolves one identifier.
type LookupFunc[T any] func(ctx context.Context, id string) (T, error)

// Run looks up every id and returns results in input order. A failed or
// panicking lookup leaves the zero value at its index and never aborts the
// run. Progress events go to sink; Run emits no terminal event.
//
// Cancelling ctx is observed only by the lookups themselves; every task is
// still attempted.
func Run[T any](ctx context.Context, ids []string, lookup LookupFunc[T], sink progress.Sink, cfg Config) []T {
	if cfg.Workers <= 0 {
		cfg.Workers = 10
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = 10
	}
	if sink == nil {
		sink = progress.Discard
	}

	total := len(ids)
	results := make([]T, total)
	if total == 0 {
		return results
	}

	logger := log.With().
		Str("component", "enrich").
		Str("run_id", uuid.NewString()).
		Logger()
	start := time.Now()

	workers := cfg.Workers
	if workers > total {
		workers = total
	}

	tasks := make(chan Task, total)
	for i, id := range ids {
		tasks <- Task{Index: i, ID: id}
	}
	close(tasks)

	done := make(chan struct{}, total)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range tasks {
				v, err := safeLookup(ctx, lookup, task.ID)
				if err != nil {
					lookupsTotal.WithLabelValues("error").Inc()
					logger.Warn().
						Err(err).
						Int("index", task.Index).
						Str("id", task.ID).
						Msg("Lookup failed, leaving result empty")
				} else {
					lookupsTotal.WithLabelValues("ok").Inc()
					results[task.Index] = v
				}
				done <- struct{}{}
			}
		}()
	}

	logger.Debug().
		Int("total", total).
		Int("workers", workers).
		Msg("Starting enrichment")

	// Completions are counted here only, so each boundary is emitted once.
	for completed := 1; completed <= total; completed++ {
		<-done
		if completed%cfg.ProgressEvery == 0 || completed == total {
			if err := sink.Emit(progress.Progress(completed, total)); err != nil {
				logger.Warn().
					Err(err).
					Int("current", completed).
					Msg("Progress event not delivered")
			}
		}
	}
	wg.Wait()

	runDuration.Observe(time.Since(start).Seconds())
	logger.Info().
		Int("total", total).
		Dur("duration", time.Since(start)).
		Msg("Enrichment complete")

	return results
}

// safeLookup converts a panic in lookup into an error.
func safeLookup[T any](ctx context.Context, lookup LookupFunc[T], id string) (v T, err error) {
	lookupsInFlight.Inc()
	defer lookupsInFlight.Dec()

	defer func() {
		if r := recover(); r != nil {
			var zero T
			v = zero
			err = fmt.Errorf("lookup panicked: %v", r)
		}
	}()
	return lookup(ctx, id)
}
