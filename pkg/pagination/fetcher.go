package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/ashby-resumes/pkg/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// CursorParam is the request field carrying the page cursor.
const CursorParam = "cursor"

// ErrCursorCycle is returned when the API repeats a cursor it already returned.
var ErrCursorCycle = errors.New("pagination cursor repeated")

var pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ashby_pages_fetched_total",
	Help: "Total pages fetched from paginated Ashby endpoints",
}, []string{"endpoint"})

// Caller is the RPC surface the fetcher needs. *client.Client implements it.
type Caller interface {
	Call(ctx context.Context, endpoint string, payload any) (*client.Envelope, error)
}

// Config holds fetcher configuration
type Config struct {
	// PageDelay is the pause between consecutive page requests.
	PageDelay time.Duration
}

// DefaultConfig returns the default fetcher configuration
func DefaultConfig() Config {
	return Config{
		PageDelay: 200 * time.Millisecond,
	}
}

// Fetcher collects every page of a cursor paginated endpoint.
type Fetcher struct {
	caller Caller
	config Config
	logger zerolog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewFetcher creates a new fetcher. A negative PageDelay is treated as zero.
func NewFetcher(caller Caller, config Config) *Fetcher {
	if config.PageDelay < 0 {
		config.PageDelay = 0
	}

	return &Fetcher{
		caller: caller,
		config: config,
		logger: log.With().Str("component", "pagination").Logger(),
		sleep:  sleepContext,
	}
}

// FetchAll calls endpoint with params until the API reports no more data and
// returns the concatenated results in server order. Any failed page fails the
// whole walk.
func (f *Fetcher) FetchAll(ctx context.Context, endpoint string, params map[string]any) ([]json.RawMessage, error) {
	start := time.Now()

	var (
		records []json.RawMessage
		cursor  string
		pages   int
	)
	seen := make(map[string]struct{})

	for {
		env, err := f.caller.Call(ctx, endpoint, pageParams(params, cursor))
		if err != nil {
			return nil, err
		}
		pages++
		pagesFetchedTotal.WithLabelValues(endpoint).Inc()

		var page []json.RawMessage
		if err := env.DecodeResults(&page); err != nil {
			return nil, fmt.Errorf("%s page %d: results is not a list: %w", endpoint, pages, err)
		}
		records = append(records, page...)

		if !env.MoreDataAvailable || env.NextCursor == "" {
			break
		}
		if _, dup := seen[env.NextCursor]; dup {
			f.logger.Error().
				Str("endpoint", endpoint).
				Int("pages", pages).
				Msg("Upstream repeated a cursor, aborting walk")
			return nil, fmt.Errorf("%w on %s after %d pages", ErrCursorCycle, endpoint, pages)
		}
		seen[env.NextCursor] = struct{}{}
		cursor = env.NextCursor

		f.logger.Debug().
			Str("endpoint", endpoint).
			Int("page", pages).
			Int("records", len(records)).
			Msg("More data available, fetching next page")

		if err := f.sleep(ctx, f.config.PageDelay); err != nil {
			return nil, fmt.Errorf("%s: %w", endpoint, err)
		}
	}

	f.logger.Debug().
		Str("endpoint", endpoint).
		Int("pages", pages).
		Int("records", len(records)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return records, nil
}

// FetchAllInto walks endpoint like FetchAll and decodes every record as T.
func FetchAllInto[T any](ctx context.Context, f *Fetcher, endpoint string, params map[string]any) ([]T, error) {
	raw, err := f.FetchAll(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(raw))
	for i, record := range raw {
		var v T
		if err := json.Unmarshal(record, &v); err != nil {
			return nil, fmt.Errorf("%s record %d: %w", endpoint, i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// pageParams copies params and injects cursor when set.
func pageParams(params map[string]any, cursor string) map[string]any {
	out := make(map[string]any, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	delete(out, CursorParam)
	if cursor != "" {
		out[CursorParam] = cursor
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
