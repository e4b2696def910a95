// Package metrics exposes the Prometheus metrics of the Ashby stack.
// Collectors are defined with promauto in the packages that update them
// (client, ratelimit, pagination, enrich, progress, pdfbatch); importing
// this package links all of them so a single Handler serves every series.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	_ "github.com/Sternrassler/ashby-resumes/pkg/client"
	_ "github.com/Sternrassler/ashby-resumes/pkg/enrich"
	_ "github.com/Sternrassler/ashby-resumes/pkg/pagination"
	_ "github.com/Sternrassler/ashby-resumes/pkg/pdfbatch"
	_ "github.com/Sternrassler/ashby-resumes/pkg/progress"
	_ "github.com/Sternrassler/ashby-resumes/pkg/ratelimit"
)

// Gatherer is the gatherer Handler reads from. promauto registers every
// collector on the default registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the metrics in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - ashby_requests_total{endpoint, status} (Counter): Requests by RPC and outcome
//   - ashby_request_duration_seconds{endpoint} (Histogram): Request duration by RPC
//   - ashby_errors_total{class} (Counter): Failures by class (client, server, rate_limit,
//     network, empty_body, decode, upstream)
//
// Retry Metrics (pkg/client):
//   - ashby_retries_total{error_class} (Counter): Retries by error class
//   - ashby_retry_backoff_seconds{error_class} (Histogram): Wait before each retry
//   - ashby_retry_exhausted_total{error_class} (Counter): Calls that ran out of attempts
//   - ashby_rate_limit_waits_total (Counter): Waits caused by 429 responses
//
// Cooldown Metrics (pkg/ratelimit):
//   - ashby_rate_limit_cooldown_seconds (Gauge): Length of the most recently recorded cooldown window
//   - ashby_rate_limit_blocks_total (Counter): Cooldowns recorded
//
// Listing Metrics (pkg/pagination, pkg/enrich, pkg/progress):
//   - ashby_pages_fetched_total{endpoint} (Counter): Pages fetched
//   - ashby_enrich_lookups_total{result} (Counter): Per-record lookups by result (ok, error)
//   - ashby_enrich_lookups_in_flight (Gauge): Lookups currently running
//   - ashby_enrich_run_duration_seconds (Histogram): Duration of an enrichment run
//   - ashby_progress_events_total{type} (Counter): Progress events by type
//
// Assembly Metrics (pkg/pdfbatch):
//   - ashby_pdf_batches_total (Counter): Merged batches produced
//   - ashby_pdf_documents_skipped_total (Counter): Unparsable PDFs skipped
//   - ashby_pdf_assemble_duration_seconds (Histogram): Duration of an assembly
//
// Example Prometheus Queries:
//
//   # Upstream failure rate by class
//   sum by (class) (rate(ashby_errors_total[5m]))
//
//   # Share of candidate lookups failing
//   rate(ashby_enrich_lookups_total{result="error"}[5m]) / rate(ashby_enrich_lookups_total[5m])
//
//   # P95 RPC latency
//   histogram_quantile(0.95, rate(ashby_request_duration_seconds_bucket[5m]))
//
//   # Rate limited in the last five minutes
//   increase(ashby_rate_limit_blocks_total[5m]) > 0
