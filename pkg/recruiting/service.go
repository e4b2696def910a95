// Package recruiting implements the caller-facing Ashby operations: job and
// stage listings, the streamed candidate listing and resume retrieval.
package recruiting

import (
	"context"
	"fmt"

	"github.com/Sternrassler/ashby-resumes/pkg/client"
	"github.com/Sternrassler/ashby-resumes/pkg/enrich"
	"github.com/Sternrassler/ashby-resumes/pkg/pagination"
	"github.com/Sternrassler/ashby-resumes/pkg/progress"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// CandidatesKey names the candidate list in the complete event.
const CandidatesKey = "candidates"

// Caller is the upstream surface the service needs. *client.Client
// implements it.
type Caller interface {
	Call(ctx context.Context, endpoint string, payload any) (*client.Envelope, error)
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// Config holds service configuration
type Config struct {
	Pagination pagination.Config
	Enrich     enrich.Config
}

// DefaultConfig returns the default service configuration
func DefaultConfig() Config {
	return Config{
		Pagination: pagination.DefaultConfig(),
		Enrich:     enrich.DefaultConfig(),
	}
}

// Service runs recruiting operations against Ashby.
type Service struct {
	caller Caller
	pages  *pagination.Fetcher
	enrich enrich.Config
	logger zerolog.Logger
}

// NewService creates a service backed by caller.
func NewService(caller Caller, cfg Config) *Service {
	return &Service{
		caller: caller,
		pages:  pagination.NewFetcher(caller, cfg.Pagination),
		enrich: cfg.Enrich,
		logger: log.With().Str("component", "recruiting").Logger(),
	}
}

// ListJobs returns every job posting.
func (s *Service) ListJobs(ctx context.Context) ([]Job, error) {
	records, err := pagination.FetchAllInto[apiJob](ctx, s.pages, "job.list", nil)
	if err != nil {
		return nil, &OpError{Op: "list jobs", Message: client.Message(err), Err: err}
	}

	jobs := make([]Job, len(records))
	for i, r := range records {
		jobs[i] = r.simplify()
	}
	return jobs, nil
}

// ListStages returns the stages of the job's default interview plan, or an
// empty list when the job has none.
func (s *Service) ListStages(ctx context.Context, jobID string) ([]Stage, error) {
	if jobID == "" {
		return nil, ErrMissingJobID
	}

	env, err := s.caller.Call(ctx, "job.info", map[string]any{"id": jobID})
	if err != nil {
		return nil, &OpError{Op: "list stages", Message: "Failed to get job info", Err: err}
	}
	var job apiJobInfo
	if err := env.DecodeResults(&job); err != nil {
		return nil, &OpError{Op: "list stages", Message: "Failed to get job info", Err: err}
	}

	stages := []Stage{}
	if job.DefaultInterviewPlanID == "" {
		return stages, nil
	}

	env, err = s.caller.Call(ctx, "interviewStage.list", map[string]any{"interviewPlanId": job.DefaultInterviewPlanID})
	if err != nil {
		return nil, &OpError{Op: "list stages", Message: client.Message(err), Err: err}
	}
	var records []apiStage
	if err := env.DecodeResults(&records); err != nil {
		return nil, &OpError{Op: "list stages", Message: "Invalid stage list", Err: err}
	}

	for _, r := range records {
		stages = append(stages, Stage(r))
	}
	return stages, nil
}

// ListCandidates lists the applicants of jobID, optionally restricted to
// stageID, and resolves each one's resume handle. Lifecycle events go to
// sink: status messages, lookup progress, then exactly one complete or
// error event.
func (s *Service) ListCandidates(ctx context.Context, jobID, stageID string, sink progress.Sink) ([]Candidate, error) {
	if jobID == "" {
		return nil, ErrMissingJobID
	}

	stream := progress.NewStream(sink)
	emit := func(err error) {
		if err != nil {
			s.logger.Warn().Err(err).Str("job_id", jobID).Msg("Progress event not delivered")
		}
	}

	emit(stream.Status("Fetching applications..."))

	apps, err := pagination.FetchAllInto[apiApplication](ctx, s.pages, "application.list", map[string]any{"jobId": jobID})
	if err != nil {
		opErr := &OpError{Op: "list candidates", Message: "Failed to get applications", Err: err}
		emit(stream.Fail(opErr.Message))
		return nil, opErr
	}

	emit(stream.Status(fmt.Sprintf("Found %d applications. Filtering by stage...", len(apps))))

	if stageID != "" {
		filtered := apps[:0]
		for _, a := range apps {
			if a.stageID() == stageID {
				filtered = append(filtered, a)
			}
		}
		apps = filtered
	}

	emit(stream.Status(fmt.Sprintf("Found %d candidates in selected stage. Fetching resume info...", len(apps))))

	candidates := make([]Candidate, len(apps))
	ids := make([]string, len(apps))
	for i, a := range apps {
		candidates[i] = a.candidate()
		ids[i] = candidates[i].ID
	}

	if len(ids) > 0 {
		handles := enrich.Run(ctx, ids, s.resumeHandle, stream, s.enrich)
		for i, h := range handles {
			candidates[i].ResumeFileHandle = h
		}
	}

	s.logger.Info().
		Str("job_id", jobID).
		Str("stage_id", stageID).
		Int("candidates", len(candidates)).
		Msg("Candidate listing complete")

	emit(stream.Complete(CandidatesKey, candidates))
	return candidates, nil
}

// resumeHandle looks up the resume file handle of one candidate.
func (s *Service) resumeHandle(ctx context.Context, candidateID string) (*string, error) {
	if candidateID == "" {
		return nil, nil
	}

	env, err := s.caller.Call(ctx, "candidate.info", map[string]any{"id": candidateID})
	if err != nil {
		return nil, err
	}

	var info apiCandidateInfo
	if err := env.DecodeResults(&info); err != nil {
		return nil, err
	}
	if info.ResumeFileHandle == nil || info.ResumeFileHandle.Handle == "" {
		return nil, nil
	}
	handle := info.ResumeFileHandle.Handle
	return &handle, nil
}
