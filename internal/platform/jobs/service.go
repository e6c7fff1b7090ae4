package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/Abdihaliim1/tmsv3-sub004/internal/platform/metrics"
	"github.com/Abdihaliim1/tmsv3-sub004/internal/platform/querier"
)

const queueSize = 128

// Service runs background work on a single worker and records each run in
// job_runs when a database is attached.
type Service struct {
	DB      querier.Querier
	metrics *metrics.Collector
	queue   chan job
}

type job struct {
	Type      string
	SubjectID string
	Run       func(context.Context) (any, error)
}

func New(db querier.Querier, collector *metrics.Collector) *Service {
	return &Service{
		DB:      db,
		metrics: collector,
		queue:   make(chan job, queueSize),
	}
}

func (s *Service) Start(ctx context.Context) {
	go s.worker(ctx)
}

// Every enqueues run on each tick until ctx is done.
func (s *Service) Every(ctx context.Context, interval time.Duration, jobType string, run func(context.Context) (any, error)) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Enqueue(jobType, "", run)
			}
		}
	}()
}

func (s *Service) Enqueue(jobType, subjectID string, run func(context.Context) (any, error)) {
	select {
	case s.queue <- job{Type: jobType, SubjectID: subjectID, Run: run}:
	default:
		s.metrics.JobRun(jobType, "dropped")
		slog.Warn("job queue full", "jobType", jobType, "subjectId", subjectID)
	}
}

func (s *Service) RunNow(ctx context.Context, jobType, subjectID string, run func(context.Context) (any, error)) (any, error) {
	return s.runJob(ctx, job{Type: jobType, SubjectID: subjectID, Run: run})
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				slog.Warn("job run failed", "jobType", j.Type, "subjectId", j.SubjectID, "err", err)
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	runID := ""
	if s.DB != nil {
		if err := s.DB.QueryRow(ctx, `
      INSERT INTO job_runs (job_type, subject_id, status)
      VALUES ($1,$2,$3)
      RETURNING id::text
    `, j.Type, j.SubjectID, "running").Scan(&runID); err != nil {
			slog.Warn("job run insert failed", "err", err)
		}
	}

	details, err := j.Run(ctx)
	status := "completed"
	if err != nil {
		status = "failed"
	}
	s.metrics.JobRun(j.Type, status)

	if runID == "" {
		return details, err
	}
	detailsJSON, marshalErr := json.Marshal(details)
	if marshalErr != nil {
		slog.Warn("job details marshal failed", "err", marshalErr)
		detailsJSON = []byte("{}")
	}
	if _, updErr := s.DB.Exec(ctx, `
    UPDATE job_runs
    SET status = $1, details_json = $2, completed_at = now()
    WHERE id::text = $3
  `, status, detailsJSON, runID); updErr != nil {
		slog.Warn("job run update failed", "err", updErr)
	}
	return details, err
}
