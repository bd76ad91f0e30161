package generation

import (
	"context"
	"log"
	"time"

	"github.com/satoshipuzzles/lumaledger/internal/domain"
	"github.com/satoshipuzzles/lumaledger/internal/infra/observability"
)

// ─── Generation Status Poller ───────────────────────────────────────────────
// One poller instance drives exactly one job:
//
//	Queued → Processing → {Completed | Failed}
//
// There is no overall deadline: a job runs until it reaches a terminal
// state or the caller abandons polling by canceling the context. Status
// check failures are no new information for that tick.
//
// Completed is never surfaced on the backend's word alone: the asset URL
// must pass a reachability probe first, guarding against a backend that
// reports completion before its asset storage is consistent. An
// inconclusive probe leaves the job Processing until a later tick's probe
// succeeds.

// PollerConfig controls poll and probe timing.
type PollerConfig struct {
	Interval      time.Duration // delay between status checks
	ProbeAttempts int           // reachability attempts per status cycle
	ProbeDelay    time.Duration // fixed delay between probe attempts
}

// DefaultPollerConfig returns the reference timing: 2s interval,
// 3 probe attempts 500ms apart.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval:      2 * time.Second,
		ProbeAttempts: 3,
		ProbeDelay:    500 * time.Millisecond,
	}
}

// Poller tracks one submitted job through its lifecycle.
type Poller struct {
	backend domain.GenerationBackend
	prober  domain.AssetProber
	jobs    domain.JobStore // optional; state transitions are persisted
	clock   domain.Clock
	cfg     PollerConfig
}

// NewPoller creates a generation status poller.
func NewPoller(backend domain.GenerationBackend, prober domain.AssetProber, jobs domain.JobStore, clock domain.Clock, cfg PollerConfig) *Poller {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &Poller{backend: backend, prober: prober, jobs: jobs, clock: clock, cfg: cfg}
}

// Watch polls the job until it reaches a terminal state, returning the
// final job. Cancellation abandons polling and returns the last observed
// state with the context's error.
func (p *Poller) Watch(ctx context.Context, job domain.GenerationJob) (domain.GenerationJob, error) {
	for {
		if ctx.Err() != nil {
			return job, ctx.Err()
		}

		job = p.tick(ctx, job)
		if job.State.Terminal() {
			observability.JobsFinished.WithLabelValues(string(job.State)).Inc()
			return job, nil
		}

		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-p.clock.After(p.cfg.Interval):
		}
	}
}

// tick performs one status-check cycle and returns the job as observed for
// this tick. A backend completion with an unreachable asset is reported as
// Processing — never Completed.
func (p *Poller) tick(ctx context.Context, job domain.GenerationJob) domain.GenerationJob {
	status, err := p.backend.Status(ctx, job.ID)
	if err != nil {
		// No new information this tick; poll again on the next interval.
		log.Printf("generation: status check failed job=%s: %v", job.ID, err)
		observability.GenerationPolls.WithLabelValues("error").Inc()
		return job
	}
	observability.GenerationPolls.WithLabelValues(string(status.State)).Inc()

	switch status.State {
	case domain.JobCompleted:
		if status.AssetURL == "" || !p.assetReachable(ctx, status.AssetURL) {
			// Inconclusive cycle: the backend says done but the asset is
			// not fetchable yet. Keep reporting Processing.
			job.State = domain.JobProcessing
			p.persist(job)
			return job
		}
		job.State = domain.JobCompleted
		job.AssetURL = status.AssetURL
	case domain.JobFailed:
		job.State = domain.JobFailed
	default:
		job.State = status.State
	}

	job.UpdatedAt = p.clock.Now()
	p.persist(job)
	return job
}

// assetReachable probes the asset URL a bounded number of times within the
// same status cycle.
func (p *Poller) assetReachable(ctx context.Context, url string) bool {
	for attempt := 1; attempt <= p.cfg.ProbeAttempts; attempt++ {
		if err := p.prober.Probe(ctx, url); err == nil {
			return true
		} else {
			observability.AssetProbeFailures.Inc()
			log.Printf("generation: asset probe failed attempt=%d/%d url=%s: %v",
				attempt, p.cfg.ProbeAttempts, url, err)
		}
		if attempt < p.cfg.ProbeAttempts {
			select {
			case <-ctx.Done():
				return false
			case <-p.clock.After(p.cfg.ProbeDelay):
			}
		}
	}
	return false
}

// persist saves the job record; failures are logged, not fatal to polling.
func (p *Poller) persist(job domain.GenerationJob) {
	if p.jobs == nil {
		return
	}
	if err := p.jobs.PutJob(job); err != nil {
		log.Printf("generation: persist job %s: %v", job.ID, err)
	}
}
