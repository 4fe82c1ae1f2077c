package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/prospect/internal/pdl"
)

// PageFetcher fetches one page of companies. The service wires this to the
// upstream client through the query cache, so the runner never knows whether
// a page came from cache or from the network.
type PageFetcher func(ctx context.Context, page int) (*pdl.Page, error)

// Runner drives one export run: a strictly sequential, ascending page loop
// with a durable checkpoint after every page.
type Runner struct {
	state    *Store
	fetch    PageFetcher
	pageSize int
	delay    time.Duration
	log      *slog.Logger
}

// NewRunner creates a Runner. delay is an optional pause between page
// fetches (upstream politeness); zero disables it.
func NewRunner(state *Store, fetch PageFetcher, pageSize int, delay time.Duration, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{state: state, fetch: fetch, pageSize: pageSize, delay: delay, log: log}
}

// Run executes the page loop for runID starting at startPage and returns the
// artifact. A short or empty page ends the run as completed. A fetch error
// marks the run failed and returns the partial artifact alongside the error:
// every page checkpointed before the failure is in it, and a resumed run
// picks up at last_successful_page+1 with no page skipped or re-exported.
//
// Cancellation is fail-stop at page boundaries: the context is only
// consulted between pages, never mid-page.
func (r *Runner) Run(ctx context.Context, runID string, startPage int) (*Artifact, error) {
	artifact := &Artifact{
		StartPage: startPage,
		EndPage:   startPage - 1,
		CreatedAt: time.Now().UTC(),
	}

	for page := startPage; ; page++ {
		if err := ctx.Err(); err != nil {
			r.fail(runID, page, err)
			return artifact, fmt.Errorf("export: run %s cancelled at page %d: %w", runID, page, err)
		}

		result, err := r.fetch(ctx, page)
		if err != nil {
			r.fail(runID, page, err)
			return artifact, fmt.Errorf("export: run %s failed at page %d: %w", runID, page, err)
		}

		artifact.Companies = append(artifact.Companies, result.Companies...)
		if len(result.Companies) > 0 {
			artifact.EndPage = page
			// Checkpoints are the durability mechanism; they must land
			// even when the caller cancelled mid-page.
			if err := r.state.RecordPageSuccess(context.WithoutCancel(ctx), runID, page, len(artifact.Companies)); err != nil {
				return artifact, err
			}
			r.log.Debug("export: page done",
				"run_id", runID, "page", page, "companies", len(artifact.Companies))
		}

		if len(result.Companies) < r.pageSize {
			break
		}

		if r.delay > 0 {
			select {
			case <-ctx.Done():
				// Next loop iteration records the cancellation.
			case <-time.After(r.delay):
			}
		}
	}

	if err := r.state.Complete(context.WithoutCancel(ctx), runID, len(artifact.Companies)); err != nil {
		return artifact, err
	}
	r.log.Info("export: run completed",
		"run_id", runID, "pages", artifact.EndPage-artifact.StartPage+1,
		"companies", len(artifact.Companies))
	return artifact, nil
}

// fail records the failure with a background context so the checkpoint is
// written even when the run's own context is already cancelled.
func (r *Runner) fail(runID string, page int, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.state.RecordFailure(ctx, runID, page, cause.Error()); err != nil {
		r.log.Error("export: failed to record failure",
			"run_id", runID, "page", page, "error", err)
	}
	r.log.Warn("export: run failed", "run_id", runID, "page", page, "cause", cause)
}
