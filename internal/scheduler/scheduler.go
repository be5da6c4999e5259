// Package scheduler drives many feed polls concurrently under a bounded
// in-flight limit. Individual poll failures are absorbed into the run's
// stats and log output; only context cancellation stops the run early.
package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"feedspool/internal/metrics"
	"feedspool/internal/poll"
)

// Poller is the per-URL unit of work the scheduler fans out.
type Poller interface {
	Poll(ctx context.Context, params poll.Params) poll.Outcome
}

// URLSource lazily yields URLs; it returns ok=false when exhausted.
type URLSource func() (url string, ok bool)

// SliceSource adapts an in-memory URL list to a URLSource.
func SliceSource(urls []string) URLSource {
	i := 0
	return func() (string, bool) {
		if i >= len(urls) {
			return "", false
		}
		u := urls[i]
		i++
		return u, true
	}
}

// Stats accumulates outcome counts across one scheduler run.
type Stats struct {
	Polled      int64
	Skipped     int64
	NotModified int64
	Updated     int64
	Errored     int64
}

// Scheduler runs polls with at most Limit in flight at once.
type Scheduler struct {
	poller Poller
	limit  int
}

// New builds a Scheduler. limit values <= 0 fall back to 1.
func New(p Poller, limit int) *Scheduler {
	if limit <= 0 {
		limit = 1
	}
	return &Scheduler{poller: p, limit: limit}
}

// Run polls every URL from src, each at most once, with at most limit polls
// in flight. Each outcome is logged by category; no individual poll error
// propagates. Run returns when every poll has terminated, or early on
// context cancellation.
func (s *Scheduler) Run(ctx context.Context, src URLSource, params poll.Params) *Stats {
	stats := &Stats{}
	sem := make(chan struct{}, s.limit)
	eg, egCtx := errgroup.WithContext(ctx)

	for {
		url, ok := src()
		if !ok {
			break
		}

		eg.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-egCtx.Done():
				return nil
			}
			defer func() { <-sem }()

			metrics.PollStarted()
			start := time.Now()
			p := params
			p.URL = url
			outcome := s.poller.Poll(egCtx, p)
			metrics.PollFinished()
			metrics.RecordPollOutcome(outcomeLabel(outcome), time.Since(start))

			atomic.AddInt64(&stats.Polled, 1)
			s.record(stats, outcome)
			return nil
		})
	}

	_ = eg.Wait()

	slog.Info("scheduler run complete",
		"polled", stats.Polled,
		"skipped", stats.Skipped,
		"not_modified", stats.NotModified,
		"updated", stats.Updated,
		"errored", stats.Errored)
	return stats
}

func (s *Scheduler) record(stats *Stats, outcome poll.Outcome) {
	switch outcome.Kind {
	case poll.Skipped:
		atomic.AddInt64(&stats.Skipped, 1)
		slog.Debug("Skipped", "url", outcome.URL)
	case poll.NotModified:
		atomic.AddInt64(&stats.NotModified, 1)
		slog.Info("Not modified", "url", outcome.URL)
	case poll.Updated:
		atomic.AddInt64(&stats.Updated, 1)
		slog.Info("Updated", "url", outcome.URL)
	case poll.Errored:
		atomic.AddInt64(&stats.Errored, 1)
		logError(outcome)
	}
}

func logError(outcome poll.Outcome) {
	switch outcome.Err.(type) {
	case *poll.NotFoundError:
		slog.Warn("Not found", "url", outcome.URL)
	case *poll.TimeoutError:
		slog.Warn("Timed out", "url", outcome.URL, "error", outcome.Err)
	case *poll.FetchFailedError:
		slog.Warn("Fetch failed", "url", outcome.URL, "error", outcome.Err)
	case *poll.ParseError:
		slog.Warn("Parse failed", "url", outcome.URL, "error", outcome.Err)
	case *poll.DurationError:
		slog.Error("Bad fetch period", "url", outcome.URL, "error", outcome.Err)
	case *poll.UpdateError:
		slog.Error("Update failed", "url", outcome.URL, "error", outcome.Err)
	default:
		slog.Warn("Poll failed", "url", outcome.URL, "error", outcome.Err)
	}
}

// outcomeLabel is the metrics label for a terminal outcome: the error
// taxonomy name for errors, the Kind name otherwise.
func outcomeLabel(outcome poll.Outcome) string {
	if outcome.Kind != poll.Errored {
		return outcome.Kind.String()
	}
	switch outcome.Err.(type) {
	case *poll.DurationError:
		return "DurationError"
	case *poll.TimeoutError:
		return "Timeout"
	case *poll.NotFoundError:
		return "NotFound"
	case *poll.TransportError:
		return "TransportError"
	case *poll.FetchFailedError:
		return "FetchFailed"
	case *poll.ParseError:
		return "ParseError"
	case *poll.UpdateError:
		return "UpdateError"
	default:
		return "Errored"
	}
}
