// Package poll runs the per-feed poll state machine: recency gate,
// conditional fetch, parse, upsert, history row. A single pass produces one
// terminal Outcome; retrying is the scheduler's next run.
package poll

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"feedspool/internal/fetcher"
	"feedspool/internal/identity"
	"feedspool/internal/parser"
	"feedspool/internal/store"
)

// Kind classifies a poll's terminal outcome.
type Kind int

const (
	// Skipped means the recency gate refused to re-fetch; no history row.
	Skipped Kind = iota
	// NotModified means the server replied 304; one success history row.
	NotModified
	// Updated means the feed was fetched, parsed, and upserted; one
	// success history row.
	Updated
	// Errored means the poll terminated with one of the taxonomy errors
	// carried in Outcome.Err.
	Errored
)

func (k Kind) String() string {
	switch k {
	case Skipped:
		return "Skipped"
	case NotModified:
		return "NotModified"
	case Updated:
		return "Updated"
	case Errored:
		return "Errored"
	default:
		return "Unknown"
	}
}

// Outcome is the terminal classification of one poll. Fetch is set on every
// arm that reached the network; Feed is set on Updated, and on an Errored
// outcome whose success-history write failed after the upserts; Err only on
// Errored.
type Outcome struct {
	URL   string
	Kind  Kind
	Fetch *fetcher.Outcome
	Feed  *parser.Feed
	Err   error
}

// Params are the per-poll inputs.
type Params struct {
	URL string
	// RequestTimeout bounds the HTTP request.
	RequestTimeout time.Duration
	// MinFetchPeriodSeconds is the recency-gate window in seconds.
	MinFetchPeriodSeconds int
	// RetainSrc stores the raw response body in the history row.
	RetainSrc bool
	// SkipEntryUpdate leaves existing entry rows untouched on re-poll;
	// their existence is still guaranteed.
	SkipEntryUpdate bool
	// MarkDefunct flags entries absent from the latest parse.
	MarkDefunct bool
}

// Store is the slice of the store the poll state machine needs.
type Store interface {
	FindLastFetchTime(ctx context.Context, url string) (string, error)
	FindLastConditionalGet(ctx context.Context, url string) (*store.Conditions, error)
	UpsertFeed(ctx context.Context, up store.FeedUpsert) error
	UpsertEntry(ctx context.Context, up store.EntryUpsert) error
	MarkOldEntriesDefunct(ctx context.Context, feedID string, seenIDs []string) error
	InsertFeedHistorySuccess(ctx context.Context, rec store.HistoryRecord, retainSrc bool) error
	InsertFeedHistoryError(ctx context.Context, url, status, errorText string) error
}

// Fetcher is the slice of the HTTP client the state machine needs.
type Fetcher interface {
	Fetch(ctx context.Context, url string, timeout time.Duration, cond *fetcher.Conditions) *fetcher.Outcome
}

// Poller drives one poll at a time against a shared store and fetcher.
type Poller struct {
	store   Store
	fetcher Fetcher
	parser  *parser.Parser
	now     func() time.Time
}

// New builds a Poller. The clock is time.Now; tests swap it via WithClock.
func New(st Store, f Fetcher, p *parser.Parser) *Poller {
	return &Poller{store: st, fetcher: f, parser: p, now: time.Now}
}

// WithClock replaces the poller's clock.
func (p *Poller) WithClock(now func() time.Time) *Poller {
	p.now = now
	return p
}

// Poll runs the state machine for one URL to a terminal Outcome. It never
// returns an error; errors are an Outcome arm.
func (p *Poller) Poll(ctx context.Context, params Params) Outcome {
	now := p.now().UTC()

	// CheckRecency. A bad window config aborts before any I/O, with no
	// history row.
	minPeriod, err := minFetchPeriod(params.MinFetchPeriodSeconds)
	if err != nil {
		return Outcome{URL: params.URL, Kind: Errored, Err: &DurationError{Err: err}}
	}

	lastFetch, err := p.store.FindLastFetchTime(ctx, params.URL)
	if err != nil {
		return p.errorOutcome(ctx, params.URL, nil, &UpdateError{Err: err})
	}
	if lastFetch != "" {
		if t, perr := time.Parse(time.RFC3339, lastFetch); perr == nil {
			if t.Add(minPeriod).After(now) {
				return Outcome{URL: params.URL, Kind: Skipped}
			}
		}
	}

	// LoadConditions from the most recent 200 history row.
	var cond *fetcher.Conditions
	stored, err := p.store.FindLastConditionalGet(ctx, params.URL)
	if err != nil {
		return p.errorOutcome(ctx, params.URL, nil, &UpdateError{Err: err})
	}
	if stored != nil {
		cond = &fetcher.Conditions{ETag: stored.Etag, LastModified: stored.LastModified}
	}

	// DoFetch.
	fetch := p.fetcher.Fetch(ctx, params.URL, params.RequestTimeout, cond)
	switch fetch.Kind {
	case fetcher.Timeout:
		return p.errorOutcome(ctx, params.URL, fetch, &TimeoutError{Err: fetch.Cause})
	case fetcher.NotFound:
		return p.errorOutcome(ctx, params.URL, fetch, &NotFoundError{URL: params.URL})
	case fetcher.TransportError:
		return p.errorOutcome(ctx, params.URL, fetch, &TransportError{Err: fetch.Cause})
	case fetcher.Http:
		return p.errorOutcome(ctx, params.URL, fetch,
			&FetchFailedError{Status: fetch.Status, Body: string(fetch.Body)})
	case fetcher.NotModified:
		rec := historyRecord(params.URL, fetch, now)
		if err := p.store.InsertFeedHistorySuccess(ctx, rec, params.RetainSrc); err != nil {
			return Outcome{URL: params.URL, Kind: Errored, Fetch: fetch, Err: &UpdateError{Err: err}}
		}
		return Outcome{URL: params.URL, Kind: NotModified, Fetch: fetch}
	}

	// Parse.
	feed, err := p.parser.Parse(fetch.Body)
	if err != nil {
		return p.errorOutcome(ctx, params.URL, fetch, &ParseError{Err: err})
	}

	// UpsertFeedAndEntries.
	if err := p.upsertFeedAndEntries(ctx, params, feed, fetch, now); err != nil {
		return p.errorOutcome(ctx, params.URL, fetch, &UpdateError{Err: err})
	}

	// RecordSuccessHistory, strictly after the upserts. A failure here still
	// surfaces as a persistence problem.
	rec := historyRecord(params.URL, fetch, now)
	if err := p.store.InsertFeedHistorySuccess(ctx, rec, params.RetainSrc); err != nil {
		return Outcome{URL: params.URL, Kind: Errored, Fetch: fetch, Feed: feed, Err: &UpdateError{Err: err}}
	}

	return Outcome{URL: params.URL, Kind: Updated, Fetch: fetch, Feed: feed}
}

// errorOutcome writes the error-history row (best effort) and builds the
// terminal Errored outcome.
func (p *Poller) errorOutcome(ctx context.Context, url string, fetch *fetcher.Outcome, terminal error) Outcome {
	status := ""
	if fetch != nil {
		status = fetch.Status
	}
	if err := p.store.InsertFeedHistoryError(ctx, url, status, terminal.Error()); err != nil {
		slog.Error("failed to record error history", "url", url, "error", err)
	}
	return Outcome{URL: url, Kind: Errored, Fetch: fetch, Err: terminal}
}

func (p *Poller) upsertFeedAndEntries(ctx context.Context, params Params, feed *parser.Feed, fetch *fetcher.Outcome, now time.Time) error {
	feedID := identity.FeedID(params.URL)
	nowStr := now.Format(time.RFC3339)

	lastEntryPublished := ""
	seenIDs := make([]string, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		sourceID := entrySourceID(entry)
		entryID := identity.EntryID(feedID, sourceID)
		seenIDs = append(seenIDs, entryID)

		published := clamp(entry.Published, now)
		if published > lastEntryPublished {
			lastEntryPublished = published
		}

		entryJSON, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("serializing entry: %w", err)
		}

		up := store.EntryUpsert{
			ID:                 entryID,
			FeedID:             feedID,
			Title:              deref(entry.Title),
			Link:               firstHref(entry.Links),
			Summary:            deref(entry.Summary),
			Content:            deref(entry.Content),
			Published:          published,
			Updated:            clamp(entry.Updated, now),
			JSON:               string(entryJSON),
			Now:                nowStr,
			SkipUpdateIfExists: params.SkipEntryUpdate,
		}
		if err := p.store.UpsertEntry(ctx, up); err != nil {
			return err
		}
	}

	if params.MarkDefunct {
		if err := p.store.MarkOldEntriesDefunct(ctx, feedID, seenIDs); err != nil {
			return err
		}
	}

	feedJSON, err := json.Marshal(feed)
	if err != nil {
		return fmt.Errorf("serializing feed: %w", err)
	}

	return p.store.UpsertFeed(ctx, store.FeedUpsert{
		ID:                 feedID,
		URL:                params.URL,
		Title:              deref(feed.Title),
		Subtitle:           deref(feed.Subtitle),
		Link:               firstHref(feed.Links),
		Published:          clamp(feed.Published, now),
		Updated:            clamp(feed.Updated, now),
		LastEntryPublished: lastEntryPublished,
		JSON:               string(feedJSON),
		Now:                nowStr,
	})
}

func historyRecord(url string, fetch *fetcher.Outcome, now time.Time) store.HistoryRecord {
	return store.HistoryRecord{
		FeedID:       identity.FeedID(url),
		Status:       fetch.Status,
		Src:          string(fetch.Body),
		Etag:         fetch.Etag,
		LastModified: fetch.LastModified,
		Now:          now.Format(time.RFC3339),
	}
}

// clamp stores min(d, now) as an RFC-3339 UTC string; a missing date stores
// as "", never as now.
func clamp(d *time.Time, now time.Time) string {
	if d == nil {
		return ""
	}
	if d.After(now) {
		return now.Format(time.RFC3339)
	}
	return d.UTC().Format(time.RFC3339)
}

// entrySourceID is the source feed's own identifier for the entry: its id
// when present, else its first link, else its title.
func entrySourceID(entry parser.Entry) string {
	if id := deref(entry.ID); id != "" {
		return id
	}
	if href := firstHref(entry.Links); href != "" {
		return href
	}
	return deref(entry.Title)
}

func minFetchPeriod(seconds int) (time.Duration, error) {
	if seconds < 0 {
		return 0, fmt.Errorf("min fetch period must be non-negative, got %d", seconds)
	}
	return time.Duration(seconds) * time.Second, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func firstHref(links []parser.Link) string {
	if len(links) == 0 {
		return ""
	}
	return links[0].Href
}
