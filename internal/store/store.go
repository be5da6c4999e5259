// Package store owns all persistent state: feeds, entries, and the
// append-only feed_history log. Every other component goes through its
// operations. Upserts are keyed by deterministic content-hash ids, which is
// what lets concurrent pollers and retries converge without transactions.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"feedspool/internal/identity"
	"feedspool/internal/metrics"
	"feedspool/pkg/feedmodel"
)

// DbError wraps any failure surfaced by a Store operation.
type DbError struct {
	Op  string
	Err error
}

func (e *DbError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *DbError) Unwrap() error {
	return e.Err
}

func dbErr(op string, err error) *DbError {
	return &DbError{Op: op, Err: err}
}

// Store provides typed CRUD over the feeds/entries/feed_history tables.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool exposes the underlying pool for lifecycle management (Close).
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// FeedUpsert carries one feed's worth of normalized values into UpsertFeed.
// Now is the caller's poll time; it becomes created_at on insert and
// modified_at always.
type FeedUpsert struct {
	ID                 string
	URL                string
	Title              string
	Subtitle           string
	Link               string
	Published          string
	Updated            string
	LastEntryPublished string
	JSON               string
	Now                string
}

// EntryUpsert carries one entry's worth of normalized values into
// UpsertEntry. When SkipUpdateIfExists is set and the row already exists the
// row is left untouched but the call still succeeds.
type EntryUpsert struct {
	ID                 string
	FeedID             string
	Title              string
	Link               string
	Summary            string
	Content            string
	Published          string
	Updated            string
	JSON               string
	Now                string
	SkipUpdateIfExists bool
}

// HistoryRecord carries the fetch metadata recorded by
// InsertFeedHistorySuccess.
type HistoryRecord struct {
	FeedID       string
	Status       string
	Src          string
	Etag         string
	LastModified string
	Now          string
}

// Conditions is the conditional-GET replay state recovered from the most
// recent successful history row.
type Conditions struct {
	Etag         string
	LastModified string
}

// UpsertFeed probes for the feed by id, then updates or inserts. created_at
// is set only on insert; modified_at is always set to up.Now.
func (s *Store) UpsertFeed(ctx context.Context, up FeedUpsert) error {
	defer observe("upsert_feed")()

	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM feeds WHERE id = $1)`, up.ID).Scan(&exists)
	if err != nil {
		return dbErr("upsert_feed", err)
	}

	if exists {
		_, err = s.pool.Exec(ctx, `
			UPDATE feeds SET
				url = $2, title = $3, subtitle = $4, link = $5,
				published = $6, updated = $7, last_entry_published = $8,
				json = $9, modified_at = $10
			WHERE id = $1`,
			up.ID, up.URL, up.Title, up.Subtitle, up.Link,
			up.Published, up.Updated, up.LastEntryPublished,
			up.JSON, up.Now)
	} else {
		_, err = s.pool.Exec(ctx, `
			INSERT INTO feeds (
				id, url, title, subtitle, link,
				published, updated, last_entry_published,
				json, created_at, modified_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`,
			up.ID, up.URL, up.Title, up.Subtitle, up.Link,
			up.Published, up.Updated, up.LastEntryPublished,
			up.JSON, up.Now)
	}
	if err != nil {
		return dbErr("upsert_feed", err)
	}
	return nil
}

// UpsertEntry probes for the entry by id, then updates or inserts. An insert
// or an update writes defunct = false; an update skipped through
// SkipUpdateIfExists leaves defunct as it is.
func (s *Store) UpsertEntry(ctx context.Context, up EntryUpsert) error {
	defer observe("upsert_entry")()

	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM entries WHERE id = $1)`, up.ID).Scan(&exists)
	if err != nil {
		return dbErr("upsert_entry", err)
	}

	if exists {
		if up.SkipUpdateIfExists {
			return nil
		}
		_, err = s.pool.Exec(ctx, `
			UPDATE entries SET
				title = $2, link = $3, summary = $4, content = $5,
				published = $6, updated = $7, defunct = false,
				json = $8, modified_at = $9
			WHERE id = $1`,
			up.ID, up.Title, up.Link, up.Summary, up.Content,
			up.Published, up.Updated, up.JSON, up.Now)
	} else {
		_, err = s.pool.Exec(ctx, `
			INSERT INTO entries (
				id, feed_id, title, link, summary, content,
				published, updated, defunct, json, created_at, modified_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false, $9, $10, $10)`,
			up.ID, up.FeedID, up.Title, up.Link, up.Summary, up.Content,
			up.Published, up.Updated, up.JSON, up.Now)
	}
	if err != nil {
		return dbErr("upsert_entry", err)
	}
	return nil
}

// MarkOldEntriesDefunct flags every entry of the feed that was not observed
// in the most recent parse. Rows are retained, only flagged.
func (s *Store) MarkOldEntriesDefunct(ctx context.Context, feedID string, seenIDs []string) error {
	defer observe("mark_old_entries_defunct")()

	_, err := s.pool.Exec(ctx, `
		UPDATE entries SET defunct = true
		WHERE feed_id = $1 AND NOT (id = ANY($2))`,
		feedID, seenIDs)
	if err != nil {
		return dbErr("mark_old_entries_defunct", err)
	}
	return nil
}

// InsertFeedHistorySuccess appends one success row. The raw body is stored
// only when retainSrc is set.
func (s *Store) InsertFeedHistorySuccess(ctx context.Context, rec HistoryRecord, retainSrc bool) error {
	defer observe("insert_feed_history_success")()

	src := ""
	if retainSrc {
		src = rec.Src
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO feed_history (
			id, feed_id, created_at, status, src, etag, last_modified,
			is_error, error_text
		) VALUES ($1, $2, $3, $4, $5, $6, $7, false, '')`,
		identity.HistoryID(rec.FeedID, rec.Now), rec.FeedID, rec.Now,
		rec.Status, src, rec.Etag, rec.LastModified)
	if err != nil {
		return dbErr("insert_feed_history_success", err)
	}
	return nil
}

// InsertFeedHistoryError appends one error row. The feed id is derived from
// the URL so the row lands even when no feed row exists yet. status carries
// the HTTP status when one was received, blank on transport errors.
func (s *Store) InsertFeedHistoryError(ctx context.Context, url, status, errorText string) error {
	defer observe("insert_feed_history_error")()

	now := time.Now().UTC().Format(time.RFC3339)
	feedID := identity.FeedID(url)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO feed_history (
			id, feed_id, created_at, status, src, etag, last_modified,
			is_error, error_text
		) VALUES ($1, $2, $3, $4, '', '', '', true, $5)`,
		identity.HistoryID(feedID, now), feedID, now, status, errorText)
	if err != nil {
		return dbErr("insert_feed_history_error", err)
	}
	return nil
}

// FindLastConditionalGet recovers the etag/last-modified pair from the most
// recent status-200 history row for the URL's feed id. Returns nil when no
// such row exists.
func (s *Store) FindLastConditionalGet(ctx context.Context, url string) (*Conditions, error) {
	defer observe("find_last_conditional_get")()

	var cond Conditions
	err := s.pool.QueryRow(ctx, `
		SELECT etag, last_modified FROM feed_history
		WHERE feed_id = $1 AND status = '200'
		ORDER BY created_at DESC
		LIMIT 1`,
		identity.FeedID(url)).Scan(&cond.Etag, &cond.LastModified)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, dbErr("find_last_conditional_get", err)
	}
	return &cond, nil
}

// FindLastFetchTime returns the created_at of the most recent history row of
// any kind for the URL's feed id, or "" when the feed has never been polled.
func (s *Store) FindLastFetchTime(ctx context.Context, url string) (string, error) {
	defer observe("find_last_fetch_time")()

	var createdAt string
	err := s.pool.QueryRow(ctx, `
		SELECT created_at FROM feed_history
		WHERE feed_id = $1
		ORDER BY created_at DESC
		LIMIT 1`,
		identity.FeedID(url)).Scan(&createdAt)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", dbErr("find_last_fetch_time", err)
	}
	return createdAt, nil
}

// GetFeed fetches a single feed by id. Returns nil when absent.
func (s *Store) GetFeed(ctx context.Context, id string) (*feedmodel.Feed, error) {
	defer observe("get_feed")()

	row := s.pool.QueryRow(ctx, `
		SELECT id, url, title, subtitle, link, published, updated,
		       last_entry_published, json, created_at, modified_at
		FROM feeds WHERE id = $1`, id)
	f, err := scanFeed(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, dbErr("get_feed", err)
	}
	return f, nil
}

// ListFeeds lists feeds ordered by last_entry_published DESC, tie-broken by
// updated DESC then id ASC. since filters on last_entry_published.
func (s *Store) ListFeeds(ctx context.Context, since string, p feedmodel.Pagination) ([]feedmodel.Feed, error) {
	defer observe("list_feeds")()
	p = p.Normalize()

	rows, err := s.pool.Query(ctx, `
		SELECT id, url, title, subtitle, link, published, updated,
		       last_entry_published, json, created_at, modified_at
		FROM feeds
		WHERE ($1 = '' OR last_entry_published > $1)
		ORDER BY last_entry_published DESC, updated DESC, id ASC
		OFFSET $2 LIMIT $3`,
		since, p.Skip, p.Take)
	if err != nil {
		return nil, dbErr("list_feeds", err)
	}
	defer rows.Close()

	var feeds []feedmodel.Feed
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, dbErr("list_feeds", err)
		}
		feeds = append(feeds, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("list_feeds", err)
	}
	return feeds, nil
}

// ListEntries lists entries across all feeds ordered by published DESC,
// tie-broken by updated DESC then id ASC. since filters on published.
func (s *Store) ListEntries(ctx context.Context, since string, p feedmodel.Pagination) ([]feedmodel.Entry, error) {
	defer observe("list_entries")()
	p = p.Normalize()

	rows, err := s.pool.Query(ctx, entrySelect+`
		WHERE ($1 = '' OR published > $1)
		ORDER BY published DESC, updated DESC, id ASC
		OFFSET $2 LIMIT $3`,
		since, p.Skip, p.Take)
	if err != nil {
		return nil, dbErr("list_entries", err)
	}
	defer rows.Close()
	return collectEntries(rows, "list_entries")
}

// ListEntriesByFeed lists one feed's entries with the same ordering and
// since semantics as ListEntries.
func (s *Store) ListEntriesByFeed(ctx context.Context, feedID, since string, p feedmodel.Pagination) ([]feedmodel.Entry, error) {
	defer observe("list_entries_by_feed")()
	p = p.Normalize()

	rows, err := s.pool.Query(ctx, entrySelect+`
		WHERE feed_id = $1 AND ($2 = '' OR published > $2)
		ORDER BY published DESC, updated DESC, id ASC
		OFFSET $3 LIMIT $4`,
		feedID, since, p.Skip, p.Take)
	if err != nil {
		return nil, dbErr("list_entries_by_feed", err)
	}
	defer rows.Close()
	return collectEntries(rows, "list_entries_by_feed")
}

// ListHistoryByFeed lists one feed's history rows, newest first. since
// filters on created_at.
func (s *Store) ListHistoryByFeed(ctx context.Context, feedID, since string, p feedmodel.Pagination) ([]feedmodel.FeedHistory, error) {
	defer observe("list_history_by_feed")()
	p = p.Normalize()

	rows, err := s.pool.Query(ctx, `
		SELECT id, feed_id, created_at, status, src, etag, last_modified,
		       is_error, error_text
		FROM feed_history
		WHERE feed_id = $1 AND ($2 = '' OR created_at > $2)
		ORDER BY created_at DESC, id ASC
		OFFSET $3 LIMIT $4`,
		feedID, since, p.Skip, p.Take)
	if err != nil {
		return nil, dbErr("list_history_by_feed", err)
	}
	defer rows.Close()

	var hist []feedmodel.FeedHistory
	for rows.Next() {
		var h feedmodel.FeedHistory
		if err := rows.Scan(&h.ID, &h.FeedID, &h.CreatedAt, &h.Status, &h.Src,
			&h.Etag, &h.LastModified, &h.IsError, &h.ErrorText); err != nil {
			return nil, dbErr("list_history_by_feed", err)
		}
		hist = append(hist, h)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("list_history_by_feed", err)
	}
	return hist, nil
}

const entrySelect = `
	SELECT id, feed_id, title, link, summary, content, published, updated,
	       defunct, json, created_at, modified_at
	FROM entries`

func scanFeed(row pgx.Row) (*feedmodel.Feed, error) {
	var f feedmodel.Feed
	err := row.Scan(&f.ID, &f.URL, &f.Title, &f.Subtitle, &f.Link,
		&f.Published, &f.Updated, &f.LastEntryPublished,
		&f.JSON, &f.CreatedAt, &f.ModifiedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func collectEntries(rows pgx.Rows, op string) ([]feedmodel.Entry, error) {
	var entries []feedmodel.Entry
	for rows.Next() {
		var e feedmodel.Entry
		if err := rows.Scan(&e.ID, &e.FeedID, &e.Title, &e.Link, &e.Summary,
			&e.Content, &e.Published, &e.Updated, &e.Defunct,
			&e.JSON, &e.CreatedAt, &e.ModifiedAt); err != nil {
			return nil, dbErr(op, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr(op, err)
	}
	return entries, nil
}

func observe(op string) func() {
	start := time.Now()
	return func() {
		metrics.RecordStoreQuery(op, time.Since(start))
	}
}
