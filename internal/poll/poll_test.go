package poll

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedspool/internal/fetcher"
	"feedspool/internal/identity"
	"feedspool/internal/parser"
	"feedspool/internal/store"
)

// fakeStore records every store call the state machine makes.
type fakeStore struct {
	mu sync.Mutex

	lastFetchTime  string
	conditions     *store.Conditions
	upsertErr      error
	successHistErr error

	feedUpserts    []store.FeedUpsert
	entryUpserts   []store.EntryUpsert
	successHist    []store.HistoryRecord
	errorHist      []string
	defunctCalls   [][]string
	retainSrcFlags []bool
}

func (f *fakeStore) FindLastFetchTime(ctx context.Context, url string) (string, error) {
	return f.lastFetchTime, nil
}

func (f *fakeStore) FindLastConditionalGet(ctx context.Context, url string) (*store.Conditions, error) {
	return f.conditions, nil
}

func (f *fakeStore) UpsertFeed(ctx context.Context, up store.FeedUpsert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.feedUpserts = append(f.feedUpserts, up)
	return nil
}

func (f *fakeStore) UpsertEntry(ctx context.Context, up store.EntryUpsert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.entryUpserts = append(f.entryUpserts, up)
	return nil
}

func (f *fakeStore) MarkOldEntriesDefunct(ctx context.Context, feedID string, seenIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.defunctCalls = append(f.defunctCalls, seenIDs)
	return nil
}

func (f *fakeStore) InsertFeedHistorySuccess(ctx context.Context, rec store.HistoryRecord, retainSrc bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.successHistErr != nil {
		return f.successHistErr
	}
	f.successHist = append(f.successHist, rec)
	f.retainSrcFlags = append(f.retainSrcFlags, retainSrc)
	return nil
}

func (f *fakeStore) InsertFeedHistoryError(ctx context.Context, url, status, errorText string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errorHist = append(f.errorHist, errorText)
	return nil
}

func (f *fakeStore) historyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.successHist) + len(f.errorHist)
}

const twoEntryFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Example Feed</title>
    <description>Two entries</description>
    <link>https://example.com/</link>
    <item>
      <guid>a</guid>
      <title>First</title>
      <link>https://example.com/a</link>
      <pubDate>Mon, 01 Jan 2024 00:00:00 GMT</pubDate>
    </item>
    <item>
      <guid>b</guid>
      <title>Second</title>
      <link>https://example.com/b</link>
      <pubDate>Tue, 02 Jan 2024 00:00:00 GMT</pubDate>
    </item>
  </channel>
</rss>`

func newTestPoller(st Store, now time.Time) *Poller {
	return New(st, fetcher.NewClient(), parser.New()).
		WithClock(func() time.Time { return now })
}

func testParams(url string) Params {
	return Params{
		URL:                   url,
		RequestTimeout:        5 * time.Second,
		MinFetchPeriodSeconds: 1800,
		SkipEntryUpdate:       true,
	}
}

func TestPollUpdatesFeedAndEntries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(twoEntryFeed))
	}))
	defer server.Close()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	st := &fakeStore{}
	outcome := newTestPoller(st, now).Poll(context.Background(), testParams(server.URL))

	require.Equal(t, Updated, outcome.Kind)
	require.NotNil(t, outcome.Feed)

	require.Len(t, st.feedUpserts, 1)
	feed := st.feedUpserts[0]
	assert.Equal(t, identity.FeedID(server.URL), feed.ID)
	assert.Equal(t, "Example Feed", feed.Title)
	assert.Equal(t, "Two entries", feed.Subtitle)
	assert.Equal(t, "2024-01-02T00:00:00Z", feed.LastEntryPublished)
	assert.NotEmpty(t, feed.JSON)

	require.Len(t, st.entryUpserts, 2)
	assert.Equal(t, identity.EntryID(feed.ID, "a"), st.entryUpserts[0].ID)
	assert.Equal(t, identity.EntryID(feed.ID, "b"), st.entryUpserts[1].ID)
	assert.Equal(t, "2024-01-01T00:00:00Z", st.entryUpserts[0].Published)
	assert.Equal(t, "2024-01-02T00:00:00Z", st.entryUpserts[1].Published)
	assert.True(t, st.entryUpserts[0].SkipUpdateIfExists)

	require.Len(t, st.successHist, 1)
	assert.Equal(t, "200", st.successHist[0].Status)
	assert.Equal(t, `"v1"`, st.successHist[0].Etag)
	assert.Empty(t, st.errorHist)
}

func TestPollReplaysConditionalGet(t *testing.T) {
	var gotIfNoneMatch string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIfNoneMatch = r.Header.Get("If-None-Match")
		w.WriteHeader(http.StatusNotModified)
	}))
	defer server.Close()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	st := &fakeStore{conditions: &store.Conditions{Etag: `"v1"`}}
	outcome := newTestPoller(st, now).Poll(context.Background(), testParams(server.URL))

	require.Equal(t, NotModified, outcome.Kind)
	assert.Equal(t, `"v1"`, gotIfNoneMatch)

	// No feed or entry rows change; exactly one more success history row.
	assert.Empty(t, st.feedUpserts)
	assert.Empty(t, st.entryUpserts)
	require.Len(t, st.successHist, 1)
	assert.Equal(t, "304", st.successHist[0].Status)
}

func TestPollClampsFutureDates(t *testing.T) {
	const futureFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Future</title>
    <item>
      <guid>f</guid>
      <title>From the future</title>
      <pubDate>Thu, 01 Jan 2099 00:00:00 GMT</pubDate>
    </item>
  </channel>
</rss>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(futureFeed))
	}))
	defer server.Close()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	st := &fakeStore{}
	outcome := newTestPoller(st, now).Poll(context.Background(), testParams(server.URL))

	require.Equal(t, Updated, outcome.Kind)
	require.Len(t, st.entryUpserts, 1)
	assert.Equal(t, "2024-06-01T12:00:00Z", st.entryUpserts[0].Published)
	assert.Equal(t, "2024-06-01T12:00:00Z", st.feedUpserts[0].LastEntryPublished)
}

func TestPollMissingDatesStoreEmpty(t *testing.T) {
	const datelessFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Dateless</title>
    <item>
      <guid>d</guid>
      <title>No date</title>
    </item>
  </channel>
</rss>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(datelessFeed))
	}))
	defer server.Close()

	st := &fakeStore{}
	outcome := newTestPoller(st, time.Now().UTC()).Poll(context.Background(), testParams(server.URL))

	require.Equal(t, Updated, outcome.Kind)
	require.Len(t, st.entryUpserts, 1)
	assert.Empty(t, st.entryUpserts[0].Published)
	assert.Empty(t, st.feedUpserts[0].LastEntryPublished)
}

func TestPollSkipsWithinMinFetchPeriod(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	// Last fetch at T, poll at T + P/2.
	st := &fakeStore{lastFetchTime: now.Add(-15 * time.Minute).Format(time.RFC3339)}

	outcome := newTestPoller(st, now).Poll(context.Background(), testParams("http://unused.example.com/feed"))

	assert.Equal(t, Skipped, outcome.Kind)
	assert.Zero(t, st.historyCount())
}

func TestPollNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	st := &fakeStore{}
	outcome := newTestPoller(st, time.Now().UTC()).Poll(context.Background(), testParams(server.URL))

	require.Equal(t, Errored, outcome.Kind)
	var notFound *NotFoundError
	require.ErrorAs(t, outcome.Err, &notFound)

	assert.Empty(t, st.feedUpserts)
	assert.Empty(t, st.entryUpserts)
	require.Len(t, st.errorHist, 1)
	assert.Contains(t, st.errorHist[0], "NotFound")
}

func TestPollParseFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not xml"))
	}))
	defer server.Close()

	st := &fakeStore{}
	outcome := newTestPoller(st, time.Now().UTC()).Poll(context.Background(), testParams(server.URL))

	require.Equal(t, Errored, outcome.Kind)
	var parseErr *ParseError
	require.ErrorAs(t, outcome.Err, &parseErr)

	assert.Empty(t, st.feedUpserts)
	require.Len(t, st.errorHist, 1)
	assert.Contains(t, st.errorHist[0], "ParseError")
}

func TestPollFetchFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer server.Close()

	st := &fakeStore{}
	outcome := newTestPoller(st, time.Now().UTC()).Poll(context.Background(), testParams(server.URL))

	require.Equal(t, Errored, outcome.Kind)
	var failed *FetchFailedError
	require.ErrorAs(t, outcome.Err, &failed)
	assert.Equal(t, "500", failed.Status)
	require.Len(t, st.errorHist, 1)
}

func TestPollUpdateError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(twoEntryFeed))
	}))
	defer server.Close()

	st := &fakeStore{upsertErr: assert.AnError}
	outcome := newTestPoller(st, time.Now().UTC()).Poll(context.Background(), testParams(server.URL))

	require.Equal(t, Errored, outcome.Kind)
	var updateErr *UpdateError
	require.ErrorAs(t, outcome.Err, &updateErr)
	require.Len(t, st.errorHist, 1)
}

func TestPollSuccessHistoryFailureIsUpdateError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(twoEntryFeed))
	}))
	defer server.Close()

	st := &fakeStore{successHistErr: assert.AnError}
	outcome := newTestPoller(st, time.Now().UTC()).Poll(context.Background(), testParams(server.URL))

	require.Equal(t, Errored, outcome.Kind)
	var updateErr *UpdateError
	require.ErrorAs(t, outcome.Err, &updateErr)
	// The upserts themselves committed before the history write failed.
	assert.Len(t, st.feedUpserts, 1)
}

func TestPollBadMinFetchPeriodWritesNoHistory(t *testing.T) {
	st := &fakeStore{}
	params := testParams("http://unused.example.com/feed")
	params.MinFetchPeriodSeconds = -1

	outcome := newTestPoller(st, time.Now().UTC()).Poll(context.Background(), params)

	require.Equal(t, Errored, outcome.Kind)
	var durErr *DurationError
	require.ErrorAs(t, outcome.Err, &durErr)
	assert.Zero(t, st.historyCount())
}

func TestPollMarkDefunctOptIn(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(twoEntryFeed))
	}))
	defer server.Close()

	st := &fakeStore{}
	params := testParams(server.URL)
	params.MarkDefunct = true

	outcome := newTestPoller(st, time.Now().UTC()).Poll(context.Background(), params)

	require.Equal(t, Updated, outcome.Kind)
	require.Len(t, st.defunctCalls, 1)
	assert.Len(t, st.defunctCalls[0], 2)
}
