// Package readmodel is the paged query layer over the store that backs the
// GraphQL resolvers and the render/toplinks CLI readers. It adds no storage
// of its own.
package readmodel

import (
	"context"

	"feedspool/internal/store"
	"feedspool/pkg/feedmodel"
)

// ReadModel exposes paged reads over the stored corpus.
type ReadModel struct {
	store *store.Store
}

// New wraps a store.
func New(st *store.Store) *ReadModel {
	return &ReadModel{store: st}
}

// Feeds lists feeds ordered by last_entry_published DESC. since filters on
// last_entry_published; "" and a missing value filter identically.
func (r *ReadModel) Feeds(ctx context.Context, since string, p feedmodel.Pagination) ([]feedmodel.Feed, error) {
	return r.store.ListFeeds(ctx, since, p)
}

// Entries lists entries across all feeds ordered by published DESC.
func (r *ReadModel) Entries(ctx context.Context, since string, p feedmodel.Pagination) ([]feedmodel.Entry, error) {
	return r.store.ListEntries(ctx, since, p)
}

// FeedByID fetches one feed; nil when absent.
func (r *ReadModel) FeedByID(ctx context.Context, id string) (*feedmodel.Feed, error) {
	return r.store.GetFeed(ctx, id)
}

// EntriesOf lists one feed's entries ordered by published DESC.
func (r *ReadModel) EntriesOf(ctx context.Context, feedID, since string, p feedmodel.Pagination) ([]feedmodel.Entry, error) {
	return r.store.ListEntriesByFeed(ctx, feedID, since, p)
}

// HistoryOf lists one feed's history rows ordered by created_at DESC.
func (r *ReadModel) HistoryOf(ctx context.Context, feedID, since string, p feedmodel.Pagination) ([]feedmodel.FeedHistory, error) {
	return r.store.ListHistoryByFeed(ctx, feedID, since, p)
}

// FeedOf dereferences an entry's parent feed; nil when absent.
func (r *ReadModel) FeedOf(ctx context.Context, entry feedmodel.Entry) (*feedmodel.Feed, error) {
	return r.store.GetFeed(ctx, entry.FeedID)
}

// RecentEntries lists the newest entries joined with their feeds, for the
// render reader.
func (r *ReadModel) RecentEntries(ctx context.Context, limit int) ([]store.EntryWithFeed, error) {
	return r.store.ListEntriesWithFeeds(ctx, "", limit)
}
