package store

import (
	"context"

	"feedspool/pkg/feedmodel"
)

// EntryWithFeed is an entry joined with its feed; Feed is nil when the feed
// row is missing (an error-history-only feed id, for example).
type EntryWithFeed struct {
	Entry feedmodel.Entry
	Feed  *feedmodel.Feed
}

// ListEntriesWithFeeds lists entries left-joined with their feed, newest
// first with updated as the tie-break. since filters on published; limit
// values <= 0 mean no limit. This backs the render and toplinks readers.
func (s *Store) ListEntriesWithFeeds(ctx context.Context, since string, limit int) ([]EntryWithFeed, error) {
	defer observe("list_entries_with_feeds")()

	rows, err := s.pool.Query(ctx, `
		SELECT e.id, e.feed_id, e.title, e.link, e.summary, e.content,
		       e.published, e.updated, e.defunct, e.json, e.created_at, e.modified_at,
		       f.id, f.url, f.title, f.subtitle, f.link, f.published, f.updated,
		       f.last_entry_published, f.json, f.created_at, f.modified_at
		FROM entries e
		LEFT JOIN feeds f ON e.feed_id = f.id
		WHERE ($1 = '' OR e.published > $1)
		ORDER BY e.published DESC, e.updated DESC, e.id ASC
		LIMIT CASE WHEN $2 > 0 THEN $2 END`,
		since, limit)
	if err != nil {
		return nil, dbErr("list_entries_with_feeds", err)
	}
	defer rows.Close()

	var out []EntryWithFeed
	for rows.Next() {
		var e feedmodel.Entry
		var f feedmodel.Feed
		var fID, fURL, fTitle, fSubtitle, fLink, fPublished, fUpdated *string
		var fLastEntryPublished, fJSON, fCreatedAt, fModifiedAt *string
		if err := rows.Scan(&e.ID, &e.FeedID, &e.Title, &e.Link, &e.Summary,
			&e.Content, &e.Published, &e.Updated, &e.Defunct,
			&e.JSON, &e.CreatedAt, &e.ModifiedAt,
			&fID, &fURL, &fTitle, &fSubtitle, &fLink, &fPublished, &fUpdated,
			&fLastEntryPublished, &fJSON, &fCreatedAt, &fModifiedAt); err != nil {
			return nil, dbErr("list_entries_with_feeds", err)
		}
		row := EntryWithFeed{Entry: e}
		if fID != nil {
			f.ID = *fID
			f.URL = strOrEmpty(fURL)
			f.Title = strOrEmpty(fTitle)
			f.Subtitle = strOrEmpty(fSubtitle)
			f.Link = strOrEmpty(fLink)
			f.Published = strOrEmpty(fPublished)
			f.Updated = strOrEmpty(fUpdated)
			f.LastEntryPublished = strOrEmpty(fLastEntryPublished)
			f.JSON = strOrEmpty(fJSON)
			f.CreatedAt = strOrEmpty(fCreatedAt)
			f.ModifiedAt = strOrEmpty(fModifiedAt)
			row.Feed = &f
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("list_entries_with_feeds", err)
	}
	return out, nil
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
