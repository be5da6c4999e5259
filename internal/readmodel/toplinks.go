package readmodel

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/net/html"

	"feedspool/pkg/feedmodel"
)

// TopLink is a link referenced across several feeds' recent entries.
type TopLink struct {
	Link  string
	Count int
	// Feeds are the distinct referencing feed titles, sorted.
	Feeds []string
}

// TopLinks reports links referenced by at least threshold distinct feeds
// among entries published within window of now. Each entry contributes its
// own link plus the anchor links in its HTML; anchor links sharing an origin
// with the entry or its feed are skipped. Results sort by reference count
// descending, then link.
func (r *ReadModel) TopLinks(ctx context.Context, now time.Time, window time.Duration, threshold int) ([]TopLink, error) {
	since := now.Add(-window).UTC().Format(time.RFC3339)
	rows, err := r.store.ListEntriesWithFeeds(ctx, since, 0)
	if err != nil {
		return nil, err
	}

	// link -> set of referencing feed titles
	refs := make(map[string]map[string]struct{})
	for _, row := range rows {
		if row.Feed == nil || row.Feed.Title == "" {
			continue
		}
		for link := range entryLinks(row.Entry, row.Feed) {
			if refs[link] == nil {
				refs[link] = make(map[string]struct{})
			}
			refs[link][row.Feed.Title] = struct{}{}
		}
	}

	var top []TopLink
	for link, feeds := range refs {
		if len(feeds) < threshold {
			continue
		}
		titles := make([]string, 0, len(feeds))
		for t := range feeds {
			titles = append(titles, t)
		}
		sort.Strings(titles)
		top = append(top, TopLink{Link: link, Count: len(feeds), Feeds: titles})
	}

	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].Link < top[j].Link
	})
	return top, nil
}

// entryLinks collects the entry's own link plus every anchor href found in
// its content and summary HTML, excluding links that share an origin with
// the entry or the feed, with URL fragments stripped.
func entryLinks(entry feedmodel.Entry, feed *feedmodel.Feed) map[string]struct{} {
	links := make(map[string]struct{})
	if entry.Link != "" {
		links[entry.Link] = struct{}{}
	}

	entryURL, entryErr := url.Parse(entry.Link)
	var feedURL *url.URL
	var feedErr error
	if feed != nil {
		feedURL, feedErr = url.Parse(feed.Link)
	}

	for _, content := range []string{entry.Content, entry.Summary} {
		if content == "" {
			continue
		}
		for _, href := range anchorHrefs(content) {
			linkURL, err := url.Parse(href)
			if err != nil || !linkURL.IsAbs() {
				continue
			}
			if entryErr == nil && sameOrigin(linkURL, entryURL) {
				continue
			}
			if feedErr == nil && feedURL != nil && sameOrigin(linkURL, feedURL) {
				continue
			}
			linkURL.Fragment = ""
			links[linkURL.String()] = struct{}{}
		}
	}
	return links
}

// anchorHrefs extracts href attributes from every <a> tag in fragment.
func anchorHrefs(fragment string) []string {
	var hrefs []string
	tokens := html.NewTokenizer(strings.NewReader(fragment))
	for {
		tt := tokens.Next()
		if tt == html.ErrorToken {
			return hrefs
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		token := tokens.Token()
		if token.Data != "a" {
			continue
		}
		for _, attr := range token.Attr {
			if attr.Key == "href" && attr.Val != "" {
				hrefs = append(hrefs, attr.Val)
			}
		}
	}
}

func sameOrigin(a, b *url.URL) bool {
	return a.Scheme == b.Scheme && a.Host == b.Host
}
