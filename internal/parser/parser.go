// Package parser wraps gofeed to produce the normalized Feed value the poll
// state machine consumes, sanitizing entry HTML with bluemonday before it
// ever reaches the store.
package parser

import (
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
)

// Link is a single feed or entry link.
type Link struct {
	Href string
}

// Feed is the normalized representation of a parsed syndication feed.
type Feed struct {
	Title     *string
	Subtitle  *string
	Published *time.Time
	Updated   *time.Time
	Links     []Link
	Entries   []Entry
}

// Entry is a single normalized item within a Feed.
type Entry struct {
	ID        *string
	Title     *string
	Links     []Link
	Summary   *string
	Content   *string
	Published *time.Time
	Updated   *time.Time
}

// Parser parses raw feed bytes into a normalized Feed, sanitizing HTML
// fields along the way.
type Parser struct {
	gf     *gofeed.Parser
	policy *bluemonday.Policy
}

// New builds a Parser with a fresh gofeed.Parser and a UGC sanitization
// policy for entry content/summary.
func New() *Parser {
	gf := gofeed.NewParser()
	gf.UserAgent = "feedspool/1.0"
	return &Parser{
		gf:     gf,
		policy: bluemonday.UGCPolicy(),
	}
}

// Parse parses body (RSS, Atom, or JSON Feed) into a normalized Feed.
func (p *Parser) Parse(body []byte) (*Feed, error) {
	raw, err := p.gf.ParseString(string(body))
	if err != nil {
		return nil, err
	}
	return p.normalize(raw), nil
}

func (p *Parser) normalize(raw *gofeed.Feed) *Feed {
	feed := &Feed{
		Title:     nonEmpty(raw.Title),
		Subtitle:  nonEmpty(raw.Description),
		Published: raw.PublishedParsed,
		Updated:   raw.UpdatedParsed,
		Links:     toLinks(raw.Links),
		Entries:   make([]Entry, 0, len(raw.Items)),
	}

	for _, item := range raw.Items {
		feed.Entries = append(feed.Entries, p.normalizeEntry(item))
	}

	return feed
}

func (p *Parser) normalizeEntry(item *gofeed.Item) Entry {
	id := item.GUID
	if id == "" {
		id = item.Link
	}

	summary := p.sanitize(item.Description)
	content := p.sanitize(item.Content)
	if content == nil {
		content = summary
	}

	return Entry{
		ID:        nonEmpty(id),
		Title:     nonEmpty(item.Title),
		Links:     toLinksFromItem(item),
		Summary:   summary,
		Content:   content,
		Published: item.PublishedParsed,
		Updated:   item.UpdatedParsed,
	}
}

func (p *Parser) sanitize(s string) *string {
	if s == "" {
		return nil
	}
	clean := p.policy.Sanitize(s)
	return &clean
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func toLinks(links []string) []Link {
	out := make([]Link, 0, len(links))
	for _, l := range links {
		out = append(out, Link{Href: l})
	}
	return out
}

func toLinksFromItem(item *gofeed.Item) []Link {
	if item.Link == "" {
		return nil
	}
	return []Link{{Href: item.Link}}
}
