// Package graphql exposes the read model as a GraphQL schema: the Feed,
// Entry, and FeedHistory types, the Feed↔Entry↔History edges, and the paged
// root queries. The schema is validated at init so a malformed SDL fails the
// process immediately rather than the first query.
package graphql

import (
	"context"
	_ "embed"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"

	"feedspool/pkg/feedmodel"
)

//go:embed schema.graphqls
var schemaSDL string

// Schema is the parsed and validated API schema.
var Schema = gqlparser.MustLoadSchema(&ast.Source{
	Name:  "schema.graphqls",
	Input: schemaSDL,
})

// APIVersion is returned by the root apiVersion field.
const APIVersion = "1.0"

// Reader is the read-model surface the resolvers need.
type Reader interface {
	Feeds(ctx context.Context, since string, p feedmodel.Pagination) ([]feedmodel.Feed, error)
	Entries(ctx context.Context, since string, p feedmodel.Pagination) ([]feedmodel.Entry, error)
	FeedByID(ctx context.Context, id string) (*feedmodel.Feed, error)
	EntriesOf(ctx context.Context, feedID, since string, p feedmodel.Pagination) ([]feedmodel.Entry, error)
	HistoryOf(ctx context.Context, feedID, since string, p feedmodel.Pagination) ([]feedmodel.FeedHistory, error)
	FeedOf(ctx context.Context, entry feedmodel.Entry) (*feedmodel.Feed, error)
}

// Resolver implements the query shapes of the schema over a Reader.
type Resolver struct {
	reader Reader
}

// NewResolver builds a Resolver.
func NewResolver(reader Reader) *Resolver {
	return &Resolver{reader: reader}
}

// Feeds resolves the root feeds(since, pagination) field.
func (r *Resolver) Feeds(ctx context.Context, since string, p feedmodel.Pagination) ([]feedmodel.Feed, error) {
	return r.reader.Feeds(ctx, since, p)
}

// Entries resolves the root entries(since, pagination) field.
func (r *Resolver) Entries(ctx context.Context, since string, p feedmodel.Pagination) ([]feedmodel.Entry, error) {
	return r.reader.Entries(ctx, since, p)
}

// FeedByID resolves the root feed(id) field.
func (r *Resolver) FeedByID(ctx context.Context, id string) (*feedmodel.Feed, error) {
	return r.reader.FeedByID(ctx, id)
}

// EntriesOf resolves the Feed.entries edge.
func (r *Resolver) EntriesOf(ctx context.Context, feed feedmodel.Feed, since string, p feedmodel.Pagination) ([]feedmodel.Entry, error) {
	return r.reader.EntriesOf(ctx, feed.ID, since, p)
}

// HistoryOf resolves the Feed.history edge.
func (r *Resolver) HistoryOf(ctx context.Context, feed feedmodel.Feed, since string, p feedmodel.Pagination) ([]feedmodel.FeedHistory, error) {
	return r.reader.HistoryOf(ctx, feed.ID, since, p)
}

// FeedOf resolves the Entry.feed edge.
func (r *Resolver) FeedOf(ctx context.Context, entry feedmodel.Entry) (*feedmodel.Feed, error) {
	return r.reader.FeedOf(ctx, entry)
}
