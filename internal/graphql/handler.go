package graphql

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"feedspool/pkg/feedmodel"
)

// Handler serves GET/POST /graphql over a Resolver. Query documents are
// validated against Schema before execution; execution walks the validated
// selection sets directly, one resolver call per requested field.
type Handler struct {
	resolver *Resolver
}

// NewHandler builds a Handler.
func NewHandler(resolver *Resolver) *Handler {
	return &Handler{resolver: resolver}
}

type gqlRequest struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName"`
	Variables     map[string]interface{} `json:"variables"`
}

type gqlResponse struct {
	Data   interface{}   `json:"data,omitempty"`
	Errors gqlerror.List `json:"errors,omitempty"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req gqlRequest
	switch r.Method {
	case http.MethodGet:
		req.Query = r.URL.Query().Get("query")
		req.OperationName = r.URL.Query().Get("operationName")
		if vars := r.URL.Query().Get("variables"); vars != "" {
			if err := json.Unmarshal([]byte(vars), &req.Variables); err != nil {
				writeResponse(w, http.StatusBadRequest, gqlResponse{Errors: gqlerror.List{gqlerror.Errorf("invalid variables: %v", err)}})
				return
			}
		}
	case http.MethodPost:
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeResponse(w, http.StatusBadRequest, gqlResponse{Errors: gqlerror.List{gqlerror.Errorf("invalid request body: %v", err)}})
			return
		}
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	requestID := uuid.NewString()
	start := time.Now()

	resp := h.execute(r.Context(), req)

	slog.Debug("graphql request",
		"request_id", requestID,
		"operation", req.OperationName,
		"errors", len(resp.Errors),
		"duration", time.Since(start))

	writeResponse(w, http.StatusOK, resp)
}

func (h *Handler) execute(ctx context.Context, req gqlRequest) gqlResponse {
	doc, errs := gqlparser.LoadQuery(Schema, req.Query)
	if len(errs) > 0 {
		return gqlResponse{Errors: errs}
	}

	op := doc.Operations.ForName(req.OperationName)
	if op == nil {
		return gqlResponse{Errors: gqlerror.List{gqlerror.Errorf("operation %q not found", req.OperationName)}}
	}

	switch op.Operation {
	case ast.Query:
		data, errs := h.resolveQuery(ctx, op.SelectionSet, req.Variables)
		return gqlResponse{Data: data, Errors: errs}
	case ast.Mutation:
		// The only mutation is the noop placeholder.
		data := map[string]interface{}{}
		for _, field := range fields(op.SelectionSet) {
			data[alias(field)] = nil
		}
		return gqlResponse{Data: data}
	default:
		return gqlResponse{Errors: gqlerror.List{gqlerror.Errorf("unsupported operation %q", op.Operation)}}
	}
}

func (h *Handler) resolveQuery(ctx context.Context, sel ast.SelectionSet, vars map[string]interface{}) (map[string]interface{}, gqlerror.List) {
	data := map[string]interface{}{}
	var errs gqlerror.List

	for _, field := range fields(sel) {
		args := field.ArgumentMap(vars)
		switch field.Name {
		case "apiVersion":
			data[alias(field)] = APIVersion
		case "__typename":
			data[alias(field)] = "Query"
		case "feeds":
			feeds, err := h.resolver.Feeds(ctx, sinceArg(args), paginationArg(args))
			if err != nil {
				errs = append(errs, fieldError(field, err))
				data[alias(field)] = nil
				continue
			}
			data[alias(field)], errs = h.resolveFeedList(ctx, feeds, field.SelectionSet, vars, errs)
		case "entries":
			entries, err := h.resolver.Entries(ctx, sinceArg(args), paginationArg(args))
			if err != nil {
				errs = append(errs, fieldError(field, err))
				data[alias(field)] = nil
				continue
			}
			data[alias(field)], errs = h.resolveEntryList(ctx, entries, field.SelectionSet, vars, errs)
		case "feed":
			id, _ := args["id"].(string)
			feed, err := h.resolver.FeedByID(ctx, id)
			if err != nil {
				errs = append(errs, fieldError(field, err))
				data[alias(field)] = nil
				continue
			}
			if feed == nil {
				data[alias(field)] = nil
				continue
			}
			var obj map[string]interface{}
			obj, errs = h.resolveFeed(ctx, *feed, field.SelectionSet, vars, errs)
			data[alias(field)] = obj
		}
	}
	return data, errs
}

func (h *Handler) resolveFeedList(ctx context.Context, feeds []feedmodel.Feed, sel ast.SelectionSet, vars map[string]interface{}, errs gqlerror.List) ([]interface{}, gqlerror.List) {
	out := make([]interface{}, 0, len(feeds))
	for _, feed := range feeds {
		var obj map[string]interface{}
		obj, errs = h.resolveFeed(ctx, feed, sel, vars, errs)
		out = append(out, obj)
	}
	return out, errs
}

func (h *Handler) resolveFeed(ctx context.Context, feed feedmodel.Feed, sel ast.SelectionSet, vars map[string]interface{}, errs gqlerror.List) (map[string]interface{}, gqlerror.List) {
	obj := map[string]interface{}{}
	for _, field := range fields(sel) {
		switch field.Name {
		case "__typename":
			obj[alias(field)] = "Feed"
		case "id":
			obj[alias(field)] = feed.ID
		case "url":
			obj[alias(field)] = feed.URL
		case "title":
			obj[alias(field)] = feed.Title
		case "subtitle":
			obj[alias(field)] = feed.Subtitle
		case "link":
			obj[alias(field)] = feed.Link
		case "published":
			obj[alias(field)] = feed.Published
		case "updated":
			obj[alias(field)] = feed.Updated
		case "lastEntryPublished":
			obj[alias(field)] = feed.LastEntryPublished
		case "json":
			obj[alias(field)] = feed.JSON
		case "createdAt":
			obj[alias(field)] = feed.CreatedAt
		case "modifiedAt":
			obj[alias(field)] = feed.ModifiedAt
		case "entries":
			args := field.ArgumentMap(vars)
			entries, err := h.resolver.EntriesOf(ctx, feed, sinceArg(args), paginationArg(args))
			if err != nil {
				errs = append(errs, fieldError(field, err))
				obj[alias(field)] = nil
				continue
			}
			obj[alias(field)], errs = h.resolveEntryList(ctx, entries, field.SelectionSet, vars, errs)
		case "history":
			args := field.ArgumentMap(vars)
			history, err := h.resolver.HistoryOf(ctx, feed, sinceArg(args), paginationArg(args))
			if err != nil {
				errs = append(errs, fieldError(field, err))
				obj[alias(field)] = nil
				continue
			}
			obj[alias(field)] = resolveHistoryList(history, field.SelectionSet)
		}
	}
	return obj, errs
}

func (h *Handler) resolveEntryList(ctx context.Context, entries []feedmodel.Entry, sel ast.SelectionSet, vars map[string]interface{}, errs gqlerror.List) ([]interface{}, gqlerror.List) {
	out := make([]interface{}, 0, len(entries))
	for _, entry := range entries {
		var obj map[string]interface{}
		obj, errs = h.resolveEntry(ctx, entry, sel, vars, errs)
		out = append(out, obj)
	}
	return out, errs
}

func (h *Handler) resolveEntry(ctx context.Context, entry feedmodel.Entry, sel ast.SelectionSet, vars map[string]interface{}, errs gqlerror.List) (map[string]interface{}, gqlerror.List) {
	obj := map[string]interface{}{}
	for _, field := range fields(sel) {
		switch field.Name {
		case "__typename":
			obj[alias(field)] = "Entry"
		case "id":
			obj[alias(field)] = entry.ID
		case "feedId":
			obj[alias(field)] = entry.FeedID
		case "title":
			obj[alias(field)] = entry.Title
		case "link":
			obj[alias(field)] = entry.Link
		case "summary":
			obj[alias(field)] = entry.Summary
		case "content":
			obj[alias(field)] = entry.Content
		case "published":
			obj[alias(field)] = entry.Published
		case "updated":
			obj[alias(field)] = entry.Updated
		case "defunct":
			obj[alias(field)] = entry.Defunct
		case "json":
			obj[alias(field)] = entry.JSON
		case "createdAt":
			obj[alias(field)] = entry.CreatedAt
		case "modifiedAt":
			obj[alias(field)] = entry.ModifiedAt
		case "feed":
			feed, err := h.resolver.FeedOf(ctx, entry)
			if err != nil {
				errs = append(errs, fieldError(field, err))
				obj[alias(field)] = nil
				continue
			}
			if feed == nil {
				obj[alias(field)] = nil
				continue
			}
			var feedObj map[string]interface{}
			feedObj, errs = h.resolveFeed(ctx, *feed, field.SelectionSet, vars, errs)
			obj[alias(field)] = feedObj
		}
	}
	return obj, errs
}

func resolveHistoryList(history []feedmodel.FeedHistory, sel ast.SelectionSet) []interface{} {
	out := make([]interface{}, 0, len(history))
	for _, h := range history {
		obj := map[string]interface{}{}
		for _, field := range fields(sel) {
			switch field.Name {
			case "__typename":
				obj[alias(field)] = "FeedHistory"
			case "id":
				obj[alias(field)] = h.ID
			case "feedId":
				obj[alias(field)] = h.FeedID
			case "createdAt":
				obj[alias(field)] = h.CreatedAt
			case "status":
				obj[alias(field)] = h.Status
			case "src":
				obj[alias(field)] = h.Src
			case "etag":
				obj[alias(field)] = h.Etag
			case "lastModified":
				obj[alias(field)] = h.LastModified
			case "isError":
				obj[alias(field)] = h.IsError
			case "errorText":
				obj[alias(field)] = h.ErrorText
			}
		}
		out = append(out, obj)
	}
	return out
}

// fields flattens a validated selection set into its fields. Inline fragments
// and fragment spreads (through the definition the validator links to each
// spread) are flattened recursively.
func fields(sel ast.SelectionSet) []*ast.Field {
	var out []*ast.Field
	for _, s := range sel {
		switch s := s.(type) {
		case *ast.Field:
			out = append(out, s)
		case *ast.InlineFragment:
			out = append(out, fields(s.SelectionSet)...)
		case *ast.FragmentSpread:
			if s.Definition != nil {
				out = append(out, fields(s.Definition.SelectionSet)...)
			}
		}
	}
	return out
}

func alias(field *ast.Field) string {
	if field.Alias != "" {
		return field.Alias
	}
	return field.Name
}

func sinceArg(args map[string]interface{}) string {
	if s, ok := args["since"].(string); ok {
		return s
	}
	return ""
}

func paginationArg(args map[string]interface{}) feedmodel.Pagination {
	var p feedmodel.Pagination
	m, ok := args["pagination"].(map[string]interface{})
	if !ok {
		return p
	}
	p.Skip = toInt(m["skip"])
	p.Take = toInt(m["take"])
	return p
}

func toInt(v interface{}) int {
	switch v := v.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i)
		}
	}
	return 0
}

func fieldError(field *ast.Field, err error) *gqlerror.Error {
	return &gqlerror.Error{
		Message: err.Error(),
		Path:    ast.Path{ast.PathName(alias(field))},
	}
}

func writeResponse(w http.ResponseWriter, status int, resp gqlResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
