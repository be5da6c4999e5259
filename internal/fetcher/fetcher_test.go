package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchOk(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"abc"`)
		w.Header().Set("Last-Modified", "Mon, 01 Jan 2024 00:00:00 GMT")
		_, _ = w.Write([]byte("body"))
	}))
	defer server.Close()

	outcome := NewClient().Fetch(context.Background(), server.URL, 5*time.Second, nil)

	require.Equal(t, Ok, outcome.Kind)
	assert.Equal(t, "200", outcome.Status)
	assert.Equal(t, []byte("body"), outcome.Body)
	assert.Equal(t, `"abc"`, outcome.Etag)
	assert.Equal(t, "Mon, 01 Jan 2024 00:00:00 GMT", outcome.LastModified)
}

func TestFetchSendsConditionalHeaders(t *testing.T) {
	var gotEtag, gotModified string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEtag = r.Header.Get("If-None-Match")
		gotModified = r.Header.Get("If-Modified-Since")
		w.WriteHeader(http.StatusNotModified)
	}))
	defer server.Close()

	cond := &Conditions{ETag: `"abc"`, LastModified: "Mon, 01 Jan 2024 00:00:00 GMT"}
	outcome := NewClient().Fetch(context.Background(), server.URL, 5*time.Second, cond)

	require.Equal(t, NotModified, outcome.Kind)
	assert.Equal(t, "304", outcome.Status)
	assert.Equal(t, `"abc"`, gotEtag)
	assert.Equal(t, "Mon, 01 Jan 2024 00:00:00 GMT", gotModified)
}

func TestFetchNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	outcome := NewClient().Fetch(context.Background(), server.URL, 5*time.Second, nil)

	assert.Equal(t, NotFound, outcome.Kind)
	assert.Equal(t, "404", outcome.Status)
}

func TestFetchHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("oops"))
	}))
	defer server.Close()

	outcome := NewClient().Fetch(context.Background(), server.URL, 5*time.Second, nil)

	assert.Equal(t, Http, outcome.Kind)
	assert.Equal(t, "500", outcome.Status)
	assert.Equal(t, []byte("oops"), outcome.Body)
}

func TestFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	outcome := NewClient().Fetch(context.Background(), server.URL, 50*time.Millisecond, nil)

	assert.Equal(t, Timeout, outcome.Kind)
	assert.Error(t, outcome.Cause)
}

func TestFetchTransportError(t *testing.T) {
	// A closed server's address refuses connections.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	outcome := NewClient().Fetch(context.Background(), url, 5*time.Second, nil)

	assert.Equal(t, TransportError, outcome.Kind)
	assert.Error(t, outcome.Cause)
}
