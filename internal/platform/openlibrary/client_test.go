package openlibrary

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(srv *httptest.Server) *Client {
	return NewClient("libraryapi-test", 1000, 2, WithBaseURL(srv.URL), WithBackoff(time.Millisecond))
}

func TestGetBooksByISBN(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/books", r.URL.Path)
		assert.Equal(t, "ISBN:9780441013593,ISBN:0000000000", r.URL.Query().Get("bibkeys"))
		assert.Equal(t, "libraryapi-test", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{"ISBN:9780441013593":{"title":"Dune","authors":[{"name":"Frank Herbert"}],"number_of_pages":604}}`))
	}))
	defer srv.Close()

	got, err := newTestClient(srv).GetBooksByISBN(context.Background(), []string{"9780441013593", "0000000000"})

	require.NoError(t, err)
	require.Contains(t, got, "9780441013593")
	assert.Equal(t, "Dune", got["9780441013593"].Title)
	assert.Equal(t, "Frank Herbert", got["9780441013593"].Authors[0].Name)
	assert.NotContains(t, got, "0000000000")
}

func TestGetBooksByISBN_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	got, err := newTestClient(srv).GetBooksByISBN(context.Background(), []string{"9780441013593"})

	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetBooksByISBN_ClientErrorIsFinal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).GetBooksByISBN(context.Background(), []string{"x"})

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetBooksByISBN_Empty(t *testing.T) {
	got, err := NewClient("ua", 1, 0).GetBooksByISBN(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}
