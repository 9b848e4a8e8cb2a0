package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krkrport/mnemonic/pkg/errs"
)

func TestGetSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	f := NewFetcher(5 * time.Second)
	body, err := f.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(body))
}

func TestGetNon2xxIsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFetcher(5 * time.Second)
	_, err := f.Get(context.Background(), srv.URL)
	assert.Equal(t, errs.HTTPError, errs.KindOf(err))
}

func TestGetTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.Write([]byte("too slow"))
	}))
	defer srv.Close()

	f := NewFetcher(10 * time.Millisecond)
	_, err := f.Get(context.Background(), srv.URL)
	assert.Equal(t, errs.TimeoutError, errs.KindOf(err))
}

func TestGetNetworkErrorOnBadURL(t *testing.T) {
	f := NewFetcher(time.Second)
	_, err := f.Get(context.Background(), "http://127.0.0.1:1/nonexistent")
	assert.Equal(t, errs.NetworkError, errs.KindOf(err))
}
