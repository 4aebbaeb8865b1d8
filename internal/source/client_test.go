package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chiraitori/HoYo-Code-Sender-Discord-Bot/internal/game"
)

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/codes", r.URL.Path)
		assert.Equal(t, "genshin", r.URL.Query().Get("game"))
		w.Write([]byte(`{"codes":[{"code":"ABC123","status":"OK","rewards":"Primogem x60"},{"code":"OLD1","status":"EXPIRED","rewards":""}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	codes, err := client.Fetch(context.Background(), game.Genshin)
	require.NoError(t, err)
	require.Len(t, codes, 2)
	assert.Equal(t, "ABC123", codes[0].Code)
	assert.True(t, codes[0].Active())
	assert.False(t, codes[1].Active())
}

func TestFetchNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.Fetch(context.Background(), game.Genshin)
	assert.Error(t, err)
}

func TestFetchMalformedBodyIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>not json</html>`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.Fetch(context.Background(), game.Genshin)
	assert.Error(t, err)
}

func TestFetchAllIsolatesFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("game") == "hkrpg" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"codes":[{"code":"XYZ","status":"OK","rewards":""}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	results := client.FetchAll(context.Background())
	require.Len(t, results, len(game.All()))

	assert.False(t, results[game.Genshin].Failed())
	assert.Len(t, results[game.Genshin].Codes, 1)
	assert.True(t, results[game.StarRail].Failed())
	assert.False(t, results[game.Zenless].Failed())
}

func TestFetchAllRespectsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient(srv.URL)
	results := client.FetchAll(ctx)
	for _, r := range results {
		assert.True(t, r.Failed())
	}
}
