package bgg

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"bgageek-backend/internal/telemetry"

	"github.com/stretchr/testify/require"
)

const searchResults = `<html><body>
<div class="result"><a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fwww.reddit.com%2Fr%2Fboardgames">reddit</a></div>
<div class="result"><a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fboardgamegeek.com%2Fboardgame%2F13%2Fcatan">Catan | Board Game</a>
<span class="result__url">boardgamegeek.com/boardgame/13/catan</span></div>
<div class="result"><a href="https://boardgamegeek.com/boardgame/27710/catan-dice-game">Catan Dice</a></div>
</body></html>`

func newTestClient(t *testing.T, handler http.Handler) (*Client, *telemetry.Recorder) {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	recorder := telemetry.NewRecorder()
	client := NewClient(ClientOptions{
		SearchEndpoint: server.URL + "/html/",
		CatalogBaseUrl: server.URL + "/",
	}, recorder)
	return client, recorder
}

func TestResolve(t *testing.T) {
	var mutex sync.Mutex
	var queries []string
	mux := http.NewServeMux()
	mux.HandleFunc("/html/", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		mutex.Lock()
		queries = append(queries, q)
		mutex.Unlock()
		if strings.HasSuffix(q, "Catan") {
			w.Write([]byte(searchResults))
			return
		}
		w.Write([]byte("<html><body>No results.</body></html>"))
	})
	client, _ := newTestClient(t, mux)

	url, err := client.Resolve(context.Background(), "Catan")
	require.NoError(t, err)
	require.Equal(t, client.CatalogUrl("13"), url)
	require.True(t, strings.HasSuffix(url, "/boardgame/13"))

	_, err = client.Resolve(context.Background(), "Nonexistent Game")
	require.ErrorIs(t, err, ErrNotFound)

	mutex.Lock()
	defer mutex.Unlock()
	require.Equal(t, []string{
		"site:boardgamegeek.com/boardgame Catan",
		"site:boardgamegeek.com/boardgame Nonexistent Game",
	}, queries)
}

func TestResolveNetworkFailure(t *testing.T) {
	recorder := telemetry.NewRecorder()
	client := NewClient(ClientOptions{
		// nothing listens on port 1
		SearchEndpoint: "http://127.0.0.1:1/html/",
	}, recorder)

	_, err := client.Resolve(context.Background(), "Catan")
	require.ErrorIs(t, err, ErrNotFound)
	require.NotEmpty(t, recorder.Reports(telemetry.REPORT_WARNING, report_client_resolve))
}

func TestFetchPage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/boardgame/13", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("catan page"))
	})
	mux.HandleFunc("/boardgame/404", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/boardgame/500", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	client, _ := newTestClient(t, mux)

	body, err := client.FetchPage(context.Background(), client.CatalogUrl("13"))
	require.NoError(t, err)
	require.Equal(t, "catan page", body)

	_, err = client.FetchPage(context.Background(), client.CatalogUrl("404"))
	require.True(t, IsNotFound(err))
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	require.Equal(t, http.StatusNotFound, httpErr.Status)

	_, err = client.FetchPage(context.Background(), client.CatalogUrl("500"))
	require.False(t, IsNotFound(err))
	require.True(t, errors.As(err, &httpErr))
	require.Equal(t, http.StatusInternalServerError, httpErr.Status)

	_, err = client.FetchPage(context.Background(), "http://127.0.0.1:1/boardgame/13")
	var networkErr *NetworkError
	require.True(t, errors.As(err, &networkErr))
	require.False(t, IsNotFound(err))
}
