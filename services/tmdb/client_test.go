package tmdb

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coversync/models"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func newTestClient(fn roundTripFunc) *Client {
	c := New("test-key", "de-DE", &http.Client{Transport: fn})
	c.minInterval = 0
	return c
}

func TestTitlesMovieMergesLanguagesAndAlternatives(t *testing.T) {
	var paths []string
	c := newTestClient(func(req *http.Request) (*http.Response, error) {
		paths = append(paths, req.URL.Path)
		assert.Equal(t, "test-key", req.URL.Query().Get("api_key"))

		switch {
		case strings.HasSuffix(req.URL.Path, "/alternative_titles"):
			return jsonResponse(200, `{"titles":[{"title":"El Laberinto del Fauno"},{"title":"Pan's Labyrinth"}]}`), nil
		case req.URL.Query().Get("language") == "en-US":
			return jsonResponse(200, `{"title":"Pan's Labyrinth"}`), nil
		default:
			assert.Equal(t, "de-DE", req.URL.Query().Get("language"))
			return jsonResponse(200, `{"title":"Pans Labyrinth"}`), nil
		}
	})

	titles, err := c.Titles(context.Background(), models.KindMovie, "1417")
	require.NoError(t, err)
	assert.Equal(t, []string{"Pan's Labyrinth", "Pans Labyrinth", "El Laberinto del Fauno"}, titles)
	assert.Len(t, paths, 3)
	for _, p := range paths {
		assert.Contains(t, p, "/movie/1417")
	}
}

func TestTitlesSeriesUsesTVEndpointAndNameField(t *testing.T) {
	c := newTestClient(func(req *http.Request) (*http.Response, error) {
		require.Contains(t, req.URL.Path, "/tv/66732")
		if strings.HasSuffix(req.URL.Path, "/alternative_titles") {
			return jsonResponse(200, `{"results":[{"title":"Very Strange Things"}]}`), nil
		}
		return jsonResponse(200, `{"name":"Stranger Things"}`), nil
	})

	titles, err := c.Titles(context.Background(), models.KindSeries, "66732")
	require.NoError(t, err)
	assert.Equal(t, []string{"Stranger Things", "Very Strange Things"}, titles)
}

func TestTitlesCollectionSkipsAlternatives(t *testing.T) {
	calls := 0
	c := newTestClient(func(req *http.Request) (*http.Response, error) {
		calls++
		require.Contains(t, req.URL.Path, "/collection/645")
		require.NotContains(t, req.URL.Path, "alternative_titles")
		if req.URL.Query().Get("language") == "de-DE" {
			return jsonResponse(200, `{"name":"James Bond Filmreihe"}`), nil
		}
		return jsonResponse(200, `{"name":"James Bond Collection"}`), nil
	})

	titles, err := c.Titles(context.Background(), models.KindBoxSet, "645")
	require.NoError(t, err)
	assert.Equal(t, []string{"James Bond Collection", "James Bond Filmreihe"}, titles)
	assert.Equal(t, 2, calls)
}

func TestTitlesRetriesServerErrors(t *testing.T) {
	attempts := 0
	c := newTestClient(func(req *http.Request) (*http.Response, error) {
		attempts++
		if attempts == 1 {
			return jsonResponse(500, `{}`), nil
		}
		if strings.HasSuffix(req.URL.Path, "/alternative_titles") {
			return jsonResponse(200, `{"titles":[]}`), nil
		}
		return jsonResponse(200, `{"title":"Dune"}`), nil
	})
	c.secondLanguage = ""

	titles, err := c.Titles(context.Background(), models.KindMovie, "438631")
	require.NoError(t, err)
	assert.Equal(t, []string{"Dune"}, titles)
	assert.GreaterOrEqual(t, attempts, 3)
}

func TestTitlesClientErrorIsFatal(t *testing.T) {
	attempts := 0
	c := newTestClient(func(req *http.Request) (*http.Response, error) {
		attempts++
		return jsonResponse(404, `{}`), nil
	})

	_, err := c.Titles(context.Background(), models.KindMovie, "0")
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestTitlesUnconfigured(t *testing.T) {
	c := New("", "de-DE", nil)
	_, err := c.Titles(context.Background(), models.KindMovie, "1")
	assert.Error(t, err)
	assert.False(t, c.IsConfigured())
}

func TestTitlesUnsupportedKind(t *testing.T) {
	c := newTestClient(func(req *http.Request) (*http.Response, error) {
		t.Fatal("no request expected")
		return nil, nil
	})
	_, err := c.Titles(context.Background(), models.KindEpisode, "1")
	assert.Error(t, err)
}
