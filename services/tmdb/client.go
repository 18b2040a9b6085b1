// Package tmdb fetches alternative titles for library items so that covers
// named after a localized or original title still resolve to the right item.
package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"

	"coversync/models"
)

const tmdbBaseURL = "https://api.themoviedb.org/3"

// errRetryable marks transient failures worth another attempt.
var errRetryable = errors.New("retryable")

// Client is a thin TMDB reader. All requests are throttled through a shared
// minimum interval; TMDB's limits are generous but sustained refresh bursts
// can still trip them.
type Client struct {
	apiKey         string
	secondLanguage string
	httpc          *http.Client

	throttleMu  sync.Mutex
	lastRequest time.Time
	minInterval time.Duration
}

// New builds a client. secondLanguage is the extra locale queried besides
// en-US, e.g. "de-DE"; empty disables the second lookup.
func New(apiKey, secondLanguage string, httpc *http.Client) *Client {
	if httpc == nil {
		httpc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		apiKey:         strings.TrimSpace(apiKey),
		secondLanguage: strings.TrimSpace(secondLanguage),
		httpc:          httpc,
		minInterval:    20 * time.Millisecond,
	}
}

// IsConfigured reports whether an API key is present. Without one the title
// store falls back to library-provided names only.
func (c *Client) IsConfigured() bool {
	return c != nil && c.apiKey != ""
}

type tmdbDetailsResponse struct {
	Title string `json:"title"`
	Name  string `json:"name"`
}

type tmdbAlternativesResponse struct {
	Titles []struct {
		Title string `json:"title"`
	} `json:"titles"`
	Results []struct {
		Title string `json:"title"`
	} `json:"results"`
}

// Titles returns every known title of the item: the en-US title, the second
// language title, and the alternative titles list. Collections have no
// alternative titles endpoint, so they get the two localized names only.
// The result is deduplicated, first occurrence wins.
func (c *Client) Titles(ctx context.Context, kind models.ItemKind, tmdbID string) ([]string, error) {
	if !c.IsConfigured() {
		return nil, errors.New("tmdb api key not configured")
	}

	segment, ok := pathSegment(kind)
	if !ok {
		return nil, fmt.Errorf("tmdb has no titles for item kind %q", kind)
	}

	var titles []string
	seen := make(map[string]bool)
	add := func(title string) {
		title = strings.TrimSpace(title)
		if title == "" || seen[strings.ToLower(title)] {
			return
		}
		seen[strings.ToLower(title)] = true
		titles = append(titles, title)
	}

	languages := []string{"en-US"}
	if c.secondLanguage != "" && !strings.EqualFold(c.secondLanguage, "en-US") {
		languages = append(languages, c.secondLanguage)
	}
	for _, lang := range languages {
		var details tmdbDetailsResponse
		if err := c.doGET(ctx, c.detailsEndpoint(segment, tmdbID, lang), &details); err != nil {
			return nil, err
		}
		add(details.Title)
		add(details.Name)
	}

	if segment != "collection" {
		var alt tmdbAlternativesResponse
		if err := c.doGET(ctx, c.alternativesEndpoint(segment, tmdbID), &alt); err != nil {
			return nil, err
		}
		for _, t := range alt.Titles {
			add(t.Title)
		}
		for _, t := range alt.Results {
			add(t.Title)
		}
	}

	return titles, nil
}

func pathSegment(kind models.ItemKind) (string, bool) {
	switch kind {
	case models.KindMovie:
		return "movie", true
	case models.KindSeries:
		return "tv", true
	case models.KindBoxSet:
		return "collection", true
	default:
		return "", false
	}
}

func (c *Client) detailsEndpoint(segment, tmdbID, language string) string {
	return fmt.Sprintf("%s/%s/%s?%s", tmdbBaseURL, segment, url.PathEscape(tmdbID),
		url.Values{"api_key": {c.apiKey}, "language": {language}}.Encode())
}

func (c *Client) alternativesEndpoint(segment, tmdbID string) string {
	return fmt.Sprintf("%s/%s/%s/alternative_titles?%s", tmdbBaseURL, segment, url.PathEscape(tmdbID),
		url.Values{"api_key": {c.apiKey}}.Encode())
}

// doGET performs a throttled GET with backoff on transient failures.
func (c *Client) doGET(ctx context.Context, endpoint string, v any) error {
	return retry.Do(
		func() error {
			c.throttle()

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}

			resp, err := c.httpc.Do(req)
			if err != nil {
				return fmt.Errorf("%w: %v", errRetryable, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return fmt.Errorf("%w: tmdb request failed: %s", errRetryable, resp.Status)
			}
			if resp.StatusCode >= 400 {
				return retry.Unrecoverable(fmt.Errorf("tmdb request failed: %s", resp.Status))
			}
			return json.NewDecoder(resp.Body).Decode(v)
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(300*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(attempt uint, err error) {
			log.Printf("[tmdb] http error (attempt %d/3): %v", attempt+1, err)
		}),
	)
}

func (c *Client) throttle() {
	c.throttleMu.Lock()
	defer c.throttleMu.Unlock()
	if since := time.Since(c.lastRequest); since < c.minInterval {
		time.Sleep(c.minInterval - since)
	}
	c.lastRequest = time.Now()
}
