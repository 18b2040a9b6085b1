// Package jellyfin talks to the media server: it pulls the item inventory,
// sorts it into the library snapshot the sync engine consumes, and pushes
// cover images back. Side state (ID cache, blacklist, raw/sorted snapshots)
// lives in flat JSON files under the state directory.
package jellyfin

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

const fetchFields = "Name,OriginalTitle,Id,ParentId,ParentIndexNumber,IndexNumber,ProductionYear,ProviderIds"

// Client is the raw HTTP surface of the media server.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

// NewClient builds a client for the server at baseURL. A trailing slash on
// the URL is tolerated.
func NewClient(baseURL, apiKey string, httpc *http.Client) *Client {
	if httpc == nil {
		httpc = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		httpc:   httpc,
	}
}

// rawItem is the wire shape of one /Items entry. ProductionYear and
// IndexNumber are pointers so "absent" stays distinguishable from zero.
type rawItem struct {
	ID             string            `json:"Id"`
	Name           string            `json:"Name"`
	OriginalTitle  string            `json:"OriginalTitle"`
	Type           string            `json:"Type"`
	ParentID       string            `json:"ParentId"`
	ProductionYear *int              `json:"ProductionYear"`
	IndexNumber    *int              `json:"IndexNumber"`
	ProviderIds    map[string]string `json:"ProviderIds"`
}

type itemsResponse struct {
	Items []rawItem `json:"Items"`
}

// FetchItems retrieves the full recursive inventory: series, seasons,
// episodes, movies and box sets. Transient failures are retried with backoff;
// a 401 is reported immediately since waiting cannot fix a bad key.
func (c *Client) FetchItems(ctx context.Context) ([]rawItem, error) {
	endpoint := fmt.Sprintf("%s/Items?%s", c.baseURL, url.Values{
		"Recursive":        {"true"},
		"IncludeItemTypes": {"Series,Season,Movie,BoxSet,Episode"},
		"Fields":           {fetchFields},
		"isMissing":        {"false"},
	}.Encode())

	var payload itemsResponse
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("X-Emby-Token", c.apiKey)

			resp, err := c.httpc.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusUnauthorized {
				return retry.Unrecoverable(fmt.Errorf("invalid media server API key"))
			}
			if resp.StatusCode >= 400 {
				return fmt.Errorf("fetch items failed: %s", resp.Status)
			}
			return json.NewDecoder(resp.Body).Decode(&payload)
		},
		retry.Context(ctx),
		retry.Attempts(4),
		retry.Delay(5*time.Second),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(attempt uint, err error) {
			log.Printf("[jellyfin] items fetch failed (attempt %d/4): %v", attempt+1, err)
		}),
	)
	if err != nil {
		return nil, err
	}
	if len(payload.Items) == 0 {
		return nil, fmt.Errorf("media server returned no items")
	}
	return payload.Items, nil
}

// UploadImage sets one image slot on an item. The server expects the image
// bytes base64-encoded in the body with the real content type in the header.
func (c *Client) UploadImage(ctx context.Context, itemID, imageType string, data []byte, contentType string) error {
	endpoint := fmt.Sprintf("%s/Items/%s/Images/%s/0", c.baseURL, url.PathEscape(itemID), imageType)

	encoded := make([]byte, base64.StdEncoding.EncodedLen(len(data)))
	base64.StdEncoding.Encode(encoded, data)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	req.Header.Set("X-Emby-Token", c.apiKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("upload %s for item %s failed: %s", imageType, itemID, resp.Status)
	}
	return nil
}

type imageInfo struct {
	ImageType  string `json:"ImageType"`
	ImageIndex int    `json:"ImageIndex"`
}

// DeleteBackdrops removes every existing backdrop of an item and reports how
// many were deleted. Indexes shift as images are removed, so deletion always
// targets index 0.
func (c *Client) DeleteBackdrops(ctx context.Context, itemID string) (int, error) {
	listEndpoint := fmt.Sprintf("%s/Items/%s/Images", c.baseURL, url.PathEscape(itemID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listEndpoint, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("X-Emby-Token", c.apiKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, err
	}
	var images []imageInfo
	decodeErr := json.NewDecoder(resp.Body).Decode(&images)
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("list images for item %s failed: %s", itemID, resp.Status)
	}
	if decodeErr != nil {
		return 0, decodeErr
	}

	backdrops := 0
	for _, img := range images {
		if img.ImageType == "Backdrop" {
			backdrops++
		}
	}

	deleted := 0
	for i := 0; i < backdrops; i++ {
		deleteEndpoint := fmt.Sprintf("%s/Items/%s/Images/Backdrop/0", c.baseURL, url.PathEscape(itemID))
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, deleteEndpoint, nil)
		if err != nil {
			return deleted, err
		}
		req.Header.Set("X-Emby-Token", c.apiKey)

		resp, err := c.httpc.Do(req)
		if err != nil {
			return deleted, err
		}
		resp.Body.Close()
		if resp.StatusCode >= 400 {
			return deleted, fmt.Errorf("delete backdrop for item %s failed: %s", itemID, resp.Status)
		}
		deleted++
	}
	return deleted, nil
}
