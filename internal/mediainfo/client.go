// Package mediainfo wraps the YouTube Data API v3 calls the player needs:
// playlist sizing, paged playlist items and single video lookups.
package mediainfo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

const defaultBase = "https://www.googleapis.com/youtube/v3/"

// ErrNotAvailable marks lookups of videos that exist only behind a
// privacy wall or not at all.
var ErrNotAvailable = errors.New("video not available")

// Item is one lookup result. Position is only meaningful for playlist
// items; Public is false for private or unlisted-deleted entries.
type Item struct {
	VideoID      string
	Title        string
	ChannelTitle string
	PlaylistID   string
	Position     int
	Public       bool
}

// Page is one page of playlist items plus the continuation token.
type Page struct {
	Items         []Item
	NextPageToken string
	TotalResults  int
}

type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	key     string
	base    string
}

func NewClient(apiKey string) *Client {
	return &Client{
		http: &http.Client{Timeout: 7 * time.Second},
		// YouTube API quota is tight; 5 rps with small bursts is plenty
		// for 50-item pages.
		limiter: rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
		key:     apiKey,
		base:    defaultBase,
	}
}

// WithBaseURL overrides the API endpoint. Used by tests.
func (c *Client) WithBaseURL(base string) *Client {
	c.base = base
	return c
}

type ytAPIResponse struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	PageInfo struct {
		TotalResults int `json:"totalResults"`
	} `json:"pageInfo"`
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		Kind   string `json:"kind"`
		ID     string `json:"id"`
		Status struct {
			PrivacyStatus string `json:"privacyStatus"`
		} `json:"status"`
		Snippet struct {
			Title                  string `json:"title"`
			ChannelTitle           string `json:"channelTitle"`
			VideoOwnerChannelTitle string `json:"videoOwnerChannelTitle"`
			PlaylistID             string `json:"playlistId"`
			Position               int    `json:"position"`
			ResourceID             struct {
				VideoID string `json:"videoId"`
			} `json:"resourceId"`
		} `json:"snippet"`
	} `json:"items"`
}

func (c *Client) fetch(ctx context.Context, resource string, params url.Values) (*ytAPIResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	params.Set("key", c.key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+resource+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed ytAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("youtube api decode: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("youtube api: %s (%d)", parsed.Error.Message, parsed.Error.Code)
	}
	return &parsed, nil
}

// PlaylistItemCount returns the total item count of a playlist, or an
// error when the playlist does not exist.
func (c *Client) PlaylistItemCount(ctx context.Context, playlistID string) (int, error) {
	params := url.Values{}
	params.Set("playlistId", playlistID)
	params.Set("part", "status")
	data, err := c.fetch(ctx, "playlistItems", params)
	if err != nil {
		return 0, err
	}
	if data.PageInfo.TotalResults == 0 {
		return 0, fmt.Errorf("playlist %s not found", playlistID)
	}
	return data.PageInfo.TotalResults, nil
}

// PlaylistItems fetches one page of up to 50 playlist entries. Pass the
// previous page's NextPageToken to continue; empty token starts over.
func (c *Client) PlaylistItems(ctx context.Context, playlistID, pageToken string) (*Page, error) {
	params := url.Values{}
	params.Set("playlistId", playlistID)
	params.Set("part", "status,snippet")
	params.Set("maxResults", "50")
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}
	data, err := c.fetch(ctx, "playlistItems", params)
	if err != nil {
		return nil, err
	}
	if data.PageInfo.TotalResults == 0 {
		return nil, fmt.Errorf("playlist %s not found", playlistID)
	}

	page := &Page{
		NextPageToken: data.NextPageToken,
		TotalResults:  data.PageInfo.TotalResults,
		Items:         make([]Item, 0, len(data.Items)),
	}
	for _, it := range data.Items {
		page.Items = append(page.Items, Item{
			VideoID:      it.Snippet.ResourceID.VideoID,
			Title:        it.Snippet.Title,
			ChannelTitle: it.Snippet.VideoOwnerChannelTitle,
			PlaylistID:   it.Snippet.PlaylistID,
			Position:     it.Snippet.Position,
			Public:       it.Status.PrivacyStatus == "public",
		})
	}
	return page, nil
}

// Video looks up a single video. Non-public and missing videos return an
// error so the caller surfaces "not available" without enqueueing.
func (c *Client) Video(ctx context.Context, videoID string) (*Item, error) {
	params := url.Values{}
	params.Set("id", videoID)
	params.Set("part", "status,snippet")
	data, err := c.fetch(ctx, "videos", params)
	if err != nil {
		return nil, err
	}
	if data.PageInfo.TotalResults == 0 || len(data.Items) == 0 {
		return nil, fmt.Errorf("video %s: %w", videoID, ErrNotAvailable)
	}
	it := data.Items[0]
	if it.Status.PrivacyStatus != "public" {
		return nil, fmt.Errorf("video %s is not public: %w", videoID, ErrNotAvailable)
	}
	return &Item{
		VideoID:      it.ID,
		Title:        it.Snippet.Title,
		ChannelTitle: it.Snippet.ChannelTitle,
		Public:       true,
	}, nil
}
