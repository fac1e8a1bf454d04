package spotify

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"
)

// Track is the minimal slice of Spotify metadata the player needs: the
// actual audio is found elsewhere by searching for name and artist.
type Track struct {
	Name   string
	Artist string
}

type CollectionMeta struct {
	Title  string
	Source string
}

type Client struct {
	raw *spotify.Client
}

func NewClientCredentials(clientID, clientSecret string) *Client {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	return &Client{raw: spotify.New(cfg.Client(context.Background()), spotify.WithRetry(true))}
}

// IsSpotify reports whether raw looks like a Spotify locator at all.
func IsSpotify(raw string) bool {
	return strings.HasPrefix(raw, "spotify:") || strings.Contains(raw, "open.spotify.com")
}

// ParseID extracts the resource type and ID from a Spotify URL or URI.
func ParseID(raw string) (typ string, id spotify.ID, err error) {
	if strings.HasPrefix(raw, "spotify:") {
		parts := strings.Split(raw, ":")
		if len(parts) == 3 {
			return parts[1], spotify.ID(parts[2]), nil
		}
		return "", "", fmt.Errorf("invalid spotify URI")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}
	if u.Host != "open.spotify.com" && u.Host != "www.open.spotify.com" {
		return "", "", fmt.Errorf("not a spotify URL")
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 {
		return "", "", fmt.Errorf("invalid spotify URL path")
	}
	switch parts[0] {
	case "album", "playlist", "track", "artist":
		return parts[0], spotify.ID(parts[1]), nil
	}
	return "", "", fmt.Errorf("unsupported spotify type %q", parts[0])
}

// Resolve turns any supported Spotify locator into tracks. Artist
// locators resolve to the artist's top tracks.
func (c *Client) Resolve(ctx context.Context, raw string, limit int) ([]Track, CollectionMeta, error) {
	typ, id, err := ParseID(raw)
	if err != nil {
		return nil, CollectionMeta{}, err
	}
	switch typ {
	case "track":
		t, err := c.GetTrack(ctx, id)
		if err != nil {
			return nil, CollectionMeta{}, err
		}
		return []Track{t}, CollectionMeta{}, nil
	case "album":
		return c.GetAlbum(ctx, id, limit)
	case "playlist":
		return c.GetPlaylist(ctx, id, limit)
	case "artist":
		tracks, err := c.GetArtistTop(ctx, id, "US", limit)
		return tracks, CollectionMeta{}, err
	}
	return nil, CollectionMeta{}, fmt.Errorf("unsupported spotify type %q", typ)
}

func (c *Client) GetTrack(ctx context.Context, id spotify.ID) (Track, error) {
	t, err := c.raw.GetTrack(ctx, id)
	if err != nil {
		return Track{}, err
	}
	return Track{Name: t.Name, Artist: firstArtist(t.Artists)}, nil
}

func (c *Client) GetAlbum(ctx context.Context, id spotify.ID, limit int) ([]Track, CollectionMeta, error) {
	alb, err := c.raw.GetAlbum(ctx, id)
	if err != nil {
		return nil, CollectionMeta{}, err
	}
	page, err := c.raw.GetAlbumTracks(ctx, id)
	if err != nil {
		return nil, CollectionMeta{}, err
	}
	out := make([]Track, 0, page.Total)
	add := func(items []spotify.SimpleTrack) {
		for _, t := range items {
			if limit > 0 && len(out) >= limit {
				break
			}
			out = append(out, Track{Name: t.Name, Artist: firstArtist(t.Artists)})
		}
	}
	add(page.Tracks)
	for page.Next != "" && (limit == 0 || len(out) < limit) {
		if err := c.raw.NextPage(ctx, page); err != nil {
			break
		}
		add(page.Tracks)
	}
	return out, CollectionMeta{Title: alb.Name, Source: alb.ExternalURLs["spotify"]}, nil
}

func (c *Client) GetPlaylist(ctx context.Context, id spotify.ID, limit int) ([]Track, CollectionMeta, error) {
	pl, err := c.raw.GetPlaylist(ctx, id)
	if err != nil {
		return nil, CollectionMeta{}, err
	}
	page, err := c.raw.GetPlaylistItems(ctx, id)
	if err != nil {
		return nil, CollectionMeta{}, err
	}
	out := make([]Track, 0, page.Total)
	add := func(items []spotify.PlaylistItem) {
		for _, it := range items {
			if it.Track.Track == nil {
				continue
			}
			if limit > 0 && len(out) >= limit {
				break
			}
			t := it.Track.Track
			out = append(out, Track{Name: t.Name, Artist: firstArtist(t.Artists)})
		}
	}
	add(page.Items)
	for page.Next != "" && (limit == 0 || len(out) < limit) {
		if err := c.raw.NextPage(ctx, page); err != nil {
			break
		}
		add(page.Items)
	}
	return out, CollectionMeta{Title: pl.Name, Source: pl.ExternalURLs["spotify"]}, nil
}

func (c *Client) GetArtistTop(ctx context.Context, id spotify.ID, market string, limit int) ([]Track, error) {
	full, err := c.raw.GetArtistsTopTracks(ctx, id, market)
	if err != nil {
		return nil, err
	}
	out := make([]Track, 0, len(full))
	for _, t := range full {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, Track{Name: t.Name, Artist: firstArtist(t.Artists)})
	}
	return out, nil
}

func firstArtist(artists []spotify.SimpleArtist) string {
	if len(artists) == 0 {
		return ""
	}
	return artists[0].Name
}
