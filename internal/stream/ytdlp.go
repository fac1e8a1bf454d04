package stream

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	ytdlp "github.com/lrstanley/go-ytdlp"

	"github.com/solmari/sonata/internal/player"
)

var installOnce sync.Once

// Resolver turns a media locator (video URL, ytsearch query, or a
// playlist URL plus position) into a playable stream via yt-dlp. It is
// the session's lazy loader; entries only hit yt-dlp when the queue
// cursor reaches them.
type Resolver struct{}

func NewResolver() *Resolver { return &Resolver{} }

// helpers to safely read pointer fields with defaults
func strOf(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func floatOf(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func boolOf(p *bool) bool {
	if p == nil {
		return false
	}
	return *p
}

// Load resolves one locator to a single track. playlistPos > 0 means
// the locator is a playlist URL and only that 1-based entry should be
// extracted.
func (r *Resolver) Load(ctx context.Context, link string, playlistPos int) (*player.LoadedTrack, error) {
	tracks, err := r.run(ctx, link, playlistPos, false)
	if err != nil {
		return nil, err
	}
	return tracks[0], nil
}

// LoadAll resolves a locator that may name a collection (a search
// result set, a SoundCloud set, a bandcamp album) into every entry
// yt-dlp returns, in order.
func (r *Resolver) LoadAll(ctx context.Context, link string) ([]*player.LoadedTrack, error) {
	return r.run(ctx, link, 0, true)
}

func (r *Resolver) run(ctx context.Context, link string, playlistPos int, all bool) ([]*player.LoadedTrack, error) {
	installOnce.Do(func() {
		// availability problems surface on Run; no hard fail here
		ytdlp.MustInstall(ctx, nil)
	})

	cmd := ytdlp.New().
		Format("ba[acodec^=opus]/ba[ext=m4a]/bestaudio/best").
		NoCheckCertificates().
		DumpJSON()
	switch {
	case playlistPos > 0:
		cmd = cmd.PlaylistItems(strconv.Itoa(playlistPos))
	case !all:
		cmd = cmd.NoPlaylist()
	}

	res, err := cmd.Run(ctx, link)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp run: %w", err)
	}
	infos, err := res.GetExtractedInfo()
	if err != nil {
		return nil, fmt.Errorf("parse yt-dlp json: %w", err)
	}
	return tracksFromInfos(infos, link, all)
}

// tracksFromInfos flattens the extraction result. Search results and
// collection extractions come wrapped in container entries; leaves
// unwraps them. In all mode an entry without a playable format is
// skipped; a single lookup fails on it instead.
func tracksFromInfos(infos []*ytdlp.ExtractedInfo, link string, all bool) ([]*player.LoadedTrack, error) {
	var exts []*ytdlp.ExtractedInfo
	for _, info := range infos {
		exts = append(exts, leaves(info)...)
	}
	if len(exts) == 0 {
		return nil, fmt.Errorf("yt-dlp: no result for %q", link)
	}
	if !all {
		exts = exts[:1]
	}

	tracks := make([]*player.LoadedTrack, 0, len(exts))
	for _, ext := range exts {
		track, err := trackOf(ext)
		if err != nil {
			if all {
				continue
			}
			return nil, fmt.Errorf("%w for %q", err, link)
		}
		tracks = append(tracks, track)
	}
	if len(tracks) == 0 {
		return nil, fmt.Errorf("yt-dlp: no playable format for %q", link)
	}
	return tracks, nil
}

func leaves(info *ytdlp.ExtractedInfo) []*ytdlp.ExtractedInfo {
	if info == nil {
		return nil
	}
	if len(info.Entries) == 0 {
		return []*ytdlp.ExtractedInfo{info}
	}
	var out []*ytdlp.ExtractedInfo
	for _, e := range info.Entries {
		out = append(out, leaves(e)...)
	}
	return out
}

func trackOf(ext *ytdlp.ExtractedInfo) (*player.LoadedTrack, error) {
	track := &player.LoadedTrack{
		Title:       strOf(ext.Title),
		Uploader:    strOf(ext.Uploader),
		PageURL:     strOf(ext.WebpageURL),
		DurationSec: int(floatOf(ext.Duration)),
		IsLive:      boolOf(ext.IsLive),
		StreamURL:   audioURL(ext),
	}
	for _, t := range ext.Thumbnails {
		if t != nil && t.URL != "" {
			track.Thumbnail = t.URL
			break
		}
	}
	if track.Title == "" {
		track.Title = ext.ID
	}
	if track.StreamURL == "" {
		return nil, fmt.Errorf("yt-dlp: no playable format")
	}
	return track, nil
}

// audioURL picks the best playable URL: requested formats first, then
// the top-level url, then any format with an http URL.
func audioURL(info *ytdlp.ExtractedInfo) string {
	for _, rf := range info.RequestedFormats {
		if rf != nil && strings.HasPrefix(rf.URL, "http") {
			return rf.URL
		}
	}
	if u := strOf(info.URL); strings.HasPrefix(u, "http") {
		return u
	}
	for _, f := range info.Formats {
		if f != nil && strings.HasPrefix(f.URL, "http") {
			return f.URL
		}
	}
	return ""
}
