package player

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/solmari/sonata/internal/mediainfo"
	"github.com/solmari/sonata/internal/utils"
)

// textWidth caps titles and uploader names in the rendered view.
const textWidth = 50

// songSeq hands out process-wide unique song IDs. The ID is what the
// select menu submits, so it must stay stable while queue positions
// shift around it.
var songSeq atomic.Int64

type LoadState int

const (
	LoadStateUnloaded LoadState = iota
	LoadStateLoaded
	LoadStateError
	LoadStatePrivate // private implies failed; never leaves this state
)

// Song is one queue entry. Everything except ID and the source locators
// can change exactly once, when the entry is loaded.
type Song struct {
	ID int64

	mu          sync.Mutex
	state       LoadState
	videoURL    string
	playlistURL string
	playlistPos int

	title        string
	uploader     string
	durationText string
	desc         string
	streamURL    string
	thumbnail    string
}

// NewSongFromItem builds an unloaded entry from a lookup result.
// Non-public items come out already failed.
func NewSongFromItem(it mediainfo.Item) *Song {
	s := &Song{
		ID:           songSeq.Add(1),
		title:        utils.Truncate(it.Title, textWidth),
		uploader:     utils.Truncate(it.ChannelTitle, textWidth),
		durationText: "loading...",
		videoURL:     "https://www.youtube.com/watch?v=" + it.VideoID,
	}
	s.desc = s.uploader
	if it.PlaylistID != "" {
		s.playlistURL = "https://www.youtube.com/playlist?list=" + it.PlaylistID
		s.playlistPos = it.Position + 1 // yt-dlp playlist items are 1-based
	}
	if !it.Public {
		s.state = LoadStatePrivate
	}
	return s
}

// NewSongFromTrack builds an already-loaded entry from a resolved fetch.
func NewSongFromTrack(t *LoadedTrack) *Song {
	s := &Song{ID: songSeq.Add(1)}
	s.applyTrack(t)
	return s
}

// NewSongFromSearch builds an unloaded entry whose locator is a search
// expression resolved lazily, e.g. a Spotify track mapped to
// `ytsearch1:"name" "artist"`.
func NewSongFromSearch(query, title, uploader string) *Song {
	s := &Song{
		ID:           songSeq.Add(1),
		title:        utils.Truncate(title, textWidth),
		uploader:     utils.Truncate(uploader, textWidth),
		durationText: "loading...",
		videoURL:     query,
	}
	s.desc = s.uploader
	return s
}

// applyTrack fills the display metadata. Caller must hold s.mu or own
// the song exclusively.
func (s *Song) applyTrack(t *LoadedTrack) {
	s.title = utils.Truncate(t.Title, textWidth)
	s.uploader = utils.Truncate(t.Uploader, textWidth)
	if t.IsLive || t.DurationSec <= 0 {
		s.durationText = "Stream"
	} else {
		s.durationText = utils.PrettyTime(t.DurationSec)
	}
	s.desc = s.uploader + " - " + s.durationText
	if t.PageURL != "" {
		s.videoURL = t.PageURL
	}
	s.streamURL = t.StreamURL
	s.thumbnail = t.Thumbnail
	s.state = LoadStateLoaded
}

// Load resolves the entry's stream URL and metadata. A failed or
// already-loaded entry is left untouched; a failed resolution marks the
// entry as errored for good.
func (s *Song) Load(ctx context.Context, loader Loader) {
	s.mu.Lock()
	if s.state != LoadStateUnloaded {
		s.mu.Unlock()
		return
	}
	link := s.videoURL
	pos := 0
	if link == "" {
		link = s.playlistURL
		pos = s.playlistPos
	}
	s.mu.Unlock()

	t, err := loader.Load(ctx, link, pos)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != LoadStateUnloaded {
		return
	}
	if err != nil || t == nil {
		s.state = LoadStateError
		return
	}
	s.applyTrack(t)
}

func (s *Song) State() LoadState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Song) Loaded() bool { return s.State() == LoadStateLoaded }

// Failed reports whether the entry can never play.
func (s *Song) Failed() bool {
	st := s.State()
	return st == LoadStateError || st == LoadStatePrivate
}

func (s *Song) Private() bool { return s.State() == LoadStatePrivate }

func (s *Song) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

func (s *Song) Desc() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.desc
}

func (s *Song) DurationText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.durationText
}

func (s *Song) StreamURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamURL
}

func (s *Song) Thumbnail() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.thumbnail
}

func (s *Song) VideoURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.videoURL
}

func (s *Song) PlaylistURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playlistURL
}
