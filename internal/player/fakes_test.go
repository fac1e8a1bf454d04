package player

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
)

// stubLoader resolves locators instantly and fails the ones listed in
// fail.
type stubLoader struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (l *stubLoader) Load(ctx context.Context, link string, playlistPos int) (*LoadedTrack, error) {
	l.mu.Lock()
	l.calls = append(l.calls, link)
	bad := l.fail[link]
	l.mu.Unlock()
	if bad {
		return nil, errors.New("resolve failed")
	}
	return &LoadedTrack{
		Title:       "t-" + link,
		Uploader:    "uploader",
		PageURL:     link,
		StreamURL:   "https://stream.test/" + link,
		DurationSec: 180,
	}, nil
}

// gateLoader parks every Load until release is closed. started gets one
// send per call so tests can interleave with an in-flight load.
type gateLoader struct {
	started chan struct{}
	release chan struct{}
}

func newGateLoader() *gateLoader {
	return &gateLoader{started: make(chan struct{}, 1), release: make(chan struct{})}
}

func (l *gateLoader) Load(ctx context.Context, link string, playlistPos int) (*LoadedTrack, error) {
	l.started <- struct{}{}
	<-l.release
	return &LoadedTrack{
		Title:       "t-" + link,
		PageURL:     link,
		StreamURL:   "https://stream.test/" + link,
		DurationSec: 180,
	}, nil
}

func (l *stubLoader) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.calls)
}

// fakeVoice implements VoiceTransport in memory. With blocking set,
// Play parks until Stop; otherwise it returns immediately. After
// maxPlays calls to Play the connection reports as dropped, which ends
// a playback loop that would otherwise cycle the queue forever.
type fakeVoice struct {
	mu        sync.Mutex
	connected bool
	channelID string
	playing   bool
	paused    bool
	volume    int
	blocking  bool
	maxPlays  int
	plays     []string
	stop      chan struct{}
	joinErr   error
}

func newFakeVoice() *fakeVoice {
	return &fakeVoice{connected: true, channelID: "vc1"}
}

func (v *fakeVoice) Join(ctx context.Context, channelID string) error {
	if v.joinErr != nil {
		return v.joinErr
	}
	v.mu.Lock()
	v.connected = true
	v.channelID = channelID
	v.mu.Unlock()
	return nil
}

func (v *fakeVoice) Play(ctx context.Context, streamURL string, volume int) error {
	v.mu.Lock()
	v.plays = append(v.plays, streamURL)
	v.playing = true
	v.volume = volume
	if v.maxPlays > 0 && len(v.plays) >= v.maxPlays {
		v.connected = false
	}
	stop := make(chan struct{})
	v.stop = stop
	blocking := v.blocking
	v.mu.Unlock()

	if blocking {
		select {
		case <-stop:
		case <-ctx.Done():
		}
	}

	v.mu.Lock()
	v.playing = false
	v.mu.Unlock()
	return nil
}

func (v *fakeVoice) Pause()  { v.mu.Lock(); v.paused = true; v.mu.Unlock() }
func (v *fakeVoice) Resume() { v.mu.Lock(); v.paused = false; v.mu.Unlock() }

func (v *fakeVoice) SetVolume(volume int) {
	v.mu.Lock()
	v.volume = volume
	v.mu.Unlock()
}

func (v *fakeVoice) Stop() {
	v.mu.Lock()
	if v.stop != nil {
		close(v.stop)
		v.stop = nil
	}
	v.mu.Unlock()
}

func (v *fakeVoice) Disconnect() error {
	v.Stop()
	v.mu.Lock()
	v.connected = false
	v.mu.Unlock()
	return nil
}

func (v *fakeVoice) ChannelID() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.channelID
}

func (v *fakeVoice) Connected() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.connected
}

func (v *fakeVoice) Playing() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.playing && !v.paused
}

func (v *fakeVoice) playCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.plays)
}

// fakePresence answers occupancy from a fixed map.
type fakePresence struct {
	mu        sync.Mutex
	occupants map[string][]string
}

func (p *fakePresence) NonBotOccupants(channelID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.occupants[channelID]
}

func (p *fakePresence) ChannelName(channelID string) string { return "channel-" + channelID }

func (p *fakePresence) setOccupants(channelID string, users []string) {
	p.mu.Lock()
	p.occupants[channelID] = users
	p.mu.Unlock()
}

// fakeView counts renders and can simulate a deleted message.
type fakeView struct {
	mu      sync.Mutex
	updates int
	closed  bool
	gone    bool
}

func (v *fakeView) Update(embed *discordgo.MessageEmbed, components []discordgo.MessageComponent) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.gone {
		return ErrViewGone
	}
	v.updates++
	return nil
}

func (v *fakeView) Close(embed *discordgo.MessageEmbed) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.gone {
		return ErrViewGone
	}
	v.closed = true
	return nil
}

func (v *fakeView) wasClosed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testSettings() Settings {
	return Settings{
		PausedTimeout:  40 * time.Millisecond,
		EmptyTimeout:   40 * time.Millisecond,
		DJGrace:        20 * time.Millisecond,
		LeaveIfEmpty:   true,
		StartingVolume: 10,
		MaxVolume:      100,
	}
}
