package player

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

type State int32

const (
	StateReady   State = iota // idle, nothing active; initial and reset target
	StateLoading              // a start request is initializing
	StatePlaying
	StatePaused
	StateOnNext // a deliberate skip/select is swapping tracks
	StateExit   // shutting down this playback cycle
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateOnNext:
		return "on_next"
	case StateExit:
		return "exit"
	}
	return "unknown"
}

// Settings are the per-session knobs, resolved from process config and
// any per-guild overrides before the session starts.
type Settings struct {
	PausedTimeout  time.Duration
	EmptyTimeout   time.Duration
	DJGrace        time.Duration
	LeaveIfEmpty   bool
	StartingVolume int
	MaxVolume      int
}

// Session is the per-guild playback state machine. All control-surface
// transitions are serialized by the gate; the playback loop takes the
// gate over from skip/select and releases it once streaming starts, so
// a long resolve-and-play never blocks the advisory held-checks for the
// whole track duration.
type Session struct {
	guildID  string
	settings Settings
	voice    VoiceTransport
	presence Presence
	queue    *Queue

	gate    sync.Mutex
	state   atomic.Int32
	loopGen atomic.Uint64 // bumped per playback loop; stale loops detect supersession

	mu     sync.Mutex // guards dj, volume, view
	dj     string
	volume int
	view   View

	timerEmpty  DelayedTask
	timerPaused DelayedTask
	timerDJ     DelayedTask
}

func NewSession(guildID string, settings Settings, voice VoiceTransport, presence Presence, loader Loader) *Session {
	s := &Session{
		guildID:  guildID,
		settings: settings,
		voice:    voice,
		presence: presence,
		queue:    NewQueue(loader),
		volume:   settings.StartingVolume,
	}
	s.state.Store(int32(StateReady))
	return s
}

func (s *Session) GuildID() string { return s.guildID }
func (s *Session) Queue() *Queue   { return s.queue }

func (s *Session) State() State      { return State(s.state.Load()) }
func (s *Session) setState(st State) { s.state.Store(int32(st)) }

func (s *Session) DJ() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dj
}

func (s *Session) setDJ(id string) {
	s.mu.Lock()
	s.dj = id
	s.mu.Unlock()
}

func (s *Session) Volume() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

func (s *Session) SetView(v View) {
	s.mu.Lock()
	s.view = v
	s.mu.Unlock()
}

func (s *Session) View() View { return s.currentView() }

func (s *Session) VoiceConnected() bool  { return s.voice.Connected() }
func (s *Session) VoiceChannelID() string { return s.voice.ChannelID() }

// RefreshView re-renders the control surface for the entry under the
// queue cursor.
func (s *Session) RefreshView() { s.updateViewOrStop(nil) }

func (s *Session) currentView() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// ApplySettings swaps the session knobs. Only meaningful between
// playback cycles, before Init.
func (s *Session) ApplySettings(settings Settings) {
	s.settings = settings
}

func (s *Session) Settings() Settings { return s.settings }

// TryStartup claims an idle session for a new playback cycle, moving
// ready to loading atomically. Of two concurrent start requests exactly
// one wins the claim.
func (s *Session) TryStartup() bool {
	return s.state.CompareAndSwap(int32(StateReady), int32(StateLoading))
}

// Init moves a fresh session into loading on behalf of the requester.
func (s *Session) Init(actor Actor) {
	s.setState(StateLoading)
	s.mu.Lock()
	s.dj = actor.ID
	s.volume = s.settings.StartingVolume
	s.mu.Unlock()
}

// Reset restores the session to its idle defaults for reuse. Any loop
// still unwinding is invalidated by the generation bump.
func (s *Session) Reset() {
	s.loopGen.Add(1)
	s.timerEmpty.Disarm()
	s.timerPaused.Disarm()
	s.timerDJ.Disarm()
	s.queue.Clear()
	s.mu.Lock()
	s.dj = ""
	s.view = nil
	s.volume = s.settings.StartingVolume
	s.mu.Unlock()
	s.setState(StateReady)
}

// Stop funnels every session-fatal condition through one transition:
// mark exit and interrupt the transport, then let the playback loop (or
// nobody, if none is running) do the uniform cleanup.
func (s *Session) Stop() {
	s.gate.Lock()
	s.stopLocked()
	s.gate.Unlock()
}

func (s *Session) stopLocked() {
	if s.State() == StateReady {
		return
	}
	s.setState(StateExit)
	if s.voice.Connected() {
		s.voice.Stop()
	}
}

// acquireAndCanContinue takes the gate and checks that the session is in
// a state worth mutating. Stale button presses on an ended (or not yet
// started) session bail out here without touching anything. On true the
// gate stays held; the caller or the playback loop releases it.
func (s *Session) acquireAndCanContinue() bool {
	s.gate.Lock()
	st := s.State()
	if st == StateExit || st == StateReady {
		s.gate.Unlock()
		return false
	}
	return true
}

// gateHeld is an advisory check: true when some mutation is in flight.
func (s *Session) gateHeld() bool {
	if s.gate.TryLock() {
		s.gate.Unlock()
		return false
	}
	return true
}

// IsAllowed gates every user interaction. Destructive actions
// (restrictToDJ) need the DJ seat or admin standing; everything else
// just needs the actor in the session's voice channel.
func (s *Session) IsAllowed(actor Actor, restrictToDJ bool) bool {
	st := s.State()
	if s.gateHeld() || st == StateExit || st == StateOnNext || st == StateLoading {
		return false
	}
	if restrictToDJ {
		dj := s.DJ()
		return (dj != "" && dj == actor.ID && s.settings.LeaveIfEmpty) || actor.IsAdmin
	}
	return actor.ChannelID != "" && actor.ChannelID == s.voice.ChannelID()
}

// Connect joins the given voice channel.
func (s *Session) Connect(ctx context.Context, channelID string) error {
	return s.voice.Join(ctx, channelID)
}

// PlayLoop drives playback until the session exits or an explicit
// skip/select supersedes this loop. gateHeld tells the loop whether the
// caller handed the gate over (skip/select do; a fresh start does not);
// it is released once the first track is streaming.
func (s *Session) PlayLoop(ctx context.Context, song *Song, gateHeld bool) {
	gen := s.loopGen.Add(1)

	if err := s.updateView(song); errors.Is(err, ErrViewGone) {
		s.setState(StateExit)
	}
	if gateHeld {
		s.gate.Unlock()
	}

	for s.State() != StateExit {
		s.play(ctx, song)
		s.timerPaused.Disarm()

		if s.loopGen.Load() != gen {
			return // a newer loop owns playback now
		}
		if !s.voice.Connected() || s.State() == StateExit {
			break // kicked, connection lost, or stopped
		}
		if s.State() == StateOnNext {
			// an explicit skip/select resolved the next track and will
			// run its own loop; returning here avoids a double start
			return
		}

		// natural end of track: advance the queue ourselves, marking
		// on_next so button presses during resolution bounce off
		s.setState(StateOnNext)
		song = s.queue.Advance(ctx, true)
		if song == nil {
			s.setState(StateExit)
			break
		}
		if err := s.updateView(song); errors.Is(err, ErrViewGone) {
			s.setState(StateExit)
		}
	}

	s.timerEmpty.Disarm()
	s.timerDJ.Disarm()
	if s.voice.Connected() {
		if err := s.voice.Disconnect(); err != nil {
			slog.Warn("voice disconnect failed", "guildID", s.guildID, "err", err)
		}
	}
	if v := s.currentView(); v != nil {
		// the message may already be gone; that is fine on the way out
		_ = v.Close(BuildTerminalEmbed(s, "STOPPED"))
	}
	s.Reset()
}

func (s *Session) play(ctx context.Context, song *Song) {
	if !s.voice.Connected() {
		s.Stop()
		return
	}
	s.setState(StatePlaying)
	if err := s.voice.Play(ctx, song.StreamURL(), s.Volume()); err != nil {
		slog.Warn("voice play failed", "guildID", s.guildID, "title", song.Title(), "err", err)
	}
}

// updateView re-renders the control surface for the given song (nil
// means the entry under the cursor).
func (s *Session) updateView(song *Song) error {
	v := s.currentView()
	if v == nil {
		return nil
	}
	if song == nil {
		song = s.queue.Current()
	}
	if song == nil {
		return nil
	}
	return v.Update(BuildPlayerEmbed(s, song), BuildComponents(s, song))
}

// updateViewOrStop is the handler-path variant: a vanished view means
// the session is defunct and gets stopped.
func (s *Session) updateViewOrStop(song *Song) {
	if err := s.updateView(song); errors.Is(err, ErrViewGone) {
		s.Stop()
	}
}

// refreshAndRelease re-renders the view and hands the gate back. A
// vanished view escalates to exit while the gate is still held.
func (s *Session) refreshAndRelease() {
	if err := s.updateView(nil); errors.Is(err, ErrViewGone) {
		s.stopLocked()
	}
	s.gate.Unlock()
}

// Pause suspends playback and arms the paused-too-long timer. A pause
// that lands after the session already ended is a no-op.
func (s *Session) Pause() {
	if !s.acquireAndCanContinue() {
		return
	}
	s.setState(StatePaused)
	if s.voice.Playing() {
		s.voice.Pause()
	}
	s.timerPaused.Arm(s.settings.PausedTimeout, func() {
		slog.Info("paused too long, stopping", "guildID", s.guildID)
		s.Stop()
	})
	s.refreshAndRelease()
}

// Resume continues playback and disarms the paused timer.
func (s *Session) Resume() {
	if !s.acquireAndCanContinue() {
		return
	}
	s.timerPaused.Disarm()
	s.setState(StatePlaying)
	if !s.voice.Playing() {
		s.voice.Resume()
	}
	s.refreshAndRelease()
}

// Skip stops the current track and continues with the queue's next
// song, or exits when the queue has nothing left to play.
func (s *Session) Skip(ctx context.Context) {
	if !s.acquireAndCanContinue() {
		return
	}
	s.setState(StateOnNext)
	song := s.queue.Advance(ctx, true)
	if song == nil {
		s.stopLocked()
		s.gate.Unlock()
		return
	}
	s.voice.Stop()
	s.PlayLoop(ctx, song, true)
}

// Select jumps to a specific queue entry picked from the song menu.
func (s *Session) Select(ctx context.Context, songID int64) error {
	if !s.acquireAndCanContinue() {
		return nil
	}
	song := s.queue.FindByID(ctx, songID, true, true)
	if song == nil || song.Failed() {
		s.gate.Unlock()
		return ErrSongUnavailable
	}
	s.setState(StateOnNext)
	s.voice.Stop()
	s.PlayLoop(ctx, song, true)
	return nil
}

func (s *Session) ToggleShuffle() {
	if !s.acquireAndCanContinue() {
		return
	}
	s.queue.ToggleShuffle()
	s.refreshAndRelease()
}

// VolumeLower steps the volume down, in finer steps below 10%.
func (s *Session) VolumeLower() {
	if !s.acquireAndCanContinue() {
		return
	}
	s.mu.Lock()
	if s.volume > 10 {
		s.volume -= 10
	} else if s.volume > 2 {
		s.volume -= 2
	}
	v := s.volume
	s.mu.Unlock()
	s.voice.SetVolume(v)
	s.refreshAndRelease()
}

// VolumeHigher steps the volume up, in finer steps below 10%.
func (s *Session) VolumeHigher() {
	if !s.acquireAndCanContinue() {
		return
	}
	s.mu.Lock()
	if s.volume < 10 {
		s.volume += 2
	} else if s.volume < s.settings.MaxVolume {
		s.volume += 10
	}
	if s.volume > s.settings.MaxVolume {
		s.volume = s.settings.MaxVolume
	}
	v := s.volume
	s.mu.Unlock()
	s.voice.SetVolume(v)
	s.refreshAndRelease()
}

// Move follows the actor into their voice channel. A failed join mid-
// session leaves the bot disconnected from the old channel, so it must
// escalate to a full stop.
func (s *Session) Move(ctx context.Context, actor Actor) error {
	if actor.ChannelID == "" || actor.ChannelID == s.voice.ChannelID() {
		return nil
	}
	s.timerDJ.Disarm()
	s.timerPaused.Disarm()
	if err := s.voice.Join(ctx, actor.ChannelID); err != nil {
		s.Stop()
		return ErrCannotJoin
	}
	s.updateViewOrStop(nil)
	return nil
}

// OnMemberLeave reacts to someone leaving the session's voice channel.
// A departing DJ gets a grace period to come back before the seat is
// handed over; anyone else leaving just triggers the empty-channel
// check.
func (s *Session) OnMemberLeave(userID string) {
	st := s.State()
	if st == StateExit || st == StateReady || st == StateLoading {
		return
	}
	if dj := s.DJ(); dj != "" && userID == dj {
		s.timerDJ.Arm(s.settings.DJGrace, s.handleDJDeparture)
		return
	}
	s.afterDeparture()
}

func (s *Session) handleDJDeparture() {
	occ := s.presence.NonBotOccupants(s.voice.ChannelID())
	if len(occ) > 0 {
		slog.Info("dj handover", "guildID", s.guildID, "newDJ", occ[0])
		s.setDJ(occ[0])
		s.updateViewOrStop(nil)
		return
	}
	s.setDJ("")
	s.updateViewOrStop(nil)
	s.afterDeparture()
}

func (s *Session) afterDeparture() {
	if !s.voice.Connected() {
		st := s.State()
		if st == StatePlaying || st == StateOnNext || st == StatePaused {
			s.Stop()
		}
		return
	}
	occ := s.presence.NonBotOccupants(s.voice.ChannelID())
	if s.settings.LeaveIfEmpty && len(occ) == 0 {
		s.timerEmpty.Arm(s.settings.EmptyTimeout, func() {
			slog.Info("channel empty, stopping", "guildID", s.guildID)
			s.Stop()
		})
	}
}

// OnMemberJoin reacts to someone joining the session's voice channel:
// the empty-channel countdown is called off, a vacant DJ seat goes to
// the joiner, and a returning DJ keeps the seat.
func (s *Session) OnMemberJoin(userID string) {
	st := s.State()
	if st == StateExit || st == StateReady || st == StateLoading {
		return
	}
	s.timerEmpty.Disarm()
	switch dj := s.DJ(); {
	case dj == "":
		s.setDJ(userID)
		s.updateViewOrStop(nil)
	case dj == userID:
		s.timerDJ.Disarm()
	}
}

// ChannelName names the channel the session currently occupies.
func (s *Session) ChannelName() string {
	id := s.voice.ChannelID()
	if id == "" {
		return ""
	}
	return s.presence.ChannelName(id)
}
