package player

import (
	"context"
	"testing"
	"time"
)

func newTestSession(blocking bool) (*Session, *fakeVoice, *fakePresence, *fakeView) {
	voice := newFakeVoice()
	voice.blocking = blocking
	presence := &fakePresence{occupants: map[string][]string{}}
	s := NewSession("g1", testSettings(), voice, presence, &stubLoader{})
	view := &fakeView{}
	s.SetView(view)
	return s, voice, presence, view
}

// startPlaying enqueues the locators, resolves the first entry and runs
// the playback loop in the background until the session is streaming.
func startPlaying(t *testing.T, s *Session, locators ...string) {
	t.Helper()
	songs := make([]*Song, 0, len(locators))
	for _, l := range locators {
		songs = append(songs, searchSong(l))
	}
	s.Init(Actor{ID: "dj1", ChannelID: "vc1"})
	s.Queue().EnqueueBatch(songs)
	first := s.Queue().Advance(context.Background(), false)
	if first == nil {
		t.Fatal("no playable first song")
	}
	go s.PlayLoop(context.Background(), first, false)
	waitFor(t, "session to start playing", func() bool { return s.State() == StatePlaying })
}

func TestInitAndReset(t *testing.T) {
	s, _, _, _ := newTestSession(false)

	s.Init(Actor{ID: "dj1", ChannelID: "vc1"})
	if s.State() != StateLoading {
		t.Errorf("state after Init = %v, want loading", s.State())
	}
	if s.DJ() != "dj1" {
		t.Errorf("DJ = %q, want dj1", s.DJ())
	}
	if s.Volume() != 10 {
		t.Errorf("volume = %d, want starting volume", s.Volume())
	}

	s.Queue().EnqueueBatch([]*Song{searchSong("a")})
	s.Reset()
	if s.State() != StateReady || s.DJ() != "" || s.Queue().Len() != 0 {
		t.Errorf("after Reset: state=%v dj=%q len=%d", s.State(), s.DJ(), s.Queue().Len())
	}
}

func TestStartupClaimIsExclusive(t *testing.T) {
	s, _, _, _ := newTestSession(false)

	if !s.TryStartup() {
		t.Fatal("claim on an idle session refused")
	}
	if s.State() != StateLoading {
		t.Fatalf("state = %v after claim, want loading", s.State())
	}
	if s.TryStartup() {
		t.Error("second claim succeeded on a loading session")
	}

	s.Reset()
	if !s.TryStartup() {
		t.Error("claim after reset refused")
	}
}

func TestPlayLoopCyclesUntilConnectionDrops(t *testing.T) {
	s, voice, _, view := newTestSession(false)
	voice.maxPlays = 3

	songs := []*Song{searchSong("a"), searchSong("b")}
	s.Init(Actor{ID: "dj1", ChannelID: "vc1"})
	s.Queue().EnqueueBatch(songs)
	first := s.Queue().Advance(context.Background(), false)

	s.PlayLoop(context.Background(), first, false)

	want := []string{"https://stream.test/a", "https://stream.test/b", "https://stream.test/a"}
	if len(voice.plays) != len(want) {
		t.Fatalf("plays = %v, want %v", voice.plays, want)
	}
	for i := range want {
		if voice.plays[i] != want[i] {
			t.Errorf("plays[%d] = %q, want %q", i, voice.plays[i], want[i])
		}
	}
	if s.State() != StateReady {
		t.Errorf("state after loop = %v, want ready", s.State())
	}
	if !view.wasClosed() {
		t.Error("view was not closed on the way out")
	}
	if s.Queue().Len() != 0 {
		t.Error("queue not cleared after the loop ended")
	}
}

func TestStopEndsSession(t *testing.T) {
	s, voice, _, view := newTestSession(true)
	startPlaying(t, s, "a", "b")

	s.Stop()
	waitFor(t, "session to reset", func() bool { return s.State() == StateReady })
	if voice.Connected() {
		t.Error("voice still connected after stop")
	}
	if !view.wasClosed() {
		t.Error("view not closed after stop")
	}
}

func TestPauseAndResume(t *testing.T) {
	s, voice, _, _ := newTestSession(true)
	startPlaying(t, s, "a")

	s.Pause()
	if s.State() != StatePaused {
		t.Fatalf("state = %v, want paused", s.State())
	}
	s.Resume()
	if s.State() != StatePlaying {
		t.Fatalf("state = %v, want playing", s.State())
	}

	// the paused timer must be disarmed by Resume
	time.Sleep(100 * time.Millisecond)
	if s.State() != StatePlaying {
		t.Errorf("state = %v after resume, paused timer fired anyway", s.State())
	}
	_ = voice

	s.Stop()
	waitFor(t, "session to reset", func() bool { return s.State() == StateReady })
}

func TestPausedTooLongStops(t *testing.T) {
	s, _, _, _ := newTestSession(true)
	startPlaying(t, s, "a")

	s.Pause()
	waitFor(t, "paused timeout to stop the session", func() bool { return s.State() == StateReady })
}

func TestStalePauseOnIdleSession(t *testing.T) {
	s, _, _, _ := newTestSession(true)
	startPlaying(t, s, "a")

	s.Stop()
	waitFor(t, "session to reset", func() bool { return s.State() == StateReady })

	// a pause landing after the reset must not touch the session
	s.Pause()
	if s.State() != StateReady {
		t.Fatalf("state after stale pause = %v, want ready", s.State())
	}
	time.Sleep(100 * time.Millisecond)
	if s.State() != StateReady {
		t.Fatalf("state = %v, paused timer fired on an idle session", s.State())
	}
}

func TestControlsIgnoredOnIdleSession(t *testing.T) {
	s, voice, _, _ := newTestSession(false)

	s.Resume()
	s.ToggleShuffle()
	s.VolumeLower()
	s.VolumeHigher()

	if s.State() != StateReady {
		t.Errorf("state = %v, want ready", s.State())
	}
	if s.Queue().Shuffle() {
		t.Error("shuffle toggled on an idle session")
	}
	if s.Volume() != 10 {
		t.Errorf("volume = %d, want untouched starting volume", s.Volume())
	}
	_ = voice
}

func TestSkipMovesToNextSong(t *testing.T) {
	s, voice, _, _ := newTestSession(true)
	startPlaying(t, s, "a", "b")

	go s.Skip(context.Background())
	waitFor(t, "next song to start", func() bool {
		voice.mu.Lock()
		defer voice.mu.Unlock()
		return len(voice.plays) == 2 && voice.plays[1] == "https://stream.test/b"
	})

	s.Stop()
	waitFor(t, "session to reset", func() bool { return s.State() == StateReady })
}

func TestSkipSingleSongReplaysIt(t *testing.T) {
	s, voice, _, _ := newTestSession(true)
	startPlaying(t, s, "a")

	go s.Skip(context.Background())
	waitFor(t, "song to restart", func() bool {
		voice.mu.Lock()
		defer voice.mu.Unlock()
		return len(voice.plays) == 2 && voice.plays[1] == voice.plays[0]
	})

	s.Stop()
	waitFor(t, "session to reset", func() bool { return s.State() == StateReady })
}

func TestSelectJumpsToEntry(t *testing.T) {
	s, voice, _, _ := newTestSession(true)
	startPlaying(t, s, "a", "b", "c")
	target := s.Queue().Snapshot()[2]

	go func() { _ = s.Select(context.Background(), target.ID) }()
	waitFor(t, "selected song to start", func() bool {
		voice.mu.Lock()
		defer voice.mu.Unlock()
		return len(voice.plays) == 2 && voice.plays[1] == "https://stream.test/c"
	})
	if s.Queue().Pos() != 2 {
		t.Errorf("pos = %d, want 2", s.Queue().Pos())
	}

	s.Stop()
	waitFor(t, "session to reset", func() bool { return s.State() == StateReady })
}

func TestIsAllowedStateAndChannelChecks(t *testing.T) {
	s, _, _, _ := newTestSession(true)

	s.Init(Actor{ID: "dj1", ChannelID: "vc1"})
	if s.IsAllowed(Actor{ID: "u1", ChannelID: "vc1"}, false) {
		t.Error("allowed while loading")
	}

	s.Reset()
	startPlaying(t, s, "a")
	if !s.IsAllowed(Actor{ID: "u1", ChannelID: "vc1"}, false) {
		t.Error("refused an actor in the session's channel")
	}
	if s.IsAllowed(Actor{ID: "u1", ChannelID: "vc9"}, false) {
		t.Error("allowed an actor from another channel")
	}
	if s.IsAllowed(Actor{ID: "u1"}, false) {
		t.Error("allowed an actor not in voice at all")
	}

	s.Stop()
	waitFor(t, "session to reset", func() bool { return s.State() == StateReady })
	if s.IsAllowed(Actor{ID: "u1", ChannelID: "vc1"}, false) {
		t.Error("allowed on an idle session")
	}
}

func TestIsAllowedDJPolicy(t *testing.T) {
	s, _, _, _ := newTestSession(true)
	startPlaying(t, s, "a")

	if !s.IsAllowed(Actor{ID: "dj1", ChannelID: "vc1"}, true) {
		t.Error("DJ refused a restricted action")
	}
	if s.IsAllowed(Actor{ID: "u2", ChannelID: "vc1"}, true) {
		t.Error("non-DJ allowed a restricted action")
	}
	if !s.IsAllowed(Actor{ID: "u2", ChannelID: "vc1", IsAdmin: true}, true) {
		t.Error("admin refused a restricted action")
	}

	s.Stop()
	waitFor(t, "session to reset", func() bool { return s.State() == StateReady })
}

func TestIsAllowedDJPolicyWithoutLeaveIfEmpty(t *testing.T) {
	s, _, _, _ := newTestSession(true)
	settings := testSettings()
	settings.LeaveIfEmpty = false
	s.ApplySettings(settings)
	startPlaying(t, s, "a")

	// without leave-if-empty the DJ seat grants nothing extra
	if s.IsAllowed(Actor{ID: "dj1", ChannelID: "vc1"}, true) {
		t.Error("DJ allowed a restricted action with leave-if-empty off")
	}
	if !s.IsAllowed(Actor{ID: "u2", ChannelID: "vc1", IsAdmin: true}, true) {
		t.Error("admin refused a restricted action")
	}

	s.Stop()
	waitFor(t, "session to reset", func() bool { return s.State() == StateReady })
}

func TestVolumeSteps(t *testing.T) {
	s, voice, _, _ := newTestSession(false)
	s.Init(Actor{ID: "dj1", ChannelID: "vc1"})

	s.VolumeLower()
	if s.Volume() != 8 {
		t.Errorf("volume = %d after lower from 10, want 8", s.Volume())
	}
	s.VolumeHigher()
	if s.Volume() != 10 {
		t.Errorf("volume = %d after raise from 8, want 10", s.Volume())
	}
	s.VolumeHigher()
	if s.Volume() != 20 {
		t.Errorf("volume = %d after raise from 10, want 20", s.Volume())
	}
	s.VolumeLower()
	if s.Volume() != 10 {
		t.Errorf("volume = %d after lower from 20, want 10", s.Volume())
	}
	if voice.volume != 10 {
		t.Errorf("transport volume = %d, want 10", voice.volume)
	}
}

func TestVolumeClampsAtMax(t *testing.T) {
	s, _, _, _ := newTestSession(false)
	settings := testSettings()
	settings.StartingVolume = 20
	settings.MaxVolume = 25
	s.ApplySettings(settings)
	s.Init(Actor{ID: "dj1", ChannelID: "vc1"})

	s.VolumeHigher()
	if s.Volume() != 25 {
		t.Errorf("volume = %d, want clamp at 25", s.Volume())
	}
	s.VolumeHigher()
	if s.Volume() != 25 {
		t.Errorf("volume = %d, must not pass the max", s.Volume())
	}
}

func TestDJHandoverAfterGrace(t *testing.T) {
	s, _, presence, _ := newTestSession(true)
	presence.setOccupants("vc1", []string{"u2"})
	startPlaying(t, s, "a")

	s.OnMemberLeave("dj1")
	waitFor(t, "DJ handover", func() bool { return s.DJ() == "u2" })

	s.Stop()
	waitFor(t, "session to reset", func() bool { return s.State() == StateReady })
}

func TestDJReturnWithinGraceKeepsSeat(t *testing.T) {
	s, _, presence, _ := newTestSession(true)
	presence.setOccupants("vc1", []string{"u2"})
	startPlaying(t, s, "a")

	s.OnMemberLeave("dj1")
	s.OnMemberJoin("dj1")
	time.Sleep(80 * time.Millisecond)
	if s.DJ() != "dj1" {
		t.Errorf("DJ = %q, the returning DJ lost the seat", s.DJ())
	}

	s.Stop()
	waitFor(t, "session to reset", func() bool { return s.State() == StateReady })
}

func TestEmptyChannelStopsAfterTimeout(t *testing.T) {
	s, _, presence, _ := newTestSession(true)
	presence.setOccupants("vc1", nil)
	startPlaying(t, s, "a")

	s.OnMemberLeave("u5")
	waitFor(t, "empty-channel stop", func() bool { return s.State() == StateReady })
}

func TestJoinCancelsEmptyTimer(t *testing.T) {
	s, _, presence, _ := newTestSession(true)
	presence.setOccupants("vc1", nil)
	startPlaying(t, s, "a")

	s.OnMemberLeave("u5")
	presence.setOccupants("vc1", []string{"u7"})
	s.OnMemberJoin("u7")

	time.Sleep(100 * time.Millisecond)
	if s.State() != StatePlaying {
		t.Errorf("state = %v, empty timer fired despite the join", s.State())
	}

	s.Stop()
	waitFor(t, "session to reset", func() bool { return s.State() == StateReady })
}

func TestViewGoneEndsLoop(t *testing.T) {
	s, voice, _, view := newTestSession(true)
	view.gone = true

	s.Init(Actor{ID: "dj1", ChannelID: "vc1"})
	s.Queue().EnqueueBatch([]*Song{searchSong("a")})
	first := s.Queue().Advance(context.Background(), false)

	s.PlayLoop(context.Background(), first, false)
	if voice.playCount() != 0 {
		t.Error("played despite the view being gone")
	}
	if s.State() != StateReady {
		t.Errorf("state = %v, want ready", s.State())
	}
}
