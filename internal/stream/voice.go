package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Voice is one guild's voice connection. It decodes the stream URL
// with FFmpeg, scales the samples to the session volume, encodes to
// Opus and paces packets onto the Discord voice websocket.
type Voice struct {
	session *discordgo.Session
	guildID string

	mu      sync.Mutex
	vc      *discordgo.VoiceConnection
	stop    chan struct{}
	playing bool
	paused  bool

	volume atomic.Int32 // percent
}

func NewVoice(session *discordgo.Session, guildID string) *Voice {
	return &Voice{session: session, guildID: guildID}
}

func (v *Voice) Join(ctx context.Context, channelID string) error {
	vc, err := v.session.ChannelVoiceJoin(v.guildID, channelID, false, true)
	if err != nil {
		return fmt.Errorf("join voice channel %s: %w", channelID, err)
	}
	v.mu.Lock()
	v.vc = vc
	v.mu.Unlock()
	return nil
}

func (v *Voice) ChannelID() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.vc == nil {
		return ""
	}
	return v.vc.ChannelID
}

func (v *Voice) Connected() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.vc != nil && v.vc.Ready
}

func (v *Voice) Playing() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.playing && !v.paused
}

func (v *Voice) Pause() {
	v.mu.Lock()
	v.paused = true
	v.mu.Unlock()
}

func (v *Voice) Resume() {
	v.mu.Lock()
	v.paused = false
	v.mu.Unlock()
}

func (v *Voice) SetVolume(volume int) {
	v.volume.Store(int32(volume))
}

// Stop interrupts an in-flight Play; it is a no-op when idle.
func (v *Voice) Stop() {
	v.mu.Lock()
	if v.stop != nil {
		close(v.stop)
		v.stop = nil
	}
	v.mu.Unlock()
}

func (v *Voice) Disconnect() error {
	v.Stop()
	v.mu.Lock()
	vc := v.vc
	v.vc = nil
	v.mu.Unlock()
	if vc == nil {
		return nil
	}
	return vc.Disconnect()
}

// Play streams the URL until it ends or Stop interrupts it. Only one
// Play runs per Voice at a time; a new Play stops the previous one.
func (v *Voice) Play(ctx context.Context, streamURL string, volume int) error {
	v.volume.Store(int32(volume))

	v.mu.Lock()
	if v.stop != nil {
		close(v.stop)
	}
	stop := make(chan struct{})
	v.stop = stop
	vc := v.vc
	v.playing = true
	v.paused = false
	v.mu.Unlock()

	defer func() {
		v.mu.Lock()
		v.playing = false
		if v.stop == stop {
			v.stop = nil
		}
		v.mu.Unlock()
	}()

	if vc == nil {
		return errors.New("not connected to voice")
	}
	if err := waitReady(vc, 5*time.Second); err != nil {
		return err
	}

	dec, err := newPCMDecoder(ctx, streamURL)
	if err != nil {
		return err
	}
	defer dec.Close()

	enc, err := newOpusEncoder()
	if err != nil {
		return err
	}
	defer enc.Close()

	_ = vc.Speaking(true)
	defer func() { _ = vc.Speaking(false) }()

	ticker := time.NewTicker(frameDuration * time.Millisecond)
	defer ticker.Stop()

	send := func(pkt []byte) error {
		select {
		case <-stop:
			return errStopped
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		select {
		case vc.OpusSend <- pkt:
			return nil
		case <-stop:
			return errStopped
		case <-time.After(200 * time.Millisecond):
			return errors.New("opus send timeout")
		}
	}

	reader := bufio.NewReaderSize(dec.Reader(), 64*1024)
	pcm := make([]byte, frameBytes)
	for {
		select {
		case <-stop:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if v.isPaused() {
			select {
			case <-stop:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(frameDuration * time.Millisecond):
			}
			continue
		}

		if _, err := io.ReadFull(reader, pcm); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				if err := enc.Flush(send); err != nil && !errors.Is(err, errStopped) {
					return err
				}
				return nil
			}
			return fmt.Errorf("read pcm: %w", err)
		}

		scalePCM(pcm, int(v.volume.Load()))
		if err := enc.EncodeFrame(pcm, send); err != nil {
			if errors.Is(err, errStopped) {
				return nil
			}
			return err
		}
	}
}

var errStopped = errors.New("playback stopped")

func (v *Voice) isPaused() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.paused
}

func waitReady(vc *discordgo.VoiceConnection, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if vc.Ready {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return errors.New("voice connection not ready")
}

// scalePCM applies a percent volume to interleaved s16le samples in
// place, clamping to the int16 range.
func scalePCM(b []byte, volume int) {
	if volume == 100 {
		return
	}
	for i := 0; i+1 < len(b); i += 2 {
		s := int32(int16(uint16(b[i]) | uint16(b[i+1])<<8))
		s = s * int32(volume) / 100
		if s > 32767 {
			s = 32767
		} else if s < -32768 {
			s = -32768
		}
		b[i] = byte(uint16(s))
		b[i+1] = byte(uint16(s) >> 8)
	}
}
