package stream

import (
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"
)

const (
	sampleRate    = 48000
	channels      = 2
	frameSamples  = 960 // 20ms at 48k
	frameBytes    = frameSamples * channels * 2
	frameDuration = 20 // ms
)

type opusPacketFunc func(pkt []byte) error

// opusEncoder wraps the libopus encoder for Discord's wire format:
// 20ms stereo 48k frames.
type opusEncoder struct {
	cc     *astiav.CodecContext
	frame  *astiav.Frame
	packet *astiav.Packet
}

func newOpusEncoder() (*opusEncoder, error) {
	codec := astiav.FindEncoderByName("libopus")
	if codec == nil {
		return nil, errors.New("libopus encoder not found (FFmpeg built without libopus?)")
	}
	cc := astiav.AllocCodecContext(codec)
	if cc == nil {
		return nil, errors.New("alloc codec context")
	}
	cc.SetSampleRate(sampleRate)
	cc.SetChannelLayout(astiav.ChannelLayoutStereo)
	cc.SetSampleFormat(astiav.SampleFormatS16)
	cc.SetBitRate(160_000)

	opts := astiav.NewDictionary()
	defer opts.Free()
	_ = opts.Set("frame_duration", fmt.Sprint(frameDuration), 0)
	_ = opts.Set("application", "audio", 0)

	if err := cc.Open(codec, opts); err != nil {
		cc.Free()
		return nil, fmt.Errorf("open opus encoder: %w", err)
	}

	frame := astiav.AllocFrame()
	if frame == nil {
		cc.Free()
		return nil, errors.New("alloc frame")
	}
	frame.SetSampleRate(sampleRate)
	frame.SetChannelLayout(astiav.ChannelLayoutStereo)
	frame.SetSampleFormat(astiav.SampleFormatS16)
	frame.SetNbSamples(frameSamples)
	if err := frame.AllocBuffer(0); err != nil {
		frame.Free()
		cc.Free()
		return nil, fmt.Errorf("alloc frame buffer: %w", err)
	}

	pkt := astiav.AllocPacket()
	if pkt == nil {
		frame.Free()
		cc.Free()
		return nil, errors.New("alloc packet")
	}

	return &opusEncoder{cc: cc, frame: frame, packet: pkt}, nil
}

func (e *opusEncoder) Close() {
	e.packet.Free()
	e.frame.Free()
	e.cc.Free()
}

// EncodeFrame consumes exactly one 20ms frame of interleaved s16le PCM
// and hands each resulting Opus packet to onPacket.
func (e *opusEncoder) EncodeFrame(pcm []byte, onPacket opusPacketFunc) error {
	if len(pcm) != frameBytes {
		return fmt.Errorf("invalid pcm frame size: want %d bytes, got %d", frameBytes, len(pcm))
	}
	if err := e.frame.Data().SetBytes(pcm, 0); err != nil {
		return fmt.Errorf("set frame bytes: %w", err)
	}
	if err := e.cc.SendFrame(e.frame); err != nil {
		return fmt.Errorf("send frame: %w", err)
	}
	return e.drain(onPacket)
}

// Flush drains the encoder's buffered packets at end of stream.
func (e *opusEncoder) Flush(onPacket opusPacketFunc) error {
	if err := e.cc.SendFrame(nil); err != nil {
		if astErr, ok := err.(astiav.Error); ok && astErr.Is(astiav.ErrEof) {
			return nil
		}
		return fmt.Errorf("send flush frame: %w", err)
	}
	return e.drain(onPacket)
}

func (e *opusEncoder) drain(onPacket opusPacketFunc) error {
	for {
		e.packet.Unref()
		if err := e.cc.ReceivePacket(e.packet); err != nil {
			if astErr, ok := err.(astiav.Error); ok && (astErr.Is(astiav.ErrEagain) || astErr.Is(astiav.ErrEof)) {
				return nil
			}
			return fmt.Errorf("receive opus packet: %w", err)
		}
		pkt := make([]byte, len(e.packet.Data()))
		copy(pkt, e.packet.Data())
		if err := onPacket(pkt); err != nil {
			return err
		}
	}
}
