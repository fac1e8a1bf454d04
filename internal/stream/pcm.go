package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/asticode/go-astiav"
)

// pcmDecoder opens a remote stream URL and decodes its best audio
// stream to interleaved s16le stereo 48k PCM on Reader().
type pcmDecoder struct {
	fc       *astiav.FormatContext
	audio    *astiav.Stream
	decCtx   *astiav.CodecContext
	swr      *astiav.SoftwareResampleContext
	srcFrame *astiav.Frame
	dstFrame *astiav.Frame
	cancel   context.CancelFunc
	pr       *io.PipeReader
	pw       *io.PipeWriter

	closeOnce sync.Once
}

func newPCMDecoder(ctx context.Context, inputURL string) (*pcmDecoder, error) {
	fc := astiav.AllocFormatContext()
	if fc == nil {
		return nil, errors.New("alloc format context")
	}

	dict := astiav.NewDictionary()
	defer dict.Free()
	// stream URLs drop mid-track often enough that reconnects matter
	_ = dict.Set("reconnect", "1", 0)
	_ = dict.Set("reconnect_streamed", "1", 0)
	_ = dict.Set("reconnect_delay_max", "5", 0)

	if err := fc.OpenInput(inputURL, nil, dict); err != nil {
		fc.Free()
		return nil, fmt.Errorf("open input: %w", err)
	}
	if err := fc.FindStreamInfo(nil); err != nil {
		fc.CloseInput()
		fc.Free()
		return nil, fmt.Errorf("find stream info: %w", err)
	}

	st, codec, err := fc.FindBestStream(astiav.MediaTypeAudio, -1, -1)
	if err != nil || st == nil || codec == nil {
		fc.CloseInput()
		fc.Free()
		if err != nil {
			return nil, fmt.Errorf("find audio stream: %w", err)
		}
		return nil, errors.New("no audio stream found")
	}

	decCtx := astiav.AllocCodecContext(codec)
	if decCtx == nil {
		fc.CloseInput()
		fc.Free()
		return nil, errors.New("alloc codec context")
	}
	if err := decCtx.FromCodecParameters(st.CodecParameters()); err != nil {
		decCtx.Free()
		fc.CloseInput()
		fc.Free()
		return nil, fmt.Errorf("codec from params: %w", err)
	}
	decCtx.SetTimeBase(st.TimeBase())
	if err := decCtx.Open(codec, nil); err != nil {
		decCtx.Free()
		fc.CloseInput()
		fc.Free()
		return nil, fmt.Errorf("open decoder: %w", err)
	}

	swr := astiav.AllocSoftwareResampleContext()
	srcFrame := astiav.AllocFrame()
	dstFrame := astiav.AllocFrame()
	if swr == nil || srcFrame == nil || dstFrame == nil {
		if srcFrame != nil {
			srcFrame.Free()
		}
		if dstFrame != nil {
			dstFrame.Free()
		}
		if swr != nil {
			swr.Free()
		}
		decCtx.Free()
		fc.CloseInput()
		fc.Free()
		return nil, errors.New("alloc resampler")
	}

	pr, pw := io.Pipe()
	ctx2, cancel := context.WithCancel(ctx)
	d := &pcmDecoder{
		fc:       fc,
		audio:    st,
		decCtx:   decCtx,
		swr:      swr,
		srcFrame: srcFrame,
		dstFrame: dstFrame,
		cancel:   cancel,
		pr:       pr,
		pw:       pw,
	}
	go d.run(ctx2)
	return d, nil
}

func (d *pcmDecoder) Reader() io.Reader { return d.pr }

func (d *pcmDecoder) Close() {
	d.closeOnce.Do(func() {
		d.cancel()
		_ = d.pr.Close()
		d.srcFrame.Free()
		d.dstFrame.Free()
		d.swr.Free()
		d.decCtx.Free()
		d.fc.CloseInput()
		d.fc.Free()
	})
}

func (d *pcmDecoder) run(ctx context.Context) {
	defer func() { _ = d.pw.Close() }()

	packet := astiav.AllocPacket()
	defer packet.Free()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		packet.Unref()
		if err := d.fc.ReadFrame(packet); err != nil {
			if astErr, ok := err.(astiav.Error); ok && astErr.Is(astiav.ErrorAgain) {
				continue
			}
			// EOF or a fatal read error: flush whatever the decoder holds
			_ = d.decCtx.SendPacket(nil)
			for d.receiveAndConvert() == nil {
			}
			if astErr, ok := err.(astiav.Error); !ok || !astErr.Is(io.EOF) {
				d.pw.CloseWithError(fmt.Errorf("read frame: %w", err))
			}
			return
		}
		if packet.StreamIndex() != d.audio.Index() {
			continue
		}

		if err := d.decCtx.SendPacket(packet); err != nil {
			if astErr, ok := err.(astiav.Error); !ok || !astErr.Is(astiav.ErrorAgain) {
				d.pw.CloseWithError(fmt.Errorf("send packet: %w", err))
				return
			}
		}
		for {
			if err := d.receiveAndConvert(); err != nil {
				if astErr, ok := err.(astiav.Error); ok && (astErr.Is(astiav.ErrorAgain) || astErr.Is(io.EOF)) {
					break
				}
				d.pw.CloseWithError(err)
				return
			}
		}
	}
}

func (d *pcmDecoder) receiveAndConvert() error {
	d.srcFrame.Unref()
	if err := d.decCtx.ReceiveFrame(d.srcFrame); err != nil {
		return err
	}

	d.dstFrame.Unref()
	d.dstFrame.SetNbSamples(d.srcFrame.NbSamples())
	d.dstFrame.SetChannelLayout(astiav.ChannelLayoutStereo)
	d.dstFrame.SetSampleRate(48000)
	d.dstFrame.SetSampleFormat(astiav.SampleFormatS16)
	if err := d.dstFrame.AllocBuffer(0); err != nil {
		return fmt.Errorf("dst alloc buffer: %w", err)
	}
	if err := d.swr.ConvertFrame(d.srcFrame, d.dstFrame); err != nil {
		return fmt.Errorf("swr convert: %w", err)
	}

	b, err := d.dstFrame.Data().Bytes(0)
	if err != nil {
		return fmt.Errorf("dst bytes: %w", err)
	}
	_, err = d.pw.Write(b)
	return err
}
