package codec

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/at-wat/ebml-go/webm"
	"layeh.com/gopus"

	"github.com/MrWong99/curaai/pkg/audio"
)

// clipBuffer collects the container written by webm.NewSimpleBlockWriter.
// The writer closes it from its own goroutine once every track is closed.
type clipBuffer struct {
	bytes.Buffer
	closed chan struct{}
}

func (b *clipBuffer) Close() error {
	close(b.closed)
	return nil
}

// buildWebM writes frames as 20 ms SimpleBlocks of a single track.
func buildWebM(t *testing.T, entry webm.TrackEntry, frames [][]byte) []byte {
	t.Helper()

	buf := &clipBuffer{closed: make(chan struct{})}
	ws, err := webm.NewSimpleBlockWriter(buf, []webm.TrackEntry{entry})
	if err != nil {
		t.Fatalf("NewSimpleBlockWriter: %v", err)
	}
	for i, f := range frames {
		if _, err := ws[0].Write(true, int64(i*20), f); err != nil {
			t.Fatalf("write block %d: %v", i, err)
		}
	}
	if err := ws[0].Close(); err != nil {
		t.Fatalf("close track: %v", err)
	}
	select {
	case <-buf.closed:
	case <-time.After(5 * time.Second):
		t.Fatal("webm writer did not finish")
	}
	return buf.Bytes()
}

func pcmTrack(rate float64, channels uint64) webm.TrackEntry {
	return webm.TrackEntry{
		Name:        "microphone",
		TrackNumber: 1,
		TrackUID:    1,
		CodecID:     CodecPCMInt,
		TrackType:   trackTypeAudio,
		Audio:       &webm.Audio{SamplingFrequency: rate, Channels: channels},
	}
}

// opusClip encodes n 20 ms frames of a 440 Hz tone as mono Opus.
func opusClip(t *testing.T, n int) []byte {
	t.Helper()

	enc, err := gopus.NewEncoder(opusSampleRate, 1, gopus.Voip)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	const frameSize = opusSampleRate / 50
	frames := make([][]byte, n)
	for i := range frames {
		pcm := make([]int16, frameSize)
		for j := range pcm {
			pos := float64(i*frameSize + j)
			pcm[j] = int16(8000 * math.Sin(2*math.Pi*440*pos/opusSampleRate))
		}
		if frames[i], err = enc.Encode(pcm, frameSize, 4000); err != nil {
			t.Fatalf("encode frame %d: %v", i, err)
		}
	}
	return buildWebM(t, webm.TrackEntry{
		Name:        "microphone",
		TrackNumber: 1,
		TrackUID:    1,
		CodecID:     CodecOpus,
		TrackType:   trackTypeAudio,
		Audio:       &webm.Audio{SamplingFrequency: opusSampleRate, Channels: 1},
	}, frames)
}

func TestWebM_DecodesToCanonicalPCM(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		clip func(t *testing.T) []byte
		// wantLevel is the expected absolute level in the middle of the clip,
		// or zero to only require a non-silent signal.
		wantLevel int16
	}{
		{
			name: "pcm 8 kHz stereo",
			clip: func(t *testing.T) []byte {
				return buildWebM(t, pcmTrack(8000, 2), pcmPackets(10, 160, 2, 1000, -1000))
			},
			wantLevel: 1000,
		},
		{
			name: "opus 48 kHz mono",
			clip: func(t *testing.T) []byte { return opusClip(t, 10) },
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			pcm, err := New().Decode(context.Background(), tc.clip(t))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if pcm.SampleRate != audio.CanonicalRate || pcm.Channels() != 1 {
				t.Fatalf("got %d Hz, %d channels; want %d Hz mono", pcm.SampleRate, pcm.Channels(), audio.CanonicalRate)
			}
			// 200 ms at 16 kHz.
			if got := len(pcm.Samples); got < 3040 || got > 3360 {
				t.Errorf("samples = %d, want about 3200", got)
			}

			if tc.wantLevel != 0 {
				mid := pcm.Samples[len(pcm.Samples)/2]
				if d := int(mid) - int(tc.wantLevel); d < -100 || d > 100 {
					t.Errorf("mid sample = %d, want about %d (first channel)", mid, tc.wantLevel)
				}
				return
			}
			var peak int16
			for _, s := range pcm.Samples {
				peak = max(peak, s, -s)
			}
			if peak < 500 {
				t.Errorf("peak = %d, decoded clip is silent", peak)
			}
		})
	}
}

func TestWebM_VideoOnly(t *testing.T) {
	t.Parallel()

	clip := buildWebM(t, webm.TrackEntry{
		Name:        "camera",
		TrackNumber: 1,
		TrackUID:    1,
		CodecID:     "V_VP8",
		TrackType:   1,
		Video:       &webm.Video{PixelWidth: 320, PixelHeight: 240},
	}, [][]byte{{0x00, 0x01, 0x02}})

	_, err := New().Decode(context.Background(), clip)
	var noAudio *NoAudioStreamError
	if !errors.As(err, &noAudio) {
		t.Fatalf("err = %v, want *NoAudioStreamError", err)
	}
	if noAudio.Tracks != 1 {
		t.Errorf("Tracks = %d, want 1", noAudio.Tracks)
	}
}

func TestWebM_TruncatedClip(t *testing.T) {
	t.Parallel()

	clip := opusClip(t, 5)
	for _, n := range []int{0, 3, 24} {
		if _, err := New().Decode(context.Background(), clip[:n]); err == nil {
			t.Errorf("clip cut to %d bytes: expected error", n)
		}
	}
}

func TestWebM_Packets(t *testing.T) {
	t.Parallel()

	clip := buildWebM(t, pcmTrack(16000, 1), pcmPackets(3, 320, 1, 7, 7))
	stream, err := WebMDemuxer{}.Open(bytes.NewReader(clip))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer stream.Close()

	if tr := stream.Track(); tr.CodecID != CodecPCMInt || tr.SampleRate != 16000 || tr.Channels != 1 || tr.Number != 1 {
		t.Errorf("track = %+v", tr)
	}
	for i := range 3 {
		p, err := stream.Next()
		if err != nil {
			t.Fatalf("packet %d: %v", i, err)
		}
		if want := time.Duration(i*20) * time.Millisecond; p.Timestamp != want || len(p.Data) != 640 {
			t.Errorf("packet %d: ts %v, %d bytes; want %v, 640 bytes", i, p.Timestamp, len(p.Data), want)
		}
	}
	if _, err := stream.Next(); err == nil {
		t.Error("expected io.EOF after the last packet")
	}
}
