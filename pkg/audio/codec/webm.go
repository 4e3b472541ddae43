package codec

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/at-wat/ebml-go"
	"github.com/at-wat/ebml-go/webm"
)

// webmDocument is the part of a WebM file the demuxer reads. Elements not
// named here are skipped by the decoder.
type webmDocument struct {
	Header struct {
		DocType string `ebml:"DocType"`
	} `ebml:"EBML"`
	Segment struct {
		Tracks struct {
			TrackEntry []webm.TrackEntry `ebml:"TrackEntry"`
		} `ebml:"Tracks"`
		Cluster []webmCluster `ebml:"Cluster"`
	} `ebml:"Segment"`
}

type webmCluster struct {
	Timecode    uint64       `ebml:"Timecode"`
	SimpleBlock []ebml.Block `ebml:"SimpleBlock"`
	BlockGroup  []struct {
		Block ebml.Block `ebml:"Block"`
	} `ebml:"BlockGroup"`
}

// WebMDemuxer reads WebM/Matroska containers as produced by browser
// MediaRecorder (audio/webm;codecs=opus).
//
// A clip is small and already in memory, so the whole document is decoded
// synchronously. Malformed or truncated input fails Open with an error and
// never leaves a parser goroutine behind.
type WebMDemuxer struct{}

// Open parses the container and selects the first audio track.
func (WebMDemuxer) Open(r io.Reader) (Stream, error) {
	var doc webmDocument
	if err := ebml.Unmarshal(r, &doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("webm: %w", err)
	}
	switch doc.Header.DocType {
	case "webm", "matroska":
	case "":
		return nil, errors.New("webm: missing EBML header")
	default:
		return nil, fmt.Errorf("webm: unexpected doctype %q", doc.Header.DocType)
	}

	entries := doc.Segment.Tracks.TrackEntry
	idx := slices.IndexFunc(entries, func(t webm.TrackEntry) bool { return t.TrackType == trackTypeAudio })
	if idx < 0 {
		return nil, &NoAudioStreamError{Tracks: len(entries)}
	}

	t := entries[idx]
	track := Track{Number: t.TrackNumber, CodecID: t.CodecID}
	if t.Audio != nil {
		track.SampleRate = int(t.Audio.SamplingFrequency)
		track.Channels = int(t.Audio.Channels)
	}
	if track.Channels == 0 {
		track.Channels = 1
	}
	return &webmStream{track: track, packets: trackPackets(doc.Segment.Cluster, track.Number)}, nil
}

// trackPackets flattens the blocks of one track into packets ordered by
// timestamp. Laced blocks contribute one packet per frame. Timestamps assume
// the default 1 ms timecode scale.
func trackPackets(clusters []webmCluster, number uint64) []Packet {
	var out []Packet
	add := func(base uint64, b ebml.Block) {
		if b.TrackNumber != number {
			return
		}
		ts := time.Duration(int64(base)+int64(b.Timecode)) * time.Millisecond
		for _, frame := range b.Data {
			out = append(out, Packet{Data: frame, Timestamp: ts})
		}
	}
	for _, c := range clusters {
		for _, b := range c.SimpleBlock {
			add(c.Timecode, b)
		}
		for _, g := range c.BlockGroup {
			add(c.Timecode, g.Block)
		}
	}
	slices.SortStableFunc(out, func(a, b Packet) int {
		switch {
		case a.Timestamp < b.Timestamp:
			return -1
		case a.Timestamp > b.Timestamp:
			return 1
		}
		return 0
	})
	return out
}

type webmStream struct {
	track   Track
	packets []Packet
	pos     int
}

func (s *webmStream) Track() Track { return s.track }

func (s *webmStream) Next() (Packet, error) {
	if s.pos >= len(s.packets) {
		return Packet{}, io.EOF
	}
	p := s.packets[s.pos]
	s.pos++
	return p, nil
}

func (s *webmStream) Close() error {
	s.packets = nil
	return nil
}
