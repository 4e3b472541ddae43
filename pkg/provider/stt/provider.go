// Package stt defines the Provider interface for Speech-to-Text backends.
//
// A provider turns one finished utterance, stored as a canonical WAV file
// (mono, 16-bit, 16 kHz), into text. Utterances are segmented upstream by the
// idle-timeout segmenter, so providers never see partial audio and have no
// streaming surface.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

// ErrEmptyTranscript is returned when the backend produced no text. Callers
// treat it like silence.
var ErrEmptyTranscript = errors.New("stt: empty transcript")

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe reads the WAV file at wavPath and returns the recognised text
	// with surrounding whitespace removed. The file is owned by the caller and
	// must not be deleted or modified by the provider.
	Transcribe(ctx context.Context, wavPath string) (string, error)
}
