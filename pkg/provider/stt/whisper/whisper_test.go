package whisper_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/curaai/pkg/audio"
	"github.com/MrWong99/curaai/pkg/provider/stt"
	"github.com/MrWong99/curaai/pkg/provider/stt/whisper"
)

// ---- helpers ----------------------------------------------------------------

// newMockServer responds to POST /inference with responseText and counts
// matched requests.
func newMockServer(t *testing.T, responseText string, callCount *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(f)
		if len(data) < 44 || string(data[:4]) != "RIFF" {
			http.Error(w, "not a wav", http.StatusBadRequest)
			return
		}
		if r.FormValue("language") == "" {
			http.Error(w, "missing language", http.StatusBadRequest)
			return
		}
		if callCount != nil {
			callCount.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeClip(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	pcm := &audio.PCM{Samples: make([]int16, 1600), SampleRate: audio.CanonicalRate}
	if err := audio.WriteWAV(path, pcm); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}
	return path
}

// ---- provider construction --------------------------------------------------

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	if _, err := whisper.New(""); err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

// ---- transcription ----------------------------------------------------------

func TestTranscribe_ReturnsTrimmedText(t *testing.T) {
	var calls atomic.Int32
	srv := newMockServer(t, "  My head hurts since Monday. \n", &calls)

	p, err := whisper.New(srv.URL+"/", whisper.WithLanguage("en"), whisper.WithModel("base.en"))
	if err != nil {
		t.Fatal(err)
	}
	got, err := p.Transcribe(context.Background(), writeClip(t))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got != "My head hurts since Monday." {
		t.Errorf("text = %q", got)
	}
	if calls.Load() != 1 {
		t.Errorf("server calls = %d, want 1", calls.Load())
	}
}

func TestTranscribe_EmptyText(t *testing.T) {
	srv := newMockServer(t, "   ", nil)
	p, _ := whisper.New(srv.URL)
	if _, err := p.Transcribe(context.Background(), writeClip(t)); !errors.Is(err, stt.ErrEmptyTranscript) {
		t.Fatalf("err = %v, want ErrEmptyTranscript", err)
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	if _, err := p.Transcribe(context.Background(), writeClip(t)); err == nil {
		t.Fatal("expected error for HTTP 500")
	}
}

func TestTranscribe_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := p.Transcribe(ctx, writeClip(t)); err == nil {
		t.Fatal("expected error after context timeout")
	}
}
