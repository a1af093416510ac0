package openai_test

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/dawvox/pkg/provider/stt"
	"github.com/MrWong99/dawvox/pkg/provider/stt/openai"
)

func TestNew_RequiresBaseURL(t *testing.T) {
	t.Parallel()
	if _, err := openai.New("", ""); err == nil {
		t.Fatal("expected error for empty base URL")
	}
}

func TestTranscribe(t *testing.T) {
	t.Parallel()

	var gotLang, gotModel atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			http.Error(w, "not found: "+r.URL.Path, http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotLang.Store(r.FormValue("language"))
		gotModel.Store(r.FormValue("model"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"text": " Spur drei stumm ",
			"logprobs": []map[string]any{
				{"token": "Spur", "logprob": math.Log(0.9)},
				{"token": " drei", "logprob": math.Log(0.7)},
			},
		})
	}))
	defer srv.Close()

	p, err := openai.New(srv.URL+"/v1", "", openai.WithLanguage("de"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := p.Transcribe(context.Background(), stt.Request{PCM: make([]byte, 640), SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "Spur drei stumm" {
		t.Errorf("Text: got %q", res.Text)
	}
	if math.Abs(res.Confidence-0.8) > 1e-9 {
		t.Errorf("Confidence: got %v, want 0.8", res.Confidence)
	}
	if gotLang.Load() != "de" || gotModel.Load() != openai.DefaultModel {
		t.Errorf("form: language=%v model=%v", gotLang.Load(), gotModel.Load())
	}
}

func TestTranscribe_NoRetryOnServerError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, _ := openai.New(srv.URL, "tiny")
	if _, err := p.Transcribe(context.Background(), stt.Request{PCM: make([]byte, 64), SampleRate: 16000}); err == nil {
		t.Fatal("expected error")
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("server called %d times, want exactly 1", n)
	}
}
