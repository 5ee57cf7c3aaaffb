package voice

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func writeRecording(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recording.wav")
	if err := os.WriteFile(path, make([]byte, 128), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestTranscriptionStageDeletesOnEveryOutcome(t *testing.T) {
	cases := []struct {
		name    string
		tr      *fakeTranscriber
		want    string
		wantErr error
	}{
		{name: "success", tr: &fakeTranscriber{text: " hello "}, want: "hello"},
		{name: "absent", tr: &fakeTranscriber{text: ""}, wantErr: ErrNoTranscript},
		{name: "failure", tr: &fakeTranscriber{err: errBoom}, wantErr: errBoom},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeRecording(t)
			got, err := NewTranscriptionStage(tc.tr).Run(context.Background(), path, "en-GB_Multimedia")
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("Run() error = %v, want %v", err, tc.wantErr)
				}
			} else if err != nil || got != tc.want {
				t.Fatalf("Run() = %q, %v; want %q", got, err, tc.want)
			}
			if _, err := os.Stat(path); !os.IsNotExist(err) {
				t.Fatalf("recording still exists: %v", err)
			}
			if calls := tc.tr.calls(); len(calls) != 1 {
				t.Fatalf("transcriber calls = %d, want 1 (no retry)", len(calls))
			}
		})
	}
}

func TestHTTPTranscriberRecognize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/recognize" {
			t.Errorf("path = %q, want /v1/recognize", r.URL.Path)
		}
		if got := r.URL.Query().Get("model"); got != "es-ES_Multimedia" {
			t.Errorf("model = %q, want es-ES_Multimedia", got)
		}
		if user, pass, ok := r.BasicAuth(); !ok || user != "apikey" || pass != "secret" {
			t.Errorf("basic auth = %q/%q, want apikey/secret", user, pass)
		}
		if ct := r.Header.Get("Content-Type"); ct != "audio/wav" {
			t.Errorf("Content-Type = %q, want audio/wav", ct)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"alternatives":[{"transcript":"donde esta ","confidence":0.9}],"final":true},{"alternatives":[{"transcript":"la salida"}],"final":true}],"result_index":0}`))
	}))
	defer srv.Close()

	tr := NewHTTPTranscriber(HTTPTranscriberConfig{BaseURL: srv.URL + "/", APIKey: "secret"})
	got, err := tr.Transcribe(context.Background(), writeRecording(t), "es-ES_Multimedia")
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if got != "donde esta la salida" {
		t.Fatalf("Transcribe() = %q, want %q", got, "donde esta la salida")
	}
}

func TestHTTPTranscriberStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad audio", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewHTTPTranscriber(HTTPTranscriberConfig{BaseURL: srv.URL}).Transcribe(context.Background(), writeRecording(t), "")
	if err == nil {
		t.Fatalf("Transcribe() expected error for 400 response")
	}
}

func TestMockTranscriberEmptyRecording(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.wav")
	if err := os.WriteFile(path, make([]byte, 44), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	got, err := NewMockTranscriber().Transcribe(context.Background(), path, "")
	if err != nil || got != "" {
		t.Fatalf("Transcribe() = %q, %v; want empty", got, err)
	}
	got, err = NewMockTranscriber().Transcribe(context.Background(), writeRecording(t), "")
	if err != nil || got == "" {
		t.Fatalf("Transcribe() = %q, %v; want text", got, err)
	}
}
