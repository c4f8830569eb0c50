package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"clinical-deid/internal/oracle"
)

func newOllamaServer(t *testing.T, modelText string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"models":[]}`)) //nolint:errcheck // test server
	})
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Model != "test-model" || req.Stream {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(ollamaResponse{Response: modelText}) //nolint:errcheck // test server
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRecognizeLocatesEveryOccurrence(t *testing.T) {
	srv := newOllamaServer(t, "Sure! Here you go:\n"+
		`[{"text":"Ravi Kumar","label":"PERSON"},{"text":"Ravi","label":"PERSON"},`+
		`{"text":"Kochi","label":"GPE"},{"text":"fever","label":"SYMPTOM"}]`)
	c := New(srv.URL, "test-model", 5*time.Second)

	text := "Ravi Kumar from Kochi. Ravi Kumar has fever. Ravi called."
	spans, err := c.Recognize(context.Background(), text)
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}

	var got []string
	for _, s := range spans {
		got = append(got, s.Label.String()+":"+text[s.Start:s.End])
	}
	want := []string{"PERSON:Ravi Kumar", "GPE:Kochi", "PERSON:Ravi Kumar", "PERSON:Ravi"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("spans = %v, want %v", got, want)
	}
}

func TestLocateWholeWordsOnly(t *testing.T) {
	text := "Annual review; Ann reports pain. Seen by Al in Albany, then Al-Rashid and Ann."
	spans := locate(text, []detection{{Text: "Ann", Label: "PERSON"}, {Text: "Al", Label: "PERSON"}})

	var got []string
	for _, s := range spans {
		got = append(got, fmt.Sprintf("%s@%d", text[s.Start:s.End], s.Start))
	}
	want := []string{"Ann@15", "Al@41", "Al@60", "Ann@74"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("spans = %v, want %v", got, want)
	}
}

func TestRecognizeRejectsMissingArray(t *testing.T) {
	srv := newOllamaServer(t, "I could not find anything.")
	c := New(srv.URL, "test-model", 5*time.Second)
	if _, err := c.Recognize(context.Background(), "Ravi Kumar"); err == nil {
		t.Error("expected error when model returns no JSON array")
	}
}

func TestRecognizeEmptyTextSkipsModel(t *testing.T) {
	c := New("http://127.0.0.1:1", "test-model", time.Second)
	spans, err := c.Recognize(context.Background(), "   ")
	if err != nil || spans != nil {
		t.Errorf("expected no spans and no error, got %v, %v", spans, err)
	}
}

func TestPing(t *testing.T) {
	srv := newOllamaServer(t, "[]")
	if err := New(srv.URL, "test-model", time.Second).Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
	err := New("http://127.0.0.1:1", "test-model", time.Second).Ping(context.Background())
	if !errors.Is(err, oracle.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestName(t *testing.T) {
	if n := New("http://x", "qwen2.5:3b", time.Second).Name(); n != "ollama:qwen2.5:3b" {
		t.Errorf("Name = %q", n)
	}
}
