package sidecar

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"clinical-deid/internal/oracle"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/ents", func(w http.ResponseWriter, r *http.Request) {
		var req textRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		// "Dr Müller in Pune": character offsets, ü is two bytes.
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ents":[` + //nolint:errcheck // test server
			`{"text":"Müller","label":"PERSON","start_char":3,"end_char":9},` +
			`{"text":"Pune","label":"GPE","start_char":13,"end_char":17},` +
			`{"text":"bogus","label":"ORG","start_char":40,"end_char":45}]}`))
	})
	mux.HandleFunc("/tokens", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"tokens":[` + //nolint:errcheck // test server
			`{"text":"Dr","idx":0},{"text":" ","idx":2},{"text":"Müller","idx":3},` +
			`{"text":"in","idx":10},{"text":"Pune","idx":13}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRecognizeConvertsCharacterOffsets(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.URL, 5*time.Second)
	text := "Dr Müller in Pune"

	spans, err := c.Recognize(context.Background(), text)
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans (out-of-range one dropped), got %v", spans)
	}
	if spans[0].Label != oracle.LabelPerson || text[spans[0].Start:spans[0].End] != "Müller" {
		t.Errorf("unexpected first span: %v", spans[0])
	}
	if spans[1].Label != oracle.LabelGPE || text[spans[1].Start:spans[1].End] != "Pune" {
		t.Errorf("unexpected second span: %v", spans[1])
	}
}

func TestTokenizeDropsWhitespace(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.URL, 5*time.Second)
	text := "Dr Müller in Pune"

	tokens, err := c.Tokenize(context.Background(), text)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if len(tokens) != 4 {
		t.Fatalf("expected 4 tokens, got %v", tokens)
	}
	for _, tok := range tokens {
		if text[tok.Start:tok.End] != tok.Text {
			t.Errorf("token offsets wrong: %+v", tok)
		}
	}
}

func TestPing(t *testing.T) {
	srv := newTestServer(t)
	if err := New(srv.URL+"/", time.Second).Ping(context.Background()); err != nil {
		t.Errorf("Ping healthy sidecar: %v", err)
	}

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()
	err := New(down.URL, time.Second).Ping(context.Background())
	if !errors.Is(err, oracle.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestRecognizeErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := New(srv.URL, time.Second).Recognize(context.Background(), "text"); err == nil {
		t.Error("expected error on non-200 status")
	}
}

func TestNameIdentifiesEndpoint(t *testing.T) {
	a := New("http://ner-a:8001/", time.Second).Name()
	b := New("http://ner-b:8001", time.Second).Name()
	if a != "sidecar:http://ner-a:8001" {
		t.Errorf("Name = %q", a)
	}
	if a == b {
		t.Errorf("different sidecars share the name %q", a)
	}
}
