package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"clinical-deid/internal/deid"
	"clinical-deid/internal/extract"
	"clinical-deid/internal/metrics"
	"clinical-deid/internal/oracle"
	"clinical-deid/internal/oracle/oracletest"
	"clinical-deid/internal/pipeline"
)

const note = "Ravi Kumar has fever and needs an MRI."

func newTestAPI(t *testing.T, fake *oracletest.Fake, maxUpload int64) (*Server, *metrics.Metrics) {
	t.Helper()
	ex, err := extract.NewExtractor(context.Background(), fake, extract.DefaultTerms())
	if err != nil {
		t.Fatal(err)
	}
	m := metrics.New()
	p := pipeline.New(fake, deid.NewMasker(fake), ex, m, nil)
	return New(p, maxUpload, m, nil), m
}

func defaultFake() *oracletest.Fake {
	return oracletest.New().Label("Ravi Kumar", oracle.LabelPerson)
}

func post(t *testing.T, h http.Handler, target, contentType string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestProcessJSON(t *testing.T) {
	srv, m := newTestAPI(t, defaultFake(), 1<<20)
	w := post(t, srv.Handler(), "/v1/process", "text/plain", []byte(note))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var res pipeline.Result
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if res.Masked != "[NAME] has fever and needs an MRI." {
		t.Errorf("masked = %q", res.Masked)
	}
	if res.PHI.Names != 1 || len(res.Entities) != 3 {
		t.Errorf("unexpected result %+v", res)
	}
	if res.ID != w.Header().Get(RequestIDHeader) {
		t.Errorf("result ID %q does not match header %q", res.ID, w.Header().Get(RequestIDHeader))
	}
	if m.NotesProcessed.Load() != 1 {
		t.Error("note not counted")
	}
}

func TestProcessMultipart(t *testing.T) {
	srv, _ := newTestAPI(t, defaultFake(), 1<<20)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "notes.txt")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte(note)) //nolint:errcheck // bytes.Buffer
	mw.Close()             //nolint:errcheck // bytes.Buffer

	w := post(t, srv.Handler(), "/v1/process?format=txt", mw.FormDataContentType(), buf.Bytes())
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Body.String() != "[NAME] has fever and needs an MRI." {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestProcessMultipartMissingFile(t *testing.T) {
	srv, _ := newTestAPI(t, defaultFake(), 1<<20)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("note", note) //nolint:errcheck // bytes.Buffer
	mw.Close()                  //nolint:errcheck // bytes.Buffer

	w := post(t, srv.Handler(), "/v1/process", mw.FormDataContentType(), buf.Bytes())
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestProcessFormats(t *testing.T) {
	tests := []struct {
		name        string
		query       string
		contentType string
		disposition string
		body        []string
	}{
		{
			name:        "txt",
			query:       "format=txt",
			contentType: "text/plain; charset=utf-8",
			disposition: `attachment; filename=masked_clinical_notes.txt`,
			body:        []string{"[NAME] has fever and needs an MRI."},
		},
		{
			name:        "csv",
			query:       "format=csv",
			contentType: "text/csv; charset=utf-8",
			disposition: `attachment; filename=extracted_entities.csv`,
			body:        []string{"Entity,Type,Count\nMRI,LAB_TEST,1\nMRI,PROCEDURE,1\nfever,SYMPTOM,1\n"},
		},
		{
			name:        "html",
			query:       "format=html",
			contentType: "text/html; charset=utf-8",
			body: []string{
				`[NAME] has `,
				`<span style="background-color:orange;" title="SYMPTOM">fever</span>`,
				`<span style="background-color:lightblue;" title="LAB_TEST">MRI</span>`,
			},
		},
		{
			name:        "html original view",
			query:       "format=html&view=original",
			contentType: "text/html; charset=utf-8",
			body:        []string{"Ravi Kumar has fever"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestAPI(t, defaultFake(), 1<<20)
			w := post(t, srv.Handler(), "/v1/process?"+tt.query, "text/plain", []byte(note))
			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
			}
			if ct := w.Header().Get("Content-Type"); ct != tt.contentType {
				t.Errorf("Content-Type = %q, want %q", ct, tt.contentType)
			}
			if cd := w.Header().Get("Content-Disposition"); cd != tt.disposition {
				t.Errorf("Content-Disposition = %q, want %q", cd, tt.disposition)
			}
			for _, want := range tt.body {
				if !strings.Contains(w.Body.String(), want) {
					t.Errorf("body missing %q:\n%s", want, w.Body.String())
				}
			}
		})
	}
}

func TestProcessCSVEmptyTable(t *testing.T) {
	srv, _ := newTestAPI(t, oracletest.New(), 1<<20)
	w := post(t, srv.Handler(), "/v1/process?format=csv", "text/plain", []byte("Review in two weeks."))
	if w.Code != http.StatusOK || w.Body.String() != "Entity,Type,Count\n" {
		t.Errorf("got %d %q", w.Code, w.Body.String())
	}
}

func TestProcessErrors(t *testing.T) {
	tests := []struct {
		name   string
		fake   *oracletest.Fake
		method string
		target string
		body   []byte
		want   int
	}{
		{"wrong method", defaultFake(), http.MethodGet, "/v1/process", nil, http.StatusMethodNotAllowed},
		{"unknown format", defaultFake(), http.MethodPost, "/v1/process?format=pdf", []byte(note), http.StatusBadRequest},
		{"invalid encoding", defaultFake(), http.MethodPost, "/v1/process", []byte("Dr M\xfcller"), http.StatusUnprocessableEntity},
		{"empty", defaultFake(), http.MethodPost, "/v1/process", []byte("  \n"), http.StatusUnprocessableEntity},
		{"too large", defaultFake(), http.MethodPost, "/v1/process", bytes.Repeat([]byte("a"), 65), http.StatusRequestEntityTooLarge},
		{"oracle failure", oracletest.New().FailWith(errors.New("sidecar down")), http.MethodPost, "/v1/process", []byte(note), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestAPI(t, tt.fake, 64)
			req := httptest.NewRequest(tt.method, tt.target, bytes.NewReader(tt.body))
			w := httptest.NewRecorder()
			srv.Handler().ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
			var resp map[string]string
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("error body is not JSON: %v", err)
			}
			if resp["error"] == "" || resp["requestId"] != w.Header().Get(RequestIDHeader) {
				t.Errorf("unexpected error body %v", resp)
			}
			if strings.Contains(w.Body.String(), "Ravi") {
				t.Error("error response leaked note text")
			}
		})
	}
}

func TestProcessTooLargeCountsRejection(t *testing.T) {
	srv, m := newTestAPI(t, defaultFake(), 8)
	post(t, srv.Handler(), "/v1/process", "text/plain", []byte(note))
	if m.NotesRejected.Load() != 1 {
		t.Errorf("rejected = %d, want 1", m.NotesRejected.Load())
	}
}

func TestRequestID(t *testing.T) {
	srv, _ := newTestAPI(t, defaultFake(), 1<<20)
	supplied := uuid.NewString()

	tests := []struct {
		name   string
		header string
		echo   bool
	}{
		{"valid uuid echoed", supplied, true},
		{"garbage replaced", "<script>", false},
		{"missing generated", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			if tt.header != "" {
				req.Header.Set(RequestIDHeader, tt.header)
			}
			w := httptest.NewRecorder()
			srv.Handler().ServeHTTP(w, req)

			got := w.Header().Get(RequestIDHeader)
			if _, err := uuid.Parse(got); err != nil {
				t.Fatalf("response ID %q is not a UUID", got)
			}
			if tt.echo != (got == tt.header) {
				t.Errorf("header %q -> %q", tt.header, got)
			}
		})
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestAPI(t, defaultFake(), 1<<20)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"oracle":"fake"`) {
		t.Errorf("got %d %s", w.Code, w.Body.String())
	}

	srv, _ = newTestAPI(t, oracletest.New().FailPing(oracle.ErrUnavailable), 1<<20)
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 when the oracle is down, got %d", w.Code)
	}
}
