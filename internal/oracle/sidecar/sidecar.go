// Package sidecar provides an oracle.Oracle that calls a spaCy NER sidecar
// over HTTP.
//
// Sidecar contract (all bodies JSON):
//
//	POST /ents    {"text": "..."} -> {"ents":   [{"text","label","start_char","end_char"}]}
//	POST /tokens  {"text": "..."} -> {"tokens": [{"text","idx"}]}
//	GET  /health                  -> 200 when the model is loaded
//
// Offsets from the sidecar are character (code point) offsets, as spaCy
// reports them; they are converted to byte offsets before returning.
// Transport and status errors are returned to the caller: masking without
// the NER layer would leave names in the output.
package sidecar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"clinical-deid/internal/oracle"
)

const maxResponseBytes = 10 << 20 // 10 MB

// Client calls the sidecar's endpoints.
type Client struct {
	base string
	http *http.Client
}

// New creates a Client for the sidecar at baseURL
// (e.g. "http://ner-sidecar:8001").
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

type textRequest struct {
	Text string `json:"text"`
}

type entsResponse struct {
	Ents []struct {
		Text      string `json:"text"`
		Label     string `json:"label"`
		StartChar int    `json:"start_char"`
		EndChar   int    `json:"end_char"`
	} `json:"ents"`
}

type tokensResponse struct {
	Tokens []struct {
		Text string `json:"text"`
		Idx  int    `json:"idx"`
	} `json:"tokens"`
}

// Name implements oracle.Oracle. The base URL is part of the name so that
// cached results from one sidecar are never served for another.
func (c *Client) Name() string { return "sidecar:" + c.base }

// Ping implements oracle.Oracle.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/health", nil)
	if err != nil {
		return fmt.Errorf("sidecar: request: %w", err)
	}
	resp, err := c.http.Do(req) // #nosec G107 -- URL from trusted config
	if err != nil {
		return fmt.Errorf("%w: sidecar: %v", oracle.ErrUnavailable, err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close on HTTP response body
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: sidecar health status %d", oracle.ErrUnavailable, resp.StatusCode)
	}
	return nil
}

// Recognize implements oracle.Recognizer.
func (c *Client) Recognize(ctx context.Context, text string) ([]oracle.Span, error) {
	var out entsResponse
	if err := c.post(ctx, "/ents", text, &out); err != nil {
		return nil, err
	}
	ri := oracle.NewRuneIndex(text)
	spans := make([]oracle.Span, 0, len(out.Ents))
	for _, e := range out.Ents {
		start, end := ri.ByteOffset(e.StartChar), ri.ByteOffset(e.EndChar)
		if start < 0 || end < 0 {
			continue
		}
		spans = append(spans, oracle.Span{
			Text:  e.Text,
			Label: oracle.ParseLabel(e.Label),
			Start: start,
			End:   end,
		})
	}
	return oracle.ValidateSpans(text, spans), nil
}

// Tokenize implements oracle.Tokenizer. Whitespace tokens reported by the
// sidecar are dropped.
func (c *Client) Tokenize(ctx context.Context, text string) ([]oracle.Token, error) {
	var out tokensResponse
	if err := c.post(ctx, "/tokens", text, &out); err != nil {
		return nil, err
	}
	ri := oracle.NewRuneIndex(text)
	tokens := make([]oracle.Token, 0, len(out.Tokens))
	for _, t := range out.Tokens {
		if strings.TrimSpace(t.Text) == "" {
			continue
		}
		start := ri.ByteOffset(t.Idx)
		if start < 0 || start+len(t.Text) > len(text) || text[start:start+len(t.Text)] != t.Text {
			continue
		}
		tokens = append(tokens, oracle.Token{Text: t.Text, Start: start, End: start + len(t.Text)})
	}
	return tokens, nil
}

func (c *Client) post(ctx context.Context, path, text string, out any) error {
	body, err := json.Marshal(textRequest{Text: text})
	if err != nil {
		return fmt.Errorf("sidecar: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("sidecar: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req) // #nosec G107 -- URL from trusted config
	if err != nil {
		return fmt.Errorf("sidecar %s: %w", path, err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close on HTTP response body

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sidecar %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("sidecar %s: decode: %w", path, err)
	}
	return nil
}
