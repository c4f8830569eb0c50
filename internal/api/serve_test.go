package api

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"testing"

	"golang.org/x/net/http2"

	"clinical-deid/internal/tlscert"
)

func protoHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, r.Proto) //nolint:errcheck // test handler
	})
}

// startServer serves srv on a loopback port until the test ends.
func startServer(t *testing.T, srv *http.Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, srv, ln) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Serve: %v", err)
		}
	})
	return ln.Addr().String()
}

func get(t *testing.T, client *http.Client, url string) string {
	t.Helper()
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(body)
}

func TestServeCleartextHTTP2(t *testing.T) {
	srv, err := NewHTTPServer("", protoHandler(), nil)
	if err != nil {
		t.Fatal(err)
	}
	addr := startServer(t, srv)

	h2c := &http.Client{Transport: &http2.Transport{
		AllowHTTP: true,
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, addr)
		},
	}}
	if got := get(t, h2c, "http://"+addr+"/"); got != "HTTP/2.0" {
		t.Errorf("h2c client got %q", got)
	}
	if got := get(t, http.DefaultClient, "http://"+addr+"/"); got != "HTTP/1.1" {
		t.Errorf("HTTP/1.1 client got %q", got)
	}
}

func TestServeTLSNegotiatesHTTP2(t *testing.T) {
	dir := t.TempDir()
	cert, err := tlscert.LoadOrGenerate(filepath.Join(dir, "cert.pem"), filepath.Join(dir, "key.pem"), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	srv, err := NewHTTPServer("", protoHandler(), tlscert.Config(cert))
	if err != nil {
		t.Fatal(err)
	}
	addr := startServer(t, srv)

	pool := x509.NewCertPool()
	pool.AddCert(cert.Leaf)
	client := &http.Client{Transport: &http.Transport{
		TLSClientConfig:   &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12},
		ForceAttemptHTTP2: true,
	}}
	_, port, _ := net.SplitHostPort(addr)
	if got := get(t, client, "https://localhost:"+port+"/"); got != "HTTP/2.0" {
		t.Errorf("TLS client got %q", got)
	}
}
