package api

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// newH2Server returns the HTTP/2 settings shared by both serving modes.
func newH2Server() *http2.Server {
	return &http2.Server{
		MaxConcurrentStreams: 250,
		MaxReadFrameSize:     1 << 20, // 1 MiB
		IdleTimeout:          90 * time.Second,
	}
}

// NewHTTPServer wraps handler for serving. With a nil tlsCfg the server
// speaks HTTP/1.1 and cleartext HTTP/2 (h2c); otherwise it serves TLS with
// HTTP/2 negotiated over ALPN.
func NewHTTPServer(addr string, handler http.Handler, tlsCfg *tls.Config) (*http.Server, error) {
	srv := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       90 * time.Second,
	}
	if tlsCfg == nil {
		srv.Handler = h2c.NewHandler(handler, newH2Server())
		return srv, nil
	}
	srv.Handler = handler
	srv.TLSConfig = tlsCfg
	if err := http2.ConfigureServer(srv, newH2Server()); err != nil {
		return nil, fmt.Errorf("configure http2: %w", err)
	}
	return srv, nil
}

// Serve accepts connections on ln until ctx is cancelled, then shuts the
// server down gracefully. It returns nil after a clean shutdown.
func Serve(ctx context.Context, srv *http.Server, ln net.Listener) error {
	errc := make(chan error, 1)
	go func() {
		if srv.TLSConfig != nil {
			errc <- srv.ServeTLS(ln, "", "")
		} else {
			errc <- srv.Serve(ln)
		}
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

// ListenAndServe listens on srv.Addr and calls Serve.
func ListenAndServe(ctx context.Context, srv *http.Server) error {
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}
	return Serve(ctx, srv, ln)
}
