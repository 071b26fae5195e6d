// Package loopback catches a single authorization callback on a local
// port. A CLI has no app link for the provider to redirect to, so it plays
// the mobile app's role with http://127.0.0.1 instead.
package loopback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/aussiebroadwan/bouncer/pkg/httpx"
	"github.com/aussiebroadwan/bouncer/pkg/slogx"
)

const landingPage = `<!DOCTYPE html>
<html>
<head><title>Signed in</title></head>
<body>
<p>You're signed in. You can close this tab and return to the app.</p>
</body>
</html>`

// Server is a one-shot callback catcher. The first request on the callback
// path wins; later hits still get the landing page but change nothing.
type Server struct {
	addr   string
	path   string
	logger *slog.Logger

	srv     *http.Server
	results chan string
}

// New builds a listener for 127.0.0.1:port on the given path.
func New(port int, path string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		addr:    fmt.Sprintf("127.0.0.1:%d", port),
		path:    path,
		logger:  logger,
		results: make(chan string, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+path, s.handleCallback)

	s.srv = &http.Server{
		Handler:           httpx.Chain(mux, slogx.HTTPMiddleware(logger)),
		ReadHeaderTimeout: 3 * time.Second,
	}
	return s
}

// Start binds and begins serving. Binding is synchronous so a busy port
// fails here, not after the browser has already been sent off.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.addr = ln.Addr().String()

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("loopback listener failed", "error", err)
		}
	}()

	s.logger.Debug("loopback listener ready", "addr", s.addr, "path", s.path)
	return nil
}

// Addr reports the bound address, resolving port 0 to the real port once
// Start has returned.
func (s *Server) Addr() string {
	return s.addr
}

// Wait blocks until the provider redirects back, returning the callback URL
// exactly as received, or fails when ctx expires first.
func (s *Server) Wait(ctx context.Context) (string, error) {
	select {
	case callbackURL := <-s.results:
		return callbackURL, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Shutdown stops the listener, letting an in-flight response complete.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	select {
	case s.results <- r.URL.String():
		slogx.FromContext(r.Context()).Debug("authorization callback received")
	default:
		slogx.FromContext(r.Context()).Debug("duplicate callback ignored")
	}
	httpx.WriteHTML(w, http.StatusOK, landingPage)
}
