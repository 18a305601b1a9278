package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// staticServer serves the verification root over loopback HTTP for
// pages whose scripts misbehave under file://.
type staticServer struct {
	srv  *http.Server
	ln   net.Listener
	done chan struct{}
	log  *slog.Logger
}

func newStaticServer(root string, logger *slog.Logger) *staticServer {
	s := &staticServer{
		done: make(chan struct{}),
		log:  logger,
	}
	s.srv = &http.Server{
		Handler:           s.logRequests(http.FileServer(http.Dir(root))),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// start binds an ephemeral loopback port and returns the base URL.
func (s *staticServer) start() (string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("listen: %w", err)
	}
	s.ln = ln
	go func() {
		defer close(s.done)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("static server", "err", err)
		}
	}()
	url := "http://" + ln.Addr().String()
	s.log.Info("serving verification root", "url", url)
	return url, nil
}

func (s *staticServer) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.srv.Shutdown(ctx)
	<-s.done
	return err
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *staticServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.log.Debug("static request", "method", r.Method, "path", r.URL.Path, "status", sw.code)
	})
}
