// Package web serves the contact sensor's state as a read-only HTTP page and
// JSON documents.
package web

import (
	"context"
	"net"
	"net/http"

	"github.com/sweeney/contact-sensor/internal/logger"
	"github.com/sweeney/contact-sensor/internal/status"
)

// Source yields the state to render. *status.Tracker implements it.
type Source interface {
	Snapshot() status.Snapshot
}

// Server is the status HTTP server.
type Server struct {
	src Source
	srv *http.Server
}

// New builds a Server on addr. Nothing listens until ListenAndServe or Serve.
func New(addr string, src Source) *Server {
	s := &Server{src: src}
	s.srv = &http.Server{Addr: addr, Handler: s.routes()}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", readOnly(s.page))
	mux.HandleFunc("/index.json", readOnly(s.statusDoc))
	mux.HandleFunc("/battery.json", readOnly(s.batteryDoc))
	return mux
}

// ListenAndServe blocks until Shutdown.
func (s *Server) ListenAndServe() error { return s.srv.ListenAndServe() }

// Serve runs on an existing listener.
func (s *Server) Serve(ln net.Listener) error { return s.srv.Serve(ln) }

// Shutdown stops accepting requests and waits for active ones.
func (s *Server) Shutdown(ctx context.Context) error { return s.srv.Shutdown(ctx) }

// readOnly rejects everything but GET and HEAD and disables caching; the
// page reflects live state.
func readOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		h(w, r)
	}
}

func (s *Server) page(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/", "/index.html":
	default:
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, s.src.Snapshot()); err != nil {
		logger.Warn().Err(err).Str("path", r.URL.Path).Msg("render status page")
	}
}

func (s *Server) statusDoc(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, status.FormatJSON(s.src.Snapshot()))
}

// batteryDoc answers 204 until the first sample has been taken.
func (s *Server) batteryDoc(w http.ResponseWriter, _ *http.Request) {
	doc, ok := status.FormatBattery(s.src.Snapshot())
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, doc)
}

func writeJSON(w http.ResponseWriter, doc []byte) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(doc); err != nil {
		logger.Debug().Err(err).Msg("write status response")
	}
}
