// Package httpapi exposes the broker's topics over REST, one GET/PUT route
// pair per registered path (binary topics such as the PNG display
// snapshot included), plus the one endpoint that doesn't fit the generic
// topic shape: the journal SSE tail.
package httpapi

import (
	"io"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"

	"github.com/linux-automation/tacd/internal/broker"
	"github.com/linux-automation/tacd/internal/journal"
	"github.com/linux-automation/tacd/internal/tacerr"
)

// Server builds the /v1 REST surface over a Broker.
type Server struct {
	Broker  *broker.Broker
	Journal journal.Reader
	Logger  *logrus.Logger
}

// NewServer returns a Server ready to have Handler called once the broker
// is fully populated (routes are generated from broker.Paths() at Handler
// time, so registration order doesn't matter as long as it happens first).
func NewServer(b *broker.Broker, j journal.Reader, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Server{Broker: b, Journal: j, Logger: logger}
}

// Handler builds the router. Call once, after every topic has been
// registered with the broker.
func (s *Server) Handler() http.Handler {
	r := httprouter.New()

	for _, path := range s.Broker.Paths() {
		path := path // capture
		r.GET(path, s.handleGet(path))
		// Read-only paths get a PUT route too, so SetExternal answers
		// with Forbidden (403) rather than the router with 405.
		r.PUT(path, s.handlePut(path))
	}

	r.GET("/v1/tac/journal", s.handleJournal)
	return r
}

func (s *Server) handleGet(path string) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		data, contentType, err := s.Broker.Get(path)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write(data)
	}
}

func (s *Server) handlePut(path string) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, tacerr.Wrap(tacerr.BadRequest, "reading body", err))
			return
		}
		if err := s.Broker.SetExternal(path, body); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	historyLen := 100
	if v := r.URL.Query().Get("history_len"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			historyLen = n
		}
	}
	unit := r.URL.Query().Get("unit")

	entries, err := s.Journal.Tail(r.Context(), historyLen, unit)
	if err != nil {
		writeError(w, tacerr.Wrap(tacerr.Internal, "starting journal tail", err))
		return
	}

	flusher, _ := w.(http.Flusher)
	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flush()

	if err := journal.WriteSSE(r.Context(), w, flush, entries); err != nil {
		s.Logger.WithError(err).Debug("journal SSE stream ended")
	}
}

// statusFor maps a tacerr.Kind to the HTTP status spec.md §6/§7 require.
func statusFor(kind tacerr.Kind) int {
	switch kind {
	case tacerr.BadRequest:
		return http.StatusBadRequest
	case tacerr.Forbidden:
		return http.StatusForbidden
	case tacerr.NotFound:
		return http.StatusNotFound
	case tacerr.HardwareUnavailable:
		return http.StatusServiceUnavailable
	case tacerr.DeadlineMiss:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	kind := tacerr.Of(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(kind))
	_, _ = w.Write([]byte(`{"error":"` + jsonEscape(err.Error()) + `"}`))
}

// jsonEscape is a minimal escaper for the single-field error body above;
// full JSON encoding would pull in encoding/json for a one-liner.
func jsonEscape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' || c == '\\' {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	return string(out)
}
