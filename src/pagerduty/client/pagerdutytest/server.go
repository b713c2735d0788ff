// Package pagerdutytest provides a fake Events API v2 endpoint that records
// the requests it receives.
package pagerdutytest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	"incidentbridge/src/pagerduty/types"
)

type Request struct {
	URL     string
	Header  http.Header
	RawBody []byte
	Event   types.IncidentEventRequest
}

type Server struct {
	URL string

	mu       sync.Mutex
	ts       *httptest.Server
	requests []Request
	status   int
	body     string
	closed   bool
}

// NewServer replies 202 with an accepted body until Respond changes it.
func NewServer() *Server {
	s := &Server{
		status: http.StatusAccepted,
		body:   `{"status":"success","message":"Event processed","dedup_key":"srv-dedup"}`,
	}
	s.ts = httptest.NewServer(http.HandlerFunc(s.handle))
	s.URL = s.ts.URL
	return s
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	pr := Request{
		URL:     r.URL.String(),
		Header:  r.Header.Clone(),
		RawBody: raw,
	}
	_ = json.Unmarshal(raw, &pr.Event)

	s.mu.Lock()
	s.requests = append(s.requests, pr)
	status, body := s.status, s.body
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

// Respond sets the status and body for subsequent requests.
func (s *Server) Respond(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.body = body
}

func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

func (s *Server) Close() {
	s.mu.Lock()
	closed := s.closed
	s.closed = true
	s.mu.Unlock()
	if !closed {
		s.ts.Close()
	}
}
