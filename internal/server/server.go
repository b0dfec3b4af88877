// Package server exposes the daemon over HTTP (JSON API and SSE event stream)
// and gRPC (standard health checking).
package server

import (
	"log/slog"

	"github.com/alfredjeanlab/baywatch/internal/model"
	"github.com/alfredjeanlab/baywatch/internal/store"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ReaderService is the gRPC health service name tracking the tag-reader link.
const ReaderService = "baywatch.reader"

// StatusSource reports the correlator state.
type StatusSource interface {
	Status() model.Status
}

// ReaderStats reports the tag-reader transport counters.
type ReaderStats interface {
	Status() model.ReaderStatus
}

// DetectorStats reports the frame loop counters.
type DetectorStats interface {
	Stats() model.DetectorStatus
}

// Options configures a Server. Only Store is required.
type Options struct {
	Store    store.Store
	Status   StatusSource
	Reader   ReaderStats
	Detector DetectorStats
	Logger   *slog.Logger
}

// Server holds the dependencies shared by the HTTP and gRPC surfaces.
type Server struct {
	store    store.Store
	status   StatusSource
	reader   ReaderStats
	detector DetectorStats
	hub      *Hub
	health   *health.Server
	logger   *slog.Logger
}

// New returns a Server. The overall health status starts SERVING; the
// reader service starts NOT_SERVING until SetReaderServing(true).
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ReaderService, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Server{
		store:    opts.Store,
		status:   opts.Status,
		reader:   opts.Reader,
		detector: opts.Detector,
		hub:      NewHub(),
		health:   hs,
		logger:   logger,
	}
}

// Hub returns the SSE hub. It is an events.Publisher and should be added to
// the recorder's publishers so stream clients see every event.
func (s *Server) Hub() *Hub { return s.hub }

// SetReaderServing flips the gRPC health status of the reader service.
func (s *Server) SetReaderServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ReaderService, st)
}

// Shutdown marks every health service NOT_SERVING.
func (s *Server) Shutdown() {
	s.health.Shutdown()
}

// snapshot merges the correlator status with the transport counters.
func (s *Server) snapshot() model.Status {
	var st model.Status
	if s.status != nil {
		st = s.status.Status()
	}
	if s.reader != nil {
		st.Reader = s.reader.Status()
	}
	if s.detector != nil {
		st.Detector = s.detector.Stats()
	}
	return st
}

// withLive replaces a stored copy of the open session with the live one. The
// store learns an open session's tags only when it closes.
func (s *Server) withLive(sessions ...*model.Session) {
	if s.status == nil {
		return
	}
	open := s.status.Status().OpenSession
	if open == nil {
		return
	}
	for i, sess := range sessions {
		if sess != nil && sess.ID == open.ID && sess.IsOpen() {
			sessions[i] = open
			return
		}
	}
}
