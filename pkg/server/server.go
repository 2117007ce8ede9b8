package server

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adfharrison1/go-dirdb/pkg/api"
	"github.com/adfharrison1/go-dirdb/pkg/engine"
	"github.com/adfharrison1/go-dirdb/pkg/index"
)

// Server wires the database into an HTTP router.
type Server struct {
	router *mux.Router
	db     *engine.DB
}

// NewServer creates a new instance of Server over an open database.
func NewServer(db *engine.DB) *Server {
	s := &Server{
		router: mux.NewRouter(),
		db:     db,
	}

	handler := api.NewHandler(db)
	handler.RegisterRoutes(s.router)

	registry := prometheus.NewRegistry()
	index.RegisterMetrics(registry)
	s.router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// Use the logging middleware for all routes
	s.router.Use(requestLoggerMiddleware)

	// Customize NotFoundHandler to log 404s
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("WARN: No route found for %s %s", r.Method, r.URL.Path)
		http.NotFound(w, r)
	})

	return s
}

// requestLoggerMiddleware logs the method, URL path, and duration for each request.
func requestLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		elapsed := time.Since(start)
		log.Printf("INFO: Request %s %s took %s", r.Method, r.URL.Path, elapsed)
	})
}

// Router exposes the configured router to the HTTP server.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Close shuts the database down.
func (s *Server) Close() {
	if err := s.db.Close(); err != nil {
		log.Printf("ERROR: Failed to close database: %v", err)
	}
}
