package server

import "net/http"

// NewRouter wires HTTP routes to the server's handlers.
func NewRouter(s *Server) (http.Handler, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/decode", s.handleDecode)
	mux.HandleFunc("/api/v1/decode/stream", s.handleDecodeStream)
	mux.HandleFunc("/api/v1/containers", s.handleContainers)
	mux.HandleFunc("/api/v1/metrics", s.handleMetrics)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux, nil
}
