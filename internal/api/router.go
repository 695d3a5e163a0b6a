package api

import "net/http"

// NewRouter mounts the handler. metrics may be nil.
func NewRouter(h *Handler, metrics http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/evaluate", h.Evaluate)
	mux.HandleFunc("/v1/evaluate", h.Evaluate)
	mux.HandleFunc("/v1/policy", h.Policy)
	mux.HandleFunc("/v1/decisions", h.Decisions)
	mux.HandleFunc("/healthz", h.Health)
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	})
	return mux
}
