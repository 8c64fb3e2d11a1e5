package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(enableCORS)

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/analyze", h.Analyze).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/analyze/image", h.AnalyzeUpload).Methods(http.MethodPost, http.MethodOptions)

	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
