package api

import (
	"github.com/gorilla/mux"
)

// RegisterRoutes registers all API routes with the given router
func (h *Handler) RegisterRoutes(router *mux.Router) {
	// Entry operations
	router.HandleFunc("/entries", h.HandleAddEntry).Methods("POST")
	router.HandleFunc("/entries/{dn}", h.HandleGetEntry).Methods("GET")
	router.HandleFunc("/entries/{dn}", h.HandleModifyEntry).Methods("PUT")
	router.HandleFunc("/entries/{dn}", h.HandleDeleteEntry).Methods("DELETE")

	// Search
	router.HandleFunc("/search", h.HandleSearch).Methods("GET")

	// Maintenance
	router.HandleFunc("/reindex", h.HandleReindex).Methods("POST")
	router.HandleFunc("/health", h.HandleHealth).Methods("GET")
}
