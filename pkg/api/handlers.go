// Package api implements the HTTP surface of go-dirdb.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"

	"github.com/adfharrison1/go-dirdb/pkg/domain"
	"github.com/adfharrison1/go-dirdb/pkg/engine"
	"github.com/adfharrison1/go-dirdb/pkg/message"
)

// Handler holds the database and serialises access to it: one writer at a
// time, readers in parallel between transactions.
type Handler struct {
	db *engine.DB
	mu sync.RWMutex
}

// NewHandler creates a new API handler backed by the given database.
func NewHandler(db *engine.DB) *Handler {
	return &Handler{db: db}
}

// Entry is the JSON form of a directory entry.
type Entry struct {
	DN         string              `json:"dn"`
	Attributes map[string][]string `json:"attributes"`
}

func entryFromMessage(m *message.Message) Entry {
	out := Entry{DN: m.DN.Linearized(), Attributes: make(map[string][]string)}
	for _, el := range m.Elements {
		vals := make([]string, len(el.Values))
		for i, v := range el.Values {
			vals[i] = string(v)
		}
		out.Attributes[el.Name] = vals
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: Failed to encode response: %v", err)
	}
}

// writeError maps engine errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNoSuchObject), errors.Is(err, domain.ErrKeyNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrEntryAlreadyExists):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrConstraintViolation):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrReadOnly):
		status = http.StatusForbidden
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
