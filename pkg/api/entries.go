package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/adfharrison1/go-dirdb/pkg/dn"
	"github.com/adfharrison1/go-dirdb/pkg/message"
)

func messageFromEntry(e Entry) (*message.Message, error) {
	d, err := dn.Parse(e.DN)
	if err != nil {
		return nil, fmt.Errorf("invalid dn %q: %w", e.DN, err)
	}
	m := message.New(d)
	for name, vals := range e.Attributes {
		bs := make([][]byte, len(vals))
		for i, v := range vals {
			bs[i] = []byte(v)
		}
		m.Add(name, bs...)
	}
	return m, nil
}

// HandleAddEntry stores a new entry.
func (h *Handler) HandleAddEntry(w http.ResponseWriter, r *http.Request) {
	var entry Entry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	msg, err := messageFromEntry(entry)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	h.mu.Lock()
	err = h.db.Add(msg)
	h.mu.Unlock()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// HandleGetEntry fetches one entry by DN.
func (h *Handler) HandleGetEntry(w http.ResponseWriter, r *http.Request) {
	d, err := dn.Parse(mux.Vars(r)["dn"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	h.mu.RLock()
	msg, err := h.db.Get(d)
	h.mu.RUnlock()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entryFromMessage(msg))
}

// HandleModifyEntry replaces the attributes of an existing entry.
func (h *Handler) HandleModifyEntry(w http.ResponseWriter, r *http.Request) {
	var entry Entry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	entry.DN = mux.Vars(r)["dn"]
	msg, err := messageFromEntry(entry)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	h.mu.Lock()
	err = h.db.Modify(msg)
	h.mu.Unlock()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// HandleDeleteEntry removes an entry by DN.
func (h *Handler) HandleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	d, err := dn.Parse(mux.Vars(r)["dn"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	h.mu.Lock()
	err = h.db.Delete(d)
	h.mu.Unlock()
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
