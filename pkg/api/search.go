package api

import (
	"net/http"
	"strings"

	"github.com/adfharrison1/go-dirdb/pkg/dn"
	"github.com/adfharrison1/go-dirdb/pkg/engine"
	"github.com/adfharrison1/go-dirdb/pkg/filter"
	"github.com/adfharrison1/go-dirdb/pkg/message"
)

// HandleSearch answers GET /search?base=...&scope=...&filter=...&attrs=a,b
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	base, err := dn.Parse(q.Get("base"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	filterStr := q.Get("filter")
	if filterStr == "" {
		filterStr = "(objectClass=*)"
	}
	tree, err := filter.Parse(filterStr)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	var attrs []string
	if raw := q.Get("attrs"); raw != "" {
		attrs = strings.Split(raw, ",")
	}

	var results []Entry
	req := &engine.SearchRequest{
		Base:  base,
		Scope: filter.ParseScope(q.Get("scope")),
		Tree:  tree,
		Attrs: attrs,
		Callback: func(m *message.Message) error {
			results = append(results, entryFromMessage(m))
			return nil
		},
	}

	h.mu.RLock()
	n, err := h.db.Search(req)
	h.mu.RUnlock()
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   n,
		"entries": results,
	})
}

// HandleReindex rebuilds every index record.
func (h *Handler) HandleReindex(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	err := h.db.Reindex()
	h.mu.Unlock()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reindexed"})
}

// HandleHealth reports liveness.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
