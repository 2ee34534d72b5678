package feed

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Handler expõe o catálogo no mesmo formato do feed consumido pelo ledger.
type Handler struct {
	Catalog *Catalog
	Log     *zap.Logger

	// Callback de métricas (opcional)
	OnRequest func(status int)
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/v3/event/{key}/matches", h.eventMatches)
	return r
}

func (h *Handler) eventMatches(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	ev, ok := h.Catalog.Event(key)
	if !ok {
		h.observe(http.StatusNotFound)
		http.Error(w, "unknown event", http.StatusNotFound)
		return
	}

	h.observe(http.StatusOK)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(ev); err != nil {
		h.Log.Warn("encode event failed", zap.String("event_key", key), zap.Error(err))
	}
}

func (h *Handler) observe(status int) {
	if h.OnRequest != nil {
		h.OnRequest(status)
	}
}
