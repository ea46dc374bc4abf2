package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/chsco430/cardstore/internal/domain"
	"github.com/chsco430/cardstore/internal/engine"
)

// WriteJSON writes a JSON response with the given status code and data.
// Sets Content-Type to application/json before writing the status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data) // Write error intentionally ignored in response helper
}

// cardView is the JSON shape of a market listing entry.
type cardView struct {
	Name           string `json:"name"`
	Type           string `json:"type"`
	Rarity         string `json:"rarity"`
	Count          int64  `json:"count"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	UnitPrice      string `json:"unit_price"`
}

// NewRouter creates a chi router exposing the read-only HTTP surface:
// a health check and the current market listing. All mutations go
// through the TCP protocol.
func NewRouter(trade *engine.TradeEngine, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(requestLogging(logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/cards", func(w http.ResponseWriter, r *http.Request) {
		lots, err := trade.ListMarket(r.Context())
		if err != nil {
			WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "store unavailable"})
			return
		}

		views := make([]cardView, 0, len(lots))
		for _, lot := range lots {
			views = append(views, cardView{
				Name:           lot.Name,
				Type:           lot.Type,
				Rarity:         lot.Rarity,
				Count:          lot.Count,
				UnitPriceCents: trade.UnitPrice(),
				UnitPrice:      domain.FormatCents(trade.UnitPrice()),
			})
		}
		WriteJSON(w, http.StatusOK, map[string]any{"cards": views})
	})

	return r
}

// requestLogging returns middleware that logs each request's method, path,
// status code, and duration using slog.
func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// statusWriter captures the status code written to the response.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
