package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chsco430/cardstore/internal/engine"
	"github.com/chsco430/cardstore/internal/store"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	ledger := store.NewMemory()
	if err := store.SeedDemo(context.Background(), ledger); err != nil {
		t.Fatalf("seed: %v", err)
	}
	trade := engine.NewTradeEngine(ledger, engine.DefaultUnitPrice)
	return NewRouter(trade, slog.New(slog.DiscardHandler))
}

func TestRouter_Healthz(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf(`body["status"] = %q, want "ok"`, body["status"])
	}
}

func TestRouter_Cards(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cards", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body struct {
		Cards []cardView `json:"cards"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Cards) != 4 {
		t.Fatalf("got %d cards, want 4", len(body.Cards))
	}

	// Listing is name-ordered; Bulbasaur sorts first.
	first := body.Cards[0]
	if first.Name != "Bulbasaur" {
		t.Errorf("first card = %q, want Bulbasaur", first.Name)
	}
	if first.UnitPriceCents != engine.DefaultUnitPrice {
		t.Errorf("unit price = %d, want %d", first.UnitPriceCents, engine.DefaultUnitPrice)
	}
	if first.UnitPrice != "50.00" {
		t.Errorf("unit price text = %q, want 50.00", first.UnitPrice)
	}
}

func TestRouter_UnknownRoute(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
