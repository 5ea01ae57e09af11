package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"

	"github.com/DoyleJ11/handshape-backend/internal/lobby"
	"github.com/DoyleJ11/handshape-backend/internal/prompt"
)

const (
	defaultQRSize = 320 // mobile-friendly size
	maxQRSize     = 1024
)

func Healthz(lb *lobby.Lobby) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		v, err := lb.State(ctx)
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}

		phase := ""
		if v.Present {
			phase = string(v.Phase)
		}
		writeJSON(w, http.StatusOK, struct {
			Status  string `json:"status"`
			Clients int    `json:"clients"`
			Players int    `json:"players"`
			Phase   string `json:"phase,omitempty"`
		}{"ok", v.NumClients, len(v.Players), phase})
	}
}

// JoinQR renders a PNG QR code of the URL players open to join.
func JoinQR(publicURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		size := defaultQRSize
		if s := r.URL.Query().Get("size"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 64 || n > maxQRSize {
				http.Error(w, "size must be between 64 and 1024", http.StatusBadRequest)
				return
			}
			size = n
		}

		url := publicURL
		if url == "" {
			url = requestOrigin(r) + "/"
		}

		png, err := qrcode.Encode(url, qrcode.Medium, size)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(png)
	}
}

func Prompts(c prompt.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, c)
	}
}

// State serves the public view of the session, the same one a connection
// that has not joined would see.
func State(lb *lobby.Lobby) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		v, err := lb.State(ctx)
		if err != nil {
			http.Error(w, "lobby unavailable", http.StatusServiceUnavailable)
			return
		}
		if !v.Present {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no active session"})
			return
		}
		writeJSON(w, http.StatusOK, v.Public)
	}
}

// requestOrigin respects TLS and X-Forwarded-Proto if present.
func requestOrigin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.ToLower(strings.TrimSpace(strings.Split(proto, ",")[0]))
	}
	return scheme + "://" + r.Host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
