package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/lehigh-university-libraries/fotobox/internal/camera"
	"github.com/lehigh-university-libraries/fotobox/internal/capture"
	"github.com/lehigh-university-libraries/fotobox/internal/config"
	"github.com/lehigh-university-libraries/fotobox/internal/models"
	"github.com/lehigh-university-libraries/fotobox/internal/storage"
)

// Handler serves the kiosk page and its API on top of one capture client.
type Handler struct {
	ctx          context.Context
	sessionStore *storage.SessionStore
	client       *capture.Client
	view         *WebView
	browser      *camera.BrowserDevice
	prompts      []config.Prompt
}

// Options wires a Handler.
type Options struct {
	// Ctx bounds capture cycles started from the page; cancel it on shutdown.
	Ctx     context.Context
	Store   *storage.SessionStore
	Client  *capture.Client
	View    *WebView
	Browser *camera.BrowserDevice
	Prompts []config.Prompt
}

func New(opts Options) *Handler {
	ctx := opts.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	store := opts.Store
	if store == nil {
		store = storage.New()
	}
	return &Handler{
		ctx:          ctx,
		sessionStore: store,
		client:       opts.Client,
		view:         opts.View,
		browser:      opts.Browser,
		prompts:      opts.Prompts,
	}
}

// Routes registers the kiosk routes on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/api/session", h.HandleSession)
	mux.HandleFunc("/api/events", h.HandleEvents)
	mux.HandleFunc("/api/frame", h.HandleFrame)
	mux.HandleFunc("/api/prompts", h.HandlePrompts)
	mux.HandleFunc("/api/qr.png", h.HandleQR)
	mux.HandleFunc("/api/sessions", h.HandleSessions)
	mux.HandleFunc("/api/sessions/", h.HandleSessionDetail)
	mux.HandleFunc("/", h.HandleStatic)
	mux.HandleFunc("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			slog.Error("Unable to write healthcheck", "err", err)
		}
	})
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	h.writeJSONStatus(w, data, http.StatusOK)
}

func (h *Handler) writeJSONStatus(w http.ResponseWriter, data interface{}, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	slog.Error(message)
	http.Error(w, message, code)
}

func (h *Handler) promptExists(id string) bool {
	for _, p := range h.prompts {
		if p.ID == id {
			return true
		}
	}
	return false
}

// RecordTo returns a capture callback that keeps each displayed result in
// store.
func RecordTo(store *storage.SessionStore) func(capture.Session) {
	return func(s capture.Session) {
		id := store.Add(&models.CaptureRecord{
			ImageID:   s.ImageID,
			TaskID:    s.TaskID,
			PromptID:  s.PromptID,
			Prompt:    s.Prompt,
			ResultURL: s.ResultURL,
			Attempts:  s.Attempts,
		})
		slog.Debug("Capture recorded", "id", id, "image_id", s.ImageID)
	}
}
