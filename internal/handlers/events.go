package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/lehigh-university-libraries/fotobox/internal/capture"
)

// EventRequest is the body of POST /api/events.
type EventRequest struct {
	Type     string `json:"type"`
	PromptID string `json:"prompt_id,omitempty"`
}

// SessionResponse is what the page renders from.
type SessionResponse struct {
	Session       capture.Session `json:"session"`
	View          ViewState       `json:"view"`
	BrowserCamera bool            `json:"browser_camera"`
}

func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.writeJSON(w, h.snapshot())
}

func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	ev, err := capture.ParseEvent(req.Type)
	if err != nil {
		h.writeError(w, "Unknown event: "+req.Type, http.StatusBadRequest)
		return
	}

	if req.PromptID != "" && !h.promptExists(req.PromptID) {
		h.writeError(w, "Unknown prompt: "+req.PromptID, http.StatusBadRequest)
		return
	}

	switch ev {
	case capture.EventCapture:
		// The prompt is applied only when the request is accepted.
		err = h.client.RequestCapture(req.PromptID)
		if err == nil && h.browser != nil {
			h.browser.Reset()
		}
	case capture.EventConsent:
		h.startCycle(w)
		return
	default:
		err = h.client.Dispatch(r.Context(), ev)
	}
	if err != nil {
		h.writeError(w, err.Error(), statusFor(err))
		return
	}
	h.writeJSON(w, h.snapshot())
}

// startCycle runs the consented cycle in the background. It can take
// minutes, so it is bound to the server lifetime rather than to the request.
func (h *Handler) startCycle(w http.ResponseWriter) {
	run, err := h.client.BeginConsent(h.ctx)
	if err != nil {
		h.writeError(w, err.Error(), statusFor(err))
		return
	}
	go func() {
		if err := run(); err != nil {
			slog.Info("Capture cycle ended without result", "err", err)
		}
	}()
	h.writeJSONStatus(w, h.snapshot(), http.StatusAccepted)
}

func (h *Handler) HandlePrompts(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.writeJSON(w, h.prompts)
}

func (h *Handler) HandleQR(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	png, ok := h.view.QRCode()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(png); err != nil {
		slog.Error("Unable to write QR code", "err", err)
	}
}

func (h *Handler) snapshot() SessionResponse {
	return SessionResponse{
		Session:       h.client.Snapshot(),
		View:          h.view.State(),
		BrowserCamera: h.browser != nil,
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, capture.ErrUnknownEvent):
		return http.StatusBadRequest
	case capture.IsRejected(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
