package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const maxFrameSize = 10 << 20

// HandleFrame receives the latest canvas frame of the page as a data URI.
// It is only available when the kiosk uses the browser camera.
func (h *Handler) HandleFrame(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.browser == nil {
		h.writeError(w, "Browser camera not enabled", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFrameSize))
	if err != nil {
		h.writeError(w, "Frame too large or unreadable", http.StatusRequestEntityTooLarge)
		return
	}

	if err := h.browser.Push(strings.TrimSpace(string(body))); err != nil {
		h.writeError(w, "Invalid frame: "+err.Error(), http.StatusBadRequest)
		return
	}

	slog.Debug("Frame received", "bytes", len(body))
	w.WriteHeader(http.StatusNoContent)
}
