package handlers

import (
	"sync"

	"github.com/lehigh-university-libraries/fotobox/internal/capture"
)

// WebView keeps what the kiosk page should render. The page polls it
// through /api/session.
type WebView struct {
	mu    sync.RWMutex
	state ViewState
	qrPNG []byte
}

// ViewState is the renderable part of the page.
type ViewState struct {
	ConsentVisible bool   `json:"consent_visible"`
	Status         string `json:"status"`
	Alert          string `json:"alert,omitempty"`
	// AlertSeq increases with every alert so the page shows each one once.
	AlertSeq      int    `json:"alert_seq"`
	ResultVisible bool   `json:"result_visible"`
	ResultURL     string `json:"result_url,omitempty"`
	Prompt        string `json:"prompt,omitempty"`
	// ResultSeq changes with every result so the page can refetch the QR image.
	ResultSeq int  `json:"result_seq"`
	HasQR     bool `json:"has_qr"`
}

func NewWebView() *WebView {
	return &WebView{}
}

func (v *WebView) ShowConsent(visible bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state.ConsentVisible = visible
	if visible {
		v.state.ResultVisible = false
	}
}

func (v *WebView) SetStatus(msg string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state.Status = msg
}

func (v *WebView) Alert(msg string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state.Alert = msg
	v.state.AlertSeq++
}

func (v *WebView) ShowResult(r capture.Result) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state.ResultVisible = true
	v.state.ResultURL = r.URL
	v.state.Prompt = r.Prompt
	v.state.ResultSeq++
	v.qrPNG = nil
	if r.QR != nil {
		v.qrPNG = r.QR.PNG
	}
	v.state.HasQR = v.qrPNG != nil
}

// State returns a copy of the current view state.
func (v *WebView) State() ViewState {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state
}

// QRCode returns the PNG of the current result's QR code, if any.
func (v *WebView) QRCode() ([]byte, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.qrPNG, v.qrPNG != nil
}
