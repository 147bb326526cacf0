package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lehigh-university-libraries/fotobox/internal/camera"
	"github.com/lehigh-university-libraries/fotobox/internal/capture"
	"github.com/lehigh-university-libraries/fotobox/internal/config"
	"github.com/lehigh-university-libraries/fotobox/internal/datauri"
	"github.com/lehigh-university-libraries/fotobox/internal/models"
	"github.com/lehigh-university-libraries/fotobox/internal/service"
	"github.com/lehigh-university-libraries/fotobox/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type kiosk struct {
	mux   *http.ServeMux
	store *storage.SessionStore

	mu      sync.Mutex
	prompts []string
}

func (k *kiosk) uploadedPrompts() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]string(nil), k.prompts...)
}

func newKiosk(t *testing.T, withBrowser bool) *kiosk {
	t.Helper()

	k := &kiosk{}
	processor := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/upload":
			k.mu.Lock()
			k.prompts = append(k.prompts, r.FormValue("prompt_id"))
			k.mu.Unlock()
			_ = json.NewEncoder(w).Encode(map[string]string{"image_id": "img1", "prompt": "Oil painting"})
		case r.URL.Path == "/processed/img1":
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(processor.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	var device camera.Device
	var browser *camera.BrowserDevice
	if withBrowser {
		browser = camera.NewBrowserDevice()
		device = browser
	} else {
		device = &camera.FileDevice{Path: t.TempDir() + "/missing.jpg"}
	}

	k.store = storage.New()
	view := NewWebView()
	client := capture.New(device, service.NewClient(processor.URL, time.Second), view, capture.Options{
		PollInterval: 10 * time.Millisecond,
		OnDisplayed:  RecordTo(k.store),
	})
	_ = client.Start(ctx)
	t.Cleanup(func() { _ = client.Close() })

	h := New(Options{
		Ctx:     ctx,
		Store:   k.store,
		Client:  client,
		View:    view,
		Browser: browser,
		Prompts: config.Default().Prompts,
	})
	k.mux = http.NewServeMux()
	h.Routes(k.mux)
	return k
}

func (k *kiosk) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	k.mux.ServeHTTP(rec, req)
	return rec
}

func (k *kiosk) session(t *testing.T) SessionResponse {
	t.Helper()
	rec := k.do(t, http.MethodGet, "/api/session", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var s SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	return s
}

func frameURI(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for x := 0; x < 32; x++ {
		img.Set(x, 5, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return datauri.Encode(camera.MIMETypeJPEG, buf.Bytes())
}

func TestHandleStatic(t *testing.T) {
	k := newKiosk(t, true)

	rec := k.do(t, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "consent-dialog")

	rec = k.do(t, http.MethodGet, "/static/../common.go", "")
	assert.NotEqual(t, http.StatusOK, rec.Code)

	rec = k.do(t, http.MethodGet, "/nope.js", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthcheck(t *testing.T) {
	k := newKiosk(t, true)
	rec := k.do(t, http.MethodGet, "/healthcheck", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestHandlePrompts(t *testing.T) {
	k := newKiosk(t, true)
	rec := k.do(t, http.MethodGet, "/api/prompts", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var prompts []config.Prompt
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &prompts))
	assert.Equal(t, config.Default().Prompts, prompts)
}

func TestBrowserCaptureCycle(t *testing.T) {
	k := newKiosk(t, true)

	rec := k.do(t, http.MethodGet, "/api/qr.png", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = k.do(t, http.MethodPost, "/api/events", `{"type":"capture","prompt_id":"2"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	s := k.session(t)
	assert.Equal(t, "awaiting_consent", s.Session.State.String())
	assert.True(t, s.View.ConsentVisible)
	assert.True(t, s.BrowserCamera)

	rec = k.do(t, http.MethodPost, "/api/frame", frameURI(t))
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = k.do(t, http.MethodPost, "/api/events", `{"type":"consent"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	require.Eventually(t, func() bool {
		return k.session(t).Session.State == capture.StateDisplayed
	}, 2*time.Second, 10*time.Millisecond)

	s = k.session(t)
	assert.False(t, s.View.ConsentVisible)
	assert.True(t, s.View.ResultVisible)
	assert.True(t, s.View.HasQR)
	assert.Equal(t, capture.MsgDone, s.View.Status)
	assert.True(t, strings.HasSuffix(s.View.ResultURL, "/processed/img1"))
	assert.Equal(t, "Oil painting", s.View.Prompt)
	assert.Equal(t, []string{"2"}, k.uploadedPrompts())

	rec = k.do(t, http.MethodGet, "/api/qr.png", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))

	rec = k.do(t, http.MethodGet, "/api/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var records []models.CaptureRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "img1", records[0].ImageID)
	assert.Equal(t, "2", records[0].PromptID)
}

func TestDeviceErrorIsAlerted(t *testing.T) {
	k := newKiosk(t, false)

	s := k.session(t)
	assert.False(t, s.BrowserCamera)
	assert.Equal(t, 1, s.View.AlertSeq)
	assert.Equal(t, capture.MsgCameraError, s.View.Alert)

	rec := k.do(t, http.MethodPost, "/api/frame", frameURI(t))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.Equal(t, http.StatusOK, k.do(t, http.MethodPost, "/api/events", `{"type":"capture"}`).Code)
	require.Equal(t, http.StatusAccepted, k.do(t, http.MethodPost, "/api/events", `{"type":"consent"}`).Code)

	require.Eventually(t, func() bool {
		return k.session(t).Session.State == capture.StateFailed
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, k.session(t).View.AlertSeq)
	assert.Empty(t, k.uploadedPrompts())
}

func TestHandleEventsRejects(t *testing.T) {
	k := newKiosk(t, true)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"invalid json", `{`, http.StatusBadRequest},
		{"unknown event", `{"type":"smile"}`, http.StatusBadRequest},
		{"unknown prompt", `{"type":"capture","prompt_id":"99"}`, http.StatusBadRequest},
		{"refuse while idle", `{"type":"refuse"}`, http.StatusConflict},
		{"consent while idle", `{"type":"consent"}`, http.StatusConflict},
		{"cancel while idle", `{"type":"cancel"}`, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := k.do(t, http.MethodPost, "/api/events", tt.body)
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, capture.StateIdle, k.session(t).Session.State)
		})
	}

	rec := k.do(t, http.MethodGet, "/api/events", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRefuseHidesConsent(t *testing.T) {
	k := newKiosk(t, true)

	require.Equal(t, http.StatusOK, k.do(t, http.MethodPost, "/api/events", `{"type":"capture"}`).Code)
	require.Equal(t, http.StatusOK, k.do(t, http.MethodPost, "/api/events", `{"type":"refuse"}`).Code)

	s := k.session(t)
	assert.Equal(t, capture.StateIdle, s.Session.State)
	assert.False(t, s.View.ConsentVisible)
	assert.Empty(t, k.uploadedPrompts())
}

func TestHandleFrameRejectsGarbage(t *testing.T) {
	k := newKiosk(t, true)

	rec := k.do(t, http.MethodPost, "/api/frame", "not a data uri")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = k.do(t, http.MethodGet, "/api/frame", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleSessionDetail(t *testing.T) {
	k := newKiosk(t, true)
	id := k.store.Add(&models.CaptureRecord{ImageID: "abc123"})

	rec := k.do(t, http.MethodGet, "/api/sessions/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var record models.CaptureRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, "abc123", record.ImageID)

	rec = k.do(t, http.MethodDelete, "/api/sessions/"+id, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = k.do(t, http.MethodGet, "/api/sessions/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func (k *kiosk) displayOnce(t *testing.T, promptID string) {
	t.Helper()
	body := `{"type":"capture"}`
	if promptID != "" {
		body = `{"type":"capture","prompt_id":"` + promptID + `"}`
	}
	require.Equal(t, http.StatusOK, k.do(t, http.MethodPost, "/api/events", body).Code)
	require.Equal(t, http.StatusNoContent, k.do(t, http.MethodPost, "/api/frame", frameURI(t)).Code)
	require.Equal(t, http.StatusAccepted, k.do(t, http.MethodPost, "/api/events", `{"type":"consent"}`).Code)
	require.Eventually(t, func() bool {
		return k.session(t).Session.State == capture.StateDisplayed
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSecondCycleNeedsFreshFrame(t *testing.T) {
	k := newKiosk(t, true)
	k.displayOnce(t, "")
	alerts := k.session(t).View.AlertSeq

	require.Equal(t, http.StatusOK, k.do(t, http.MethodPost, "/api/events", `{"type":"capture"}`).Code)
	// a lost camera exports an empty canvas
	assert.Equal(t, http.StatusBadRequest, k.do(t, http.MethodPost, "/api/frame", "data:,").Code)
	require.Equal(t, http.StatusAccepted, k.do(t, http.MethodPost, "/api/events", `{"type":"consent"}`).Code)

	require.Eventually(t, func() bool {
		return k.session(t).Session.State == capture.StateFailed
	}, 2*time.Second, 10*time.Millisecond)

	s := k.session(t)
	assert.Equal(t, alerts+1, s.View.AlertSeq)
	assert.Equal(t, capture.MsgCameraError, s.View.Alert)
	assert.Len(t, k.uploadedPrompts(), 1, "the earlier frame must not be uploaded again")
}

func TestFramePushedBeforeCaptureIsDropped(t *testing.T) {
	k := newKiosk(t, true)

	require.Equal(t, http.StatusNoContent, k.do(t, http.MethodPost, "/api/frame", frameURI(t)).Code)
	require.Equal(t, http.StatusOK, k.do(t, http.MethodPost, "/api/events", `{"type":"capture"}`).Code)
	require.Equal(t, http.StatusAccepted, k.do(t, http.MethodPost, "/api/events", `{"type":"consent"}`).Code)

	require.Eventually(t, func() bool {
		return k.session(t).Session.State == capture.StateFailed
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, k.uploadedPrompts())
}

func TestRejectedEventKeepsPrompt(t *testing.T) {
	k := newKiosk(t, true)

	require.Equal(t, http.StatusOK, k.do(t, http.MethodPost, "/api/events", `{"type":"capture","prompt_id":"2"}`).Code)

	tests := []struct {
		name string
		body string
	}{
		{"cancel", `{"type":"cancel","prompt_id":"1"}`},
		{"second capture", `{"type":"capture","prompt_id":"3"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := k.do(t, http.MethodPost, "/api/events", tt.body)
			assert.Equal(t, http.StatusConflict, rec.Code)
			s := k.session(t)
			assert.Equal(t, capture.StateAwaitingConsent, s.Session.State)
			assert.Equal(t, "2", s.Session.PromptID)
		})
	}

	require.Equal(t, http.StatusNoContent, k.do(t, http.MethodPost, "/api/frame", frameURI(t)).Code)
	require.Equal(t, http.StatusAccepted, k.do(t, http.MethodPost, "/api/events", `{"type":"consent"}`).Code)
	require.Eventually(t, func() bool {
		return k.session(t).Session.State == capture.StateDisplayed
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"2"}, k.uploadedPrompts())
}

func TestConcurrentConsentStartsOneCycle(t *testing.T) {
	k := newKiosk(t, true)
	require.Equal(t, http.StatusOK, k.do(t, http.MethodPost, "/api/events", `{"type":"capture"}`).Code)
	require.Equal(t, http.StatusNoContent, k.do(t, http.MethodPost, "/api/frame", frameURI(t)).Code)

	codes := make([]int, 2)
	var wg sync.WaitGroup
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader(`{"type":"consent"}`))
			rec := httptest.NewRecorder()
			k.mux.ServeHTTP(rec, req)
			codes[i] = rec.Code
		}(i)
	}
	wg.Wait()

	assert.ElementsMatch(t, []int{http.StatusAccepted, http.StatusConflict}, codes)
	require.Eventually(t, func() bool {
		return k.session(t).Session.State == capture.StateDisplayed
	}, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, k.uploadedPrompts(), 1)
}
