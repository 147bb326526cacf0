// Package capture implements the capture workflow of the kiosk: acquire the
// camera, gate on consent, upload one frame and poll until the processed
// image is available.
//
// The workflow is a state machine driven through Client.Dispatch. The
// terminal and web kiosks both feed user actions into it and render what it
// reports through a View.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lehigh-university-libraries/fotobox/internal/camera"
	"github.com/lehigh-university-libraries/fotobox/internal/datauri"
	"github.com/lehigh-university-libraries/fotobox/internal/metrics"
	"github.com/lehigh-university-libraries/fotobox/internal/qr"
	"github.com/lehigh-university-libraries/fotobox/internal/service"
)

// DefaultPollInterval is the fixed delay between two polls for the processed image.
const DefaultPollInterval = 2000 * time.Millisecond

// Service is the part of the processing service the workflow uses.
type Service interface {
	Upload(ctx context.Context, req service.UploadRequest) (*service.UploadResponse, error)
	CheckProcessed(ctx context.Context, imageID string) (bool, error)
	ProcessedURL(imageID string) string
}

// View renders what the workflow reports. Calls are made from the goroutine
// running Dispatch.
type View interface {
	ShowConsent(visible bool)
	SetStatus(msg string)
	// Alert is a blocking, user-visible error notification.
	Alert(msg string)
	ShowResult(r Result)
}

// Result is a processed image ready for display.
type Result struct {
	URL    string
	Prompt string
	// QR is nil when the code could not be generated.
	QR *qr.Code
}

// Session is the state of one kiosk client.
type Session struct {
	State      State     `json:"state"`
	ImageID    string    `json:"image_id,omitempty"`
	PromptID   string    `json:"prompt_id,omitempty"`
	Prompt     string    `json:"prompt,omitempty"`
	TaskID     string    `json:"task_id,omitempty"`
	ResultURL  string    `json:"result_url,omitempty"`
	Attempts   int       `json:"attempts"`
	UploadedAt time.Time `json:"uploaded_at,omitzero"`
	Err        error     `json:"-"`

	stream camera.Stream
}

// Options tunes a Client.
type Options struct {
	PollInterval time.Duration
	Capture      camera.Options
	// OnDisplayed receives a copy of the session each time a result is shown.
	OnDisplayed func(Session)
}

// Client runs the workflow for one kiosk. Only one capture cycle is in
// flight at a time.
type Client struct {
	device camera.Device
	svc    Service
	view   View
	opts   Options

	mu        sync.Mutex
	session   Session
	deviceErr error
	cancel    context.CancelFunc
}

// New creates a client in the idle state. Call Start to acquire the camera.
func New(device camera.Device, svc Service, view View, opts Options) *Client {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if view == nil {
		view = nopView{}
	}
	return &Client{
		device: device,
		svc:    svc,
		view:   view,
		opts:   opts,
	}
}

// Start acquires the video device. A failure is alerted and remembered;
// the client stays usable until a frame is needed.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.session.stream != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	stream, err := c.device.Open(ctx)
	if err != nil {
		slog.Error("Error accessing camera", "err", err)
		c.mu.Lock()
		c.deviceErr = err
		c.mu.Unlock()
		c.view.Alert(MsgCameraError)
		return fmt.Errorf("failed to acquire camera: %w", err)
	}

	c.mu.Lock()
	c.session.stream = stream
	c.deviceErr = nil
	c.mu.Unlock()
	slog.Info("Camera acquired")
	return nil
}

// Close stops a running cycle and releases the camera.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	stream := c.session.stream
	c.session.stream = nil
	c.mu.Unlock()

	if stream == nil {
		return nil
	}
	return stream.Close()
}

// SetPrompt selects the processing option sent with the next upload. The
// option of a cycle in flight cannot change.
func (c *Client) SetPrompt(promptID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.State.Busy() {
		return ErrBusy
	}
	c.session.PromptID = promptID
	return nil
}

// Snapshot returns a copy of the session.
func (c *Client) Snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.session
	s.stream = nil
	return s
}

// Dispatch applies ev to the workflow. EventConsent runs the whole cycle and
// returns once a result is displayed or the cycle failed. Events that are
// not valid in the current state change nothing and return
// ErrInvalidTransition or ErrBusy.
func (c *Client) Dispatch(ctx context.Context, ev Event) error {
	slog.Debug("Dispatching event", "event", ev, "state", c.Snapshot().State)

	switch ev {
	case EventCapture:
		return c.RequestCapture("")
	case EventRefuse:
		return c.refuse()
	case EventConsent:
		run, err := c.BeginConsent(ctx)
		if err != nil {
			return err
		}
		return run()
	case EventCancel:
		return c.cancelCycle()
	default:
		return ErrUnknownEvent
	}
}

// RequestCapture is EventCapture that also selects promptID for the upload
// when it is non-empty. A rejected request leaves the prompt unchanged.
func (c *Client) RequestCapture(promptID string) error {
	c.mu.Lock()
	state := c.session.State
	switch {
	case state.Busy():
		c.mu.Unlock()
		return ErrBusy
	case state == StateAwaitingConsent:
		c.mu.Unlock()
		return invalid(EventCapture, state)
	}
	c.session.State = StateAwaitingConsent
	if promptID != "" {
		c.session.PromptID = promptID
	}
	c.mu.Unlock()

	c.view.ShowConsent(true)
	return nil
}

func (c *Client) refuse() error {
	c.mu.Lock()
	if c.session.State != StateAwaitingConsent {
		state := c.session.State
		c.mu.Unlock()
		return invalid(EventRefuse, state)
	}
	c.session.State = StateIdle
	c.mu.Unlock()

	c.view.ShowConsent(false)
	slog.Info("Consent refused")
	return nil
}

func (c *Client) cancelCycle() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel == nil || !c.session.State.Busy() {
		return invalid(EventCancel, c.session.State)
	}
	c.cancel()
	return nil
}

// BeginConsent applies EventConsent: it moves the client to Uploading and
// returns the rest of the cycle, which the caller may run on another
// goroutine. Only one of several concurrent callers gets past the check.
func (c *Client) BeginConsent(parent context.Context) (func() error, error) {
	c.mu.Lock()
	if c.session.State != StateAwaitingConsent {
		state := c.session.State
		c.mu.Unlock()
		return nil, invalid(EventConsent, state)
	}
	ctx, cancel := context.WithCancel(parent)
	c.cancel = cancel
	c.session.State = StateUploading
	c.session.ImageID = ""
	c.session.Prompt = ""
	c.session.TaskID = ""
	c.session.ResultURL = ""
	c.session.Attempts = 0
	c.session.UploadedAt = time.Time{}
	c.session.Err = nil
	stream := c.session.stream
	promptID := c.session.PromptID
	deviceErr := c.deviceErr
	c.mu.Unlock()

	return func() error {
		return c.runCycle(ctx, cancel, stream, promptID, deviceErr)
	}, nil
}

func (c *Client) runCycle(ctx context.Context, cancel context.CancelFunc, stream camera.Stream, promptID string, deviceErr error) error {
	defer func() {
		cancel()
		c.mu.Lock()
		c.cancel = nil
		c.mu.Unlock()
	}()

	c.view.ShowConsent(false)

	frame, err := c.captureFrame(ctx, stream, deviceErr)
	if err != nil {
		slog.Error("Error capturing frame", "err", err)
		return c.fail(err, MsgCameraError)
	}

	mimeType, payload, err := datauri.Decode(frame.DataURI)
	if err != nil {
		return c.fail(fmt.Errorf("failed to convert frame: %w", err), MsgUploadError)
	}

	uploaded, err := c.svc.Upload(ctx, service.UploadRequest{
		Data:     payload,
		MIMEType: mimeType,
		PromptID: promptID,
	})
	if err != nil {
		metrics.UploadsTotal.WithLabelValues(metrics.ResultError).Inc()
		if ctx.Err() != nil {
			return c.stop(ctx.Err())
		}
		slog.Error("Error uploading image", "err", err)
		return c.fail(err, MsgUploadError)
	}
	metrics.UploadsTotal.WithLabelValues(metrics.ResultSuccess).Inc()

	uploadedAt := time.Now()
	c.mu.Lock()
	c.session.ImageID = uploaded.ImageID
	c.session.Prompt = uploaded.Prompt
	c.session.TaskID = uploaded.TaskID
	c.session.UploadedAt = uploadedAt
	c.session.State = StatePolling
	c.mu.Unlock()

	slog.Info("Image uploaded", "image_id", uploaded.ImageID, "task_id", uploaded.TaskID, "prompt", uploaded.Prompt, "bytes", len(payload))
	if uploaded.Prompt != "" {
		c.view.SetStatus(fmt.Sprintf(MsgWaitingPrompt, uploaded.Prompt))
	} else {
		c.view.SetStatus(MsgWaiting)
	}

	resultURL, err := c.waitForResult(ctx, uploaded.ImageID)
	if err != nil {
		return c.stop(err)
	}
	metrics.ProcessingSeconds.Observe(time.Since(uploadedAt).Seconds())

	code, err := qr.Generate(resultURL)
	if err != nil {
		slog.Warn("Failed to generate QR code", "url", resultURL, "err", err)
	}

	c.mu.Lock()
	c.session.ResultURL = resultURL
	c.session.State = StateDisplayed
	done := c.session
	done.stream = nil
	done.PromptID = promptID
	c.mu.Unlock()

	slog.Info("Processed image available", "image_id", done.ImageID, "url", resultURL, "attempts", done.Attempts)
	c.view.ShowResult(Result{URL: resultURL, Prompt: done.Prompt, QR: code})
	c.view.SetStatus(MsgDone)

	if c.opts.OnDisplayed != nil {
		c.opts.OnDisplayed(done)
	}
	return nil
}

func (c *Client) captureFrame(ctx context.Context, stream camera.Stream, deviceErr error) (*camera.Frame, error) {
	if stream == nil {
		if deviceErr == nil {
			deviceErr = camera.ErrNoDevice
		}
		metrics.CapturesTotal.WithLabelValues(metrics.ResultError).Inc()
		return nil, fmt.Errorf("camera unavailable: %w", deviceErr)
	}

	frame, err := camera.Capture(ctx, stream, c.opts.Capture)
	if err != nil {
		metrics.CapturesTotal.WithLabelValues(metrics.ResultError).Inc()
		return nil, err
	}
	metrics.CapturesTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	slog.Debug("Frame captured", "width", frame.Width, "height", frame.Height)
	return frame, nil
}

// fail ends the cycle with a blocking alert.
func (c *Client) fail(err error, msg string) error {
	c.mu.Lock()
	c.session.State = StateFailed
	c.session.Err = err
	c.mu.Unlock()

	c.view.Alert(msg)
	return err
}

// stop ends the cycle after cancellation. No alert is raised.
func (c *Client) stop(cause error) error {
	err := fmt.Errorf("%w: %w", ErrCancelled, cause)

	c.mu.Lock()
	c.session.State = StateFailed
	c.session.Err = err
	imageID := c.session.ImageID
	c.mu.Unlock()

	slog.Info("Capture cycle cancelled", "image_id", imageID, "cause", cause)
	c.view.SetStatus(MsgCancelled)
	return err
}

func invalid(ev Event, state State) error {
	return fmt.Errorf("%w: %s in state %s", ErrInvalidTransition, ev, state)
}

// IsRejected reports whether err means the event was not applied at all.
func IsRejected(err error) bool {
	return errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrBusy) || errors.Is(err, ErrUnknownEvent)
}

type nopView struct{}

func (nopView) ShowConsent(bool)  {}
func (nopView) SetStatus(string)  {}
func (nopView) Alert(string)      {}
func (nopView) ShowResult(Result) {}
