package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/lehigh-university-libraries/fotobox/internal/datauri"
)

// BrowserDevice receives frames from a kiosk page that owns the webcam.
// The page posts its canvas export; Grab hands it out once.
type BrowserDevice struct {
	mu    sync.Mutex
	frame image.Image
}

func NewBrowserDevice() *BrowserDevice {
	return &BrowserDevice{}
}

func (d *BrowserDevice) Open(ctx context.Context) (Stream, error) {
	return d, nil
}

// Push decodes a data URI exported by the page and makes it the current frame.
func (d *BrowserDevice) Push(uri string) error {
	_, payload, err := datauri.Decode(uri)
	if err != nil {
		return err
	}
	if len(payload) == 0 {
		return ErrBlankFrame
	}

	img, _, err := image.Decode(bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to decode pushed frame: %w", err)
	}

	d.mu.Lock()
	d.frame = img
	d.mu.Unlock()
	return nil
}

// Grab returns the pushed frame and forgets it, so every capture needs a
// fresh push from the page.
func (d *BrowserDevice) Grab(ctx context.Context) (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.frame == nil {
		return nil, ErrNoFrame
	}
	img := d.frame
	d.frame = nil
	return img, nil
}

// Reset drops a pushed frame that was not captured.
func (d *BrowserDevice) Reset() {
	d.mu.Lock()
	d.frame = nil
	d.mu.Unlock()
}

func (d *BrowserDevice) Close() error {
	d.Reset()
	return nil
}
