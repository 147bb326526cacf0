// Package camera acquires a video device and turns its current frame into
// an encoded JPEG capture.
package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	// decoders for still sources
	_ "image/gif"
	_ "image/png"

	"github.com/lehigh-university-libraries/fotobox/internal/datauri"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	MIMETypeJPEG = "image/jpeg"

	// DefaultQuality matches the encoder quality browsers use for canvas JPEG exports.
	DefaultQuality = 92
)

var (
	ErrNoDevice   = errors.New("no video capture device available")
	ErrPermission = errors.New("access to the video capture device was denied")
	ErrBlankFrame = errors.New("captured frame is empty")
	ErrNoFrame    = errors.New("no frame available yet")
)

// Device is a video source that can be opened once for exclusive use.
type Device interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream is an acquired device. Grab returns the frame currently visible on it.
type Stream interface {
	Grab(ctx context.Context) (image.Image, error)
	Close() error
}

// Options controls how a grabbed frame is drawn and encoded.
type Options struct {
	Quality int
	// MaxWidth scales wider frames down, keeping the aspect ratio. 0 keeps the native size.
	MaxWidth int
}

// Frame is one encoded capture.
type Frame struct {
	DataURI string
	Width   int
	Height  int
}

// Capture grabs the current frame from s, draws it onto an offscreen surface
// and serializes the surface as a JPEG data URI.
func Capture(ctx context.Context, s Stream, opts Options) (*Frame, error) {
	if s == nil {
		return nil, ErrNoDevice
	}

	img, err := s.Grab(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to grab frame: %w", err)
	}
	if img == nil || img.Bounds().Empty() {
		return nil, ErrBlankFrame
	}

	src := img.Bounds()
	width, height := targetSize(src.Dx(), src.Dy(), opts.MaxWidth)
	surface := image.NewRGBA(image.Rect(0, 0, width, height))
	if width == src.Dx() && height == src.Dy() {
		draw.Draw(surface, surface.Bounds(), img, src.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(surface, surface.Bounds(), img, src, draw.Src, nil)
	}

	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, surface, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	return &Frame{
		DataURI: datauri.Encode(MIMETypeJPEG, buf.Bytes()),
		Width:   width,
		Height:  height,
	}, nil
}

func targetSize(width, height, maxWidth int) (int, int) {
	if maxWidth <= 0 || width <= maxWidth {
		return width, height
	}
	h := int(float64(height) * float64(maxWidth) / float64(width))
	if h < 1 {
		h = 1
	}
	return maxWidth, h
}

// Device kinds accepted by New.
const (
	KindFile    = "file"
	KindCommand = "command"
	KindBrowser = "browser"
)

// Config selects and parameterizes a device.
type Config struct {
	Kind    string   `yaml:"kind"`
	Path    string   `yaml:"path"`
	Command []string `yaml:"command"`
	Device  string   `yaml:"device"`
}

// New builds the device described by cfg.
func New(cfg Config) (Device, error) {
	switch cfg.Kind {
	case KindFile:
		return &FileDevice{Path: cfg.Path}, nil
	case KindCommand, "":
		return &CommandDevice{Command: cfg.Command, Device: cfg.Device}, nil
	case KindBrowser:
		return NewBrowserDevice(), nil
	default:
		return nil, fmt.Errorf("unsupported camera kind: %s", cfg.Kind)
	}
}
