package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os/exec"
	"strings"
)

// DefaultCommand grabs a single MJPEG frame from a V4L2 webcam.
var DefaultCommand = []string{
	"ffmpeg", "-loglevel", "error",
	"-f", "v4l2", "-i", "/dev/video0",
	"-frames:v", "1", "-f", "image2pipe", "-vcodec", "mjpeg", "-",
}

// CommandDevice runs an external grabber that writes one encoded frame to stdout.
type CommandDevice struct {
	Command []string
	// Device is the capture node the command reads from, checked when the device is opened.
	Device string
}

func (d *CommandDevice) Open(ctx context.Context) (Stream, error) {
	command := d.Command
	if len(command) == 0 {
		command = DefaultCommand
	}

	if _, err := exec.LookPath(command[0]); err != nil {
		return nil, fmt.Errorf("%w: %s not found", ErrNoDevice, command[0])
	}
	if d.Device != "" {
		if err := checkAccess(d.Device); err != nil {
			return nil, err
		}
	}

	slog.Debug("Video device acquired", "command", strings.Join(command, " "), "device", d.Device)
	return &commandStream{command: command}, nil
}

type commandStream struct {
	command []string
}

func (s *commandStream) Grab(ctx context.Context) (image.Image, error) {
	cmd := exec.CommandContext(ctx, s.command[0], s.command[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("grabber exited with code %d: %s", exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("failed to run grabber: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrBlankFrame
	}

	img, _, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("failed to decode grabber output: %w", err)
	}
	return img, nil
}

func (s *commandStream) Close() error {
	return nil
}
