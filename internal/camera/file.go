package camera

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var stillExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// FileDevice reads frames from a still image on disk. When Path is a
// directory the newest image in it is the current frame, which is how
// tethering tools for DSLR cameras hand over their shots.
type FileDevice struct {
	Path string
}

func (d *FileDevice) Open(ctx context.Context) (Stream, error) {
	if d.Path == "" {
		return nil, fmt.Errorf("%w: no path configured", ErrNoDevice)
	}
	if err := checkAccess(d.Path); err != nil {
		return nil, err
	}
	return &fileStream{path: d.Path}, nil
}

type fileStream struct {
	path string
}

func (s *fileStream) Grab(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := s.path
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		path, err = newestImage(path)
		if err != nil {
			return nil, err
		}
	}

	return decodeFile(path)
}

func (s *fileStream) Close() error {
	return nil
}

func newestImage(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var newest string
	var newestTime time.Time
	for _, entry := range entries {
		if entry.IsDir() || !stillExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestTime) {
			newest = filepath.Join(dir, entry.Name())
			newestTime = info.ModTime()
		}
	}

	if newest == "" {
		return "", fmt.Errorf("%w: no images in %s", ErrNoFrame, dir)
	}
	return newest, nil
}

func decodeFile(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open frame: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}

// checkAccess maps a missing path to ErrNoDevice and an unreadable one to ErrPermission.
func checkAccess(path string) error {
	f, err := os.Open(path)
	switch {
	case os.IsNotExist(err):
		return fmt.Errorf("%w: %s", ErrNoDevice, path)
	case os.IsPermission(err):
		return fmt.Errorf("%w: %s", ErrPermission, path)
	case err != nil:
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	return f.Close()
}
