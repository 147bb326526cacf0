package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/lehigh-university-libraries/fotobox/internal/camera"
	"github.com/lehigh-university-libraries/fotobox/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"chatty", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPromptsCmd(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fotobox.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
prompts:
  - id: "7"
    label: Watercolor
  - id: "8"
    label: Charcoal
default_prompt: "8"
`), 0o644))

	out, err := execute(t, "prompts", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Watercolor")
	assert.Contains(t, out, "Charcoal")
	assert.Regexp(t, `8\s+Charcoal\s+\*`, out)
}

func TestStatusCmd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/kifotobox/status/task-1" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "Processing"})
	}))
	defer srv.Close()

	out, err := execute(t, "status", "task-1", "--service-url", srv.URL+"/kifotobox")
	require.NoError(t, err)
	assert.Contains(t, out, "task-1: Processing")
}

func TestCaptureRejectsUnknownPrompt(t *testing.T) {
	_, err := execute(t, "capture", "--prompt", "42", "--camera", "file", "--camera-path", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown prompt")
}

func TestCaptureRejectsBrowserCamera(t *testing.T) {
	_, err := execute(t, "capture", "--camera", "browser")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "serve")
}

func TestServeCameraKind(t *testing.T) {
	tests := []struct {
		name string
		env  string
		flag string
		want string
	}{
		{name: "browser by default", want: camera.KindBrowser},
		{name: "environment", env: camera.KindCommand, want: camera.KindCommand},
		{name: "flag wins", env: camera.KindCommand, flag: camera.KindFile, want: camera.KindFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("FOTOBOX_CAMERA", tt.env)
			cfg, err := config.Load("")
			require.NoError(t, err)
			assert.Equal(t, tt.want, serveCameraKind(cfg.Camera.Kind, tt.flag))
		})
	}
}

func TestServeCameraKindFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fotobox.yaml")
	require.NoError(t, os.WriteFile(path, []byte("camera:\n  kind: file\n  path: /srv/shots\n"), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, camera.KindFile, serveCameraKind(cfg.Camera.Kind, ""))
}

func TestStatusCmdSortsResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "Completed",
			"result": map[string]any{"zeta": 1, "alpha": 2, "mid": 3},
		})
	}))
	defer srv.Close()

	for i := 0; i < 5; i++ {
		out, err := execute(t, "status", "task-2", "--service-url", srv.URL)
		require.NoError(t, err)
		assert.Equal(t, "task-2: Completed\n  alpha: 2\n  mid: 3\n  zeta: 1\n", out)
	}
}
