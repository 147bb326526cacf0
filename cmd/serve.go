package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/lehigh-university-libraries/fotobox/internal/camera"
	"github.com/lehigh-university-libraries/fotobox/internal/capture"
	"github.com/lehigh-university-libraries/fotobox/internal/handlers"
	"github.com/lehigh-university-libraries/fotobox/internal/metrics"
	"github.com/lehigh-university-libraries/fotobox/internal/service"
	"github.com/lehigh-university-libraries/fotobox/internal/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var (
		addr       string
		serviceURL string
		cameraKind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the kiosk web interface",
		Long: `Starts the fotobox kiosk page on the given address.

Unless camera.kind, FOTOBOX_CAMERA or --camera select another device, the
page streams the visitor's webcam with getUserMedia and hands the frame to
the server when consent is given. With the command or file camera the frame
is taken on the server instead.`,
		Example: `  # Start the kiosk on the default address :8888
  fotobox serve

  # Use a server-side webcam and another processing service
  fotobox serve --camera command --service-url http://gpu-box:5000/kifotobox`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if serviceURL != "" {
				cfg.ServiceURL = serviceURL
			}
			if addr != "" {
				cfg.ListenAddr = addr
			}
			cfg.Camera.Kind = serveCameraKind(cfg.Camera.Kind, cameraKind)

			device, err := camera.New(cfg.Camera)
			if err != nil {
				return err
			}
			browser, _ := device.(*camera.BrowserDevice)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			store := storage.New()
			view := handlers.NewWebView()
			client := capture.New(device, service.NewClient(cfg.ServiceBase(), cfg.RequestTimeout), view, capture.Options{
				PollInterval: cfg.PollInterval,
				Capture: camera.Options{
					Quality:  cfg.JPEGQuality,
					MaxWidth: cfg.MaxWidth,
				},
				OnDisplayed: handlers.RecordTo(store),
			})
			if err := client.SetPrompt(cfg.DefaultPrompt); err != nil {
				return err
			}
			defer func() {
				if err := client.Close(); err != nil {
					slog.Warn("Failed to release camera", "err", err)
				}
			}()
			// A missing camera is alerted on the page; the server still starts.
			_ = client.Start(ctx)

			handler := handlers.New(handlers.Options{
				Ctx:     ctx,
				Store:   store,
				Client:  client,
				View:    view,
				Browser: browser,
				Prompts: cfg.Prompts,
			})

			// Set up routes
			mux := http.NewServeMux()
			handler.Routes(mux)
			mux.Handle("/metrics", promhttp.HandlerFor(metrics.NewRegistry(), promhttp.HandlerOpts{}))

			server := &http.Server{
				Addr:              cfg.ListenAddr,
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Fotobox kiosk available", "addr", cfg.ListenAddr, "service", cfg.ServiceBase(), "camera", cfg.Camera.Kind)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				cancel()
				// Give server 5 seconds to shut down gracefully
				shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancelShutdown()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Address to listen on (default :8888)")
	cmd.Flags().StringVar(&serviceURL, "service-url", "", "Base URL of the processing service")
	cmd.Flags().StringVar(&cameraKind, "camera", "", "Camera kind (browser, command, file)")

	return cmd
}

// serveCameraKind resolves the camera for the web kiosk: the flag wins, then
// the configured kind, then the browser camera.
func serveCameraKind(configured, flag string) string {
	switch {
	case flag != "":
		return flag
	case configured != "":
		return configured
	default:
		return camera.KindBrowser
	}
}
