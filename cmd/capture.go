package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/lehigh-university-libraries/fotobox/internal/camera"
	"github.com/lehigh-university-libraries/fotobox/internal/capture"
	"github.com/lehigh-university-libraries/fotobox/internal/service"
	"github.com/lehigh-university-libraries/fotobox/internal/terminal"
	"github.com/spf13/cobra"
)

func newCaptureCmd() *cobra.Command {
	var (
		promptID   string
		output     string
		once       bool
		auto       bool
		noQR       bool
		serviceURL string
		cameraKind string
		cameraPath string
	)

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Run the photo booth on this terminal",
		Long: `Runs the capture workflow on the terminal: press Enter to take a photo,
confirm that it may be sent to the processing service, then wait for the
processed image. Its URL is printed together with a QR code.`,
		Example: `  # Kiosk loop with the default webcam
  fotobox capture

  # Take one photo from a tethered camera folder and save the result
  fotobox capture --camera file --camera-path ./shots --prompt 2 --output result.png`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if serviceURL != "" {
				cfg.ServiceURL = serviceURL
			}
			if cameraKind != "" {
				cfg.Camera.Kind = cameraKind
			}
			if cameraPath != "" {
				cfg.Camera.Path = cameraPath
			}
			if promptID == "" {
				promptID = cfg.DefaultPrompt
			}
			if promptID != "" {
				if _, ok := cfg.PromptByID(promptID); !ok {
					return fmt.Errorf("unknown prompt %q, see 'fotobox prompts'", promptID)
				}
			}
			if cfg.Camera.Kind == camera.KindBrowser {
				return errors.New("the browser camera is only available with 'fotobox serve'")
			}

			device, err := camera.New(cfg.Camera)
			if err != nil {
				return err
			}

			svc := service.NewClient(cfg.ServiceBase(), cfg.RequestTimeout)
			out := cmd.OutOrStdout()
			view := terminal.NewView(out)
			view.NoQR = noQR

			client := capture.New(device, svc, view, capture.Options{
				PollInterval: cfg.PollInterval,
				Capture: camera.Options{
					Quality:  cfg.JPEGQuality,
					MaxWidth: cfg.MaxWidth,
				},
			})
			if err := client.SetPrompt(promptID); err != nil {
				return err
			}
			defer func() {
				if err := client.Close(); err != nil {
					slog.Warn("Failed to release camera", "err", err)
				}
			}()

			slog.Info("Starting capture client", "service", cfg.ServiceBase(), "camera", cfg.Camera.Kind, "prompt", promptID)
			if err := client.Start(cmd.Context()); err != nil {
				return err
			}

			err = terminal.Run(cmd.Context(), client, cmd.InOrStdin(), out, terminal.Options{
				Once: once || output != "",
				Auto: auto,
			})
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}

			if output == "" {
				return nil
			}
			session := client.Snapshot()
			if session.State != capture.StateDisplayed {
				return nil
			}
			return saveResult(cmd.Context(), svc, session.ImageID, output)
		},
	}

	cmd.Flags().StringVarP(&promptID, "prompt", "p", "", "Processing option sent with the upload")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Save the processed image to this file and exit")
	cmd.Flags().BoolVar(&once, "once", false, "Exit after one capture")
	cmd.Flags().BoolVar(&auto, "auto", false, "Skip the Enter key press and ask for consent right away")
	cmd.Flags().BoolVar(&noQR, "no-qr", false, "Do not print the QR code")
	cmd.Flags().StringVar(&serviceURL, "service-url", "", "Base URL of the processing service")
	cmd.Flags().StringVar(&cameraKind, "camera", "", "Camera kind (command, file)")
	cmd.Flags().StringVar(&cameraPath, "camera-path", "", "Image file or directory for the file camera")

	return cmd
}

func saveResult(ctx context.Context, svc *service.Client, imageID, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}

	n, err := svc.Download(ctx, imageID, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to save processed image: %w", err)
	}

	slog.Info("Processed image saved", "path", path, "bytes", n)
	return nil
}
