// Package terminal runs the capture workflow as a keyboard-driven kiosk on a
// text console.
package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/lehigh-university-libraries/fotobox/internal/capture"
)

const (
	promptIdle    = "Press Enter to take a photo, or type q to quit."
	promptConsent = "Send this photo to the processing service? [y/N] "
	msgDiscarded  = "Photo discarded."
)

// View prints what the workflow reports to a terminal.
type View struct {
	mu  sync.Mutex
	out io.Writer
	// NoQR suppresses the block-character QR code, e.g. when output is piped.
	NoQR bool
}

func NewView(out io.Writer) *View {
	return &View{out: out}
}

func (v *View) ShowConsent(visible bool) {
	if !visible {
		return
	}
	v.print(promptConsent)
}

func (v *View) SetStatus(msg string) {
	v.print(msg + "\n")
}

func (v *View) Alert(msg string) {
	v.print("ERROR: " + msg + "\n")
}

func (v *View) ShowResult(r capture.Result) {
	var b strings.Builder
	if r.Prompt != "" {
		fmt.Fprintf(&b, "Prompt: %s\n", r.Prompt)
	}
	fmt.Fprintf(&b, "Result: %s\n", r.URL)
	if r.QR != nil && !v.NoQR {
		b.WriteString(r.QR.Terminal)
	}
	v.print(b.String())
}

func (v *View) print(s string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, _ = io.WriteString(v.out, s)
}

// Workflow is the part of capture.Client the terminal drives.
type Workflow interface {
	Dispatch(ctx context.Context, ev capture.Event) error
	Snapshot() capture.Session
}

type Options struct {
	// Once returns after the first consent answer instead of looping.
	Once bool
	// Auto skips the Enter key press and starts with the consent question.
	Auto bool
}

// Run reads answers line by line from in until q, end of input or ctx is
// done. With Once set it returns the error of the single capture cycle.
func Run(ctx context.Context, wf Workflow, in io.Reader, out io.Writer, opts Options) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- strings.TrimSpace(sc.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()

	if opts.Auto {
		if err := wf.Dispatch(ctx, capture.EventCapture); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(out, promptIdle)
	}

	for {
		var line string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = l
		}

		if wf.Snapshot().State == capture.StateAwaitingConsent {
			if !isYes(line) {
				if err := wf.Dispatch(ctx, capture.EventRefuse); err != nil {
					return err
				}
				fmt.Fprintln(out, msgDiscarded)
				if opts.Once {
					return nil
				}
				fmt.Fprintln(out, promptIdle)
				continue
			}

			err := wf.Dispatch(ctx, capture.EventConsent)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if opts.Once {
				return err
			}
			fmt.Fprintln(out, promptIdle)
			continue
		}

		if strings.EqualFold(line, "q") || strings.EqualFold(line, "quit") {
			return nil
		}
		if err := wf.Dispatch(ctx, capture.EventCapture); err != nil {
			fmt.Fprintln(out, err)
		}
	}
}

func isYes(answer string) bool {
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
