// Package capture produces the local evidence image for one order.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"orderproof/internal/console"
)

// ErrUnavailable marks a capture failure that will affect every remaining
// order, such as a browser that could not start or was closed.
var ErrUnavailable = errors.New("capture unavailable")

const (
	ModeManual = "manual"
	ModeAuto   = "auto"
)

type Capturer interface {
	Capture(ctx context.Context, orderID string) (string, error)
}

// FileName is <ORDER>_<YYYYMMDD_HHMMSS>.png.
func FileName(orderID string, at time.Time) string {
	return fmt.Sprintf("%s_%s.png", orderID, at.Format("20060102_150405"))
}

func filePath(dir, orderID string, at time.Time) string {
	return filepath.Join(dir, FileName(orderID, at))
}

// Prompter coordinates the operator during manual capture.
type Prompter interface {
	// AwaitLogin blocks until the operator confirms the browser session is
	// logged in.
	AwaitLogin(ctx context.Context) error
	// AwaitCapture blocks until the operator has the order's chat on screen
	// and reports whether the whole page should be captured.
	AwaitCapture(ctx context.Context, orderID string) (fullPage bool, err error)
}

// ConsolePrompter reads operator answers line by line.
type ConsolePrompter struct {
	in  *console.LineReader
	out io.Writer
	// AskFullPage asks for the screenshot type on every order; otherwise
	// FullPage is used.
	AskFullPage bool
	FullPage    bool
}

func NewConsolePrompter(in *console.LineReader, out io.Writer) *ConsolePrompter {
	return &ConsolePrompter{in: in, out: out}
}

func (p *ConsolePrompter) AwaitLogin(ctx context.Context) error {
	fmt.Fprintln(p.out, strings.Repeat("=", 50))
	fmt.Fprintln(p.out, "Log in to the seller centre in the opened browser.")
	fmt.Fprintln(p.out, "Finish any CAPTCHA or verification first.")
	fmt.Fprintln(p.out, strings.Repeat("=", 50))
	_, err := p.readLine(ctx, "Press Enter once you are logged in...")
	return err
}

func (p *ConsolePrompter) AwaitCapture(ctx context.Context, orderID string) (bool, error) {
	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, strings.Repeat("=", 50))
	fmt.Fprintf(p.out, "Order %s\n", orderID)
	fmt.Fprintln(p.out, "1. Search for the order and open its detail page")
	fmt.Fprintln(p.out, "2. Open the chat with the buyer")
	fmt.Fprintln(p.out, "3. Scroll to the buyer's confirmation")
	fmt.Fprintln(p.out, strings.Repeat("=", 50))
	if _, err := p.readLine(ctx, "Press Enter when the chat is ready to capture..."); err != nil {
		return false, err
	}
	if !p.AskFullPage {
		return p.FullPage, nil
	}
	fmt.Fprintln(p.out, "1. Full page")
	fmt.Fprintln(p.out, "2. Visible area only (recommended)")
	answer, err := p.readLine(ctx, "Choose (1/2) [default: 2]: ")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(answer) == "1", nil
}

// readLine returns ctx.Err() if ctx ends before the operator answers. Input
// that ends before an answer is an error.
func (p *ConsolePrompter) readLine(ctx context.Context, prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	s, err := p.in.ReadLine(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("read operator input: %w", err)
	}
	return s, nil
}
