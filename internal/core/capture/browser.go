package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/playwright-community/playwright-go"

	"orderproof/internal/config"
	"orderproof/internal/core/order"
	"orderproof/internal/logger"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type Options struct {
	Mode             string
	ScreenshotDir    string
	BrowserDataDir   string
	OrderURLTemplate string
	OrdersPageURL    string
	FullPage         bool
	NavTimeout       time.Duration
}

func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Mode:             cfg.CaptureMode,
		ScreenshotDir:    cfg.ScreenshotDir,
		BrowserDataDir:   cfg.BrowserDataDir,
		OrderURLTemplate: cfg.OrderURLTemplate,
		OrdersPageURL:    cfg.OrdersPageURL,
		FullPage:         cfg.FullPage,
	}
}

// Browser captures screenshots from a persistent Chromium profile so the
// seller login survives between runs. Manual mode is headful and waits on
// the Prompter; auto mode opens OrderURLTemplate with {id} replaced.
type Browser struct {
	log      *logger.Logger
	opts     Options
	prompter Prompter
	now      func() time.Time

	pw      *playwright.Playwright
	context playwright.BrowserContext
	page    playwright.Page
}

func NewBrowser(opts Options, prompter Prompter) (*Browser, error) {
	switch opts.Mode {
	case ModeManual:
		if prompter == nil {
			return nil, fmt.Errorf("manual capture needs an operator prompter")
		}
	case ModeAuto:
		if !strings.Contains(opts.OrderURLTemplate, "{id}") {
			return nil, fmt.Errorf("auto capture needs an order url template containing {id}")
		}
	default:
		return nil, fmt.Errorf("unknown capture mode %q", opts.Mode)
	}
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = 30 * time.Second
	}
	return &Browser{log: logger.New("CaptureBrowser"), opts: opts, prompter: prompter, now: time.Now}, nil
}

// Start launches the browser. In manual mode it also waits for the operator
// to log in.
func (b *Browser) Start(ctx context.Context) error {
	if err := os.MkdirAll(b.opts.BrowserDataDir, 0o755); err != nil {
		return fmt.Errorf("%w: browser profile dir: %v", ErrUnavailable, err)
	}
	os.Setenv("PW_TEST_SCREENSHOT_NO_FONTS_READY", "1")

	pw, err := playwright.Run()
	if err != nil {
		b.log.LogErrorf("Failed to start Playwright: %v", err)
		return fmt.Errorf("%w: playwright initialization failed: %v", ErrUnavailable, err)
	}
	manual := b.opts.Mode == ModeManual
	launch := playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless:  playwright.Bool(!manual),
		UserAgent: playwright.String(userAgent),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
		},
	}
	if manual {
		launch.Args = append(launch.Args, "--start-maximized")
		launch.NoViewport = playwright.Bool(true)
	} else {
		launch.Args = append(launch.Args, "--no-sandbox", "--disable-gpu")
		launch.Viewport = &playwright.Size{Width: 1920, Height: 1080}
	}
	bctx, err := pw.Chromium.LaunchPersistentContext(b.opts.BrowserDataDir, launch)
	if err != nil {
		_ = pw.Stop()
		b.log.LogErrorf("Failed to launch browser: %v", err)
		return fmt.Errorf("%w: browser launch failed: %v", ErrUnavailable, err)
	}
	var page playwright.Page
	if pages := bctx.Pages(); len(pages) > 0 {
		page = pages[0]
	} else if page, err = bctx.NewPage(); err != nil {
		_ = bctx.Close()
		_ = pw.Stop()
		return fmt.Errorf("%w: page creation failed: %v", ErrUnavailable, err)
	}
	b.pw, b.context, b.page = pw, bctx, page
	b.log.LogInfof("Browser ready, profile %s", b.opts.BrowserDataDir)

	if !manual {
		return nil
	}
	if b.opts.OrdersPageURL != "" {
		if err := b.navigate(b.opts.OrdersPageURL); err != nil {
			b.log.LogWarnf("Could not open orders page: %v", err)
		}
	}
	return b.prompter.AwaitLogin(ctx)
}

func (b *Browser) Close() error {
	var errs []error
	if b.context != nil {
		errs = append(errs, b.context.Close())
	}
	if b.pw != nil {
		errs = append(errs, b.pw.Stop())
	}
	b.pw, b.context, b.page = nil, nil, nil
	return errors.Join(errs...)
}

// Capture writes the order's screenshot into ScreenshotDir and returns its
// path.
func (b *Browser) Capture(ctx context.Context, orderID string) (string, error) {
	if b.page == nil || b.page.IsClosed() {
		return "", fmt.Errorf("%w: browser is not running", ErrUnavailable)
	}
	if err := os.MkdirAll(b.opts.ScreenshotDir, 0o755); err != nil {
		return "", fmt.Errorf("screenshot dir: %w", err)
	}

	fullPage := b.opts.FullPage
	if b.opts.Mode == ModeManual {
		fp, err := b.prompter.AwaitCapture(ctx, orderID)
		if err != nil {
			return "", err
		}
		fullPage = fp
	} else {
		url := strings.ReplaceAll(b.opts.OrderURLTemplate, "{id}", orderID)
		if err := b.navigate(url); err != nil {
			return "", err
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := b.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(fullPage),
		Type:     playwright.ScreenshotTypePng,
	})
	if err != nil {
		if b.page.IsClosed() {
			return "", fmt.Errorf("%w: page closed: %v", ErrUnavailable, err)
		}
		return "", fmt.Errorf("screenshot: %w", err)
	}
	path := filePath(b.opts.ScreenshotDir, orderID, b.now())
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}
	b.log.LogSuccessf("Captured %s (%s, full page: %t)", filepath.Base(path), humanize.Bytes(uint64(len(data))), fullPage)
	return path, nil
}

// OrdersPageHTML returns the markup of the orders listing, opening
// OrdersPageURL first when it is set.
func (b *Browser) OrdersPageHTML(_ context.Context) (string, error) {
	if b.page == nil {
		return "", fmt.Errorf("%w: browser is not running", ErrUnavailable)
	}
	if b.opts.OrdersPageURL != "" && !strings.HasPrefix(b.page.URL(), b.opts.OrdersPageURL) {
		if err := b.navigate(b.opts.OrdersPageURL); err != nil {
			return "", err
		}
	}
	return b.page.Content()
}

// DetectOrders lists order ids found on the orders page.
func (b *Browser) DetectOrders(ctx context.Context) ([]string, error) {
	html, err := b.OrdersPageHTML(ctx)
	if err != nil {
		return nil, err
	}
	ids, err := order.Detect(html)
	if err != nil {
		return nil, err
	}
	b.log.LogInfof("Detected %d order(s) on %s", len(ids), b.page.URL())
	return ids, nil
}

func (b *Browser) navigate(url string) error {
	b.log.LogDebugf("Navigating to URL: %s", url)
	if _, err := b.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(float64(b.opts.NavTimeout.Milliseconds())),
	}); err != nil {
		if strings.Contains(err.Error(), "timeout") {
			return fmt.Errorf("page load timeout: %w", err)
		}
		if strings.Contains(err.Error(), "net::") {
			return fmt.Errorf("network error accessing page: %w", err)
		}
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}
