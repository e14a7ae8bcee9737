package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"webguide/internal/config"
	"webguide/internal/entity"
	"webguide/pkg/apperr"
	"webguide/pkg/logg"
	"webguide/pkg/tracing"
)

const (
	browserManagerName = "BrowserManager"
	browserTracer      = "browser.manager"
	eventBuffer        = 64
	criticalWait       = 500 * time.Millisecond
	maxElements        = 400
	loadStateTimeout   = 5000
)

// Manager owns the single controlled tab. It collects snapshots, hosts the
// overlay runtime and forwards page events.
type Manager struct {
	config         *config.Config
	logger         *zap.Logger
	tracer         trace.Tracer
	playwright     *playwright.Playwright
	browser        playwright.Browser
	browserContext playwright.BrowserContext

	mu       sync.RWMutex
	page     playwright.Page
	attached map[playwright.Page]bool

	ready  atomic.Bool
	events chan entity.PageEvent
}

type Params struct {
	fx.In

	Config *config.Config
	Logger *zap.Logger
}

func NewManager(params Params) *Manager {
	return &Manager{
		config:   params.Config,
		logger:   params.Logger.With(zap.String(logg.Layer, browserManagerName)),
		tracer:   otel.Tracer(browserTracer),
		attached: make(map[playwright.Page]bool),
		events:   make(chan entity.PageEvent, eventBuffer),
	}
}

func (m *Manager) Launch(ctx context.Context) (err error) {
	const op = "Launch"
	logger := m.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, m.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	logger.Info("Launching browser...")
	step.AddEvent("installing playwright")

	err = playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}})
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "playwright_install_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	step.AddEvent("starting playwright")

	pw, err := playwright.Run()
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "playwright_start_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}
	m.playwright = pw

	if m.config.BrowserConfig.UserDataDir != "" {
		err = m.launchPersistent(ctx)
	} else {
		err = m.launchNew(ctx)
	}
	if err != nil {
		return err
	}

	if err := m.installRuntime(ctx); err != nil {
		return err
	}

	m.ready.Store(true)
	logger.Info("Browser launched successfully")

	if start := m.config.BrowserConfig.StartURL; start != "" && start != "about:blank" {
		if err := m.Navigate(ctx, start); err != nil {
			logger.Warn("Failed to open start URL", zap.String(logg.URL, start), zap.Error(err))
		}
	}

	return nil
}

func (m *Manager) viewportSize() *playwright.Size {
	return &playwright.Size{
		Width:  m.config.BrowserConfig.ViewportWidth,
		Height: m.config.BrowserConfig.ViewportHeight,
	}
}

func (m *Manager) launchPersistent(ctx context.Context) (err error) {
	const op = "launchPersistent"
	logger := m.logger.With(zap.String(logg.Operation, op))

	_, step := tracing.StartSpan(ctx, m.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	logger.Info("Launching persistent browser context")

	userDataDir := m.config.BrowserConfig.UserDataDir

	if err := os.MkdirAll(userDataDir, 0o755); err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "mkdir_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	browserContext, err := m.playwright.Chromium.LaunchPersistentContext(userDataDir, playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless:          playwright.Bool(m.config.BrowserConfig.Headless),
		SlowMo:            playwright.Float(float64(m.config.BrowserConfig.SlowMo)),
		Viewport:          m.viewportSize(),
		JavaScriptEnabled: playwright.Bool(true),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
		},
	})
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "launch_persistent_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	m.browserContext = browserContext

	if pages := browserContext.Pages(); len(pages) > 0 {
		m.setPage(pages[0])
		logger.Info("Using existing page")
		return nil
	}

	page, err := browserContext.NewPage()
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "new_page_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}
	m.setPage(page)
	logger.Info("Created new page")

	return nil
}

func (m *Manager) launchNew(ctx context.Context) (err error) {
	const op = "launchNew"
	logger := m.logger.With(zap.String(logg.Operation, op))

	_, step := tracing.StartSpan(ctx, m.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	logger.Info("Launching new browser")

	browser, err := m.playwright.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(m.config.BrowserConfig.Headless),
		SlowMo:   playwright.Float(float64(m.config.BrowserConfig.SlowMo)),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
		},
	})
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "browser_launch_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}
	m.browser = browser

	browserContext, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport:          m.viewportSize(),
		JavaScriptEnabled: playwright.Bool(true),
	})
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "context_create_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}
	m.browserContext = browserContext

	page, err := browserContext.NewPage()
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "page_create_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}
	m.setPage(page)

	return nil
}

// installRuntime registers the event binding and the overlay runtime for
// every future document, then installs the runtime into the current one.
func (m *Manager) installRuntime(ctx context.Context) (err error) {
	const op = "installRuntime"
	logger := m.logger.With(zap.String(logg.Operation, op))

	_, step := tracing.StartSpan(ctx, m.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	if err := m.browserContext.ExposeBinding(emitBinding, m.handleEmit); err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "expose_binding_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	script := runtimeScript
	if err := m.browserContext.AddInitScript(playwright.Script{Content: &script}); err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "init_script_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	page, err := m.activePage()
	if err != nil {
		return err
	}
	if _, err := page.Evaluate(runtimeScript); err != nil {
		logger.Warn("Runtime not installed in current document", zap.Error(err))
	}

	return nil
}

func (m *Manager) Close(ctx context.Context) (err error) {
	const op = "Close"
	logger := m.logger.With(zap.String(logg.Operation, op))

	_, step := tracing.StartSpan(ctx, m.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	logger.Info("Closing connection to browser...")
	m.ready.Store(false)

	if m.config.BrowserConfig.UserDataDir != "" {
		logger.Info("Persistent browser - keeping it open")
		return nil
	}

	if m.browserContext != nil {
		if err := m.browserContext.Close(); err != nil {
			logger.Warn("Failed to close context", zap.Error(err))
		}
	}

	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			logger.Warn("Failed to close browser", zap.Error(err))
		}
	}

	if m.playwright != nil {
		if err := m.playwright.Stop(); err != nil {
			return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
				apperr.MetaReason: "playwright_stop_failed",
				apperr.MetaStage:  apperr.StageBrowser,
			})
		}
	}

	logger.Info("Browser closed")

	return nil
}

func (m *Manager) setPage(page playwright.Page) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.page = page
	if m.attached[page] {
		return
	}
	m.attached[page] = true

	page.OnFrameNavigated(func(frame playwright.Frame) {
		if frame.ParentFrame() != nil {
			return
		}
		m.emit(entity.PageEvent{Kind: entity.PageEventNavigate, Trusted: true, URL: frame.URL()})
	})
	page.OnClose(func(playwright.Page) {
		m.mu.Lock()
		delete(m.attached, page)
		m.mu.Unlock()
	})
}

// activePage returns the controlled page, reconnecting to another open page
// of the context when the user closed it.
func (m *Manager) activePage() (playwright.Page, error) {
	m.mu.RLock()
	page := m.page
	m.mu.RUnlock()

	if page != nil && !page.IsClosed() {
		return page, nil
	}

	if m.browserContext == nil {
		return nil, apperr.WrapErrorWithReason("activePage", apperr.CodeBrowserNotReady, "browser_context_missing")
	}

	m.logger.Info("Page closed, reconnecting to active page...")

	for _, p := range m.browserContext.Pages() {
		if !p.IsClosed() {
			m.setPage(p)
			return p, nil
		}
	}

	page, err := m.browserContext.NewPage()
	if err != nil {
		return nil, apperr.Wrap("activePage", apperr.CodeBrowserNotReady, fmt.Errorf("create page: %w", err), map[string]any{
			apperr.MetaReason: "page_create_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}
	m.setPage(page)

	return page, nil
}

func (m *Manager) Navigate(ctx context.Context, url string) (err error) {
	const op = "Navigate"
	logger := m.logger.With(zap.String(logg.Operation, op), zap.String(logg.URL, url))

	_, step := tracing.StartSpan(ctx, m.tracer, logger, op, attribute.String("url", url))
	defer func() {
		step.End(err)
	}()

	if !m.IsReady() {
		return apperr.WrapErrorWithReason(op, apperr.CodeBrowserNotReady, "browser_not_ready")
	}

	page, err := m.activePage()
	if err != nil {
		return err
	}

	step.AddEvent("navigating to URL")

	_, err = page.Goto(url, playwright.PageGotoOptions{
		Timeout:   playwright.Float(float64(m.config.BrowserConfig.Timeout)),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return apperr.Wrap(op, apperr.CodeUnavailable, err, map[string]any{
			apperr.MetaReason: "goto_failed",
			apperr.MetaStage:  apperr.StageNavigation,
			apperr.MetaURL:    url,
		})
	}

	step.AddEvent("navigation completed")

	return nil
}

func (m *Manager) CurrentURL(context.Context) (string, error) {
	if !m.IsReady() {
		return "", apperr.WrapErrorWithReason("CurrentURL", apperr.CodeBrowserNotReady, "browser_not_ready")
	}

	page, err := m.activePage()
	if err != nil {
		return "", err
	}

	return page.URL(), nil
}

func (m *Manager) Events() <-chan entity.PageEvent {
	return m.events
}

func (m *Manager) IsReady() bool {
	return m.ready.Load()
}

// evaluate runs script with arg on the active page. Playwright calls are not
// context-aware, so the caller's deadline is only checked up front; the bus
// bounds the call itself.
func (m *Manager) evaluate(ctx context.Context, op, script string, arg ...any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.Wrap(op, apperr.CodeTimeout, err, nil)
	}

	if !m.IsReady() {
		return nil, apperr.WrapErrorWithReason(op, apperr.CodeBrowserNotReady, "browser_not_ready")
	}

	page, err := m.activePage()
	if err != nil {
		return nil, err
	}

	result, err := page.Evaluate(script, arg...)
	if err != nil {
		return nil, apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "evaluate_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	return result, nil
}

var errRuntimeMissing = errors.New("overlay runtime not installed")
