package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/leadharvest/internal/common"
	"github.com/ternarybob/leadharvest/internal/interfaces"
)

// Scripts injected before any page script runs
const stealthJS = `
	Object.defineProperty(navigator, 'webdriver', { get: () => undefined, configurable: true });
	Object.defineProperty(navigator, 'languages', { get: () => ['ru-RU', 'ru', 'en-US', 'en'], configurable: true });
	if (!window.chrome) { window.chrome = {}; }
	window.chrome.runtime = {};
`

// LauncherConfig holds configuration for launching Chrome
type LauncherConfig struct {
	Headless       bool
	UserAgent      string
	ExecPath       string
	ExtraFlags     []string
	StartupTimeout time.Duration
}

// ChromeLauncher starts headless Chrome processes via chromedp
type ChromeLauncher struct {
	config LauncherConfig
	logger arbor.ILogger
}

// NewChromeLauncher creates a launcher
func NewChromeLauncher(config LauncherConfig, logger arbor.ILogger) *ChromeLauncher {
	if config.StartupTimeout <= 0 {
		config.StartupTimeout = 30 * time.Second
	}
	return &ChromeLauncher{config: config, logger: logger}
}

// LauncherConfigFrom maps browser settings to a launcher configuration
func LauncherConfigFrom(config *common.BrowserConfig) LauncherConfig {
	return LauncherConfig{
		Headless:   config.Headless,
		UserAgent:  config.UserAgent,
		ExecPath:   config.ExecPath,
		ExtraFlags: config.ExtraFlags,
	}
}

// Launch starts a browser process and verifies it responds
func (l *ChromeLauncher) Launch(ctx context.Context) (interfaces.Browser, error) {
	startTime := time.Now()

	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.config.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if l.config.UserAgent != "" {
		allocatorOpts = append(allocatorOpts, chromedp.UserAgent(l.config.UserAgent))
	}
	if l.config.ExecPath != "" {
		allocatorOpts = append(allocatorOpts, chromedp.ExecPath(l.config.ExecPath))
	}
	for _, flag := range l.config.ExtraFlags {
		name, value, hasValue := strings.Cut(strings.TrimLeft(flag, "-"), "=")
		if hasValue {
			allocatorOpts = append(allocatorOpts, chromedp.Flag(name, value))
		} else {
			allocatorOpts = append(allocatorOpts, chromedp.Flag(name, true))
		}
	}

	// The browser outlives the launching request; it is torn down by Close
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), allocatorOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	testCtx, testCancel := context.WithTimeout(browserCtx, l.config.StartupTimeout)
	defer testCancel()
	stop := context.AfterFunc(ctx, testCancel)
	defer stop()

	// First Run on browserCtx starts the process
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("browser failed to start: %w", err)
	}

	var title string
	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank"), chromedp.Title(&title)); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("browser failed startup test: %w", err)
	}

	l.logger.Debug().
		Bool("headless", l.config.Headless).
		Dur("startup_time", time.Since(startTime)).
		Msg("Browser launched")

	return &ChromeBrowser{
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		allocatorCancel: allocatorCancel,
		logger:          l.logger,
	}, nil
}

// ChromeBrowser is one running Chrome process
type ChromeBrowser struct {
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	allocatorCancel context.CancelFunc
	live            atomic.Int32
	closeOnce       sync.Once
	logger          arbor.ILogger
}

// NewPage opens a tab in its own browser context with request interception,
// load tracking and stealth overrides installed.
func (b *ChromeBrowser) NewPage(ctx context.Context) (interfaces.Page, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(b.browserCtx, chromedp.WithNewBrowserContext())
	tracker := NewNavigationTracker(b.logger)

	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *fetch.EventRequestPaused:
			req := NavigationRequest{
				FrameID:      string(e.FrameID),
				URL:          e.Request.URL,
				ResourceType: e.ResourceType.String(),
				IsNavigation: e.ResourceType == network.ResourceTypeDocument,
			}
			requestID := e.RequestID
			// CDP calls must not run on the event goroutine
			go tracker.Observe(req, func() error {
				c := chromedp.FromContext(tabCtx)
				return fetch.ContinueRequest(requestID).Do(cdp.WithExecutor(tabCtx, c.Target))
			})
		case *page.EventFrameNavigated:
			if e.Frame.ParentID == "" {
				tracker.SetTopFrame(string(e.Frame.ID), e.Frame.URL)
			}
		case *page.EventNavigatedWithinDocument:
			tracker.Commit(string(e.FrameID), e.URL)
		case *page.EventLoadEventFired:
			tracker.RecordLoad()
		}
	})

	// First Run on tabCtx creates the target; it must not be bounded by a short-lived context
	err := chromedp.Run(tabCtx,
		network.Enable(),
		fetch.Enable().WithPatterns([]*fetch.RequestPattern{
			{URLPattern: "*", ResourceType: network.ResourceTypeDocument},
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthJS).Do(ctx)
			return err
		}),
		chromedp.EmulateViewport(1920, 1080),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			tracker.SetTopFrame(string(tree.Frame.ID), tree.Frame.URL)
			return nil
		}),
	)
	if err != nil {
		tabCancel()
		return nil, nil, fmt.Errorf("failed to open browser context: %w", err)
	}

	common.SafeGo(b.logger, "navigationTracker", func() {
		tracker.Run(tabCtx)
	})

	live := b.live.Add(1)
	b.logger.Debug().Int("live_contexts", int(live)).Msg("Browser context opened")

	var once sync.Once
	release := func() {
		once.Do(func() {
			tabCancel()
			live := b.live.Add(-1)
			b.logger.Debug().Int("live_contexts", int(live)).Msg("Browser context closed")
		})
	}

	return &ChromePage{tabCtx: tabCtx, tracker: tracker, logger: b.logger}, release, nil
}

// LiveContexts reports how many pages are open
func (b *ChromeBrowser) LiveContexts() int {
	return int(b.live.Load())
}

// Close shuts the browser down
func (b *ChromeBrowser) Close() error {
	b.closeOnce.Do(func() {
		done := make(chan struct{})
		go func() {
			b.browserCancel()
			b.allocatorCancel()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(30 * time.Second):
			b.logger.Warn().Msg("Browser shutdown timed out")
		}
		b.logger.Debug().Msg("Browser closed")
	})
	return nil
}
