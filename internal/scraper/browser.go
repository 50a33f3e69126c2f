package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Clip is the screenshot capture region in CSS pixels.
type Clip struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Page is one browser tab scoped to a single scrape call.
type Page interface {
	Navigate(ctx context.Context, url string) error
	ElementHTML(ctx context.Context, selector string) (string, error)
	ScrollBy(ctx context.Context, selector string, offset int) error
	Screenshot(ctx context.Context, clip Clip) ([]byte, error)
	Close()
}

// Browser opens page sessions. Each session is exclusively owned by one
// scrape call; sessions are never shared.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
}

// BrowserConfig controls the headless Chrome instance.
type BrowserConfig struct {
	UserAgent         string
	ViewportWidth     int
	ViewportHeight    int
	ViewportScale     float64
	NavigationTimeout time.Duration
}

// ChromeBrowser implements Browser with chromedp over a shared exec
// allocator; tabs are created per scrape and torn down with it.
type ChromeBrowser struct {
	cfg         BrowserConfig
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromeBrowser creates the shared allocator for headless Chrome.
func NewChromeBrowser(cfg BrowserConfig) *ChromeBrowser {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 25 * time.Second
	}
	if cfg.ViewportWidth <= 0 {
		cfg.ViewportWidth = 1000
	}
	if cfg.ViewportHeight <= 0 {
		cfg.ViewportHeight = 1200
	}
	if cfg.ViewportScale <= 0 {
		cfg.ViewportScale = 1
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("no-sandbox", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &ChromeBrowser{
		cfg:         cfg,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}
}

// Close cancels the allocator context.
func (b *ChromeBrowser) Close() {
	b.allocCancel()
}

// NewPage opens a fresh tab with the configured viewport and user agent.
func (b *ChromeBrowser) NewPage(ctx context.Context) (Page, error) {
	tabCtx, tabCancel := chromedp.NewContext(b.allocator)
	pg := &chromePage{
		cfg:       b.cfg,
		tabCtx:    tabCtx,
		tabCancel: tabCancel,
	}
	if err := pg.run(ctx,
		network.Enable(),
		emulation.SetUserAgentOverride(b.cfg.UserAgent),
		chromedp.EmulateViewport(
			int64(b.cfg.ViewportWidth),
			int64(b.cfg.ViewportHeight),
			chromedp.EmulateScale(b.cfg.ViewportScale),
		),
	); err != nil {
		tabCancel()
		return nil, fmt.Errorf("prepare page: %w", err)
	}
	return pg, nil
}

type chromePage struct {
	cfg       BrowserConfig
	tabCtx    context.Context
	tabCancel context.CancelFunc
}

// run executes chromedp actions against the tab under the navigation
// timeout, honoring cancellation of the caller's context as well.
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(p.tabCtx, p.cfg.NavigationTimeout)
	defer cancel()

	stopForward := forwardCancel(ctx, cancel)
	defer stopForward()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		return fmt.Errorf("chromedp run: %w", err)
	}
	return nil
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(200*time.Millisecond),
	)
}

// ElementHTML returns the outer HTML of the first element matching the
// selector, or an empty string when the element is absent.
func (p *chromePage) ElementHTML(ctx context.Context, selector string) (string, error) {
	js := fmt.Sprintf(
		`(() => { const el = document.querySelector(%q); return el ? el.outerHTML : ""; })()`,
		selector,
	)
	var html string
	if err := p.run(ctx, chromedp.Evaluate(js, &html)); err != nil {
		return "", err
	}
	return html, nil
}

// ScrollBy scrolls the matched container down by offset pixels and waits
// briefly for the viewer to settle.
func (p *chromePage) ScrollBy(ctx context.Context, selector string, offset int) error {
	js := fmt.Sprintf(
		`(() => { const el = document.querySelector(%q); if (el) { el.scroll(0, %d); } })()`,
		selector, offset,
	)
	return p.run(ctx,
		chromedp.Evaluate(js, nil),
		chromedp.Sleep(100*time.Millisecond),
	)
}

func (p *chromePage) Screenshot(ctx context.Context, clip Clip) ([]byte, error) {
	var buf []byte
	capture := chromedp.ActionFunc(func(actionCtx context.Context) error {
		shot, err := cdppage.CaptureScreenshot().
			WithClip(&cdppage.Viewport{
				X:      clip.X,
				Y:      clip.Y,
				Width:  clip.Width,
				Height: clip.Height,
				Scale:  1,
			}).
			Do(actionCtx)
		if err != nil {
			return fmt.Errorf("capture screenshot: %w", err)
		}
		buf = shot
		return nil
	})
	if err := p.run(ctx, capture); err != nil {
		return nil, err
	}
	return buf, nil
}

func (p *chromePage) Close() {
	p.tabCancel()
}

// forwardCancel propagates cancellation of parent into cancel until the
// returned stop function is called.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
