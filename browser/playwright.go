package browser

import (
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
)

// LaunchOptions configure the real engine.
type LaunchOptions struct {
	Headless bool
	Browser  string // "firefox" (default) or "chromium"
}

var chromiumArgs = []string{
	"--no-sandbox",
	"--disable-setuid-sandbox",
	"--disable-dev-shm-usage",
	"--disable-gpu",
	"--no-first-run",
	"--disable-extensions",
	"--disable-background-timer-throttling",
	"--disable-backgrounding-occluded-windows",
	"--disable-renderer-backgrounding",
}

type pwEngine struct {
	pw      *playwright.Playwright
	browser playwright.Browser
}

// Launch starts playwright and opens a browser. Close tears both down.
func Launch(opts LaunchOptions) (Engine, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("playwright run: %w", err)
	}

	var b playwright.Browser
	switch opts.Browser {
	case "chromium":
		b, err = pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
			Headless: playwright.Bool(opts.Headless),
			Args:     chromiumArgs,
		})
	default:
		b, err = pw.Firefox.Launch(playwright.BrowserTypeLaunchOptions{
			Headless: playwright.Bool(opts.Headless),
		})
	}
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("browser launch: %w", err)
	}
	return &pwEngine{pw: pw, browser: b}, nil
}

func (e *pwEngine) NewContext(opts ContextOptions) (Context, error) {
	copts := playwright.BrowserNewContextOptions{}
	w, h := opts.Width, opts.Height
	if w == 0 {
		w = 1920
	}
	if h == 0 {
		h = 1080
	}
	copts.Viewport = &playwright.Size{Width: w, Height: h}
	if opts.UserAgent != "" {
		copts.UserAgent = playwright.String(opts.UserAgent)
	}
	if opts.Proxy != nil {
		p := &playwright.Proxy{Server: opts.Proxy.Server}
		if opts.Proxy.Username != "" {
			p.Username = playwright.String(opts.Proxy.Username)
			p.Password = playwright.String(opts.Proxy.Password)
		}
		copts.Proxy = p
	}
	ctx, err := e.browser.NewContext(copts)
	if err != nil {
		return nil, fmt.Errorf("new context: %w", err)
	}
	return &pwContext{ctx: ctx}, nil
}

func (e *pwEngine) Close() error {
	err := e.browser.Close()
	if serr := e.pw.Stop(); err == nil {
		err = serr
	}
	return err
}

type pwContext struct {
	ctx playwright.BrowserContext
}

func (c *pwContext) NewPage() (Page, error) {
	p, err := c.ctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("new page: %w", err)
	}
	return &pwPage{page: p}, nil
}

func (c *pwContext) Cookies() ([]Cookie, error) {
	raw, err := c.ctx.Cookies()
	if err != nil {
		return nil, err
	}
	out := make([]Cookie, 0, len(raw))
	for _, ck := range raw {
		out = append(out, Cookie{Name: ck.Name, Value: ck.Value, Domain: ck.Domain})
	}
	return out, nil
}

func (c *pwContext) Close() error {
	return c.ctx.Close()
}

type pwPage struct {
	page playwright.Page
}

func ms(d time.Duration) *float64 {
	if d <= 0 {
		return nil
	}
	return playwright.Float(float64(d.Milliseconds()))
}

func (p *pwPage) Route(url, html string) error {
	return p.page.Route(url, func(route playwright.Route) {
		_ = route.Fulfill(playwright.RouteFulfillOptions{
			Status:      playwright.Int(200),
			ContentType: playwright.String("text/html"),
			Body:        html,
		})
	})
}

func (p *pwPage) Goto(url string, timeout time.Duration) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   ms(timeout),
	})
	return err
}

func (p *pwPage) InputValue(selector string, timeout time.Duration) (string, error) {
	return p.page.Locator(selector).InputValue(playwright.LocatorInputValueOptions{Timeout: ms(timeout)})
}

func (p *pwPage) Click(selector string, timeout time.Duration) error {
	return p.page.Locator(selector).Click(playwright.LocatorClickOptions{Timeout: ms(timeout)})
}

func (p *pwPage) Fill(selector, value string, timeout time.Duration) error {
	return p.page.Locator(selector).Fill(value, playwright.LocatorFillOptions{Timeout: ms(timeout)})
}

func (p *pwPage) IsVisible(selector string, timeout time.Duration) (bool, error) {
	err := p.page.Locator(selector).WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: ms(timeout),
	})
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (p *pwPage) Frames() []Frame {
	raw := p.page.Frames()
	out := make([]Frame, 0, len(raw))
	for _, f := range raw {
		out = append(out, &pwFrame{frame: f})
	}
	return out
}

func (p *pwPage) Close() error {
	return p.page.Close()
}

type pwFrame struct {
	frame playwright.Frame
}

func (f *pwFrame) URL() string { return f.frame.URL() }

func (f *pwFrame) Count(selector string) (int, error) {
	return f.frame.Locator(selector).Count()
}

func (f *pwFrame) Fill(selector, value string, timeout time.Duration) error {
	return f.frame.Locator(selector).Fill(value, playwright.LocatorFillOptions{Timeout: ms(timeout)})
}

func (f *pwFrame) Click(selector string, timeout time.Duration) error {
	return f.frame.Locator(selector).Click(playwright.LocatorClickOptions{Timeout: ms(timeout)})
}
