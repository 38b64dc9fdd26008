// Package browser abstracts the automation engine behind small interfaces so
// the solver and login driver can be exercised without a real browser.
package browser

import (
	"fmt"
	"time"
)

// Proxy carries upstream proxy settings for a context.
type Proxy struct {
	Server   string
	Username string
	Password string
}

// ContextOptions configure a fresh browser context.
type ContextOptions struct {
	Proxy     *Proxy
	UserAgent string
	Width     int
	Height    int
}

// Cookie is the subset of a browser cookie the login driver cares about.
type Cookie struct {
	Name   string
	Value  string
	Domain string
}

// Engine owns the browser process.
type Engine interface {
	NewContext(opts ContextOptions) (Context, error)
	Close() error
}

// Context is an isolated cookie/session scope holding pages.
type Context interface {
	NewPage() (Page, error)
	Cookies() ([]Cookie, error)
	Close() error
}

// Page drives a single tab. Selector operations take an explicit timeout;
// a zero timeout means the engine default.
type Page interface {
	// Route serves the given HTML for the exact URL instead of fetching it.
	Route(url, html string) error
	Goto(url string, timeout time.Duration) error
	InputValue(selector string, timeout time.Duration) (string, error)
	Click(selector string, timeout time.Duration) error
	Fill(selector, value string, timeout time.Duration) error
	IsVisible(selector string, timeout time.Duration) (bool, error)
	Frames() []Frame
	Close() error
}

// Frame is a sub-document of a page (Google login renders inside iframes).
type Frame interface {
	URL() string
	Count(selector string) (int, error)
	Fill(selector, value string, timeout time.Duration) error
	Click(selector string, timeout time.Duration) error
}

const turnstileShell = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Turnstile Solver</title>
    <script src="https://challenges.cloudflare.com/turnstile/v0/api.js?onload=onloadTurnstileCallback" async defer></script>
</head>
<body>
    %s
</body>
</html>`

// TurnstilePage renders the challenge page served in place of the target URL.
// action and cdata are optional widget attributes.
func TurnstilePage(sitekey, action, cdata string) string {
	div := fmt.Sprintf(`<div class="cf-turnstile" style="background: white;" data-sitekey="%s"`, sitekey)
	if action != "" {
		div += fmt.Sprintf(` data-action="%s"`, action)
	}
	if cdata != "" {
		div += fmt.Sprintf(` data-cdata="%s"`, cdata)
	}
	div += "></div>"
	return fmt.Sprintf(turnstileShell, div)
}
