package solver

import (
	"sync"
	"time"

	"github.com/Arknight38/wplacer-autologin/browser"
)

// fakePage is a scriptable browser.Page for pool and worker tests.
type fakePage struct {
	mu sync.Mutex

	routeErr error
	gotoErr  error

	// token returned by InputValue after tokenAfter reads; empty values
	// before that simulate the widget still working.
	token      string
	tokenAfter int
	reads      int

	clicks int
	closed bool
}

func (p *fakePage) Route(url, html string) error { return p.routeErr }

func (p *fakePage) Goto(url string, timeout time.Duration) error { return p.gotoErr }

func (p *fakePage) InputValue(selector string, timeout time.Duration) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reads++
	if p.token != "" && p.reads > p.tokenAfter {
		return p.token, nil
	}
	return "", nil
}

func (p *fakePage) Click(selector string, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clicks++
	return nil
}

func (p *fakePage) Fill(selector, value string, timeout time.Duration) error { return nil }

func (p *fakePage) IsVisible(selector string, timeout time.Duration) (bool, error) {
	return false, nil
}

func (p *fakePage) Frames() []browser.Frame { return nil }

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

type fakeContext struct {
	mu     sync.Mutex
	closed bool
}

func (c *fakeContext) NewPage() (browser.Page, error) { return &fakePage{}, nil }

func (c *fakeContext) Cookies() ([]browser.Cookie, error) { return nil, nil }

func (c *fakeContext) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func newFakePoolPage(token string) *PoolPage {
	return &PoolPage{
		Page:    &fakePage{token: token},
		Context: &fakeContext{},
	}
}

// countingFactory builds fake pages and counts how many it created.
type countingFactory struct {
	mu      sync.Mutex
	created int
	token   string
}

func (f *countingFactory) make() (*PoolPage, error) {
	f.mu.Lock()
	f.created++
	f.mu.Unlock()
	return newFakePoolPage(f.token), nil
}

func (f *countingFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}
