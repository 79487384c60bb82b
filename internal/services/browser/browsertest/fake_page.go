// Package browsertest provides an in-memory interfaces.Page for tests. The DOM is
// held in a goquery document; interactions are recorded and can trigger handlers
// that rewrite the document the way the real CRM would.
package browsertest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/leadharvest/internal/interfaces"
	"github.com/ternarybob/leadharvest/internal/models"
)

// Handler reacts to an interaction on the page
type Handler func(p *FakePage)

// FakePage is a scriptable interfaces.Page
type FakePage struct {
	mu      sync.Mutex
	doc     *goquery.Document
	url     string
	cookies []models.Cookie
	loads   uint64
	loaded  chan struct{}

	// Router returns the document served for a navigation
	Router func(p *FakePage, url string) string

	onClick  map[string]Handler
	onScroll map[string]Handler

	Clicks      []string
	Typed       map[string]string
	Navigations []string
}

var _ interfaces.Page = (*FakePage)(nil)

// NewFakePage creates a page showing html
func NewFakePage(html string) *FakePage {
	p := &FakePage{
		loaded:   make(chan struct{}),
		onClick:  map[string]Handler{},
		onScroll: map[string]Handler{},
		Typed:    map[string]string{},
	}
	p.setHTML(html)
	return p
}

// SetHTML replaces the document without firing a load
func (p *FakePage) SetHTML(html string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setHTML(html)
}

func (p *FakePage) setHTML(html string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		panic(fmt.Sprintf("browsertest: invalid html: %v", err))
	}
	p.doc = doc
}

// Mutate edits the current document in place
func (p *FakePage) Mutate(fn func(doc *goquery.Document)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p.doc)
}

// FireLoad records a document load and wakes WaitLoad callers
func (p *FakePage) FireLoad() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loads++
	close(p.loaded)
	p.loaded = make(chan struct{})
}

// OnClick registers a handler run after each click on selector
func (p *FakePage) OnClick(selector string, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onClick[selector] = h
}

// OnScroll registers a handler run after each scroll of selector
func (p *FakePage) OnScroll(selector string, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onScroll[selector] = h
}

// ClickCount returns how many times selector was clicked
func (p *FakePage) ClickCount(selector string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.Clicks {
		if c == selector {
			n++
		}
	}
	return n
}

// TypedText returns what was typed into selector
func (p *FakePage) TypedText(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Typed[selector]
}

// SetBrowserCookies replaces the cookies the page reports
func (p *FakePage) SetBrowserCookies(cookies []models.Cookie) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cookies = append([]models.Cookie(nil), cookies...)
}

func (p *FakePage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	p.url = url
	p.Navigations = append(p.Navigations, url)
	router := p.Router
	p.mu.Unlock()

	if router != nil {
		html := router(p, url)
		p.SetHTML(html)
	}
	p.FireLoad()
	return nil
}

func (p *FakePage) LoadMark() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loads
}

func (p *FakePage) WaitLoad(ctx context.Context, after uint64) error {
	for {
		p.mu.Lock()
		if p.loads > after {
			p.mu.Unlock()
			return nil
		}
		loaded := p.loaded
		p.mu.Unlock()

		select {
		case <-loaded:
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", models.ErrNavigationTimeout, ctx.Err())
		}
	}
}

func (p *FakePage) WaitVisible(ctx context.Context, selector string) error {
	for {
		if ok, _ := p.Exists(ctx, selector); ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (p *FakePage) Exists(ctx context.Context, selector string) (bool, error) {
	n, err := p.Count(ctx, selector)
	return n > 0, err
}

func (p *FakePage) Count(ctx context.Context, selector string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.Find(selector).Length(), nil
}

func (p *FakePage) Attributes(ctx context.Context, selector, attr string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	var values []string
	p.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		values = append(values, s.AttrOr(attr, ""))
	})
	return values, nil
}

func (p *FakePage) Click(ctx context.Context, selector string, clickCount int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	if p.doc.Find(selector).Length() == 0 {
		p.mu.Unlock()
		return fmt.Errorf("no element matches %q", selector)
	}
	p.Clicks = append(p.Clicks, selector)
	handler := p.onClick[selector]
	p.mu.Unlock()

	if handler != nil {
		handler(p)
	}
	return nil
}

func (p *FakePage) ClickAll(ctx context.Context, selector string, delay time.Duration) (int, error) {
	n, err := p.Count(ctx, selector)
	if err != nil {
		return 0, err
	}
	for i := 0; i < n; i++ {
		if err := p.Click(ctx, selector, 1); err != nil {
			return i, nil
		}
	}
	return n, nil
}

func (p *FakePage) Type(ctx context.Context, selector, text string, delay time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.doc.Find(selector).Length() == 0 {
		return fmt.Errorf("no element matches %q", selector)
	}
	p.Typed[selector] += text
	p.doc.Find(selector).First().SetAttr("value", p.Typed[selector])
	return nil
}

func (p *FakePage) SetValue(ctx context.Context, selector, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.doc.Find(selector).Length() == 0 {
		return fmt.Errorf("no element matches %q", selector)
	}
	p.Typed[selector] = value
	p.doc.Find(selector).First().SetAttr("value", value)
	return nil
}

func (p *FakePage) ScrollToTop(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	handler := p.onScroll[selector]
	p.mu.Unlock()

	if handler != nil {
		handler(p)
	}
	return nil
}

func (p *FakePage) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return goquery.OuterHtml(p.doc.Selection)
}

func (p *FakePage) Location(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *FakePage) Cookies(ctx context.Context) ([]models.Cookie, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Cookie(nil), p.cookies...), nil
}

func (p *FakePage) SetCookies(ctx context.Context, cookies []models.Cookie) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cookies = append(p.cookies, cookies...)
	return nil
}
