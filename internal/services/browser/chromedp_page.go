package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/leadharvest/internal/interfaces"
	"github.com/ternarybob/leadharvest/internal/models"
)

// ChromePage implements interfaces.Page on one chromedp tab. DOM queries run against
// the tab's root document, which is the frame the tracker follows.
type ChromePage struct {
	tabCtx  context.Context
	tracker *NavigationTracker
	logger  arbor.ILogger
}

var _ interfaces.Page = (*ChromePage)(nil)

// Tracker exposes the page's navigation tracker so callers can register load callbacks
func (p *ChromePage) Tracker() *NavigationTracker {
	return p.tracker
}

// run executes actions on the tab, bounded by the caller's context
func (p *ChromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, cancel := context.WithCancel(p.tabCtx)
	defer cancel()

	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		opCtx, cancelDeadline = context.WithDeadline(opCtx, deadline)
		defer cancelDeadline()
	}

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(opCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (p *ChromePage) Navigate(ctx context.Context, url string) error {
	p.logger.Debug().Str("url", url).Msg("Navigating")
	if err := p.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

func (p *ChromePage) LoadMark() uint64 {
	return p.tracker.LoadMark()
}

func (p *ChromePage) WaitLoad(ctx context.Context, after uint64) error {
	return p.tracker.WaitLoad(ctx, after)
}

func (p *ChromePage) WaitVisible(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (p *ChromePage) Exists(ctx context.Context, selector string) (bool, error) {
	var exists bool
	err := p.run(ctx, chromedp.Evaluate(fmt.Sprintf(`document.querySelector(%s) !== null`, jsString(selector)), &exists))
	return exists, err
}

func (p *ChromePage) Count(ctx context.Context, selector string) (int, error) {
	var count int
	err := p.run(ctx, chromedp.Evaluate(fmt.Sprintf(`document.querySelectorAll(%s).length`, jsString(selector)), &count))
	return count, err
}

func (p *ChromePage) Attributes(ctx context.Context, selector, attr string) ([]string, error) {
	var values []string
	script := fmt.Sprintf(`Array.from(document.querySelectorAll(%s), e => e.getAttribute(%s) || "")`, jsString(selector), jsString(attr))
	if err := p.run(ctx, chromedp.Evaluate(script, &values)); err != nil {
		return nil, err
	}
	return values, nil
}

func (p *ChromePage) nodes(ctx context.Context, selector string) ([]*cdp.Node, error) {
	var nodes []*cdp.Node
	if err := p.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return nil, err
	}
	return nodes, nil
}

func (p *ChromePage) Click(ctx context.Context, selector string, clickCount int) error {
	nodes, err := p.nodes(ctx, selector)
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		return fmt.Errorf("no element matches %q", selector)
	}
	if clickCount < 1 {
		clickCount = 1
	}
	return p.run(ctx, chromedp.MouseClickNode(nodes[0], chromedp.ClickCount(clickCount)))
}

func (p *ChromePage) ClickAll(ctx context.Context, selector string, delay time.Duration) (int, error) {
	nodes, err := p.nodes(ctx, selector)
	if err != nil {
		return 0, err
	}

	clicked := 0
	for i, node := range nodes {
		if err := p.run(ctx, chromedp.MouseClickNode(node)); err != nil {
			p.logger.Trace().Err(err).Str("selector", selector).Int("index", i).Msg("Click failed")
			continue
		}
		clicked++
		if err := sleep(ctx, delay); err != nil {
			return clicked, err
		}
	}
	return clicked, nil
}

func (p *ChromePage) Type(ctx context.Context, selector, text string, delay time.Duration) error {
	if delay <= 0 {
		return p.run(ctx, chromedp.SendKeys(selector, text, chromedp.ByQuery))
	}

	if err := p.run(ctx, chromedp.Focus(selector, chromedp.ByQuery)); err != nil {
		return err
	}
	for _, r := range text {
		if err := p.run(ctx, chromedp.KeyEvent(string(r))); err != nil {
			return err
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
	return nil
}

func (p *ChromePage) SetValue(ctx context.Context, selector, value string) error {
	return p.run(ctx, chromedp.SetValue(selector, value, chromedp.ByQuery))
}

func (p *ChromePage) ScrollToTop(ctx context.Context, selector string) error {
	script := fmt.Sprintf(`document.querySelectorAll(%s).forEach(e => e.scrollTo({top: 0}))`, jsString(selector))
	return p.run(ctx, chromedp.Evaluate(script, nil))
}

func (p *ChromePage) HTML(ctx context.Context) (string, error) {
	var html string
	err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

// Location returns the URL of the tracked top-level frame
func (p *ChromePage) Location(ctx context.Context) (string, error) {
	if _, url := p.tracker.ActiveFrame(); url != "" {
		return url, nil
	}
	var location string
	err := p.run(ctx, chromedp.Location(&location))
	return location, err
}

func (p *ChromePage) Cookies(ctx context.Context) ([]models.Cookie, error) {
	var cookies []*network.Cookie
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}

	result := make([]models.Cookie, 0, len(cookies))
	for _, c := range cookies {
		result = append(result, models.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: c.SameSite.String(),
		})
	}
	return result, nil
}

func (p *ChromePage) SetCookies(ctx context.Context, cookies []models.Cookie) error {
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		injected := 0
		for _, c := range cookies {
			params := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(c.Path).
				WithSecure(c.Secure).
				WithHTTPOnly(c.HTTPOnly)

			if sameSite, ok := sameSiteOf(c.SameSite); ok {
				params = params.WithSameSite(sameSite)
			}
			if c.Expires > 0 {
				expires := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
				params = params.WithExpires(&expires)
			}

			if err := params.Do(ctx); err != nil {
				p.logger.Warn().Err(err).Str("cookie_name", c.Name).Str("domain", c.Domain).Msg("Failed to inject cookie into browser")
				continue
			}
			injected++
		}

		p.logger.Debug().Int("cookies_injected", injected).Int("total_cookies", len(cookies)).Msg("Cookies injected into browser")
		return nil
	}))
}

func sameSiteOf(value string) (network.CookieSameSite, bool) {
	switch strings.ToLower(value) {
	case "strict":
		return network.CookieSameSiteStrict, true
	case "lax":
		return network.CookieSameSiteLax, true
	case "none":
		return network.CookieSameSiteNone, true
	}
	return "", false
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
