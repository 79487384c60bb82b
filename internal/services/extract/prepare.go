package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/leadharvest/internal/common"
	"github.com/ternarybob/leadharvest/internal/interfaces"
	"github.com/ternarybob/leadharvest/internal/models"
)

// PrepareConfig bounds the page preparation loops
type PrepareConfig struct {
	PollInterval        time.Duration
	ClickDelay          time.Duration
	ScrollMaxIterations int
	ExpandMaxIterations int
}

// Preparer brings the whole feed into the DOM before parsing
type Preparer struct {
	sel    common.Selectors
	config PrepareConfig
	logger arbor.ILogger
}

// NewPreparer creates a preparer
func NewPreparer(sel common.Selectors, config PrepareConfig, logger arbor.ILogger) *Preparer {
	if config.ScrollMaxIterations <= 0 {
		config.ScrollMaxIterations = 300
	}
	if config.ExpandMaxIterations <= 0 {
		config.ExpandMaxIterations = 100
	}
	return &Preparer{sel: sel, config: config, logger: logger}
}

// ScrollToOldest scrolls the feed up until the lead-created item is rendered
func (p *Preparer) ScrollToOldest(ctx context.Context, page interfaces.Page) error {
	sentinel := p.sel.Get(common.SelLeadCreated)
	scroller := p.sel.Get(common.SelScrollElement)

	for i := 0; i < p.config.ScrollMaxIterations; i++ {
		found, err := page.Exists(ctx, sentinel)
		if err != nil {
			return err
		}
		if found {
			p.logger.Debug().Int("scrolls", i).Msg("Reached start of lead feed")
			return nil
		}

		if err := page.ScrollToTop(ctx, scroller); err != nil {
			return err
		}
		if err := wait(ctx, p.config.PollInterval); err != nil {
			return err
		}
	}

	if found, err := page.Exists(ctx, sentinel); err == nil && found {
		return nil
	}
	return fmt.Errorf("%w: start of feed not reached after %d scrolls", models.ErrExtractionPartial, p.config.ScrollMaxIterations)
}

// ExpandFeeds clicks every collapsed feed group once
func (p *Preparer) ExpandFeeds(ctx context.Context, page interfaces.Page) error {
	clicked, err := page.ClickAll(ctx, p.sel.Get(common.SelFeedExpandBtn), p.config.ClickDelay)
	if err != nil {
		return err
	}
	p.logger.Debug().Int("expanded", clicked).Msg("Expanded feed groups")
	return nil
}

// ExpandMessages clicks "show more" controls until none remain
func (p *Preparer) ExpandMessages(ctx context.Context, page interfaces.Page) error {
	button := p.sel.Get(common.SelMessageExpandBtn)

	for i := 0; i < p.config.ExpandMaxIterations; i++ {
		remaining, err := page.Count(ctx, button)
		if err != nil {
			return err
		}
		if remaining == 0 {
			p.logger.Debug().Int("rounds", i).Msg("Expanded all messages")
			return nil
		}

		if _, err := page.ClickAll(ctx, button, p.config.ClickDelay); err != nil {
			return err
		}
		if err := wait(ctx, p.config.PollInterval); err != nil {
			return err
		}
	}

	if remaining, err := page.Count(ctx, button); err == nil && remaining == 0 {
		return nil
	}
	return fmt.Errorf("%w: collapsed messages remain after %d rounds", models.ErrExtractionPartial, p.config.ExpandMaxIterations)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
