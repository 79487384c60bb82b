package extract

import (
	"context"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/leadharvest/internal/common"
	"github.com/ternarybob/leadharvest/internal/models"
	"github.com/ternarybob/leadharvest/internal/services/browser/browsertest"
)

func newTestExtractor(prepare PrepareConfig) *Extractor {
	return NewExtractor(Options{
		Selectors: common.DefaultSelectors(),
		BaseURL:   testBaseURL,
		Prepare:   prepare,
		Tokens:    dateTokens,
		Location:  moscow,
		Now:       func() time.Time { return fixedNow },
	}, arbor.NewLogger())
}

func TestPreparer_ScrollToOldest(t *testing.T) {
	sel := common.DefaultSelectors()
	page := browsertest.NewFakePage(leadPageHTML(false))

	scrolls := 0
	page.OnScroll(sel.Get(common.SelScrollElement), func(p *browsertest.FakePage) {
		scrolls++
		if scrolls == 3 {
			p.Mutate(func(doc *goquery.Document) {
				doc.Find(".notes-wrapper__scroller").AppendHtml(`<div class="feed-note-wrapper-lead_created"></div>`)
			})
		}
	})

	preparer := NewPreparer(sel, PrepareConfig{ScrollMaxIterations: 10}, arbor.NewLogger())
	require.NoError(t, preparer.ScrollToOldest(context.Background(), page))
	assert.Equal(t, 3, scrolls)
}

func TestPreparer_ScrollCeiling(t *testing.T) {
	sel := common.DefaultSelectors()
	page := browsertest.NewFakePage(leadPageHTML(false))

	preparer := NewPreparer(sel, PrepareConfig{ScrollMaxIterations: 4}, arbor.NewLogger())
	err := preparer.ScrollToOldest(context.Background(), page)
	assert.ErrorIs(t, err, models.ErrExtractionPartial)
}

func TestPreparer_ExpandMessages(t *testing.T) {
	sel := common.DefaultSelectors()
	button := sel.Get(common.SelMessageExpandBtn)
	page := browsertest.NewFakePage(`<html><body>
<a class="feed-note__expand-link"></a><a class="feed-note__expand-link"></a>
</body></html>`)

	// each click reveals the text and removes one control
	page.OnClick(button, func(p *browsertest.FakePage) {
		p.Mutate(func(doc *goquery.Document) {
			doc.Find(button).First().Remove()
		})
	})

	preparer := NewPreparer(sel, PrepareConfig{ExpandMaxIterations: 5}, arbor.NewLogger())
	require.NoError(t, preparer.ExpandMessages(context.Background(), page))
	assert.Equal(t, 2, page.ClickCount(button))
}

func TestPreparer_ExpandCeiling(t *testing.T) {
	sel := common.DefaultSelectors()
	page := browsertest.NewFakePage(`<html><body><a class="feed-note__expand-link"></a></body></html>`)

	preparer := NewPreparer(sel, PrepareConfig{ExpandMaxIterations: 3}, arbor.NewLogger())
	err := preparer.ExpandMessages(context.Background(), page)
	assert.ErrorIs(t, err, models.ErrExtractionPartial)
	assert.Equal(t, 3, page.ClickCount(sel.Get(common.SelMessageExpandBtn)))
}

func TestPreparer_ExpandFeeds(t *testing.T) {
	sel := common.DefaultSelectors()
	page := browsertest.NewFakePage(`<html><body>
<span class="feed-note__joined-more"></span><span class="feed-note__joined-more"></span><span class="feed-note__joined-more"></span>
</body></html>`)

	preparer := NewPreparer(sel, PrepareConfig{}, arbor.NewLogger())
	require.NoError(t, preparer.ExpandFeeds(context.Background(), page))
	assert.Equal(t, 3, page.ClickCount(sel.Get(common.SelFeedExpandBtn)))
}

func TestExtractor_Extract(t *testing.T) {
	ctx := context.Background()
	page := browsertest.NewFakePage(leadPageHTML(true))
	extractor := newTestExtractor(PrepareConfig{})

	ids, err := extractor.IdentityMap(ctx, page)
	require.NoError(t, err)

	record, err := extractor.Extract(ctx, page, ids)
	require.NoError(t, err)

	assert.Empty(t, record.Warnings)
	assert.Same(t, ids, record.IdentityMap)
	assert.Len(t, record.MainFields, 2)
	assert.Len(t, record.CompanyFields, 1)
	assert.Len(t, record.ContactFields, 2)
	require.Len(t, record.Messages, 7)

	plain := record.Messages[0]
	require.NotNil(t, plain.DateISO)
	assert.Equal(t, time.Date(2024, 3, 12, 10, 15, 0, 0, moscow).Unix(), *plain.DateISO)
	assert.Equal(t, "55", plain.Author.ContactID)

	sms := record.Messages[1]
	require.NotNil(t, sms.DateISO)
	assert.Equal(t, time.Date(2024, 3, 15, 9, 0, 0, 0, moscow).Unix(), *sms.DateISO)

	note := record.Messages[2]
	require.NotNil(t, note.DateISO)
	assert.Equal(t, time.Date(2024, 3, 14, 18, 40, 0, 0, moscow).Unix(), *note.DateISO)

	assert.Nil(t, record.Messages[3].DateISO)
}

func TestExtractor_PartialBecomesWarning(t *testing.T) {
	page := browsertest.NewFakePage(leadPageHTML(false))
	extractor := newTestExtractor(PrepareConfig{ScrollMaxIterations: 2})

	record, err := extractor.Extract(context.Background(), page, models.NewIdentityMap())
	require.NoError(t, err)
	require.Len(t, record.Warnings, 1)
	assert.Contains(t, record.Warnings[0], "start of feed")
	assert.Len(t, record.Messages, 7)
}

func TestExtractor_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestExtractor(PrepareConfig{}).Extract(ctx, browsertest.NewFakePage(leadPageHTML(true)), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtractor_LastMessage(t *testing.T) {
	page := browsertest.NewFakePage(leadPageHTML(true))

	messages, err := newTestExtractor(PrepareConfig{}).LastMessage(context.Background(), page, nil)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, models.MessageKindCall, messages[0].Kind)
	require.NotNil(t, messages[0].DateISO)
}
