package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/leadharvest/internal/common"
	"github.com/ternarybob/leadharvest/internal/interfaces"
	"github.com/ternarybob/leadharvest/internal/models"
)

// Extractor runs the extraction pipeline against a loaded lead card
type Extractor struct {
	sel      common.Selectors
	preparer *Preparer
	parser   *MessageParser
	tokens   DateTokens
	loc      *time.Location
	now      func() time.Time
	logger   arbor.ILogger
}

// Options configures an Extractor
type Options struct {
	Selectors common.Selectors
	BaseURL   string
	Prepare   PrepareConfig
	Tokens    DateTokens
	Location  *time.Location
	Now       func() time.Time
}

// NewExtractor creates an extractor
func NewExtractor(opts Options, logger arbor.ILogger) *Extractor {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Extractor{
		sel:      opts.Selectors,
		preparer: NewPreparer(opts.Selectors, opts.Prepare, logger),
		parser:   NewMessageParser(opts.Selectors, opts.BaseURL),
		tokens:   opts.Tokens,
		loc:      loc,
		now:      now,
		logger:   logger,
	}
}

// ExtractorOptionsFrom maps configuration to extractor options
func ExtractorOptionsFrom(config *common.Config) Options {
	return Options{
		Selectors: config.Selectors,
		BaseURL:   config.BaseURL(),
		Prepare: PrepareConfig{
			PollInterval:        common.Duration(config.Extraction.PollInterval, time.Second),
			ClickDelay:          common.Duration(config.Extraction.ClickDelay, time.Second),
			ScrollMaxIterations: config.Extraction.ScrollMaxIterations,
			ExpandMaxIterations: config.Extraction.ExpandMaxIterations,
		},
		Tokens: DateTokens{
			Today:     config.Extraction.TodayToken,
			Yesterday: config.Extraction.YesterdayToken,
		},
		Location: config.Location(),
	}
}

func (e *Extractor) document(ctx context.Context, page interfaces.Page) (*goquery.Document, error) {
	html, err := page.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("read page html: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse page html: %w", err)
	}
	return doc, nil
}

// IdentityMap reads the chat identity map from the current page
func (e *Extractor) IdentityMap(ctx context.Context, page interfaces.Page) (*models.IdentityMap, error) {
	doc, err := e.document(ctx, page)
	if err != nil {
		return nil, err
	}
	ids := ParseIdentityMap(doc)
	e.logger.Debug().
		Int("users", len(ids.Users)).
		Int("contacts", len(ids.Contacts)).
		Msg("Parsed chat identity map")
	return ids, nil
}

// Extract reads the full lead record. Preparation ceilings produce warnings on the
// record rather than errors.
func (e *Extractor) Extract(ctx context.Context, page interfaces.Page, ids *models.IdentityMap) (*models.LeadRecord, error) {
	record := &models.LeadRecord{IdentityMap: ids}

	steps := []struct {
		name string
		run  func(context.Context, interfaces.Page) error
	}{
		{"scroll", e.preparer.ScrollToOldest},
		{"expand_feeds", e.preparer.ExpandFeeds},
		{"expand_messages", e.preparer.ExpandMessages},
	}
	for _, step := range steps {
		if err := step.run(ctx, page); err != nil {
			if !errors.Is(err, models.ErrExtractionPartial) {
				return nil, fmt.Errorf("%s: %w", step.name, err)
			}
			e.logger.Warn().Err(err).Str("step", step.name).Msg("Extraction incomplete, continuing")
			record.Warnings = append(record.Warnings, err.Error())
		}
	}

	doc, err := e.document(ctx, page)
	if err != nil {
		return nil, err
	}

	record.MainFields = ParseFields(doc, e.sel, e.sel.Get(common.SelMainField))
	record.CompanyFields = ParseFields(doc, e.sel, e.sel.Get(common.SelCompanyField))
	record.ContactFields = ParseContactFields(doc, e.sel)
	record.Messages = e.messages(doc, ids, false)

	e.logger.Info().
		Int("fields", len(record.MainFields)).
		Int("company_fields", len(record.CompanyFields)).
		Int("contacts", len(record.ContactFields)).
		Int("messages", len(record.Messages)).
		Int("warnings", len(record.Warnings)).
		Msg("Lead extracted")

	return record, nil
}

// LastMessage reads only the newest feed item, without preparation
func (e *Extractor) LastMessage(ctx context.Context, page interfaces.Page, ids *models.IdentityMap) ([]models.Message, error) {
	doc, err := e.document(ctx, page)
	if err != nil {
		return nil, err
	}
	return e.messages(doc, ids, true), nil
}

func (e *Extractor) messages(doc *goquery.Document, ids *models.IdentityMap, onlyLast bool) []models.Message {
	messages := e.parser.Parse(doc, onlyLast)
	NormalizeDates(messages, e.now(), e.tokens, e.loc)
	ResolveAuthors(messages, ids)
	return messages
}
