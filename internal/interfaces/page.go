package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/leadharvest/internal/models"
)

// Page drives one isolated browser tab. Selector arguments are CSS selectors.
// Every call honours the deadline of the supplied context.
type Page interface {
	// Navigate loads url in the tab and waits for the document to be ready
	Navigate(ctx context.Context, url string) error

	// LoadMark returns the current load-event counter. WaitLoad blocks until a
	// document load happens after the given mark.
	LoadMark() uint64
	WaitLoad(ctx context.Context, after uint64) error

	WaitVisible(ctx context.Context, selector string) error
	Exists(ctx context.Context, selector string) (bool, error)
	Count(ctx context.Context, selector string) (int, error)

	// Attributes returns attr for every node matching selector, in document order
	Attributes(ctx context.Context, selector, attr string) ([]string, error)

	// Click clicks the first node matching selector clickCount times
	Click(ctx context.Context, selector string, clickCount int) error

	// ClickAll clicks every node currently matching selector, pausing delay between clicks
	ClickAll(ctx context.Context, selector string, delay time.Duration) (int, error)

	// Type sends text to the first node matching selector, pausing delay between keys
	Type(ctx context.Context, selector, text string, delay time.Duration) error
	SetValue(ctx context.Context, selector, value string) error
	ScrollToTop(ctx context.Context, selector string) error

	HTML(ctx context.Context) (string, error)
	Location(ctx context.Context) (string, error)

	Cookies(ctx context.Context) ([]models.Cookie, error)
	SetCookies(ctx context.Context, cookies []models.Cookie) error
}

// Browser is one launched browser process
type Browser interface {
	// NewPage opens a tab in a fresh, isolated browser context. The returned
	// release func closes the context and must always be called.
	NewPage(ctx context.Context) (Page, func(), error)

	// LiveContexts reports how many pages are currently open
	LiveContexts() int

	Close() error
}

// BrowserLauncher starts browser processes
type BrowserLauncher interface {
	Launch(ctx context.Context) (Browser, error)
}
