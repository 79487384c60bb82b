package browsertest

import (
	"context"
	"sync"

	"github.com/ternarybob/leadharvest/internal/interfaces"
)

// FakeLauncher hands out FakeBrowsers and records peak concurrency across all of them
type FakeLauncher struct {
	mu       sync.Mutex
	launched int
	running  int
	live     int
	peak     int

	// NewPage builds the page for each context; defaults to an empty document
	NewPage func() *FakePage

	// LaunchErr, when set, is returned by Launch
	LaunchErr error
}

var _ interfaces.BrowserLauncher = (*FakeLauncher)(nil)

func (l *FakeLauncher) Launch(ctx context.Context) (interfaces.Browser, error) {
	if l.LaunchErr != nil {
		return nil, l.LaunchErr
	}
	l.mu.Lock()
	l.launched++
	l.running++
	l.mu.Unlock()
	return &FakeBrowser{launcher: l}, nil
}

// Launched returns how many browsers were started
func (l *FakeLauncher) Launched() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launched
}

// Running returns how many browsers are started and not yet closed
func (l *FakeLauncher) Running() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Peak returns the highest number of simultaneously open contexts
func (l *FakeLauncher) Peak() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.peak
}

// Live returns the number of open contexts
func (l *FakeLauncher) Live() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.live
}

func (l *FakeLauncher) open() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.live++
	if l.live > l.peak {
		l.peak = l.live
	}
}

func (l *FakeLauncher) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.live--
}

// FakeBrowser is a browser whose pages are FakePages
type FakeBrowser struct {
	launcher *FakeLauncher
	mu       sync.Mutex
	live     int
	closed   bool
}

func (b *FakeBrowser) NewPage(ctx context.Context) (interfaces.Page, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	page := NewFakePage("<html><body></body></html>")
	if b.launcher.NewPage != nil {
		page = b.launcher.NewPage()
	}

	b.mu.Lock()
	b.live++
	b.mu.Unlock()
	b.launcher.open()

	var once sync.Once
	release := func() {
		once.Do(func() {
			b.mu.Lock()
			b.live--
			b.mu.Unlock()
			b.launcher.close()
		})
	}
	return page, release, nil
}

func (b *FakeBrowser) LiveContexts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.live
}

func (b *FakeBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		b.launcher.mu.Lock()
		b.launcher.running--
		b.launcher.mu.Unlock()
	}
	return nil
}

// Closed reports whether Close was called
func (b *FakeBrowser) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
