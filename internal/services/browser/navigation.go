package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/leadharvest/internal/models"
)

// NavigationRequest is an intercepted outgoing request
type NavigationRequest struct {
	FrameID      string
	URL          string
	ResourceType string
	IsNavigation bool
}

// LoadCallback is invoked once per document load with the new load count
type LoadCallback func(ctx context.Context, count uint64)

// NavigationTracker follows the top-level frame of a tab through its document
// navigations and counts document load events. LoadMark/WaitLoad is the only way
// task code suspends on page loads.
type NavigationTracker struct {
	mu        sync.Mutex
	topFrame  string // empty until the tab's root frame is known
	frameID   string
	frameURL  string
	loads     uint64
	loaded    chan struct{} // closed and replaced on every load
	callbacks []LoadCallback
	events    chan uint64
	logger    arbor.ILogger
}

// NewNavigationTracker creates a tracker. Call Run to dispatch load callbacks.
func NewNavigationTracker(logger arbor.ILogger) *NavigationTracker {
	return &NavigationTracker{
		loaded: make(chan struct{}),
		events: make(chan uint64, 16),
		logger: logger,
	}
}

// SetTopFrame pins the tab's root frame. Document navigations in any other frame
// are ignored from then on.
func (t *NavigationTracker) SetTopFrame(id, url string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.topFrame = id
	if t.frameID == "" || t.frameID == id {
		t.frameID = id
		if url != "" {
			t.frameURL = url
		}
	}
}

// isTop reports whether frameID may become the tracked frame. Caller holds mu.
func (t *NavigationTracker) isTop(frameID string) bool {
	return t.topFrame == "" || frameID == t.topFrame
}

// Observe records a request and lets it proceed. Document navigations of the
// top-level frame switch the tracked frame; iframe documents do not. Failures to
// continue the request are logged and dropped.
func (t *NavigationTracker) Observe(req NavigationRequest, proceed func() error) {
	if req.IsNavigation && req.ResourceType == "Document" {
		t.mu.Lock()
		top := t.isTop(req.FrameID)
		if top {
			t.frameID = req.FrameID
			t.frameURL = req.URL
		}
		t.mu.Unlock()

		t.logger.Trace().
			Str("frame_id", req.FrameID).
			Str("url", req.URL).
			Bool("top", top).
			Msg("Document navigation")
	}

	if proceed == nil {
		return
	}
	if err := proceed(); err != nil {
		t.logger.Trace().Err(err).Str("url", req.URL).Msg("Failed to continue intercepted request")
	}
}

// Commit records the URL a frame settled on, after redirects or a same-document
// navigation. Frames other than the top-level one are ignored.
func (t *NavigationTracker) Commit(frameID, url string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.isTop(frameID) {
		return
	}
	t.frameID = frameID
	t.frameURL = url
}

// ActiveFrame returns the top-level frame and its latest URL
func (t *NavigationTracker) ActiveFrame() (id string, url string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frameID, t.frameURL
}

// RecordLoad registers a document load event and wakes any waiters
func (t *NavigationTracker) RecordLoad() {
	t.mu.Lock()
	t.loads++
	count := t.loads
	close(t.loaded)
	t.loaded = make(chan struct{})
	t.mu.Unlock()

	select {
	case t.events <- count:
	default:
		t.logger.Trace().Int64("load", int64(count)).Msg("Load callback queue full, skipping dispatch")
	}
}

// LoadMark returns the number of loads seen so far
func (t *NavigationTracker) LoadMark() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loads
}

// WaitLoad blocks until a load happens after mark or ctx ends
func (t *NavigationTracker) WaitLoad(ctx context.Context, mark uint64) error {
	for {
		t.mu.Lock()
		if t.loads > mark {
			t.mu.Unlock()
			return nil
		}
		loaded := t.loaded
		t.mu.Unlock()

		select {
		case <-loaded:
		case <-ctx.Done():
			return fmt.Errorf("%w: waiting for page load: %w", models.ErrNavigationTimeout, ctx.Err())
		}
	}
}

// OnLoad registers a callback run by Run after every load
func (t *NavigationTracker) OnLoad(cb LoadCallback) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callbacks = append(t.callbacks, cb)
}

// Run dispatches load callbacks until ctx ends
func (t *NavigationTracker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case count := <-t.events:
			t.mu.Lock()
			callbacks := append([]LoadCallback(nil), t.callbacks...)
			t.mu.Unlock()

			for _, cb := range callbacks {
				cb(ctx, count)
			}
		}
	}
}
