package browser

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/leadharvest/internal/models"
)

func TestObserve_SwitchesFrameOnDocumentNavigation(t *testing.T) {
	tracker := NewNavigationTracker(arbor.NewLogger())

	continued := 0
	proceed := func() error { continued++; return nil }

	tracker.Observe(NavigationRequest{FrameID: "main", URL: "https://a/leads/1", ResourceType: "Document", IsNavigation: true}, proceed)
	tracker.Observe(NavigationRequest{FrameID: "ads", URL: "https://a/pixel.gif", ResourceType: "Image"}, proceed)

	id, url := tracker.ActiveFrame()
	assert.Equal(t, "main", id)
	assert.Equal(t, "https://a/leads/1", url)
	assert.Equal(t, 2, continued, "every request is continued")

	tracker.Observe(NavigationRequest{FrameID: "main", URL: "https://a/leads/2", ResourceType: "Document", IsNavigation: true}, proceed)
	_, url = tracker.ActiveFrame()
	assert.Equal(t, "https://a/leads/2", url)
}

func TestObserve_IgnoresIframeDocuments(t *testing.T) {
	tracker := NewNavigationTracker(arbor.NewLogger())
	tracker.SetTopFrame("main", "about:blank")

	continued := 0
	proceed := func() error { continued++; return nil }

	tracker.Observe(NavigationRequest{FrameID: "main", URL: "https://a/leads/1", ResourceType: "Document", IsNavigation: true}, proceed)
	tracker.Observe(NavigationRequest{FrameID: "widget", URL: "https://chat.example/embed", ResourceType: "Document", IsNavigation: true}, proceed)

	id, url := tracker.ActiveFrame()
	assert.Equal(t, "main", id)
	assert.Equal(t, "https://a/leads/1", url)
	assert.Equal(t, 2, continued, "iframe requests are still continued")
}

func TestCommit_FollowsTopFrameOnly(t *testing.T) {
	tracker := NewNavigationTracker(arbor.NewLogger())
	tracker.SetTopFrame("main", "")
	tracker.Observe(NavigationRequest{FrameID: "main", URL: "https://a/login", ResourceType: "Document", IsNavigation: true}, nil)

	tracker.Commit("main", "https://a/leads/1#feed")
	tracker.Commit("widget", "https://chat.example/embed#x")

	id, url := tracker.ActiveFrame()
	assert.Equal(t, "main", id)
	assert.Equal(t, "https://a/leads/1#feed", url)
}

func TestSetTopFrame_SeedsActiveFrame(t *testing.T) {
	tracker := NewNavigationTracker(arbor.NewLogger())
	tracker.SetTopFrame("main", "about:blank")

	id, url := tracker.ActiveFrame()
	assert.Equal(t, "main", id)
	assert.Equal(t, "about:blank", url)
}

func TestChromePage_LocationReadsTrackedFrame(t *testing.T) {
	tracker := NewNavigationTracker(arbor.NewLogger())
	tracker.SetTopFrame("main", "")
	tracker.Observe(NavigationRequest{FrameID: "main", URL: "https://a/leads/7", ResourceType: "Document", IsNavigation: true}, nil)
	tracker.Observe(NavigationRequest{FrameID: "widget", URL: "https://chat.example/embed", ResourceType: "Document", IsNavigation: true}, nil)

	page := &ChromePage{tabCtx: context.Background(), tracker: tracker, logger: arbor.NewLogger()}
	location, err := page.Location(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://a/leads/7", location)
}

func TestObserve_SwallowsContinueErrors(t *testing.T) {
	tracker := NewNavigationTracker(arbor.NewLogger())

	assert.NotPanics(t, func() {
		tracker.Observe(NavigationRequest{FrameID: "main", ResourceType: "Document", IsNavigation: true}, func() error {
			return errors.New("request already handled")
		})
		tracker.Observe(NavigationRequest{FrameID: "main"}, nil)
	})
}

func TestWaitLoad_ReturnsAfterNextLoad(t *testing.T) {
	tracker := NewNavigationTracker(arbor.NewLogger())
	mark := tracker.LoadMark()

	go func() {
		time.Sleep(10 * time.Millisecond)
		tracker.RecordLoad()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, tracker.WaitLoad(ctx, mark))
	assert.Equal(t, mark+1, tracker.LoadMark())
}

func TestWaitLoad_LoadBeforeWaitIsNotMissed(t *testing.T) {
	tracker := NewNavigationTracker(arbor.NewLogger())
	mark := tracker.LoadMark()
	tracker.RecordLoad()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, tracker.WaitLoad(ctx, mark))
}

func TestWaitLoad_TimesOut(t *testing.T) {
	tracker := NewNavigationTracker(arbor.NewLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := tracker.WaitLoad(ctx, tracker.LoadMark())
	assert.ErrorIs(t, err, models.ErrNavigationTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOnLoad_CallbacksRunFromRun(t *testing.T) {
	tracker := NewNavigationTracker(arbor.NewLogger())

	var calls atomic.Int32
	tracker.OnLoad(func(ctx context.Context, count uint64) {
		calls.Add(1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tracker.Run(ctx)

	tracker.RecordLoad()
	tracker.RecordLoad()

	assert.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
}
