package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/leadharvest/internal/common"
	"github.com/ternarybob/leadharvest/internal/interfaces"
	"github.com/ternarybob/leadharvest/internal/models"
	"github.com/ternarybob/leadharvest/internal/services/auth"
	"github.com/ternarybob/leadharvest/internal/services/browser/browsertest"
	"github.com/ternarybob/leadharvest/internal/storage/cookies"
)

const (
	login = "user@example.com"

	loginPage = `<html><body><input id="session_end_login"><input id="password"><button id="auth_submit">Go</button></body></html>`
	dashboard = `<html><body><div class="dashboard"></div></body></html>`
	leadCard  = `<html><body><div class="notes-wrapper"><div class="feed-note-wrapper" data-id="1"></div></div></body></html>`
)

func leadURL(id string) string {
	return "https://example.amocrm.ru/leads/detail/" + id
}

func newManager(store interfaces.CookieStore, ready time.Duration) *Manager {
	return NewManager(store, common.DefaultSelectors(),
		auth.Credentials{Login: login, Password: "secret"},
		nil, leadURL, 0,
		Config{SaveSession: true, ReadyTimeout: ready, Auth: auth.Config{LoadTimeout: time.Second}},
		arbor.NewLogger())
}

// crmPage serves the lead card only to a browser holding a session cookie
func crmPage() *browsertest.FakePage {
	page := browsertest.NewFakePage(`<html></html>`)
	page.Router = func(p *browsertest.FakePage, url string) string {
		jar, _ := p.Cookies(context.Background())
		for _, c := range jar {
			if c.Name == "session_id" {
				return leadCard
			}
		}
		return loginPage
	}
	page.OnClick("#auth_submit", func(p *browsertest.FakePage) {
		p.SetBrowserCookies([]models.Cookie{{Name: "session_id", Value: "s1", Domain: ".amocrm.ru", Path: "/"}})
		p.SetHTML(dashboard)
		p.FireLoad()
	})
	return page
}

func TestOpen_NoCookieFileAuthenticatesAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")
	store := cookies.NewFileStore(path, login, arbor.NewLogger())
	page := crmPage()

	s, err := newManager(store, time.Second).Open(context.Background(), page, "42")
	require.NoError(t, err)

	assert.Equal(t, auth.StateAuthenticated, s.AuthState())
	assert.Equal(t, "42", s.LeadID())
	assert.Equal(t, []string{leadURL("42"), leadURL("42")}, page.Navigations)
	assert.Equal(t, "secret", page.TypedText("#password"))

	_, err = os.Stat(path)
	require.NoError(t, err)

	saved, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, "session_id", saved[0].Name)
}

func TestOpen_RestoredCookiesSkipLogin(t *testing.T) {
	store := cookies.NewFileStore(filepath.Join(t.TempDir(), "cookies.json"), login, arbor.NewLogger())
	require.NoError(t, store.Save(context.Background(), []models.Cookie{{Name: "session_id", Value: "s0"}}))
	page := crmPage()

	s, err := newManager(store, time.Second).Open(context.Background(), page, "7")
	require.NoError(t, err)

	assert.Equal(t, auth.StateAuthenticated, s.AuthState())
	assert.Len(t, page.Navigations, 1)
	assert.Empty(t, page.Clicks)
}

func TestOpen_FeedNeverRenders(t *testing.T) {
	store := cookies.NewFileStore(filepath.Join(t.TempDir(), "cookies.json"), login, arbor.NewLogger())
	page := browsertest.NewFakePage(`<html></html>`)
	page.Router = func(*browsertest.FakePage, string) string { return dashboard }

	_, err := newManager(store, 30*time.Millisecond).Open(context.Background(), page, "9")
	assert.ErrorIs(t, err, models.ErrNavigationTimeout)
}

func TestOpen_RejectedLogin(t *testing.T) {
	store := cookies.NewFileStore(filepath.Join(t.TempDir(), "cookies.json"), login, arbor.NewLogger())
	page := browsertest.NewFakePage(`<html></html>`)
	page.Router = func(*browsertest.FakePage, string) string { return loginPage }
	page.OnClick("#auth_submit", func(p *browsertest.FakePage) { p.FireLoad() })

	_, err := newManager(store, time.Second).Open(context.Background(), page, "9")
	assert.ErrorIs(t, err, models.ErrAuthentication)
}

func TestSettle_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &Session{}
	assert.ErrorIs(t, s.Settle(ctx, time.Hour), context.Canceled)
}
