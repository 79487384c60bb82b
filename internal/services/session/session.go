// Package session brings a browser page to an authenticated, ready lead card.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/leadharvest/internal/common"
	"github.com/ternarybob/leadharvest/internal/interfaces"
	"github.com/ternarybob/leadharvest/internal/models"
	"github.com/ternarybob/leadharvest/internal/services/auth"
	"github.com/ternarybob/leadharvest/internal/services/browser"
)

// Config controls session setup
type Config struct {
	SaveSession  bool
	SettleDelay  time.Duration // Pause after navigation before the login check
	ReadyTimeout time.Duration // Bound on waiting for the feeds container
	Auth         auth.Config
}

// Manager holds what every session shares: the cookie store, the navigation
// throttle and the login credentials
type Manager struct {
	store   interfaces.CookieStore
	limiter *rate.Limiter
	sel     common.Selectors
	creds   auth.Credentials
	solver  interfaces.ChallengeSolver
	leadURL func(leadID string) string
	config  Config
	logger  arbor.ILogger
}

// NewManager creates a session manager. navigationInterval spaces navigations to
// the target across the whole process; zero disables the throttle.
func NewManager(
	store interfaces.CookieStore,
	sel common.Selectors,
	creds auth.Credentials,
	solver interfaces.ChallengeSolver,
	leadURL func(leadID string) string,
	navigationInterval time.Duration,
	config Config,
	logger arbor.ILogger,
) *Manager {
	limit := rate.Inf
	if navigationInterval > 0 {
		limit = rate.Every(navigationInterval)
	}
	if config.ReadyTimeout <= 0 {
		config.ReadyTimeout = 60 * time.Second
	}
	return &Manager{
		store:   store,
		limiter: rate.NewLimiter(limit, 1),
		sel:     sel,
		creds:   creds,
		solver:  solver,
		leadURL: leadURL,
		config:  config,
		logger:  logger,
	}
}

// NewManagerFromConfig wires a manager from configuration
func NewManagerFromConfig(config *common.Config, store interfaces.CookieStore, solver interfaces.ChallengeSolver, logger arbor.ILogger) *Manager {
	return NewManager(
		store,
		config.Selectors,
		auth.Credentials{Login: config.Account.Login, Password: config.Account.Password},
		solver,
		config.LeadURL,
		common.Duration(config.Browser.NavigationInterval, time.Second),
		Config{
			SaveSession:  config.Session.SaveSession,
			SettleDelay:  common.Duration(config.Browser.SettleDelay, 3*time.Second),
			ReadyTimeout: common.Duration(config.Session.ReadyTimeout, 60*time.Second),
			Auth: auth.Config{
				TypeDelay:   common.Duration(config.Session.TypeDelay, 120*time.Millisecond),
				LoadTimeout: common.Duration(config.Session.LoadTimeout, 60*time.Second),
			},
		},
		logger,
	)
}

// Session is one attempt's view of a lead card. It is created per attempt and never
// shared between pages.
type Session struct {
	manager *Manager
	page    interfaces.Page
	flow    *auth.Flow
	leadID  string
	url     string
}

// Open restores cookies, navigates to the lead card, logs in when asked to and waits
// for the feed to render
func (m *Manager) Open(ctx context.Context, page interfaces.Page, leadID string) (*Session, error) {
	s := &Session{
		manager: m,
		page:    page,
		flow:    auth.NewFlow(m.sel, m.creds, m.solver, m.config.Auth, m.logger),
		leadID:  leadID,
		url:     m.leadURL(leadID),
	}

	if err := s.restoreCookies(ctx); err != nil {
		return nil, err
	}
	s.watchLoads()

	if err := s.navigate(ctx); err != nil {
		return nil, err
	}
	if err := s.Settle(ctx, m.config.SettleDelay); err != nil {
		return nil, err
	}

	authenticated, err := s.flow.Check(ctx, page)
	if err != nil {
		return nil, err
	}
	if !authenticated {
		if err := s.flow.Authenticate(ctx, page); err != nil {
			return nil, err
		}
		if m.config.SaveSession {
			if err := s.SaveCookies(ctx); err != nil {
				return nil, err
			}
		}
		// The CRM lands on its dashboard after a login
		if err := s.navigate(ctx); err != nil {
			return nil, err
		}
	}

	if err := s.waitReady(ctx); err != nil {
		return nil, err
	}

	m.logger.Debug().Str("lead_id", leadID).Str("url", s.url).Msg("Lead card ready")
	return s, nil
}

// Page returns the page the session drives
func (s *Session) Page() interfaces.Page {
	return s.page
}

// LeadID returns the lead this session opened
func (s *Session) LeadID() string {
	return s.leadID
}

// AuthState returns the state of the login flow
func (s *Session) AuthState() auth.State {
	return s.flow.State()
}

// Settle pauses for d, or until ctx is done
func (s *Session) Settle(ctx context.Context, d time.Duration) error {
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

// SaveCookies captures the page's cookie jar into the store
func (s *Session) SaveCookies(ctx context.Context) error {
	cookies, err := s.page.Cookies(ctx)
	if err != nil {
		return fmt.Errorf("read browser cookies: %w", err)
	}
	if err := s.manager.store.Save(ctx, cookies); err != nil {
		return fmt.Errorf("save cookies: %w", err)
	}
	return nil
}

func (s *Session) restoreCookies(ctx context.Context) error {
	cookies, err := s.manager.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load cookies: %w", err)
	}
	if len(cookies) == 0 {
		return nil
	}
	if err := s.page.SetCookies(ctx, cookies); err != nil {
		return fmt.Errorf("restore cookies: %w", err)
	}
	s.manager.logger.Debug().Int("count", len(cookies)).Msg("Restored cookies into page")
	return nil
}

// watchLoads keeps the stored jar current on every document load once logged in
func (s *Session) watchLoads() {
	if !s.manager.config.SaveSession {
		return
	}
	chromePage, ok := s.page.(*browser.ChromePage)
	if !ok {
		return
	}
	chromePage.Tracker().OnLoad(func(ctx context.Context, count uint64) {
		if s.flow.State() != auth.StateAuthenticated {
			return
		}
		if err := s.SaveCookies(ctx); err != nil {
			s.manager.logger.Warn().Err(err).Int64("load", int64(count)).Msg("Failed to persist cookies on load")
		}
	})
}

func (s *Session) navigate(ctx context.Context) error {
	if err := s.manager.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("navigation throttle: %w", err)
	}
	if err := s.page.Navigate(ctx, s.url); err != nil {
		return fmt.Errorf("%w: navigate to %s: %w", models.ErrNavigationTimeout, s.url, err)
	}
	return nil
}

func (s *Session) waitReady(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, s.manager.config.ReadyTimeout)
	defer cancel()

	if err := s.page.WaitVisible(waitCtx, s.manager.sel.Get(common.SelFeedsContainer)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: lead %s feed never rendered: %w", models.ErrNavigationTimeout, s.leadID, err)
	}
	return nil
}
