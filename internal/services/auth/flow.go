// Package auth drives the CRM login form on a browser page.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/leadharvest/internal/common"
	"github.com/ternarybob/leadharvest/internal/interfaces"
	"github.com/ternarybob/leadharvest/internal/models"
)

// State is the position of a Flow in the login sequence
type State int

const (
	StateUnknown State = iota
	StateUnauthenticated
	StateSubmitting
	StateChallengePending
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateSubmitting:
		return "submitting"
	case StateChallengePending:
		return "challenge_pending"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Credentials for the CRM account
type Credentials struct {
	Login    string
	Password string
}

// Config tunes the login interaction
type Config struct {
	TypeDelay   time.Duration // Per key
	LoadTimeout time.Duration // Bound on each post-submit document load
}

// Flow is the login state machine for one page. Authenticate and Check must not run
// concurrently; State may be read from any goroutine.
type Flow struct {
	sel    common.Selectors
	creds  Credentials
	solver interfaces.ChallengeSolver
	config Config
	logger arbor.ILogger
	state  atomic.Int32
}

// NewFlow creates a flow in StateUnknown. solver may be nil, in which case any
// challenge fails the login.
func NewFlow(sel common.Selectors, creds Credentials, solver interfaces.ChallengeSolver, config Config, logger arbor.ILogger) *Flow {
	if config.LoadTimeout <= 0 {
		config.LoadTimeout = 60 * time.Second
	}
	return &Flow{
		sel:    sel,
		creds:  creds,
		solver: solver,
		config: config,
		logger: logger,
	}
}

// State returns the current state
func (f *Flow) State() State {
	return State(f.state.Load())
}

func (f *Flow) transition(to State) {
	from := State(f.state.Swap(int32(to)))
	if from == to {
		return
	}
	f.logger.Debug().Str("from", from.String()).Str("to", to.String()).Msg("Auth state change")
}

// LoginFormPresent reports whether the login field, password field and submit button
// are all on the page
func (f *Flow) LoginFormPresent(ctx context.Context, page interfaces.Page) (bool, error) {
	for _, name := range []string{common.SelLoginField, common.SelPasswordField, common.SelAuthSubmitBtn} {
		found, err := page.Exists(ctx, f.sel.Get(name))
		if err != nil {
			return false, err
		}
		if !found {
			return false, nil
		}
	}
	return true, nil
}

// Check inspects the page and moves to Unauthenticated or Authenticated
func (f *Flow) Check(ctx context.Context, page interfaces.Page) (bool, error) {
	present, err := f.LoginFormPresent(ctx, page)
	if err != nil {
		return false, err
	}
	if present {
		f.transition(StateUnauthenticated)
		return false, nil
	}
	f.transition(StateAuthenticated)
	return true, nil
}

// Authenticate logs in when the login form is shown. It returns nil once the form is
// gone, and an error wrapping models.ErrAuthentication when the credentials are
// rejected or a challenge cannot be solved.
func (f *Flow) Authenticate(ctx context.Context, page interfaces.Page) error {
	authenticated, err := f.Check(ctx, page)
	if err != nil {
		return err
	}
	if authenticated {
		return nil
	}

	f.logger.Info().Str("login", f.creds.Login).Msg("Login form detected, authenticating")
	f.transition(StateSubmitting)

	if err := f.fill(ctx, page, common.SelLoginField, f.creds.Login); err != nil {
		return err
	}
	if err := f.fill(ctx, page, common.SelPasswordField, f.creds.Password); err != nil {
		return err
	}
	if err := f.submit(ctx, page); err != nil {
		return err
	}

	challenged, err := page.Exists(ctx, f.sel.Get(common.SelCaptcha))
	if err != nil {
		return err
	}
	if challenged {
		if err := f.resolveChallenge(ctx, page); err != nil {
			return err
		}
	}

	authenticated, err = f.Check(ctx, page)
	if err != nil {
		return err
	}
	if !authenticated {
		return fmt.Errorf("%w: login form still shown after submit", models.ErrAuthentication)
	}

	f.logger.Info().Str("login", f.creds.Login).Msg("Authenticated")
	return nil
}

// fill triple-clicks the field to select any saved text so typing replaces it
func (f *Flow) fill(ctx context.Context, page interfaces.Page, name, value string) error {
	selector := f.sel.Get(name)
	if err := page.Click(ctx, selector, 3); err != nil {
		return fmt.Errorf("%w: select %s: %w", models.ErrAuthentication, name, err)
	}
	if err := page.Type(ctx, selector, value, f.config.TypeDelay); err != nil {
		return fmt.Errorf("%w: type %s: %w", models.ErrAuthentication, name, err)
	}
	return nil
}

func (f *Flow) submit(ctx context.Context, page interfaces.Page) error {
	mark := page.LoadMark()
	if err := page.Click(ctx, f.sel.Get(common.SelAuthSubmitBtn), 1); err != nil {
		return fmt.Errorf("%w: submit: %w", models.ErrAuthentication, err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, f.config.LoadTimeout)
	defer cancel()
	return page.WaitLoad(waitCtx, mark)
}

func (f *Flow) resolveChallenge(ctx context.Context, page interfaces.Page) error {
	f.transition(StateChallengePending)

	if f.solver == nil {
		return fmt.Errorf("%w: challenge shown and no solver configured", models.ErrAuthentication)
	}

	keys, err := page.Attributes(ctx, f.sel.Get(common.SelCaptcha), "data-sitekey")
	if err != nil {
		return err
	}
	if len(keys) == 0 || keys[0] == "" {
		return fmt.Errorf("%w: challenge has no site key", models.ErrAuthentication)
	}

	pageURL, err := page.Location(ctx)
	if err != nil {
		return err
	}

	f.logger.Info().Str("page", pageURL).Msg("Login challenge detected, requesting solution")
	token, err := f.solver.Solve(ctx, models.Challenge{SiteKey: keys[0], PageURL: pageURL})
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return err
		}
		return fmt.Errorf("%w: challenge: %w", models.ErrAuthentication, err)
	}

	if err := page.SetValue(ctx, f.sel.Get(common.SelCaptchaResponse), token); err != nil {
		return fmt.Errorf("%w: inject challenge response: %w", models.ErrAuthentication, err)
	}

	f.transition(StateSubmitting)
	return f.submit(ctx, page)
}
