// Package captcha solves reCAPTCHA challenges through a 2captcha-compatible API.
package captcha

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/tidwall/gjson"

	"github.com/ternarybob/leadharvest/internal/common"
	"github.com/ternarybob/leadharvest/internal/httpclient"
	"github.com/ternarybob/leadharvest/internal/interfaces"
	"github.com/ternarybob/leadharvest/internal/models"
)

const (
	// DefaultBaseURL is the 2captcha API root
	DefaultBaseURL = "https://2captcha.com"

	notReady = "CAPCHA_NOT_READY"
)

// ErrUnsolved is returned when the provider rejects or never answers a challenge
var ErrUnsolved = errors.New("captcha not solved")

// Solver submits a challenge and polls until the provider returns a token
type Solver struct {
	baseURL      string
	token        string
	pollInterval time.Duration
	timeout      time.Duration
	httpClient   *http.Client
	logger       arbor.ILogger
}

var _ interfaces.ChallengeSolver = (*Solver)(nil)

// Option configures the Solver
type Option func(*Solver)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(s *Solver) {
		s.httpClient = client
	}
}

// WithPolling sets the poll interval and the overall solve deadline
func WithPolling(interval, timeout time.Duration) Option {
	return func(s *Solver) {
		s.pollInterval = interval
		s.timeout = timeout
	}
}

// NewSolver creates a solver for the given API key
func NewSolver(baseURL, token string, logger arbor.ILogger, opts ...Option) *Solver {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	s := &Solver{
		baseURL:      strings.TrimRight(baseURL, "/"),
		token:        token,
		pollInterval: 5 * time.Second,
		timeout:      3 * time.Minute,
		httpClient:   httpclient.NewDefaultHTTPClient(30 * time.Second),
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewSolverFromConfig builds a solver, or returns nil when solving is disabled
func NewSolverFromConfig(config *common.CaptchaConfig, logger arbor.ILogger) interfaces.ChallengeSolver {
	if config == nil || !config.Enabled {
		return nil
	}
	return NewSolver(config.BaseURL, config.Token, logger,
		WithPolling(
			common.Duration(config.PollInterval, 5*time.Second),
			common.Duration(config.Timeout, 3*time.Minute),
		),
	)
}

// Solve returns the response token for the challenge
func (s *Solver) Solve(ctx context.Context, challenge models.Challenge) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	requestID, err := s.submit(ctx, challenge)
	if err != nil {
		return "", err
	}
	s.logger.Info().Str("request_id", requestID).Msg("Captcha submitted, polling for solution")

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: waiting for request %s: %w", ErrUnsolved, requestID, ctx.Err())
		case <-ticker.C:
		}

		answer, ready, err := s.poll(ctx, requestID)
		if err != nil {
			if ctx.Err() != nil {
				return "", fmt.Errorf("%w: waiting for request %s: %w", ErrUnsolved, requestID, ctx.Err())
			}
			return "", err
		}
		if ready {
			s.logger.Info().Str("request_id", requestID).Msg("Captcha solved")
			return answer, nil
		}
	}
}

func (s *Solver) submit(ctx context.Context, challenge models.Challenge) (string, error) {
	params := url.Values{
		"key":       {s.token},
		"method":    {"userrecaptcha"},
		"googlekey": {challenge.SiteKey},
		"pageurl":   {challenge.PageURL},
		"json":      {"1"},
	}

	body, err := s.call(ctx, http.MethodPost, "/in.php", params)
	if err != nil {
		return "", err
	}

	result := gjson.ParseBytes(body)
	if result.Get("status").Int() != 1 {
		return "", fmt.Errorf("%w: submit rejected: %s", ErrUnsolved, result.Get("request").String())
	}
	return result.Get("request").String(), nil
}

func (s *Solver) poll(ctx context.Context, requestID string) (string, bool, error) {
	params := url.Values{
		"key":    {s.token},
		"action": {"get"},
		"id":     {requestID},
		"json":   {"1"},
	}

	body, err := s.call(ctx, http.MethodGet, "/res.php", params)
	if err != nil {
		return "", false, err
	}

	result := gjson.ParseBytes(body)
	answer := result.Get("request").String()
	if result.Get("status").Int() == 1 {
		return answer, true, nil
	}
	if answer == notReady {
		return "", false, nil
	}
	return "", false, fmt.Errorf("%w: %s", ErrUnsolved, answer)
}

func (s *Solver) call(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	var (
		req *http.Request
		err error
	)
	if method == http.MethodPost {
		req, err = http.NewRequestWithContext(ctx, method, s.baseURL+path, strings.NewReader(params.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, method, s.baseURL+path+"?"+params.Encode(), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("captcha API %s returned status %d: %s", path, resp.StatusCode, string(body))
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("captcha API %s returned invalid JSON", path)
	}
	return body, nil
}
