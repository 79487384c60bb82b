package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/leadharvest/internal/common"
	"github.com/ternarybob/leadharvest/internal/interfaces"
	"github.com/ternarybob/leadharvest/internal/queue"
	"github.com/ternarybob/leadharvest/internal/services/action"
	"github.com/ternarybob/leadharvest/internal/services/browser"
	"github.com/ternarybob/leadharvest/internal/services/captcha"
	"github.com/ternarybob/leadharvest/internal/services/executor"
	"github.com/ternarybob/leadharvest/internal/services/extract"
	"github.com/ternarybob/leadharvest/internal/services/leads"
	"github.com/ternarybob/leadharvest/internal/services/reporter"
	"github.com/ternarybob/leadharvest/internal/services/scheduler"
	"github.com/ternarybob/leadharvest/internal/services/session"
	"github.com/ternarybob/leadharvest/internal/storage/badger"
	"github.com/ternarybob/leadharvest/internal/storage/cookies"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Storage
	TaskStorage interfaces.TaskStorage
	CookieStore interfaces.CookieStore

	// Browser automation
	Launcher interfaces.BrowserLauncher
	Executor *executor.Executor
	Sessions *session.Manager

	// Lead pipeline
	Extractor *extract.Extractor
	Sender    *action.Sender
	Reporter  *reporter.HTTPReporter
	Queue     *queue.JobQueue

	LeadService      *leads.Service
	SchedulerService *scheduler.Service
}

// Option customises construction
type Option func(*App)

// WithLauncher replaces the Chrome launcher
func WithLauncher(launcher interfaces.BrowserLauncher) Option {
	return func(a *App) {
		a.Launcher = launcher
	}
}

// New wires every component from cfg and starts the job queue
func New(cfg *common.Config, logger arbor.ILogger, opts ...Option) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}
	for _, opt := range opts {
		opt(app)
	}

	if err := app.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	app.initServices()

	app.Logger.Info().
		Str("account", cfg.BaseURL()).
		Int("max_concurrency", cfg.Browser.MaxConcurrency).
		Bool("headless", cfg.Browser.Headless).
		Bool("reporting", app.Reporter.Enabled()).
		Msg("Application initialized")

	return app, nil
}

func (a *App) initStorage() error {
	db, err := badger.NewBadgerDB(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return err
	}
	a.TaskStorage = badger.NewTaskStorage(db, a.Logger)
	a.CookieStore = cookies.NewFileStore(a.Config.Session.CookiesPath, a.Config.Account.Login, a.Logger)
	return nil
}

func (a *App) initServices() {
	cfg := a.Config

	if a.Launcher == nil {
		a.Launcher = browser.NewChromeLauncher(browser.LauncherConfigFrom(&cfg.Browser), a.Logger)
	}
	a.Executor = executor.NewExecutor(a.Launcher, cfg.Browser.MaxConcurrency, a.Logger)

	solver := captcha.NewSolverFromConfig(&cfg.Captcha, a.Logger)
	a.Sessions = session.NewManagerFromConfig(cfg, a.CookieStore, solver, a.Logger)

	a.Extractor = extract.NewExtractor(extract.ExtractorOptionsFrom(cfg), a.Logger)
	a.Sender = action.NewSender(cfg.Selectors, action.ConfigFrom(cfg), a.Logger)
	a.Reporter = reporter.NewHTTPReporter(&cfg.Reporter, a.Logger)

	a.Queue = queue.NewJobQueue(a.TaskStorage, a.Logger,
		queue.WithRetention(common.Duration(cfg.Tasks.ResultRetention, 10*time.Minute)))
	a.Queue.Start()

	a.LeadService = leads.NewService(
		a.Queue,
		a.Executor,
		a.Sessions,
		a.Extractor,
		a.Sender,
		a.Reporter,
		executor.OptionsFrom(&cfg.Tasks),
		a.Logger,
	)

	a.SchedulerService = scheduler.NewService(a.LeadService, a.Logger)
}

// StartScheduler registers the configured watches and starts firing them
func (a *App) StartScheduler() error {
	if err := a.SchedulerService.RegisterFromConfig(&a.Config.Schedule); err != nil {
		return err
	}
	a.SchedulerService.Start()
	return nil
}

// Close stops the schedule, drains queued tasks and pending reports, then closes storage
func (a *App) Close() error {
	if a.SchedulerService != nil {
		a.SchedulerService.Stop()
	}

	if a.Queue != nil {
		a.Queue.Stop()
		a.Logger.Info().Msg("Job queue stopped")
	}

	if a.Reporter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := a.Reporter.Wait(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("Pending result reports abandoned")
		}
		cancel()
	}

	if a.TaskStorage != nil {
		if err := a.TaskStorage.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close task storage")
			return err
		}
	}

	a.Logger.Info().Msg("Application closed")
	return nil
}
