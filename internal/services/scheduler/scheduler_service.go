// Package scheduler queues lead fetches on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/leadharvest/internal/common"
	"github.com/ternarybob/leadharvest/internal/interfaces"
)

// WatchStatus describes a registered watch
type WatchStatus struct {
	Name      string     `json:"name"`
	Schedule  string     `json:"schedule"`
	LeadIDs   []string   `json:"leadIds"`
	LastRun   *time.Time `json:"lastRun,omitempty"`
	NextRun   *time.Time `json:"nextRun,omitempty"`
	LastError string     `json:"lastError,omitempty"`
	Tickets   []string   `json:"tickets,omitempty"` // Task ids queued by the last run
}

type watchEntry struct {
	name      string
	schedule  string
	leadIDs   []string
	cronID    cron.EntryID
	lastRun   *time.Time
	lastError string
	tickets   []string
}

// Service fires registered watches. A run only queues fetches; it never waits for them.
type Service struct {
	leads   interfaces.LeadService
	cron    *cron.Cron
	parser  cron.Parser
	logger  arbor.ILogger
	mu      sync.Mutex
	watches map[string]*watchEntry
	running bool
}

// NewService creates a scheduler submitting to leads
func NewService(leads interfaces.LeadService, logger arbor.ILogger) *Service {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &Service{
		leads:   leads,
		cron:    cron.New(cron.WithParser(parser)),
		parser:  parser,
		logger:  logger,
		watches: make(map[string]*watchEntry),
	}
}

// RegisterWatch adds a watch. Names must be unique.
func (s *Service) RegisterWatch(name, schedule string, leadIDs []string) error {
	if name == "" {
		return errors.New("watch name is required")
	}
	if len(leadIDs) == 0 {
		return fmt.Errorf("watch %s has no lead ids", name)
	}
	if _, err := s.parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid schedule for watch %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.watches[name]; exists {
		return fmt.Errorf("watch %s already registered", name)
	}

	entry := &watchEntry{
		name:     name,
		schedule: schedule,
		leadIDs:  append([]string(nil), leadIDs...),
	}
	cronID, err := s.cron.AddFunc(schedule, func() {
		s.runWatch(name)
	})
	if err != nil {
		return fmt.Errorf("failed to add watch to cron: %w", err)
	}
	entry.cronID = cronID
	s.watches[name] = entry

	s.logger.Info().
		Str("watch", name).
		Str("schedule", schedule).
		Int("leads", len(leadIDs)).
		Msg("Watch registered")
	return nil
}

// RegisterFromConfig registers every configured watch. Unnamed watches are numbered.
func (s *Service) RegisterFromConfig(config *common.ScheduleConfig) error {
	for i, watch := range config.Watch {
		name := watch.Name
		if name == "" {
			name = fmt.Sprintf("watch-%d", i+1)
		}
		if err := s.RegisterWatch(name, watch.Cron, watch.LeadIDs); err != nil {
			return err
		}
	}
	return nil
}

// Start begins firing watches
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	s.logger.Info().Int("watches", len(s.watches)).Msg("Scheduler started")
}

// Stop halts the schedule and waits for a run in progress
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Scheduler stopped")
}

// IsRunning reports whether the schedule is active
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// TriggerWatch runs a watch immediately
func (s *Service) TriggerWatch(name string) error {
	s.mu.Lock()
	_, exists := s.watches[name]
	s.mu.Unlock()
	if !exists {
		return fmt.Errorf("watch %s not found", name)
	}
	s.runWatch(name)
	return nil
}

func (s *Service) runWatch(name string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("watch", name).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Recovered from panic in watch run")
			s.mu.Lock()
			if entry, ok := s.watches[name]; ok {
				entry.lastError = fmt.Sprintf("panic: %v", r)
			}
			s.mu.Unlock()
		}
	}()

	s.mu.Lock()
	entry, exists := s.watches[name]
	if !exists {
		s.mu.Unlock()
		return
	}
	leadIDs := append([]string(nil), entry.leadIDs...)
	s.mu.Unlock()

	ctx := context.Background()
	var (
		tickets []string
		errs    []error
	)
	for _, leadID := range leadIDs {
		ticket, err := s.leads.FetchRecord(ctx, leadID)
		if err != nil {
			errs = append(errs, fmt.Errorf("lead %s: %w", leadID, err))
			continue
		}
		tickets = append(tickets, ticket.TaskID)
	}
	err := errors.Join(errs...)

	now := time.Now()
	s.mu.Lock()
	entry.lastRun = &now
	entry.tickets = tickets
	entry.lastError = ""
	if err != nil {
		entry.lastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error().Str("watch", name).Err(err).Msg("Watch run failed to queue some leads")
		return
	}
	s.logger.Info().Str("watch", name).Int("queued", len(tickets)).Msg("Watch run queued leads")
}

// Status returns the state of one watch
func (s *Service) Status(name string) (*WatchStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.watches[name]
	if !exists {
		return nil, fmt.Errorf("watch %s not found", name)
	}

	var nextRun *time.Time
	if next := s.cron.Entry(entry.cronID).Next; !next.IsZero() {
		nextRun = &next
	}

	return &WatchStatus{
		Name:      entry.name,
		Schedule:  entry.schedule,
		LeadIDs:   append([]string(nil), entry.leadIDs...),
		LastRun:   entry.lastRun,
		NextRun:   nextRun,
		LastError: entry.lastError,
		Tickets:   append([]string(nil), entry.tickets...),
	}, nil
}

// Statuses returns every watch, sorted by name
func (s *Service) Statuses() []*WatchStatus {
	s.mu.Lock()
	names := make([]string, 0, len(s.watches))
	for name := range s.watches {
		names = append(names, name)
	}
	s.mu.Unlock()
	sort.Strings(names)

	statuses := make([]*WatchStatus, 0, len(names))
	for _, name := range names {
		if status, err := s.Status(name); err == nil {
			statuses = append(statuses, status)
		}
	}
	return statuses
}
