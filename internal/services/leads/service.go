// Package leads exposes the lead operations: fetch a record, list compose channels and
// send a message. Each call is queued and answered with a task ticket.
package leads

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/leadharvest/internal/interfaces"
	"github.com/ternarybob/leadharvest/internal/models"
	"github.com/ternarybob/leadharvest/internal/queue"
	"github.com/ternarybob/leadharvest/internal/services/action"
	"github.com/ternarybob/leadharvest/internal/services/executor"
	"github.com/ternarybob/leadharvest/internal/services/extract"
	"github.com/ternarybob/leadharvest/internal/services/session"
)

// Service runs lead tasks on the executor and reports each terminal outcome once
type Service struct {
	queue     *queue.JobQueue
	executor  *executor.Executor
	sessions  *session.Manager
	extractor *extract.Extractor
	sender    *action.Sender
	reporter  interfaces.ResultReporter
	options   executor.Options
	validate  *validator.Validate
	logger    arbor.ILogger
}

var _ interfaces.LeadService = (*Service)(nil)

// NewService creates the lead service
func NewService(
	jobQueue *queue.JobQueue,
	exec *executor.Executor,
	sessions *session.Manager,
	extractor *extract.Extractor,
	sender *action.Sender,
	reporter interfaces.ResultReporter,
	options executor.Options,
	logger arbor.ILogger,
) *Service {
	return &Service{
		queue:     jobQueue,
		executor:  exec,
		sessions:  sessions,
		extractor: extractor,
		sender:    sender,
		reporter:  reporter,
		options:   options,
		validate:  validator.New(),
		logger:    logger,
	}
}

// FetchRecord queues extraction of the full lead record
func (s *Service) FetchRecord(ctx context.Context, leadID string) (models.TaskTicket, error) {
	if leadID == "" {
		return models.TaskTicket{}, errors.New("lead id is required")
	}
	return s.submit(ctx, models.TaskKindGetLead, leadID, func(ctx context.Context, taskID string) (any, error) {
		return s.GetLead(ctx, taskID, leadID)
	})
}

// FetchChannels queues reading of the lead's compose channels
func (s *Service) FetchChannels(ctx context.Context, leadID string) (models.TaskTicket, error) {
	if leadID == "" {
		return models.TaskTicket{}, errors.New("lead id is required")
	}
	return s.submit(ctx, models.TaskKindGetLeadSources, leadID, func(ctx context.Context, taskID string) (any, error) {
		return s.GetLeadSources(ctx, taskID, leadID)
	})
}

// SendMessage queues posting a message on the lead
func (s *Service) SendMessage(ctx context.Context, req models.SendRequest) (models.TaskTicket, error) {
	if err := s.validate.Struct(req); err != nil {
		return models.TaskTicket{}, fmt.Errorf("invalid send request: %w", err)
	}
	return s.submit(ctx, models.TaskKindSendMessage, req.LeadID, func(ctx context.Context, taskID string) (any, error) {
		return s.Send(ctx, taskID, req)
	})
}

// Wait blocks until the task finishes and returns its result
func (s *Service) Wait(ctx context.Context, taskID string) (any, error) {
	return s.queue.Wait(ctx, taskID)
}

// Status returns the persisted task record
func (s *Service) Status(ctx context.Context, taskID string) (*models.TaskRecord, error) {
	return s.queue.Status(ctx, taskID)
}

func (s *Service) submit(ctx context.Context, kind models.TaskKind, leadID string, run queue.RunFunc) (models.TaskTicket, error) {
	taskID, err := s.queue.Submit(ctx, queue.Job{Kind: kind, LeadID: leadID, Run: run})
	if err != nil {
		return models.TaskTicket{}, err
	}
	s.logger.WithCorrelationId(taskID).Info().
		Str("task_id", taskID).
		Str("kind", string(kind)).
		Str("lead_id", leadID).
		Msg("Task accepted")
	return models.TaskTicket{TaskID: taskID}, nil
}

func (s *Service) run(ctx context.Context, taskID string, kind models.TaskKind, leadID string, fn executor.TaskFunc) (any, error) {
	return s.runWith(ctx, taskID, kind, leadID, fn, nil)
}

// runWith is run with a task-specific retry predicate; nil keeps executor.IsRetryable
func (s *Service) runWith(ctx context.Context, taskID string, kind models.TaskKind, leadID string, fn executor.TaskFunc, retryable func(error) bool) (any, error) {
	opts := s.options
	opts.Retryable = retryable
	opts.OnTaskError = func(task executor.Task, attempt int, err error, willRetry bool) {
		s.queue.RecordFailure(task.ID, attempt, err, willRetry)
	}

	task := executor.Task{ID: taskID, Kind: kind, LeadID: leadID}
	return s.executor.Run(ctx, task, func(ctx context.Context, page interfaces.Page, attempt int) (any, error) {
		s.queue.BeginAttempt(taskID, attempt)
		return fn(ctx, page, attempt)
	}, opts)
}

func (s *Service) report(ctx context.Context, report models.Report, err error) {
	logger := s.logger.WithCorrelationId(report.TaskID)
	if err != nil {
		report.Result = nil
		report.Error = err.Error()
		logger.Error().Str("kind", string(report.Task)).Str("lead_id", report.LeadID).Err(err).Msg("Task failed")
	} else {
		logger.Info().Str("kind", string(report.Task)).Str("lead_id", report.LeadID).Msg("Task completed")
	}
	s.reporter.Report(ctx, report)
}

// GetLead opens the lead card and extracts the full record
func (s *Service) GetLead(ctx context.Context, taskID, leadID string) (*models.LeadRecord, error) {
	result, err := s.run(ctx, taskID, models.TaskKindGetLead, leadID,
		func(ctx context.Context, page interfaces.Page, attempt int) (any, error) {
			if _, err := s.sessions.Open(ctx, page, leadID); err != nil {
				return nil, err
			}
			ids, err := s.extractor.IdentityMap(ctx, page)
			if err != nil {
				return nil, err
			}
			return s.extractor.Extract(ctx, page, ids)
		})

	record, _ := result.(*models.LeadRecord)
	s.report(ctx, models.Report{LeadID: leadID, TaskID: taskID, Task: models.TaskKindGetLead, Result: record}, err)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// GetLeadSources opens the lead card and lists its compose channels
func (s *Service) GetLeadSources(ctx context.Context, taskID, leadID string) (*models.ChannelList, error) {
	result, err := s.run(ctx, taskID, models.TaskKindGetLeadSources, leadID,
		func(ctx context.Context, page interfaces.Page, attempt int) (any, error) {
			if _, err := s.sessions.Open(ctx, page, leadID); err != nil {
				return nil, err
			}
			return s.sender.ReadChannels(ctx, page)
		})

	channels, _ := result.(*models.ChannelList)
	s.report(ctx, models.Report{LeadID: leadID, TaskID: taskID, Task: models.TaskKindGetLeadSources, Result: channels}, err)
	if err != nil {
		return nil, err
	}
	return channels, nil
}

// Send posts a message on the lead card. A missing compose control is not an error:
// the outcome is returned with Sent false and only the identity map filled.
// Once the send button has been clicked the task is never retried; a later failure
// is returned wrapping models.ErrSentUnconfirmed.
func (s *Service) Send(ctx context.Context, taskID string, req models.SendRequest) (*models.SendOutcome, error) {
	var submitted atomic.Bool
	retryable := func(err error) bool {
		return !submitted.Load() && executor.IsRetryable(err)
	}

	result, err := s.runWith(ctx, taskID, models.TaskKindSendMessage, req.LeadID,
		func(ctx context.Context, page interfaces.Page, attempt int) (any, error) {
			if _, err := s.sessions.Open(ctx, page, req.LeadID); err != nil {
				return nil, err
			}
			ids, err := s.extractor.IdentityMap(ctx, page)
			if err != nil {
				return nil, err
			}

			if err := s.sender.Send(ctx, page, req, func() { submitted.Store(true) }); err != nil {
				var precondition *action.PreconditionError
				if errors.As(err, &precondition) {
					s.logger.WithCorrelationId(taskID).Warn().
						Str("task_id", taskID).
						Str("step", precondition.Step).
						Str("reason", precondition.Reason).
						Msg("Message not sent")
					return &models.SendOutcome{
						Sent:   false,
						Reason: precondition.Error(),
						Record: models.LeadRecord{IdentityMap: ids},
					}, nil
				}
				return nil, err
			}

			messages, err := s.extractor.LastMessage(ctx, page, ids)
			if err != nil {
				return nil, err
			}
			return &models.SendOutcome{
				Sent:   true,
				Record: models.LeadRecord{IdentityMap: ids, Messages: messages},
			}, nil
		}, retryable)

	if err != nil && submitted.Load() && !errors.Is(err, models.ErrSentUnconfirmed) {
		err = fmt.Errorf("%w: %w", models.ErrSentUnconfirmed, err)
	}
	outcome, _ := result.(*models.SendOutcome)
	s.report(ctx, models.Report{
		LeadID:    req.LeadID,
		TaskID:    taskID,
		Task:      models.TaskKindSendMessage,
		Channel:   req.Channel,
		ContactID: req.ContactID,
		Result:    outcome,
	}, err)
	if err != nil {
		return nil, err
	}
	return outcome, nil
}
