package interfaces

import (
	"context"

	"github.com/ternarybob/leadharvest/internal/models"
)

// ResultReporter delivers terminal task outcomes to an external endpoint.
// Report never blocks on delivery and never returns an error.
type ResultReporter interface {
	Report(ctx context.Context, report models.Report)
}

// ChallengeSolver obtains a response token for a login challenge
type ChallengeSolver interface {
	Solve(ctx context.Context, challenge models.Challenge) (string, error)
}

// LeadService is the inbound surface: each call enqueues a task and returns its ticket
type LeadService interface {
	FetchRecord(ctx context.Context, leadID string) (models.TaskTicket, error)
	FetchChannels(ctx context.Context, leadID string) (models.TaskTicket, error)
	SendMessage(ctx context.Context, req models.SendRequest) (models.TaskTicket, error)
}
