// Package reporter delivers task outcomes to the configured callback endpoint.
package reporter

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/leadharvest/internal/common"
	"github.com/ternarybob/leadharvest/internal/httpclient"
	"github.com/ternarybob/leadharvest/internal/interfaces"
	"github.com/ternarybob/leadharvest/internal/models"
)

// HTTPReporter posts reports asynchronously. Delivery failures are logged and dropped.
type HTTPReporter struct {
	endpoint string
	timeout  time.Duration
	client   *http.Client
	logger   arbor.ILogger
	wg       sync.WaitGroup
}

var _ interfaces.ResultReporter = (*HTTPReporter)(nil)

// NewHTTPReporter creates a reporter. An empty endpoint disables delivery.
func NewHTTPReporter(config *common.ReporterConfig, logger arbor.ILogger) *HTTPReporter {
	timeout := common.Duration(config.Timeout, 30*time.Second)
	return &HTTPReporter{
		endpoint: config.Endpoint,
		timeout:  timeout,
		client:   httpclient.NewDefaultHTTPClient(timeout),
		logger:   logger,
	}
}

// Enabled reports whether an endpoint is configured
func (r *HTTPReporter) Enabled() bool {
	return r.endpoint != ""
}

// Report queues delivery of report and returns immediately
func (r *HTTPReporter) Report(ctx context.Context, report models.Report) {
	if !r.Enabled() {
		r.logger.Debug().Str("task_id", report.TaskID).Msg("No result endpoint configured, report skipped")
		return
	}

	r.wg.Add(1)
	common.SafeGo(r.logger, "reportResult", func() {
		defer r.wg.Done()
		r.deliver(context.WithoutCancel(ctx), report)
	})
}

func (r *HTTPReporter) deliver(ctx context.Context, report models.Report) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := httpclient.PostJSON(ctx, r.client, r.endpoint, report); err != nil {
		r.logger.Warn().
			Str("task_id", report.TaskID).
			Str("lead_id", report.LeadID).
			Err(err).
			Msg("Failed to deliver result report")
		return
	}

	r.logger.Debug().
		Str("task_id", report.TaskID).
		Str("task", string(report.Task)).
		Msg("Result report delivered")
}

// Wait blocks until queued deliveries finish or ctx is done
func (r *HTTPReporter) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
