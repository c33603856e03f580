package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

// LogReporter reports audit failures to the structured log only.
type LogReporter struct {
	logger zerolog.Logger
}

func NewLogReporter(logger zerolog.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

func (r *LogReporter) Report(_ context.Context, err error, fields map[string]any) {
	r.logger.Error().Err(err).Fields(fields).Str("type", "audit_failure").Msg("audit failure reported")
}

// WebhookReporter posts audit failures as JSON to an external collector,
// retrying transient failures.
type WebhookReporter struct {
	url      string
	client   *retryablehttp.Client
	logger   zerolog.Logger
	service  string
	fallback *LogReporter
}

// NewWebhookReporter returns a reporter posting to url with up to retries
// additional attempts.
func NewWebhookReporter(url string, retries int, logger zerolog.Logger) *WebhookReporter {
	client := retryablehttp.NewClient()
	client.RetryMax = retries
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = 5 * time.Second
	client.Logger = nil

	return &WebhookReporter{
		url:      url,
		client:   client,
		logger:   logger,
		service:  "records-server",
		fallback: NewLogReporter(logger),
	}
}

type webhookPayload struct {
	Service    string         `json:"service"`
	Type       string         `json:"type"`
	Error      string         `json:"error"`
	Fields     map[string]any `json:"fields,omitempty"`
	ReportedAt time.Time      `json:"reported_at"`
}

// Report posts the failure. If delivery fails the error is logged instead.
func (r *WebhookReporter) Report(ctx context.Context, err error, fields map[string]any) {
	body, merr := json.Marshal(webhookPayload{
		Service:    r.service,
		Type:       "audit_failure",
		Error:      err.Error(),
		Fields:     fields,
		ReportedAt: time.Now().UTC(),
	})
	if merr != nil {
		r.fallback.Report(ctx, err, fields)
		return
	}

	req, rerr := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if rerr != nil {
		r.logger.Error().Err(rerr).Msg("failed to build error report request")
		r.fallback.Report(ctx, err, fields)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, derr := r.client.Do(req)
	if derr != nil {
		r.logger.Error().Err(derr).Str("url", r.url).Msg("failed to deliver error report")
		r.fallback.Report(ctx, err, fields)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		r.logger.Error().Int("status", resp.StatusCode).Str("url", r.url).Msg("error report rejected")
		r.fallback.Report(ctx, err, fields)
	}
}
