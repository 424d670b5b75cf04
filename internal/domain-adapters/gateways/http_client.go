package gateways

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/ochairo/prgate/internal/domain/interfaces"
)

const (
	// Max retries for transient errors
	maxRetries = 3
	// Initial backoff duration
	initialBackoff = 1 * time.Second
	// Max backoff duration
	maxBackoff = 32 * time.Second
	// Overall per-request timeout
	requestTimeout = 2 * time.Minute
)

// newRetryClient returns an HTTP client that retries transient failures with
// exponential backoff.
func newRetryClient(logger interfaces.Logger) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.HTTPClient = &http.Client{Timeout: requestTimeout}
	client.RetryMax = maxRetries
	client.RetryWaitMin = initialBackoff
	client.RetryWaitMax = maxBackoff
	client.CheckRetry = retryPolicy
	client.Logger = leveledLogger{logger: interfaces.OrNoOp(logger)}
	return client
}

// retryPolicy retries network errors and transient statuses. An exhausted
// GitHub rate limit stops immediately since waiting for the reset would
// outlive the job.
func retryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	if rateLimitErr := checkRateLimit(resp); rateLimitErr != nil {
		return false, rateLimitErr
	}
	return isRetryableStatus(resp), nil
}

// checkRateLimit returns an error when the GitHub API rate limit is exhausted
func checkRateLimit(resp *http.Response) error {
	remaining := resp.Header.Get("X-RateLimit-Remaining")
	if remaining == "" {
		return nil
	}

	remainingInt, err := strconv.Atoi(remaining)
	if err != nil || remainingInt > 0 {
		return nil
	}

	if resetUnix, err := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64); err == nil {
		resetAt := time.Unix(resetUnix, 0).UTC()
		return fmt.Errorf("GitHub API rate limit exceeded (0 remaining), resets at %s", resetAt.Format(time.RFC3339))
	}
	return fmt.Errorf("GitHub API rate limit exceeded (0 remaining)")
}

// isRetryableStatus checks if an HTTP status code is worth another attempt.
// 403 is only retried for secondary rate limits, which carry Retry-After.
func isRetryableStatus(resp *http.Response) bool {
	switch resp.StatusCode {
	case http.StatusForbidden:
		return resp.Header.Get("Retry-After") != ""
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// leveledLogger forwards retryablehttp's logging to the domain logger
type leveledLogger struct {
	logger interfaces.Logger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, fields(keysAndValues)...)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	// request-level chatter stays at debug
	l.logger.Debug(msg, fields(keysAndValues)...)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, fields(keysAndValues)...)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn(msg, fields(keysAndValues)...)
}

func fields(keysAndValues []interface{}) []interfaces.Field {
	out := make([]interfaces.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		out = append(out, interfaces.F(fmt.Sprint(keysAndValues[i]), keysAndValues[i+1]))
	}
	return out
}
