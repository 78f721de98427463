package convert

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/inkpipe/inkpipe/internal/domain"
)

type retryConfig struct {
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

func defaultRetryConfig() *retryConfig {
	return &retryConfig{
		maxRetries:     3,
		initialBackoff: 1 * time.Second,
		maxBackoff:     30 * time.Second,
	}
}

func shouldRetry(statusCode int) bool {
	switch statusCode {
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

func calculateBackoff(attempt int, config *retryConfig) time.Duration {
	backoff := float64(config.initialBackoff) * math.Pow(2, float64(attempt))
	if backoff > float64(config.maxBackoff) {
		backoff = float64(config.maxBackoff)
	}
	return time.Duration(backoff)
}

// retryWithBackoff wraps an HTTP request with retry logic, retrying only
// rate-limit and server-class statuses.
func (b *OpenRouterBackend) retryWithBackoff(ctx context.Context, reqFunc func() (*http.Response, error)) (*http.Response, error) {
	config := b.retry
	if config == nil {
		config = defaultRetryConfig()
	}
	var lastErr error

	for attempt := 0; attempt <= config.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		resp, err := reqFunc()

		if err == nil && resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		if err != nil {
			lastErr = err
		} else if resp != nil {
			lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)

			if !shouldRetry(resp.StatusCode) {
				return resp, nil // Return non-retryable errors immediately
			}

			if resp.Body != nil {
				resp.Body.Close()
			}
		}

		if attempt == config.maxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(calculateBackoff(attempt, config)):
		}
	}

	return nil, domain.APIError(fmt.Sprintf("request failed after %d retries", config.maxRetries), lastErr)
}
