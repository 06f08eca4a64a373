// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil holds the retrying HTTP call used by model backends.
package httputil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// RetryBaseDelay is the first backoff step. Tests shrink it.
var RetryBaseDelay = 2 * time.Second

// MaxRetryDelay caps a single wait, including server-provided Retry-After.
var MaxRetryDelay = 60 * time.Second

const defaultMaxRetries = 3

// Retryable reports whether a status code is worth retrying: throttling or
// a gateway that is briefly unavailable.
func Retryable(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// DoWithRetry sends req and retries retryable responses with exponential
// backoff starting at RetryBaseDelay. A Retry-After header given in
// seconds replaces the computed delay. Requests with a body must be
// replayable (http.NewRequest sets GetBody for in-memory readers).
//
// maxRetries of 0 uses the default of 3. After the last retry the final
// response is returned as-is for the caller to inspect. Cancelling ctx
// during a wait returns ctx.Err().
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, maxRetries int) (*http.Response, error) {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	for attempt := 0; ; attempt++ {
		attemptReq := req.Clone(ctx)
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("rewinding request body: %w", err)
			}
			attemptReq.Body = body
		}

		resp, err := client.Do(attemptReq)
		if err != nil {
			return nil, err
		}
		if !Retryable(resp.StatusCode) || attempt >= maxRetries {
			return resp, nil
		}

		wait := backoff(attempt, resp.Header.Get("Retry-After"))
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

func backoff(attempt int, retryAfter string) time.Duration {
	d := RetryBaseDelay << attempt
	if secs, err := strconv.Atoi(retryAfter); err == nil && secs >= 0 {
		d = time.Duration(secs) * time.Second
	}
	if d > MaxRetryDelay {
		d = MaxRetryDelay
	}
	return d
}
