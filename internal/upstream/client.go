// Copyright (c) 2025-2026 The parastats developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package upstream provides a client for the share submission source the
// stats engine collects watermarks from.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/parasitepool/parastats-sub001/errors"
	"github.com/parasitepool/parastats-sub001/internal/stats"
)

// defaultRequestTimeout is the default deadline for a source request.
const defaultRequestTimeout = time.Second * 10

// maxResponseSize bounds the size of a source response body.
const maxResponseSize = 1 << 22 // 4 MiB

// Client fetches raw per-interval share submissions from an HTTP submission
// source. It implements stats.SubmissionSource.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Ensure Client implements stats.SubmissionSource.
var _ stats.SubmissionSource = (*Client)(nil)

// NewClient creates a submission source client for the provided base URL. A
// non-positive timeout falls back to the default.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// IntervalSubmissions returns all share submissions recorded by the source
// for the provided interval, in the order the source reports them.
func (c *Client) IntervalSubmissions(ctx context.Context, intervalID int64) ([]*stats.SourceSubmission, error) {
	const funcName = "IntervalSubmissions"

	url := fmt.Sprintf("%s/intervals/%d/submissions", c.baseURL, intervalID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		desc := fmt.Sprintf("%s: unable to create request: %v", funcName, err)
		return nil, errors.SourceError(errors.SourceUnreachable, desc)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		desc := fmt.Sprintf("%s: unable to reach source: %v", funcName, err)
		return nil, errors.SourceError(errors.SourceUnreachable, desc)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		desc := fmt.Sprintf("%s: source returned status %d for interval %d",
			funcName, resp.StatusCode, intervalID)
		return nil, errors.SourceError(errors.SourceUnreachable, desc)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		desc := fmt.Sprintf("%s: unable to read source response: %v",
			funcName, err)
		return nil, errors.SourceError(errors.SourceUnreachable, desc)
	}

	var submissions []*stats.SourceSubmission
	err = json.Unmarshal(body, &submissions)
	if err != nil {
		desc := fmt.Sprintf("%s: unable to decode source response: %v",
			funcName, err)
		return nil, errors.SourceError(errors.SourceMalformed, desc)
	}

	log.Tracef("Fetched %d submissions for interval %d", len(submissions),
		intervalID)
	return submissions, nil
}
