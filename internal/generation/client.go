// Package generation tracks long-running video generation jobs through
// bounded polling, verifying that a completed result is actually fetchable
// before it is surfaced.
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/satoshipuzzles/lumaledger/internal/domain"
)

// Client talks to the external generation provider over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a generation provider client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type jobResponse struct {
	ID     string `json:"id"`
	State  string `json:"state"`
	Assets *struct {
		Video string `json:"video"`
	} `json:"assets"`
}

// Submit sends a new generation request and returns the provider-assigned job.
func (c *Client) Submit(ctx context.Context, req domain.GenerationRequest) (domain.GenerationJob, error) {
	payload := map[string]any{"prompt": req.Prompt}
	for k, v := range req.Options {
		payload[k] = v
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.GenerationJob{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generations", bytes.NewReader(body))
	if err != nil {
		return domain.GenerationJob{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return domain.GenerationJob{}, fmt.Errorf("submit generation: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.GenerationJob{}, fmt.Errorf("submit generation: provider returned %d", resp.StatusCode)
	}

	var out jobResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.GenerationJob{}, fmt.Errorf("submit generation: decode response: %w", err)
	}
	if out.ID == "" {
		return domain.GenerationJob{}, fmt.Errorf("submit generation: provider response missing job id")
	}
	return out.toJob(), nil
}

// Status queries the provider for the job's current state.
func (c *Client) Status(ctx context.Context, jobID string) (domain.GenerationJob, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/generations/"+jobID, nil)
	if err != nil {
		return domain.GenerationJob{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return domain.GenerationJob{}, fmt.Errorf("generation status: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.GenerationJob{}, fmt.Errorf("generation status: provider returned %d", resp.StatusCode)
	}

	var out jobResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.GenerationJob{}, fmt.Errorf("generation status: decode response: %w", err)
	}
	return out.toJob(), nil
}

func (r jobResponse) toJob() domain.GenerationJob {
	job := domain.GenerationJob{ID: r.ID, State: mapProviderState(r.State)}
	if r.Assets != nil {
		job.AssetURL = r.Assets.Video
	}
	return job
}

// mapProviderState normalizes the provider's state vocabulary. The provider
// reports in-flight work as "dreaming"; unknown states are treated as still
// processing rather than failing the job.
func mapProviderState(s string) domain.JobState {
	switch strings.ToLower(s) {
	case "queued", "pending":
		return domain.JobQueued
	case "dreaming", "processing", "running":
		return domain.JobProcessing
	case "completed", "complete", "succeeded":
		return domain.JobCompleted
	case "failed", "error", "rejected":
		return domain.JobFailed
	default:
		return domain.JobProcessing
	}
}
