// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pdiddy/ionscreen/internal/httputil"
	"github.com/pdiddy/ionscreen/pkg/types"
)

const defaultPollInterval = 10 * time.Second

// RemoteEvaluator submits evaluation jobs to a remote DFT/MD job
// service over HTTP and polls for completion. The service guarantees
// each accepted job is eventually completed, failed, or timed out
// exactly once; rate-limited and busy responses are retried with
// backoff. Per prd004-active-learning R3.3.
type RemoteEvaluator struct {
	cfg    types.GroundTruthConfig
	client *http.Client
}

// NewRemoteEvaluator builds a client for the configured job service.
func NewRemoteEvaluator(cfg types.GroundTruthConfig) (*RemoteEvaluator, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("ground-truth service URL not configured")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return &RemoteEvaluator{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// submitRequest is the job-service submission payload.
type submitRequest struct {
	CandidateID string           `json:"candidate_id"`
	Properties  []types.Property `json:"properties"`
	Priority    int              `json:"priority"`
}

type submitResponse struct {
	JobID string `json:"job_id"`
}

// jobStatus is the job-service polling payload.
type jobStatus struct {
	Status     string                     `json:"status"` // pending, running, completed, failed
	Values     map[types.Property]float64 `json:"values,omitempty"`
	NoiseFloor float64                    `json:"noise_floor,omitempty"`
	Reason     string                     `json:"reason,omitempty"`
}

// Evaluate submits the job and polls until it reaches a terminal
// state or the context ends. Cancellation on the scheduler side
// releases this client immediately; the remote service reaps the
// abandoned job on its own schedule.
func (r *RemoteEvaluator) Evaluate(ctx context.Context, job types.EvaluationJob) (types.EvaluationResult, error) {
	jobID, err := r.submit(ctx, job)
	if err != nil {
		return types.EvaluationResult{}, err
	}

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return types.EvaluationResult{}, ctx.Err()
		case <-ticker.C:
		}

		status, err := r.poll(ctx, jobID)
		if err != nil {
			return types.EvaluationResult{}, err
		}
		switch status.Status {
		case "completed":
			return types.EvaluationResult{
				CandidateID: job.CandidateID,
				Values:      status.Values,
				NoiseFloor:  status.NoiseFloor,
			}, nil
		case "failed":
			return types.EvaluationResult{}, fmt.Errorf("job %s failed: %s", jobID, status.Reason)
		}
	}
}

func (r *RemoteEvaluator) submit(ctx context.Context, job types.EvaluationJob) (string, error) {
	body, err := json.Marshal(submitRequest{
		CandidateID: job.CandidateID,
		Properties:  job.Properties,
		Priority:    job.Priority,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling job: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.BaseURL+"/jobs", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building submit request: %w", err)
	}
	r.setHeaders(req)

	resp, err := httputil.DoWithRetry(ctx, r.client, req, r.cfg.MaxRetries)
	if err != nil {
		return "", fmt.Errorf("submitting job for %s: %w", job.CandidateID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("job service returned %d: %s", resp.StatusCode, data)
	}

	var sr submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return "", fmt.Errorf("decoding submit response: %w", err)
	}
	if sr.JobID == "" {
		return "", fmt.Errorf("job service returned empty job ID")
	}
	return sr.JobID, nil
}

func (r *RemoteEvaluator) poll(ctx context.Context, jobID string) (jobStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.BaseURL+"/jobs/"+jobID, nil)
	if err != nil {
		return jobStatus{}, fmt.Errorf("building poll request: %w", err)
	}
	r.setHeaders(req)

	resp, err := httputil.DoWithRetry(ctx, r.client, req, r.cfg.MaxRetries)
	if err != nil {
		return jobStatus{}, fmt.Errorf("polling job %s: %w", jobID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return jobStatus{}, fmt.Errorf("job service returned %d: %s", resp.StatusCode, data)
	}

	var status jobStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return jobStatus{}, fmt.Errorf("decoding job status: %w", err)
	}
	return status, nil
}

func (r *RemoteEvaluator) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if r.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", r.cfg.UserAgent)
	}
	if r.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	}
}
