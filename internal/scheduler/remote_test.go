// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package scheduler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/ionscreen/pkg/types"
)

// jobServiceStub emulates the remote DFT/MD job service: submissions
// get a job ID, and the job completes after a configurable number of
// polls.
func jobServiceStub(t *testing.T, pollsUntilDone int, terminal jobStatus) *httptest.Server {
	t.Helper()
	var polls int32

	mux := http.NewServeMux()
	mux.HandleFunc("POST /jobs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer jk_test", r.Header.Get("Authorization"))

		var req submitRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotEmpty(t, req.CandidateID)

		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(submitResponse{JobID: "job-42"})
	})
	mux.HandleFunc("GET /jobs/job-42", func(w http.ResponseWriter, r *http.Request) {
		status := jobStatus{Status: "running"}
		if int(atomic.AddInt32(&polls, 1)) >= pollsUntilDone {
			status = terminal
		}
		json.NewEncoder(w).Encode(status)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func remoteConfig(baseURL string) types.GroundTruthConfig {
	return types.GroundTruthConfig{
		HTTPConfig:   types.HTTPConfig{Timeout: 5 * time.Second, UserAgent: "ionscreen/test"},
		BaseURL:      baseURL,
		APIKey:       "jk_test",
		PollInterval: 5 * time.Millisecond,
	}
}

func TestNewRemoteEvaluatorRequiresURL(t *testing.T) {
	_, err := NewRemoteEvaluator(types.GroundTruthConfig{})
	assert.Error(t, err)
}

func TestRemoteEvaluate(t *testing.T) {
	srv := jobServiceStub(t, 3, jobStatus{
		Status: "completed",
		Values: map[types.Property]float64{
			types.PropActivationEnergy: 0.31,
			types.PropConductivity:     -2.7,
		},
		NoiseFloor: 0.02,
	})

	ev, err := NewRemoteEvaluator(remoteConfig(srv.URL))
	require.NoError(t, err)

	job := types.EvaluationJob{
		CandidateID: "mp-1153",
		Kind:        types.EvaluatorGroundTruth,
		Properties:  []types.Property{types.PropActivationEnergy, types.PropConductivity},
	}
	result, err := ev.Evaluate(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, "mp-1153", result.CandidateID)
	assert.InDelta(t, 0.31, result.Values[types.PropActivationEnergy], 1e-12)
	assert.InDelta(t, 0.02, result.NoiseFloor, 1e-12)
}

func TestRemoteEvaluateJobFailure(t *testing.T) {
	srv := jobServiceStub(t, 1, jobStatus{Status: "failed", Reason: "scf not converged"})

	ev, err := NewRemoteEvaluator(remoteConfig(srv.URL))
	require.NoError(t, err)

	_, err = ev.Evaluate(context.Background(), types.EvaluationJob{CandidateID: "mp-1153"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scf not converged")
}

func TestRemoteEvaluateCancellation(t *testing.T) {
	// The job never completes; cancellation must release the client.
	srv := jobServiceStub(t, 1<<30, jobStatus{})

	ev, err := NewRemoteEvaluator(remoteConfig(srv.URL))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = ev.Evaluate(ctx, types.EvaluationJob{CandidateID: "mp-1153"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRemoteSubmitRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown candidate", http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	ev, err := NewRemoteEvaluator(remoteConfig(srv.URL))
	require.NoError(t, err)

	_, err = ev.Evaluate(context.Background(), types.EvaluationJob{CandidateID: "mp-0"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}
