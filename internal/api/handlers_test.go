package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conveyor/internal/core"
)

const apiPipeline = `
pipeline: sample
stages: [build, deploy]
jobs:
  build:
    stage: build
    script: ['echo built']
  deploy:
    stage: deploy
    only: [main]
    script: ['echo deployed']
`

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(core.NewRunner(core.WithLogger(quiet)), WithLogger(quiet), WithWorkers(1))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = s.Start(ctx) }()

	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return s, ts
}

func submit(t *testing.T, ts *httptest.Server, body, query string) runSummary {
	t.Helper()
	resp, err := http.Post(ts.URL+"/api/pipelines"+query, "application/x-yaml", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var out runSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func getDetail(t *testing.T, ts *httptest.Server, id string) runDetail {
	t.Helper()
	resp, err := http.Get(ts.URL + "/api/pipelines/" + id)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out runDetail
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func waitForStatus(t *testing.T, ts *httptest.Server, id string, want core.Status) runDetail {
	t.Helper()
	var detail runDetail
	require.Eventually(t, func() bool {
		detail = getDetail(t, ts, id)
		return detail.Status == want
	}, 10*time.Second, 20*time.Millisecond, "run %s never reached %s", id, want)
	return detail
}

func TestSubmitAndRun(t *testing.T) {
	_, ts := newTestServer(t)

	sub := submit(t, ts, apiPipeline, "?branch=main")
	assert.Equal(t, "run-0001", sub.ID)
	assert.Equal(t, core.StatusPending, sub.Status)

	detail := waitForStatus(t, ts, sub.ID, core.StatusSucceeded)
	require.NotNil(t, detail.Result)
	require.Len(t, detail.Result.Stages, 2)
	assert.Equal(t, core.StatusSucceeded, detail.Result.Stages[0].Status)
}

func TestSubmitGatedBranch(t *testing.T) {
	_, ts := newTestServer(t)

	sub := submit(t, ts, apiPipeline, "?branch=feature/x")
	detail := waitForStatus(t, ts, sub.ID, core.StatusSucceeded)

	deploy := detail.Result.JobResult("deploy")
	require.NotNil(t, deploy)
	assert.Equal(t, core.StatusSkipped, deploy.Status)
}

func TestSubmitRejectsInvalidPipeline(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/pipelines", "application/x-yaml",
		strings.NewReader("pipeline: x\njobs:\n  j:\n    stage: ghost\n    script: ['true']\n"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestJobLog(t *testing.T) {
	_, ts := newTestServer(t)

	sub := submit(t, ts, apiPipeline, "?branch=main")
	waitForStatus(t, ts, sub.ID, core.StatusSucceeded)

	resp, err := http.Get(ts.URL + "/api/pipelines/" + sub.ID + "/log/build")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "echo built")
	assert.Contains(t, string(body), "built")
}

func TestListRuns(t *testing.T) {
	_, ts := newTestServer(t)

	first := submit(t, ts, apiPipeline, "?branch=main")
	second := submit(t, ts, apiPipeline, "?branch=main")
	waitForStatus(t, ts, second.ID, core.StatusSucceeded)

	resp, err := http.Get(ts.URL + "/api/pipelines")
	require.NoError(t, err)
	defer resp.Body.Close()

	var runs []runSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&runs))
	require.Len(t, runs, 2)
	assert.Equal(t, first.ID, runs[0].ID)
	assert.Equal(t, second.ID, runs[1].ID)
}

func TestGetUnknownRun(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/pipelines/run-9999")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
