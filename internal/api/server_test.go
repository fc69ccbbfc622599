// Package api_test provides tests for the API server.
package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/atlas-desktop/unitsim/internal/api"
	"github.com/atlas-desktop/unitsim/internal/config"
	"github.com/atlas-desktop/unitsim/internal/montecarlo"
	"github.com/atlas-desktop/unitsim/internal/observability"
	"github.com/atlas-desktop/unitsim/internal/orchestrator"
	"github.com/atlas-desktop/unitsim/internal/workers"
	"github.com/atlas-desktop/unitsim/pkg/types"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const modelJSON = `{
  "assets": {
    "cow": {
      "kind": "livestock",
      "config": {"n_units": 10, "price_unit": 250000, "n_cycles_year": 1},
      "inputs": {
        "milk_liters_day": 12, "n_days_production": 300, "pct_milk_loss": 0.05,
        "price_milk_liter": 60, "pct_birth_rate": 0.8, "calf_weight_kg": 40,
        "price_calf_kg": 500, "cost_feed": 8000, "cost_vet": 2000, "cost_other": 1200
      },
      "risks": {
        "revenue": {"pct_low": -0.2, "pct_base": 0, "pct_high": 0.1},
        "capital": {"p_loss_total": 0.05}
      }
    }
  },
  "simulation": {"n_runs": 50, "n_years": 3, "seed": 42}
}`

func setupTestServer(t *testing.T) (*api.Server, *httptest.Server, *observability.Metrics) {
	t.Helper()
	logger := zap.NewNop()

	metrics := observability.NewMetrics("test")
	engine := montecarlo.NewEngine(logger, &montecarlo.EngineConfig{Workers: 2}, metrics)
	orch := orchestrator.NewOrchestrator(logger, orchestrator.DefaultOrchestratorConfig(), engine)

	pool := workers.NewPool(logger, workers.DefaultPoolConfig("test"))
	pool.Start()

	server := api.NewServer(logger, config.ServerConfig{
		WebSocketPath: "/ws",
		MaxBodyBytes:  1 << 20,
	}, orch, pool, metrics)
	ts := httptest.NewServer(server.Handler())

	t.Cleanup(func() {
		ts.Close()
		server.Stop(context.Background())
		pool.Stop()
	})
	return server, ts, metrics
}

func submit(t *testing.T, ts *httptest.Server, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.Post(ts.URL+"/api/v1/simulations", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func getJob(t *testing.T, ts *httptest.Server, id string) api.Job {
	t.Helper()
	resp, err := http.Get(ts.URL + "/api/v1/simulations/" + id)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var job api.Job
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&job))
	return job
}

func waitFinished(t *testing.T, ts *httptest.Server, id string) api.Job {
	t.Helper()
	var job api.Job
	require.Eventually(t, func() bool {
		job = getJob(t, ts, id)
		return job.Status == api.JobCompleted || job.Status == api.JobFailed || job.Status == api.JobCancelled
	}, 10*time.Second, 20*time.Millisecond)
	return job
}

func TestHealthEndpoint(t *testing.T) {
	_, ts, _ := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "healthy", result["status"])
	assert.Contains(t, result, "jobs")
}

func TestSubmitAndFetchSimulation(t *testing.T) {
	_, ts, _ := setupTestServer(t)

	resp, out := submit(t, ts, modelJSON)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "queued", out["status"])
	id, _ := out["id"].(string)
	require.NotEmpty(t, id)

	job := waitFinished(t, ts, id)
	require.Equal(t, api.JobCompleted, job.Status, "error: %s", job.Error)
	require.NotNil(t, job.Result)
	assert.Equal(t, "api", job.Result.Meta.Source)
	assert.Equal(t, 210_000.0, job.Result.PnL["cow"].ProfitUnitCycle)
	assert.Len(t, job.Result.Simulation[types.PolicyReinvest]["cow"].Capitals.Mean, 4)
	assert.NotNil(t, job.StartedAt)
	assert.NotNil(t, job.FinishedAt)

	resp2, err := http.Get(ts.URL + "/api/v1/simulations/" + id + "/trajectories")
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	var traj types.TrajectorySet
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&traj))
	assert.Equal(t, 30, traj.Meta.NRuns)
	assert.Len(t, traj.Data["cow"], 30)

	list, err := http.Get(ts.URL + "/api/v1/simulations")
	require.NoError(t, err)
	defer list.Body.Close()
	var listed struct {
		Simulations []api.Job `json:"simulations"`
		Count       int       `json:"count"`
	}
	require.NoError(t, json.NewDecoder(list.Body).Decode(&listed))
	require.Equal(t, 1, listed.Count)
	assert.Nil(t, listed.Simulations[0].Result, "listing omits results")
}

func TestSubmitInvalidModel(t *testing.T) {
	_, ts, _ := setupTestServer(t)

	bad := strings.Replace(modelJSON, `"p_loss_total": 0.05`, `"p_loss_total": 5`, 1)
	resp, out := submit(t, ts, bad)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_model", out["code"])
	assert.Contains(t, out["message"], "p_loss_total")

	resp, out = submit(t, ts, `{"assets":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_model", out["code"])
}

func TestUnknownSimulation(t *testing.T) {
	_, ts, _ := setupTestServer(t)

	for _, path := range []string{"/api/v1/simulations/nope", "/api/v1/simulations/nope/trajectories"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}

	resp, err := http.Post(ts.URL+"/api/v1/simulations/nope/cancel", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancelFinishedSimulation(t *testing.T) {
	_, ts, _ := setupTestServer(t)

	_, out := submit(t, ts, modelJSON)
	id := out["id"].(string)
	waitFinished(t, ts, id)

	resp, err := http.Post(ts.URL+"/api/v1/simulations/"+id+"/cancel", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts, _ := setupTestServer(t)

	_, out := submit(t, ts, modelJSON)
	waitFinished(t, ts, out["id"].(string))

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "test_jobs_submitted_total 1")
	assert.Contains(t, buf.String(), `test_engine_runs_total{asset="cow",policy="with_reinvest"} 50`)
}

func TestWebSocketReceivesJobEvents(t *testing.T) {
	server, ts, _ := setupTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(api.WSMessage{Type: api.MsgTypeSubscribe, Channel: api.ChannelSimulations}))
	require.Eventually(t, func() bool {
		return server.Hub().SubscriberCount(api.ChannelSimulations) == 1
	}, 2*time.Second, 10*time.Millisecond)

	_, out := submit(t, ts, modelJSON)
	id := out["id"].(string)

	sawProgress, sawStarted := false, false
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	for {
		var msg api.WSMessage
		require.NoError(t, conn.ReadJSON(&msg))

		switch msg.Type {
		case api.MsgTypeStarted:
			sawStarted = true
		case api.MsgTypeProgress:
			assert.True(t, sawStarted, "start precedes progress")
			sawProgress = true
			assert.Equal(t, api.ChannelSimulations, msg.Channel)
		case api.MsgTypeComplete:
			var payload map[string]interface{}
			require.NoError(t, json.Unmarshal(msg.Data, &payload))
			assert.Equal(t, id, payload["id"])
			assert.Equal(t, "completed", payload["status"])
			assert.True(t, sawProgress, "progress precedes completion")
			return
		case api.MsgTypeFailed:
			t.Fatalf("simulation failed: %s", msg.Data)
		}
	}
}

func TestHubChannelRouting(t *testing.T) {
	server, ts, _ := setupTestServer(t)
	hub := server.Hub()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(api.WSMessage{Type: api.MsgTypeSubscribe, Channel: api.JobChannel("abc")}))
	require.Eventually(t, func() bool {
		return hub.SubscriberCount(api.JobChannel("abc")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ack api.WSMessage
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, api.MsgTypeSubscribe, ack.Type)

	hub.PublishJobEvent("other", api.MsgTypeComplete, map[string]string{"id": "other"})
	hub.PublishJobEvent("abc", api.MsgTypeComplete, map[string]string{"id": "abc"})

	var msg api.WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, api.JobChannel("abc"), msg.Channel, "events for other jobs are not delivered")
	assert.JSONEq(t, `{"id":"abc"}`, string(msg.Data))

	require.NoError(t, conn.WriteJSON(api.WSMessage{Type: api.MsgTypeUnsubscribe, Channel: api.JobChannel("abc")}))
	require.Eventually(t, func() bool {
		return hub.SubscriberCount(api.JobChannel("abc")) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
