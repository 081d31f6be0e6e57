package node_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockmeshdb/coordinator/execution"
	"github.com/blockmeshdb/coordinator/logger"
	"github.com/blockmeshdb/coordinator/meta"
	"github.com/blockmeshdb/coordinator/node"
)

type fakeLoader struct {
	size int64
	err  error
}

func (l fakeLoader) Load(context.Context, string) (int64, error) {
	return l.size, l.err
}

func newTestServer(t *testing.T, loader node.Loader, manager *execution.Manager) *httptest.Server {
	t.Helper()
	srv := node.NewServer("self:80", manager, loader, logger.NewLogfLogger(t))
	return httptest.NewServer(srv.Router())
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	return resp
}

func TestServerHandleEcho(t *testing.T) {
	ts := newTestServer(t, fakeLoader{}, execution.NewManager())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/echo", map[string]string{"name": "hello"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "hello", out["name"])
}

func TestServerHandleTaskIngestion(t *testing.T) {
	manager := execution.NewManager()
	ts := newTestServer(t, fakeLoader{size: 1024}, manager)
	defer ts.Close()

	task := node.NewIngestionTask(&meta.Spec{ID: "events|events/x.parquet", Table: "events"})
	resp := postJSON(t, ts.URL+"/task", task)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, string(node.Succeeded), out["state"])

	assert.True(t, manager.State("events").HasSpec("events|events/x.parquet"))
}

func TestServerHandleTaskIngestionFailure(t *testing.T) {
	manager := execution.NewManager()
	ts := newTestServer(t, fakeLoader{err: assert.AnError}, manager)
	defer ts.Close()

	task := node.NewIngestionTask(&meta.Spec{ID: "events|events/x.parquet", Table: "events"})
	resp := postJSON(t, ts.URL+"/task", task)
	defer resp.Body.Close()

	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, string(node.Failed), out["state"])
}

func TestServerHandleTaskExpiration(t *testing.T) {
	manager := execution.NewManager()
	manager.Add(meta.Local, "events", &execution.BatchBlock{SpecID: "s1", Table: "events"})
	ts := newTestServer(t, fakeLoader{}, manager)
	defer ts.Close()

	task := node.NewExpirationTask([]*meta.Spec{{ID: "s1", Table: "events"}})
	resp := postJSON(t, ts.URL+"/task", task)
	defer resp.Body.Close()

	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, string(node.Succeeded), out["state"])
	assert.False(t, manager.State("events").HasSpec("s1"))
}

func TestServerHandlePoll(t *testing.T) {
	manager := execution.NewManager()
	manager.Add(meta.Local, "events", &execution.BatchBlock{SpecID: "s1", Table: "events"})
	ts := newTestServer(t, fakeLoader{}, manager)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/poll", "application/json", bytes.NewReader([]byte("{}")))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string][]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Contains(t, out["events"], "s1")
}
