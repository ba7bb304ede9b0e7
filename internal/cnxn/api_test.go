package cnxn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/concave-dev/ensemble/internal/metrics"
	"github.com/concave-dev/ensemble/internal/node"
	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNode is an in-memory Node.
type fakeNode struct {
	mu       sync.Mutex
	data     map[string][]byte
	leader   bool
	running  bool
	applyErr error
}

func newFakeNode() *fakeNode {
	return &fakeNode{data: map[string][]byte{}, leader: true, running: true}
}

func (f *fakeNode) ID() string        { return "1" }
func (f *fakeNode) IsRunning() bool   { return f.running }
func (f *fakeNode) IsLeader() bool    { return f.leader }
func (f *fakeNode) RaftState() string { return "Leader" }
func (f *fakeNode) TickTime() time.Duration {
	return 2 * time.Second
}
func (f *fakeNode) SessionTimeouts() (time.Duration, time.Duration) {
	return 4 * time.Second, 40 * time.Second
}

func (f *fakeNode) Leader() (string, string) {
	if f.leader {
		return "1", "127.0.0.1:2888"
	}
	return "2", "127.0.0.1:2889"
}

func (f *fakeNode) Get(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok
}

func (f *fakeNode) Keys(prefix string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (f *fakeNode) write(fn func()) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	if !f.leader {
		return &node.NotLeaderError{LeaderID: "2", LeaderAddr: "127.0.0.1:2889"}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	fn()
	return nil
}

func (f *fakeNode) Put(_ context.Context, key string, value []byte) error {
	return f.write(func() { f.data[key] = value })
}

func (f *fakeNode) Delete(_ context.Context, key string) error {
	return f.write(func() { delete(f.data, key) })
}

func serve(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestKVRoundTrip(t *testing.T) {
	n := newFakeNode()
	router := newRouter("tcp", false, n)

	w := serve(router, http.MethodPut, "/v1/kv/app/config", "hello")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = serve(router, http.MethodGet, "/v1/kv/app/config", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello", w.Body.String())

	serve(router, http.MethodPut, "/v1/kv/app/other", "x")
	w = serve(router, http.MethodGet, "/v1/kv/app?keys", "")
	require.Equal(t, http.StatusOK, w.Code)
	var keys []string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &keys))
	assert.Equal(t, []string{"/app/config", "/app/other"}, keys)

	w = serve(router, http.MethodDelete, "/v1/kv/app/config", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = serve(router, http.MethodGet, "/v1/kv/app/config", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestKVRejectsDirectoryKeys(t *testing.T) {
	router := newRouter("tcp", false, newFakeNode())

	for _, path := range []string{"/v1/kv/", "/v1/kv/app/"} {
		w := serve(router, http.MethodPut, path, "v")
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}
}

func TestWriteErrors(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(n *fakeNode)
		wantCode int
	}{
		{"follower", func(n *fakeNode) { n.leader = false }, http.StatusMisdirectedRequest},
		{"stopped", func(n *fakeNode) { n.applyErr = node.ErrNotRunning }, http.StatusServiceUnavailable},
		{"timeout", func(n *fakeNode) { n.applyErr = context.DeadlineExceeded }, http.StatusGatewayTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := newFakeNode()
			tt.setup(n)
			router := newRouter("tcp", false, n)

			w := serve(router, http.MethodPut, "/v1/kv/k", "v")
			require.Equal(t, tt.wantCode, w.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
			if tt.wantCode == http.StatusMisdirectedRequest {
				assert.Equal(t, "2", resp.LeaderID)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	n := newFakeNode()
	n.data["/a"] = []byte("1")
	router := newRouter("tls", true, n)

	w := serve(router, http.MethodGet, "/v1/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var status StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "1", status.ID)
	assert.True(t, status.Leader)
	assert.True(t, status.Secure)
	assert.Equal(t, 1, status.Keys)
	assert.Equal(t, "2s", status.TickTime)
}

func TestRequestMetrics(t *testing.T) {
	router := newRouter("metrics-test", false, newFakeNode())
	before := testutil.ToFloat64(metrics.ClientRequestsTotal.WithLabelValues("metrics-test", "GET", "404"))

	serve(router, http.MethodGet, "/v1/kv/missing", "")

	after := testutil.ToFloat64(metrics.ClientRequestsTotal.WithLabelValues("metrics-test", "GET", "404"))
	assert.Equal(t, before+1, after)

	w := serve(router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ensemble_client_requests_total")
}
