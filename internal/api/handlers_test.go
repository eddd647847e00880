package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/ipfsbridge/internal/auth"
	"github.com/mattjoyce/ipfsbridge/internal/events"
	"github.com/mattjoyce/ipfsbridge/internal/history"
	"github.com/mattjoyce/ipfsbridge/internal/log"
	"github.com/mattjoyce/ipfsbridge/internal/storage"
	"github.com/mattjoyce/ipfsbridge/pkg/dispatch"
	"github.com/mattjoyce/ipfsbridge/pkg/ipfs"
	"github.com/mattjoyce/ipfsbridge/pkg/runtime"
	"github.com/mattjoyce/ipfsbridge/pkg/runtime/mocks"
)

const adminKey = "admin-key"

func TestMain(m *testing.M) {
	log.Setup("ERROR", "json")
	m.Run()
}

type fixture struct {
	srv   *Server
	h     http.Handler
	hub   *events.Hub
	store *history.Store
	calls *atomic.Int32
}

// echoEntry prints the argv and fails when the first positional is "missing".
func echoEntry(calls *atomic.Int32) runtime.EntryFunc {
	return func(_ context.Context, p runtime.Payload, stdout, stderr io.Writer) int {
		calls.Add(1)
		for _, a := range p.Args {
			if a.Flag == "" && a.Value == "missing" {
				_, _ = io.WriteString(stderr, "Error: not pinned\n")
				return 1
			}
		}
		_, _ = io.WriteString(stdout, strings.Join(p.Argv, " "))
		return 0
	}
}

func newFixture(t *testing.T, rt runtime.Runtime, withHistory bool) *fixture {
	t.Helper()

	f := &fixture{hub: events.NewHub(64), calls: &atomic.Int32{}}
	if rt == nil {
		rt = runtime.NewEmbedded(echoEntry(f.calls), runtime.EmbeddedConfig{})
	}
	d := dispatch.New(rt, dispatch.Config{}).WithPublisher(f.hub)

	var hist HistoryReader
	if withHistory {
		db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "history.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		f.store = history.New(db)
		d.WithRecorder(f.store)
		hist = f.store
	}

	f.srv = New(Config{
		APIKey: adminKey,
		Tokens: []auth.TokenConfig{
			{Token: "reader", Scopes: []string{auth.ScopeOpsRead}},
			{Token: "runner", Scopes: []string{auth.ScopeOpsWrite}},
		},
	}, ipfs.New(d), hist, f.hub, nil)
	f.h = f.srv.Handler()
	return f
}

func (f *fixture) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	f.h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestHealthzNoAuth(t *testing.T) {
	f := newFixture(t, nil, false)

	rr := f.do(t, "GET", "/healthz", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[HealthzResponse](t, rr)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "embedded", resp.Runtime)
	assert.True(t, resp.Serialized)
	assert.False(t, resp.History)
	assert.NotEmpty(t, resp.APIVersion)
}

func TestAuthAndScopes(t *testing.T) {
	f := newFixture(t, nil, false)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   string
		want   int
	}{
		{"no token", "GET", "/ops", "", "", http.StatusUnauthorized},
		{"bad token", "GET", "/ops", "nope", "", http.StatusUnauthorized},
		{"reader lists", "GET", "/ops", "reader", "", http.StatusOK},
		{"reader encodes", "POST", "/ops/cat/encode", "reader", `{"path":"QmA"}`, http.StatusOK},
		{"reader cannot run", "POST", "/ops/cat", "reader", `{"path":"QmA"}`, http.StatusForbidden},
		{"runner runs", "POST", "/ops/cat", "runner", `{"path":"QmA"}`, http.StatusOK},
		{"runner lists via rw", "GET", "/ops", "runner", "", http.StatusOK},
		{"runner has no events", "GET", "/events", "runner", "", http.StatusForbidden},
		{"runner has no history", "GET", "/history", "runner", "", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.do(t, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.want, rr.Code, rr.Body.String())
		})
	}
}

func TestListAndGetOps(t *testing.T) {
	f := newFixture(t, nil, false)

	rr := f.do(t, "GET", "/ops", adminKey, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]OpSummary](t, rr), 42)

	rr = f.do(t, "GET", "/ops?group=network", adminKey, "")
	network := decode[[]OpSummary](t, rr)
	require.Len(t, network, 13)
	for _, o := range network {
		assert.Equal(t, "network", o.Group)
	}

	rr = f.do(t, "GET", "/ops/ipfs_pin_add", adminKey, "")
	require.Equal(t, http.StatusOK, rr.Code)
	detail := decode[OpDetail](t, rr)
	assert.EqualValues(t, "pin_add", detail.ID)
	assert.Equal(t, "pin add", detail.Name)
	assert.Contains(t, detail.Aliases, "ipfs_pin_add")
	assert.NotEmpty(t, detail.Params)

	rr = f.do(t, "GET", "/ops/frobnicate", adminKey, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestEncodeNeverDispatches(t *testing.T) {
	f := newFixture(t, nil, false)

	rr := f.do(t, "POST", "/ops/pin_add/encode", adminKey, `{"path":"/ipfs/QmA","recursive":true}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decode[EncodeResponse](t, rr)
	assert.Equal(t, "pin add /ipfs/QmA -r true", resp.Line)
	assert.Equal(t, []string{"pin", "add", "/ipfs/QmA", "-r", "true"}, resp.Argv)
	assert.Equal(t, len(resp.Line), resp.Len)
	assert.Len(t, resp.Fingerprint, 64)

	rr = f.do(t, "POST", "/ops/ping/encode", adminKey, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ping", decode[EncodeResponse](t, rr).Line)

	for _, body := range []string{
		`{}`,                           // missing path
		`{"path":"QmA","bogus":1}`,     // unknown param
		`{"path":"QmA","recursive":3}`, // wrong type
		`{"path":"a\u0000b"}`,          // unrepresentable
		`[1,2]`,                        // not an object
	} {
		rr = f.do(t, "POST", "/ops/pin_add/encode", adminKey, body)
		assert.Equal(t, http.StatusBadRequest, rr.Code, body)
	}

	assert.Zero(t, f.calls.Load())
}

func TestRunResults(t *testing.T) {
	f := newFixture(t, nil, true)

	rr := f.do(t, "POST", "/ops/get", adminKey, `{"path":"/ipfs/QmA","compress":true,"compression_level":6}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	ok := decode[RunResponse](t, rr)
	assert.Equal(t, 0, ok.ExitCode)
	assert.Equal(t, "get /ipfs/QmA -a false -C true -l 6", ok.Stdout)
	assert.Equal(t, ok.Line, ok.Stdout)

	rr = f.do(t, "POST", "/ops/pin_rm", adminKey, `{"path":"missing","recursive":true}`)
	require.Equal(t, http.StatusOK, rr.Code, "runtime failure is still a 200")
	failed := decode[RunResponse](t, rr)
	assert.Equal(t, 1, failed.ExitCode)
	assert.Equal(t, "Error: not pinned\n", failed.Stderr)

	assert.EqualValues(t, 2, f.calls.Load())

	rr = f.do(t, "GET", "/history", adminKey, "")
	require.Equal(t, http.StatusOK, rr.Code)
	recs := decode[[]dispatch.Record](t, rr)
	require.Len(t, recs, 2)

	rr = f.do(t, "GET", "/history?status=failed&op=pin%20rm", adminKey, "")
	require.Equal(t, http.StatusOK, rr.Code)
	failedRecs := decode[[]dispatch.Record](t, rr)
	require.Len(t, failedRecs, 1)
	assert.Equal(t, dispatch.StatusFailed, failedRecs[0].Status)

	rr = f.do(t, "GET", "/history/"+failedRecs[0].ID, adminKey, "")
	require.Equal(t, http.StatusOK, rr.Code)
	one := decode[dispatch.Record](t, rr)
	assert.Equal(t, "pin rm missing -r true", one.Line)

	assert.Equal(t, http.StatusNotFound, f.do(t, "GET", "/history/nope", adminKey, "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, "GET", "/history?status=weird", adminKey, "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, "GET", "/history?limit=-1", adminKey, "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, "GET", "/history?op=frob", adminKey, "").Code)
}

func TestHistoryDisabled(t *testing.T) {
	f := newFixture(t, nil, false)
	assert.Equal(t, http.StatusNotFound, f.do(t, "GET", "/history", adminKey, "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, "GET", "/history/x", adminKey, "").Code)
}

func TestRunErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unsupported", fmt.Errorf("http runtime: %w", runtime.ErrUnsupported), http.StatusNotImplemented},
		{"transport", fmt.Errorf("connection refused"), http.StatusBadGateway},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			rt := mocks.NewMockRuntime(ctrl)
			rt.EXPECT().Name().Return("mock").AnyTimes()
			rt.EXPECT().Execute(gomock.Any(), gomock.Any()).Return(nil, tt.err).Times(1)

			f := newFixture(t, rt, false)
			rr := f.do(t, "POST", "/ops/version", adminKey, "")
			assert.Equal(t, tt.want, rr.Code, rr.Body.String())
		})
	}
}

func TestExec(t *testing.T) {
	f := newFixture(t, nil, false)

	rr := f.do(t, "POST", "/exec", adminKey, `{"line":"ipfs pin ls --type='all'"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decode[RunResponse](t, rr)
	assert.EqualValues(t, "raw", resp.Op)
	assert.Equal(t, "pin ls --type=all", resp.Stdout)

	rr = f.do(t, "POST", "/exec", adminKey, `{"argv":["cat","a b"]}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "cat a b", decode[RunResponse](t, rr).Stdout)

	assert.Equal(t, http.StatusBadRequest, f.do(t, "POST", "/exec", adminKey, `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, "POST", "/exec", adminKey, `{"line":"cat 'open"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, "POST", "/exec", adminKey, `nope`).Code)
}

func TestMetricsExposeDispatchCounters(t *testing.T) {
	f := newFixture(t, nil, false)

	require.Equal(t, http.StatusOK, f.do(t, "POST", "/ops/swarm_peers", adminKey, "").Code)

	rr := f.do(t, "GET", "/metrics", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `ipfsbridge_dispatch_total{op="swarm_peers",status="succeeded"}`)
	assert.Contains(t, rr.Body.String(), "ipfsbridge_dispatch_in_flight")
}

func TestOpenAPI(t *testing.T) {
	f := newFixture(t, nil, false)

	rr := f.do(t, "GET", "/openapi.json", "reader", "")
	require.Equal(t, http.StatusOK, rr.Code)
	doc := decode[map[string]any](t, rr)
	assert.Equal(t, "3.1.0", doc["openapi"])
	paths := doc["paths"].(map[string]any)
	assert.Len(t, paths, 84)

	pin := paths["/ops/pin_add"].(map[string]any)["post"].(map[string]any)
	body := pin["requestBody"].(map[string]any)
	assert.Equal(t, true, body["required"])
	schema := body["content"].(map[string]any)["application/json"].(map[string]any)["schema"].(map[string]any)
	assert.Equal(t, []any{"path"}, schema["required"])
	props := schema["properties"].(map[string]any)
	assert.Equal(t, "boolean", props["recursive"].(map[string]any)["type"])
}

func TestEventsStream(t *testing.T) {
	f := newFixture(t, nil, false)
	ts := httptest.NewServer(f.h)
	defer ts.Close()

	// One event pair is already buffered before the client connects.
	require.Equal(t, http.StatusOK, f.do(t, "POST", "/ops/version", adminKey, "").Code)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "GET", ts.URL+"/events?type=dispatch.completed", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+adminKey)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	go func() {
		for f.hub.Subscribers() == 0 {
			time.Sleep(5 * time.Millisecond)
		}
		_ = f.do(t, "POST", "/ops/repo_gc", adminKey, `{"quiet":true}`)
	}()

	var lines []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "data: ") {
			lines = append(lines, line)
			if len(lines) == 2 {
				break
			}
		}
		if strings.HasPrefix(line, "event: ") {
			assert.Equal(t, "event: dispatch.completed", line)
		}
	}
	require.Len(t, lines, 2)

	var first, second dispatch.Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(lines[0], "data: ")), &first))
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(lines[1], "data: ")), &second))
	assert.EqualValues(t, "version", first.Op)
	assert.EqualValues(t, "repo_gc", second.Op)
	assert.Equal(t, "repo gc -q true", second.Line)
}

func TestParseHelpers(t *testing.T) {
	assert.Equal(t, int64(0), parseLastEventID(""))
	assert.Equal(t, int64(0), parseLastEventID("-4"))
	assert.Equal(t, int64(12), parseLastEventID("12"))

	var all typeFilter
	assert.True(t, all.match("anything"))
	f := parseTypes("dispatch.failed, dispatch.completed,")
	assert.True(t, f.match("dispatch.failed"))
	assert.False(t, f.match("dispatch.started"))
}
