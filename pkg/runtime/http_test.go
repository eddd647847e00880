package runtime

import (
	"context"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/ipfsbridge/pkg/command"
)

func TestHTTPEndpointMapping(t *testing.T) {
	t.Parallel()

	rt := NewHTTP(HTTPConfig{BaseURL: "http://node:5001/"})
	strp := func(s string) *string { return &s }

	tests := []struct {
		name  string
		build func() (command.Command, error)
		want  string
	}{
		{"pin add", func() (command.Command, error) { return command.PinAdd("/ipfs/QmA", true) },
			"http://node:5001/api/v0/pin/add?arg=%2Fipfs%2FQmA&recursive=true"},
		{"get with level", func() (command.Command, error) { return command.Get("QmA", nil, false, true, 4) },
			"http://node:5001/api/v0/get?archive=false&arg=QmA&compress=true&compression-level=4"},
		{"ping default count", func() (command.Command, error) { return command.Ping(strp("QmP"), 0) },
			"http://node:5001/api/v0/ping?arg=QmP"},
		{"config set", func() (command.Command, error) { return command.ConfigSet(strp("Addresses.API"), strp("x")) },
			"http://node:5001/api/v0/config?arg=Addresses.API&arg=x"},
		{"id", func() (command.Command, error) { return command.NetworkID(nil) },
			"http://node:5001/api/v0/id"},
		{"mount", func() (command.Command, error) { return command.Mount(strp("/ipfs"), nil) },
			"http://node:5001/api/v0/mount?ipfs-path=%2Fipfs"},
		{"bootstrap add default", func() (command.Command, error) { return command.BootstrapAdd(nil, true) },
			"http://node:5001/api/v0/bootstrap/add?default=true"},
		{"block put drops data arg", func() (command.Command, error) { return command.BlockPut("hello") },
			"http://node:5001/api/v0/block/put"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, err := tt.build()
			require.NoError(t, err)
			got, err := rt.Endpoint(NewPayload(c))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHTTPUnsupported(t *testing.T) {
	t.Parallel()

	rt := NewHTTP(HTTPConfig{})
	assert.Equal(t, DefaultAPIURL, rt.base)

	for _, build := range []func() (command.Command, error){
		func() (command.Command, error) { return command.Init(2048, nil, false) },
		func() (command.Command, error) { return command.Daemon(false, nil, false, false, nil, nil) },
		command.ConfigEdit,
		func() (command.Command, error) { return command.Raw([]string{"version"}) },
	} {
		c, err := build()
		require.NoError(t, err)
		_, err = rt.Execute(context.Background(), NewPayload(c))
		assert.ErrorIs(t, err, ErrUnsupported, c.String())
	}
}

func TestHTTPExecute(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		switch r.URL.Path {
		case "/api/v0/version":
			_, _ = io.WriteString(w, `{"Version":"0.29.0"}`)
		case "/api/v0/pin/rm":
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, `{"Message":"not pinned or pinned indirectly","Code":0,"Type":"error"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	rt := NewHTTP(HTTPConfig{BaseURL: srv.URL, Client: srv.Client()})
	assert.True(t, IsReentrant(rt))

	c, err := command.Version()
	res, err := rt.Execute(context.Background(), mustPayload(t, c, err))
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.JSONEq(t, `{"Version":"0.29.0"}`, res.Stdout)

	c, err = command.PinRm("QmA", true)
	res, err = rt.Execute(context.Background(), mustPayload(t, c, err))
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExitCode)
	assert.Equal(t, "Error: not pinned or pinned indirectly\n", res.Stderr)
	assert.Empty(t, res.Stdout)

	c, err = command.SwarmPeers()
	res, err = rt.Execute(context.Background(), mustPayload(t, c, err))
	require.NoError(t, err)
	assert.Equal(t, "Error: 404 Not Found\n", res.Stderr)
}

func TestHTTPTransportFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	rt := NewHTTP(HTTPConfig{BaseURL: url})
	c, err := command.Version()
	res, err := rt.Execute(context.Background(), mustPayload(t, c, err))
	assert.Error(t, err)
	assert.Nil(t, res)
}

func TestHTTPUploads(t *testing.T) {
	t.Parallel()

	type part struct{ name, body string }
	got := make(chan []part, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mr, err := r.MultipartReader()
		if !assert.NoError(t, err) {
			return
		}
		var parts []part
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if !assert.NoError(t, err) {
				return
			}
			// FileName strips directories; read the raw parameter instead.
			_, params, err := mime.ParseMediaType(p.Header.Get("Content-Disposition"))
			if !assert.NoError(t, err) {
				return
			}
			b, _ := io.ReadAll(p)
			parts = append(parts, part{params["filename"], string(b)})
		}
		sort.Slice(parts, func(i, j int) bool { return parts[i].name < parts[j].name })
		got <- parts
		_, _ = io.WriteString(w, `{"Hash":"QmNew"}`)
	}))
	defer srv.Close()

	rt := NewHTTP(HTTPConfig{BaseURL: srv.URL})

	c, err := command.BlockPut("raw bytes")
	_, err = rt.Execute(context.Background(), mustPayload(t, c, err))
	require.NoError(t, err)
	assert.Equal(t, []part{{"data", "raw bytes"}}, <-got)

	dir := filepath.Join(t.TempDir(), "site")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "css"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>hi</h1>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "css", "a.css"), []byte("p{}"), 0o644))

	c, err = command.Add(dir, true, false, false, false, false)
	res, err := rt.Execute(context.Background(), mustPayload(t, c, err))
	require.NoError(t, err)
	assert.JSONEq(t, `{"Hash":"QmNew"}`, res.Stdout)
	assert.Equal(t, []part{{"site/css/a.css", "p{}"}, {"site/index.html", "<h1>hi</h1>"}}, <-got)

	c, err = command.Add(filepath.Join(t.TempDir(), "missing"), false, false, false, false, false)
	_, err = rt.Execute(context.Background(), mustPayload(t, c, err))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
