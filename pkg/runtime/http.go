package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattjoyce/ipfsbridge/internal/log"
	"github.com/mattjoyce/ipfsbridge/pkg/op"
)

// DefaultAPIURL is the default Kubo RPC address.
const DefaultAPIURL = "http://127.0.0.1:5001"

// HTTPConfig configures the RPC runtime.
type HTTPConfig struct {
	BaseURL   string
	Client    *http.Client
	MaxOutput int
}

// HTTP sends each payload to a Kubo-compatible RPC endpoint as
// POST {base}/api/v0/{words}. Positionals become "arg" parameters and flags
// are mapped to their RPC option names.
type HTTP struct {
	base   string
	client *http.Client
	cfg    HTTPConfig
	logger *slog.Logger
}

// NewHTTP creates an RPC runtime.
func NewHTTP(cfg HTTPConfig) *HTTP {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultAPIURL
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	return &HTTP{base: base, client: client, cfg: cfg, logger: log.WithComponent("runtime.http")}
}

func (h *HTTP) Name() string { return "http" }

// Reentrant is always true: the RPC server serializes on its side.
func (h *HTTP) Reentrant() bool { return true }

// rpcError is the error body Kubo returns with non-2xx statuses.
type rpcError struct {
	Message string `json:"Message"`
	Code    int    `json:"Code"`
	Type    string `json:"Type"`
}

// Endpoint returns the RPC URL for a payload, without any request body.
func (h *HTTP) Endpoint(p Payload) (string, error) {
	if p.Op == op.Raw {
		return "", fmt.Errorf("%w: raw command lines over RPC", ErrUnsupported)
	}
	d, ok := op.Describe(p.Op)
	if !ok {
		return "", fmt.Errorf("%w: %q", op.ErrUnknownOp, p.Op)
	}
	if d.Local {
		return "", fmt.Errorf("%w: %q acts on the local node only", ErrUnsupported, d.Name())
	}

	q := url.Values{}
	for i, a := range p.Args {
		if a.Flag == "" {
			if d.Upload && i == 0 {
				continue
			}
			q.Add("arg", a.Value)
			continue
		}
		prm, ok := d.FlagParam(a.Flag)
		if !ok || prm.RPC == "" {
			return "", fmt.Errorf("%w: flag %s of %q has no RPC option", ErrUnsupported, a.Flag, d.Name())
		}
		q.Set(prm.RPC, a.Value)
	}

	u := h.base + "/api/v0/" + strings.Join(d.Words, "/")
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}
	return u, nil
}

// Execute performs one RPC call. Non-2xx responses are reported as exit code
// 1 with the server's message on stderr.
func (h *HTTP) Execute(ctx context.Context, p Payload) (*Result, error) {
	endpoint, err := h.Endpoint(p)
	if err != nil {
		return nil, err
	}
	d := op.MustDescribe(p.Op)

	var (
		body        io.Reader
		contentType string
	)
	if d.Upload {
		body, contentType, err = h.uploadBody(p)
		if err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", d.Name(), err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	logger := h.logger.With("op", string(p.Op))
	logger.Debug("calling rpc", "url", endpoint)

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", d.Name(), err)
	}
	defer resp.Body.Close()

	out := newCapture(h.cfg.MaxOutput)
	if _, err := io.Copy(out, resp.Body); err != nil {
		return nil, fmt.Errorf("read %s response: %w", d.Name(), err)
	}
	res := &Result{Duration: time.Since(start), Truncated: out.truncated}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		res.ExitCode = 1
		res.Stderr = errorMessage(resp.StatusCode, out.String())
		logger.Debug("rpc returned error status", "status", resp.StatusCode)
		return res, nil
	}
	res.Stdout = out.String()
	return res, nil
}

func errorMessage(status int, body string) string {
	var e rpcError
	if err := json.Unmarshal([]byte(body), &e); err == nil && e.Message != "" {
		return "Error: " + e.Message + "\n"
	}
	if strings.TrimSpace(body) == "" {
		return fmt.Sprintf("Error: %d %s\n", status, http.StatusText(status))
	}
	return body
}

// uploadBody builds the multipart body for operations whose first positional
// is content. "add" reads the named local path; block and object puts send
// the value itself.
func (h *HTTP) uploadBody(p Payload) (io.Reader, string, error) {
	var first string
	for _, a := range p.Args {
		if a.Flag == "" {
			first = a.Value
			break
		}
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if p.Op == op.Add {
		if err := addPath(w, first); err != nil {
			return nil, "", err
		}
	} else {
		part, err := w.CreateFormFile("file", "data")
		if err != nil {
			return nil, "", fmt.Errorf("create form file: %w", err)
		}
		if _, err := part.Write([]byte(first)); err != nil {
			return nil, "", fmt.Errorf("write form file: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// addPath writes a file, or every regular file under a directory, as
// "file" parts named relative to the parent of root.
func addPath(w *multipart.Writer, root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return addFile(w, root, filepath.Base(root))
	}

	parent := filepath.Dir(filepath.Clean(root))
	return filepath.Walk(root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !fi.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(parent, path)
		if err != nil {
			return fmt.Errorf("relative path: %w", err)
		}
		return addFile(w, path, filepath.ToSlash(rel))
	})
}

func addFile(w *multipart.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
