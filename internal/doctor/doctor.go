// Package doctor checks an ipfsbridge configuration against the machine it
// will run on.
package doctor

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/mattjoyce/ipfsbridge/internal/auth"
	"github.com/mattjoyce/ipfsbridge/internal/config"
	"github.com/mattjoyce/ipfsbridge/internal/storage"
	"github.com/mattjoyce/ipfsbridge/pkg/op"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a loaded configuration.
type Doctor struct {
	cfg *config.Config

	// LookPath resolves the exec runtime binary.
	LookPath func(file string) (string, error)
	// Probe checks that the RPC endpoint answers. Nil skips the check.
	Probe func(ctx context.Context, apiURL string) error
}

// New creates a Doctor for cfg. The HTTP endpoint is not probed unless
// Probe is set.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg, LookPath: exec.LookPath}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate(ctx context.Context) *Result {
	r := &Result{Valid: true}

	d.validateRuntime(ctx, r)
	d.validateTimeouts(r)
	d.validateHistory(r)
	d.validateAPI(r)
	d.validateIntegrity(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) validateRuntime(ctx context.Context, r *Result) {
	rt := d.cfg.Runtime
	switch rt.Kind {
	case config.RuntimeEmbedded:
		d.addError(r, "runtime", "runtime.kind",
			"the embedded runtime needs an entry function and can only be used as a library; use exec or http")
	case config.RuntimeExec:
		path, err := d.LookPath(rt.Binary)
		if err != nil {
			d.addError(r, "runtime", "runtime.binary", fmt.Sprintf("%q not found: %v", rt.Binary, err))
		} else if path != rt.Binary {
			d.addWarning(r, "runtime", "runtime.binary", fmt.Sprintf("resolved to %s via PATH", path))
		}
		if rt.Repo != "" {
			if info, err := os.Stat(rt.Repo); err != nil || !info.IsDir() {
				d.addWarning(r, "runtime", "runtime.repo",
					fmt.Sprintf("repo %s does not exist yet; run the init operation first", rt.Repo))
			}
		}
		if rt.Reentrant && rt.LockFile == "" {
			d.addWarning(r, "runtime", "runtime.reentrant",
				"reentrant exec calls share one repo without a lock_file")
		}
	case config.RuntimeHTTP:
		if d.Probe == nil {
			return
		}
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := d.Probe(pctx, rt.APIURL); err != nil {
			d.addError(r, "runtime", "runtime.api_url", fmt.Sprintf("RPC endpoint unreachable: %v", err))
		}
	}
}

func (d *Doctor) validateTimeouts(r *Result) {
	for name, t := range d.cfg.Timeouts {
		desc, err := op.Lookup(name)
		if err != nil {
			d.addError(r, "timeouts", "timeouts."+name, err.Error())
			continue
		}
		if desc.ID == op.Daemon && t > 0 {
			d.addWarning(r, "timeouts", "timeouts."+name,
				fmt.Sprintf("daemon runs until stopped; a %s deadline kills it", t))
		}
	}
	if d.cfg.Runtime.Timeout == 0 {
		d.addWarning(r, "timeouts", "runtime.timeout", "no default deadline; calls may block forever")
	}
}

func (d *Doctor) validateHistory(r *Result) {
	h := d.cfg.History
	if !h.Enabled {
		return
	}
	if err := storage.CheckLocal(h.Path); err != nil {
		d.addError(r, "history", "history.path", err.Error())
	}
	if h.Retention == 0 {
		d.addWarning(r, "history", "history.retention", "retention is 0; history grows without bound")
	}
}

var knownScopes = map[string]bool{
	auth.ScopeAll:      true,
	auth.ScopeOpsRead:  true,
	auth.ScopeOpsWrite: true,
	auth.ScopeHistory:  true,
	auth.ScopeEvents:   true,
	auth.ScopeMetrics:  true,
	"events:rw":        true,
	"history:rw":       true,
}

func (d *Doctor) validateAPI(r *Result) {
	a := d.cfg.API
	if !a.Enabled {
		return
	}

	host, _, err := net.SplitHostPort(a.Listen)
	if err != nil {
		d.addError(r, "api", "api.listen", fmt.Sprintf("invalid listen address %q: %v", a.Listen, err))
	} else if ip := net.ParseIP(host); host == "" || (ip != nil && !ip.IsLoopback()) {
		if len(a.Auth.Tokens) == 0 {
			d.addWarning(r, "api", "api.listen",
				"API listens beyond loopback with only the admin api_key; consider scoped tokens")
		}
	}

	seen := map[string]int{}
	for i, tok := range a.Auth.Tokens {
		field := fmt.Sprintf("api.auth.tokens[%d]", i)
		if prev, dup := seen[tok.Token]; dup {
			d.addError(r, "api", field+".token", fmt.Sprintf("same token as tokens[%d]", prev))
		}
		seen[tok.Token] = i
		if tok.Token == a.Auth.APIKey {
			d.addWarning(r, "api", field+".token", "equals api_key; scopes are ignored")
		}
		for j, scope := range tok.Scopes {
			if !knownScopes[strings.ToLower(strings.TrimSpace(scope))] {
				d.addError(r, "api", fmt.Sprintf("%s.scopes[%d]", field, j), fmt.Sprintf("unknown scope %q", scope))
			}
		}
	}
}

func (d *Doctor) validateIntegrity(r *Result) {
	res := config.VerifyIntegrity(d.cfg)
	for _, w := range res.Warnings {
		d.addWarning(r, "integrity", "", w)
	}
	for _, e := range res.Errors {
		d.addError(r, "integrity", "", e)
	}
}

// ProbeRPC posts to /api/v0/version on apiURL.
func ProbeRPC(ctx context.Context, apiURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(apiURL, "/")+"/api/v0/version", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return nil
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	switch {
	case r.Valid && len(r.Warnings) == 0:
		b.WriteString("Configuration valid.\n")
		return b.String()
	case r.Valid:
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	default:
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		writeIssue(&b, "ERROR", e)
	}
	for _, w := range r.Warnings {
		writeIssue(&b, "WARN ", w)
	}
	return b.String()
}

func writeIssue(b *strings.Builder, level string, i Issue) {
	if i.Field != "" {
		fmt.Fprintf(b, "  %s [%s] %s: %s\n", level, i.Category, i.Field, i.Message)
		return
	}
	fmt.Fprintf(b, "  %s [%s] %s\n", level, i.Category, i.Message)
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
