package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/ipfsbridge/internal/history"
	"github.com/mattjoyce/ipfsbridge/pkg/command"
	"github.com/mattjoyce/ipfsbridge/pkg/dispatch"
	"github.com/mattjoyce/ipfsbridge/pkg/ipfs"
	"github.com/mattjoyce/ipfsbridge/pkg/op"
	"github.com/mattjoyce/ipfsbridge/pkg/runtime"
)

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	d := s.client.Dispatcher()
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		APIVersion:    s.client.APIVersion(),
		Runtime:       d.Runtime().Name(),
		Serialized:    d.Serialized(),
		InFlight:      d.InFlight(),
		Subscribers:   s.events.Subscribers(),
		History:       s.history != nil,
	})
}

// handleMetrics handles GET /metrics in Prometheus text format (no auth).
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	metrics.WritePrometheus(w, true)
}

// handleListOps handles GET /ops.
func (s *Server) handleListOps(w http.ResponseWriter, r *http.Request) {
	group := r.URL.Query().Get("group")
	all := op.All()
	out := make([]OpSummary, 0, len(all))
	for _, d := range all {
		if group != "" && d.Group != group {
			continue
		}
		out = append(out, OpSummary{
			ID:      d.ID,
			Name:    d.Name(),
			Group:   d.Group,
			Summary: d.Summary,
			Aliases: op.Aliases(d.ID),
			Local:   d.Local,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// handleGetOp handles GET /ops/{name}. Any registry alias resolves.
func (s *Server) handleGetOp(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, OpDetail{Descriptor: d, Name: d.Name(), Aliases: op.Aliases(d.ID)})
}

// handleEncode handles POST /ops/{name}/encode: a dry run that never
// reaches the runtime.
func (s *Server) handleEncode(w http.ResponseWriter, r *http.Request) {
	cmd, ok := s.encode(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, EncodeResponse{
		Op:          cmd.Op,
		Argv:        cmd.Argv(),
		Line:        cmd.String(),
		Len:         cmd.Len(),
		Fingerprint: cmd.Fingerprint(),
	})
}

// handleRun handles POST /ops/{name}.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	cmd, ok := s.encode(w, r)
	if !ok {
		return
	}
	s.dispatch(r.Context(), w, cmd)
}

// handleExec handles POST /exec, the raw pass-through.
func (s *Server) handleExec(w http.ResponseWriter, r *http.Request) {
	var req ExecRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	argv := req.Argv
	if len(argv) == 0 {
		split, err := ipfs.SplitLine(req.Line)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		argv = split
	}
	cmd, err := command.Raw(argv)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	s.dispatch(r.Context(), w, cmd)
}

// handleListHistory handles GET /history?op=&status=&since=&limit=.
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "history is disabled")
		return
	}

	q := r.URL.Query()
	var f history.Filter
	if name := q.Get("op"); name == string(op.Raw) {
		f.Op = op.Raw
	} else if name != "" {
		d, err := op.Lookup(name)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.Op = d.ID
	}
	if st := q.Get("status"); st != "" {
		switch dispatch.Status(st) {
		case dispatch.StatusSucceeded, dispatch.StatusFailed, dispatch.StatusError:
			f.Status = dispatch.Status(st)
		default:
			s.writeError(w, http.StatusBadRequest, "status must be succeeded, failed or error")
			return
		}
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		f.Since = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		f.Limit = n
	}

	recs, err := s.history.List(r.Context(), f)
	if err != nil {
		s.logger.Error("failed to list history", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list history")
		return
	}
	if recs == nil {
		recs = []dispatch.Record{}
	}
	respondJSON(w, http.StatusOK, recs)
}

// handleGetHistory handles GET /history/{id}.
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "history is disabled")
		return
	}
	rec, err := s.history.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, history.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "dispatch not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to get history record", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get history record")
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (op.Descriptor, bool) {
	d, err := op.Lookup(chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return op.Descriptor{}, false
	}
	return d, true
}

// encode resolves the op and binds the JSON body. An empty body means no
// parameters.
func (s *Server) encode(w http.ResponseWriter, r *http.Request) (command.Command, bool) {
	d, ok := s.lookup(w, r)
	if !ok {
		return command.Command{}, false
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return command.Command{}, false
	}
	values := command.Values{}
	if len(bytes.TrimSpace(body)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(&values); err != nil {
			s.writeError(w, http.StatusBadRequest, "body must be a JSON object of parameter values")
			return command.Command{}, false
		}
	}

	cmd, err := command.Encode(d.ID, values)
	if err != nil {
		s.writeDispatchError(w, err)
		return command.Command{}, false
	}
	return cmd, true
}

func (s *Server) dispatch(ctx context.Context, w http.ResponseWriter, cmd command.Command) {
	res, err := s.client.Dispatcher().Dispatch(ctx, cmd)
	var exitErr *runtime.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		s.writeDispatchError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, RunResponse{
		Op:         cmd.Op,
		Line:       cmd.String(),
		ExitCode:   res.ExitCode,
		Stdout:     res.Stdout,
		Stderr:     res.Stderr,
		Truncated:  res.Truncated,
		DurationMS: res.Duration.Milliseconds(),
	})
}

// writeDispatchError maps encoder, registry and runtime errors to status
// codes.
func (s *Server) writeDispatchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, op.ErrUnknownOp):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, command.ErrMissingArgument),
		errors.Is(err, command.ErrInvalidArgument),
		errors.Is(err, command.ErrUnrepresentable):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, runtime.ErrUnsupported):
		s.writeError(w, http.StatusNotImplemented, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, http.StatusGatewayTimeout, err.Error())
	default:
		s.writeError(w, http.StatusBadGateway, err.Error())
	}
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
