package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/mattjoyce/ipfsbridge/internal/storage"
	"github.com/mattjoyce/ipfsbridge/pkg/command"
	"github.com/mattjoyce/ipfsbridge/pkg/dispatch"
	"github.com/mattjoyce/ipfsbridge/pkg/op"
	"github.com/mattjoyce/ipfsbridge/pkg/runtime"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db)
}

func record(id string, o op.ID, status dispatch.Status, started time.Time) dispatch.Record {
	return dispatch.Record{
		ID:          id,
		Op:          o,
		Runtime:     "embedded",
		Line:        string(o) + " arg",
		Fingerprint: strings.Repeat("a", 64),
		Status:      status,
		StartedAt:   started,
		CompletedAt: started.Add(1500 * time.Millisecond),
		Duration:    1500 * time.Millisecond,
	}
}

func TestStoreRecordAndGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)

	rec := record("d-1", op.PinRm, dispatch.StatusFailed, time.Now())
	rec.ExitCode = 1
	rec.Error = "pin_rm: exit status 1: Error: not pinned"
	rec.Stderr = strings.Repeat("e", maxStderrBytes+10)
	rec.Stdout = "dropped"
	rec.Truncated = true
	if err := s.Record(ctx, rec); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := s.Get(ctx, "d-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Op != op.PinRm || got.Status != dispatch.StatusFailed || got.ExitCode != 1 {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.Error != rec.Error || !got.Truncated || got.Runtime != "embedded" {
		t.Fatalf("fields lost: %+v", got)
	}
	if len(got.Stderr) != maxStderrBytes {
		t.Fatalf("stderr len = %d, want %d", len(got.Stderr), maxStderrBytes)
	}
	if got.Stdout != "" {
		t.Fatal("stdout must not be persisted")
	}
	if got.Duration != 1500*time.Millisecond || got.Len != len(rec.Line) {
		t.Fatalf("duration/len = %v/%d", got.Duration, got.Len)
	}
	if !got.StartedAt.Equal(rec.StartedAt) {
		t.Fatalf("started_at = %v, want %v", got.StartedAt, rec.StartedAt)
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) = %v, want ErrNotFound", err)
	}
	if err := s.Record(ctx, dispatch.Record{}); err == nil {
		t.Fatal("expected error for empty id")
	}
}

func TestStoreKeepsStderrValidUTF8(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)

	// "é" is two bytes; the cap falls between them.
	rec := record("d-utf8", op.Cat, dispatch.StatusFailed, time.Now())
	rec.Stderr = strings.Repeat("e", maxStderrBytes-1) + "é" + "tail"
	if err := s.Record(ctx, rec); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := s.Get(ctx, "d-utf8")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !utf8.ValidString(got.Stderr) {
		t.Fatal("stored stderr is not valid UTF-8")
	}
	if len(got.Stderr) != maxStderrBytes-1 {
		t.Fatalf("stderr len = %d, want %d", len(got.Stderr), maxStderrBytes-1)
	}

	if c := capStderr("short é"); c != "short é" {
		t.Fatalf("capStderr changed a short string: %q", c)
	}
}

func TestStoreListFilters(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)

	base := time.Now().Add(-time.Hour)
	for i, r := range []dispatch.Record{
		record("a", op.Cat, dispatch.StatusSucceeded, base),
		record("b", op.Cat, dispatch.StatusFailed, base.Add(time.Minute)),
		record("c", op.PinAdd, dispatch.StatusSucceeded, base.Add(2*time.Minute)),
		record("d", op.Cat, dispatch.StatusSucceeded, base.Add(3*time.Minute)),
	} {
		if err := s.Record(ctx, r); err != nil {
			t.Fatalf("Record %d: %v", i, err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"all newest first", Filter{}, []string{"d", "c", "b", "a"}},
		{"by op", Filter{Op: op.Cat}, []string{"d", "b", "a"}},
		{"by status", Filter{Status: dispatch.StatusSucceeded}, []string{"d", "c", "a"}},
		{"op and status", Filter{Op: op.Cat, Status: dispatch.StatusFailed}, []string{"b"}},
		{"since", Filter{Since: base.Add(90 * time.Second)}, []string{"d", "c"}},
		{"limit", Filter{Limit: 2}, []string{"d", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			ids := make([]string, len(got))
			for i, r := range got {
				ids[i] = r.ID
			}
			if fmt.Sprint(ids) != fmt.Sprint(tt.want) {
				t.Fatalf("ids = %v, want %v", ids, tt.want)
			}
		})
	}
}

func TestStorePrune(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)

	now := time.Now()
	_ = s.Record(ctx, record("old", op.Cat, dispatch.StatusSucceeded, now.Add(-48*time.Hour)))
	_ = s.Record(ctx, record("new", op.Cat, dispatch.StatusSucceeded, now))

	n, err := s.Prune(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("pruned %d, want 1", n)
	}
	if _, err := s.Get(ctx, "old"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("old record survived: %v", err)
	}
	if _, err := s.Get(ctx, "new"); err != nil {
		t.Fatalf("new record lost: %v", err)
	}
}

func TestRunPrunerStopsOnCancel(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	_ = s.Record(context.Background(), record("old", op.Cat, dispatch.StatusSucceeded, time.Now().Add(-time.Hour)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunPruner(ctx, time.Minute, time.Hour)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := s.Get(context.Background(), "old"); errors.Is(err, ErrNotFound) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("pruner never ran")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pruner did not stop")
	}
}

func TestDispatcherRecordsIntoStore(t *testing.T) {
	t.Parallel()
	s := openStore(t)

	rt := runtime.NewEmbedded(func(_ context.Context, p runtime.Payload, stdout, _ io.Writer) int {
		_, _ = io.WriteString(stdout, p.Line)
		return 0
	}, runtime.EmbeddedConfig{})
	d := dispatch.New(rt, dispatch.Config{}).WithRecorder(s)

	c, err := command.PinAdd("/ipfs/QmA", true)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Dispatch(context.Background(), c); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	recs, err := s.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	got := recs[0]
	if got.Line != "pin add /ipfs/QmA -r true" || got.Fingerprint != c.Fingerprint() || got.Status != dispatch.StatusSucceeded {
		t.Fatalf("unexpected record: %+v", got)
	}
}
