package dispatch

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/ipfsbridge/internal/events"
	"github.com/mattjoyce/ipfsbridge/internal/log"
	"github.com/mattjoyce/ipfsbridge/pkg/command"
	"github.com/mattjoyce/ipfsbridge/pkg/op"
	"github.com/mattjoyce/ipfsbridge/pkg/runtime"
	"github.com/mattjoyce/ipfsbridge/pkg/runtime/mocks"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR", "json")
	os.Exit(m.Run())
}

type memRecorder struct {
	mu   sync.Mutex
	recs []Record
}

func (m *memRecorder) Record(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return nil
}

func mustPinAdd(t *testing.T) command.Command {
	t.Helper()
	c, err := command.PinAdd("/ipfs/QmA", true)
	require.NoError(t, err)
	return c
}

func TestDispatchCallsRuntimeExactlyOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	rt := mocks.NewMockRuntime(ctrl)
	rt.EXPECT().Name().Return("mock").AnyTimes()

	c := mustPinAdd(t)
	rt.EXPECT().Execute(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, p runtime.Payload) (*runtime.Result, error) {
			assert.Equal(t, "pin add /ipfs/QmA -r true", p.Line)
			assert.Equal(t, len(p.Line), p.Len)
			assert.Equal(t, []string{"pin", "add", "/ipfs/QmA", "-r", "true"}, p.Argv)
			return &runtime.Result{Stdout: "pinned /ipfs/QmA recursively\n"}, nil
		}).Times(1)

	rec := &memRecorder{}
	hub := events.NewHub(10)
	d := New(rt, Config{}).WithRecorder(rec).WithPublisher(hub)
	assert.True(t, d.Serialized())

	res, err := d.Dispatch(context.Background(), c)
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, 0, d.InFlight())

	require.Len(t, rec.recs, 1)
	r := rec.recs[0]
	assert.Equal(t, op.PinAdd, r.Op)
	assert.Equal(t, StatusSucceeded, r.Status)
	assert.Equal(t, "mock", r.Runtime)
	assert.Equal(t, c.Fingerprint(), r.Fingerprint)
	assert.NotEmpty(t, r.ID)
	assert.False(t, r.CompletedAt.Before(r.StartedAt))

	evs := hub.SnapshotSince(0)
	require.Len(t, evs, 2)
	assert.Equal(t, events.DispatchStarted, evs[0].Type)
	assert.Equal(t, events.DispatchCompleted, evs[1].Type)

	assert.GreaterOrEqual(t, Count(op.PinAdd, StatusSucceeded), uint64(1))
}

func TestDispatchNonZeroExit(t *testing.T) {
	ctrl := gomock.NewController(t)
	rt := mocks.NewMockRuntime(ctrl)
	rt.EXPECT().Name().Return("mock").AnyTimes()
	rt.EXPECT().Execute(gomock.Any(), gomock.Any()).
		Return(&runtime.Result{ExitCode: 1, Stderr: "Error: not pinned\n"}, nil).Times(1)

	rec := &memRecorder{}
	hub := events.NewHub(10)
	d := New(rt, Config{}).WithRecorder(rec).WithPublisher(hub)

	c, err := command.PinRm("QmA", false)
	require.NoError(t, err)
	res, err := d.Dispatch(context.Background(), c)
	require.Error(t, err)
	require.NotNil(t, res)

	var exitErr *runtime.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.ExitCode())
	assert.Equal(t, op.PinRm, exitErr.Op)

	require.Len(t, rec.recs, 1)
	assert.Equal(t, StatusFailed, rec.recs[0].Status)
	assert.Equal(t, "Error: not pinned\n", rec.recs[0].Stderr)

	evs := hub.SnapshotSince(0)
	require.Len(t, evs, 2)
	assert.Equal(t, events.DispatchFailed, evs[1].Type)
}

func TestDispatchTransportError(t *testing.T) {
	ctrl := gomock.NewController(t)
	rt := mocks.NewMockRuntime(ctrl)
	rt.EXPECT().Name().Return("mock").AnyTimes()
	boom := errors.New("connection refused")
	rt.EXPECT().Execute(gomock.Any(), gomock.Any()).Return(nil, boom).Times(1)

	rec := &memRecorder{}
	d := New(rt, Config{}).WithRecorder(rec)

	res, err := d.Dispatch(context.Background(), mustPinAdd(t))
	assert.Nil(t, res)
	assert.ErrorIs(t, err, boom)
	require.Len(t, rec.recs, 1)
	assert.Equal(t, StatusError, rec.recs[0].Status)
	assert.Contains(t, rec.recs[0].Error, "connection refused")
}

func TestDispatchNilResult(t *testing.T) {
	ctrl := gomock.NewController(t)
	rt := mocks.NewMockRuntime(ctrl)
	rt.EXPECT().Name().Return("mock").AnyTimes()
	rt.EXPECT().Execute(gomock.Any(), gomock.Any()).Return(nil, nil).Times(1)

	_, err := New(rt, Config{}).Dispatch(context.Background(), mustPinAdd(t))
	assert.ErrorContains(t, err, "no result")
}

func TestDispatchAppliesPerOpTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	rt := mocks.NewMockRuntime(ctrl)
	rt.EXPECT().Name().Return("mock").AnyTimes()
	rt.EXPECT().Execute(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ runtime.Payload) (*runtime.Result, error) {
			deadline, ok := ctx.Deadline()
			require.True(t, ok)
			assert.WithinDuration(t, time.Now().Add(50*time.Millisecond), deadline, 50*time.Millisecond)
			<-ctx.Done()
			return &runtime.Result{ExitCode: -1}, ctx.Err()
		})

	d := New(rt, Config{
		DefaultTimeout: time.Hour,
		Timeouts:       map[op.ID]time.Duration{op.PinAdd: 50 * time.Millisecond},
	})
	assert.Equal(t, time.Hour, d.Timeout(op.Version))
	assert.Equal(t, 50*time.Millisecond, d.Timeout(op.PinAdd))

	_, err := d.Dispatch(context.Background(), mustPinAdd(t))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDispatchNoTimeoutWhenZero(t *testing.T) {
	ctrl := gomock.NewController(t)
	rt := mocks.NewMockRuntime(ctrl)
	rt.EXPECT().Name().Return("mock").AnyTimes()
	rt.EXPECT().Execute(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ runtime.Payload) (*runtime.Result, error) {
			_, ok := ctx.Deadline()
			assert.False(t, ok)
			return &runtime.Result{}, nil
		})

	_, err := New(rt, Config{}).Dispatch(context.Background(), mustPinAdd(t))
	require.NoError(t, err)
}

// countingRuntime tracks the maximum number of overlapping Execute calls.
type countingRuntime struct {
	reentrant bool
	cur, max  atomic.Int64
	calls     atomic.Int64
}

func (c *countingRuntime) Name() string    { return "counting" }
func (c *countingRuntime) Reentrant() bool { return c.reentrant }

func (c *countingRuntime) Execute(ctx context.Context, p runtime.Payload) (*runtime.Result, error) {
	c.calls.Add(1)
	n := c.cur.Add(1)
	for {
		m := c.max.Load()
		if n <= m || c.max.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	c.cur.Add(-1)
	return &runtime.Result{}, nil
}

func runConcurrently(t *testing.T, d *Dispatcher, n int) {
	t.Helper()
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := command.Version()
			assert.NoError(t, err)
			_, err = d.Dispatch(context.Background(), c)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}

func TestNonReentrantRuntimeIsSerialized(t *testing.T) {
	rt := &countingRuntime{}
	d := New(rt, Config{})
	runConcurrently(t, d, 8)
	assert.Equal(t, int64(8), rt.calls.Load())
	assert.Equal(t, int64(1), rt.max.Load())
}

func TestReentrantRuntimeOverlaps(t *testing.T) {
	rt := &countingRuntime{reentrant: true}
	d := New(rt, Config{})
	assert.False(t, d.Serialized())
	runConcurrently(t, d, 8)
	assert.Equal(t, int64(8), rt.calls.Load())
	assert.Greater(t, rt.max.Load(), int64(1))
}

// gateRuntime holds every daemon call until release is closed.
type gateRuntime struct {
	release chan struct{}
	calls   sync.Map
}

func (g *gateRuntime) Name() string { return "gate" }

func (g *gateRuntime) Execute(ctx context.Context, p runtime.Payload) (*runtime.Result, error) {
	n, _ := g.calls.LoadOrStore(p.Op, new(atomic.Int64))
	n.(*atomic.Int64).Add(1)
	if p.Op == op.Daemon {
		<-g.release
	}
	return &runtime.Result{}, nil
}

func (g *gateRuntime) count(id op.ID) int64 {
	n, ok := g.calls.Load(id)
	if !ok {
		return 0
	}
	return n.(*atomic.Int64).Load()
}

func TestQueuedDispatchHonoursDeadline(t *testing.T) {
	rt := &gateRuntime{release: make(chan struct{})}
	rec := &memRecorder{}
	hub := events.NewHub(10)
	d := New(rt, Config{}).WithRecorder(rec).WithPublisher(hub)
	require.True(t, d.Serialized())

	daemon, err := command.Daemon(false, nil, false, false, nil, nil)
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() {
		_, err := d.Dispatch(context.Background(), daemon)
		done <- err
	}()
	require.Eventually(t, func() bool { return d.InFlight() == 1 }, 2*time.Second, 5*time.Millisecond)

	version, err := command.Version()
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	res, err := d.Dispatch(ctx, version)
	assert.Less(t, time.Since(start), time.Second)
	assert.Nil(t, res)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int64(0), rt.count(op.Version))

	rec.mu.Lock()
	require.Len(t, rec.recs, 1)
	abandoned := rec.recs[0]
	rec.mu.Unlock()
	assert.Equal(t, op.Version, abandoned.Op)
	assert.Equal(t, StatusError, abandoned.Status)
	assert.Contains(t, abandoned.Error, context.DeadlineExceeded.Error())

	snap := hub.SnapshotSince(0)
	require.NotEmpty(t, snap)
	assert.Equal(t, events.DispatchFailed, snap[len(snap)-1].Type)

	close(rt.release)
	require.NoError(t, <-done)

	// The turn is free again once the daemon call returns.
	_, err = d.Dispatch(context.Background(), version)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rt.count(op.Version))
}

func TestLockFileSerializesAcrossDispatchers(t *testing.T) {
	lockFile := filepath.Join(t.TempDir(), "repo.lock")
	rt := &countingRuntime{reentrant: true}

	// Two dispatchers stand in for two processes sharing one repository.
	a := New(rt, Config{LockFile: lockFile})
	b := New(rt, Config{LockFile: lockFile})

	var wg sync.WaitGroup
	for _, d := range []*Dispatcher{a, b, a, b} {
		wg.Add(1)
		go func(d *Dispatcher) {
			defer wg.Done()
			c, err := command.Version()
			assert.NoError(t, err)
			_, err = d.Dispatch(context.Background(), c)
			assert.NoError(t, err)
		}(d)
	}
	wg.Wait()
	assert.Equal(t, int64(1), rt.max.Load())
}

func TestEmbeddedRuntimeEndToEnd(t *testing.T) {
	var got []string
	rt := runtime.NewEmbedded(func(_ context.Context, p runtime.Payload, stdout, _ io.Writer) int {
		got = p.Argv
		_, _ = io.WriteString(stdout, "ok\n")
		return 0
	}, runtime.EmbeddedConfig{})

	c, err := command.Ping(nil, 0)
	require.NoError(t, err)
	res, err := New(rt, Config{}).Dispatch(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, []string{"ping"}, got)
	assert.Equal(t, "ok\n", res.Stdout)
}
