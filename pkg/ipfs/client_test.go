package ipfs

import (
	"context"
	"os"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func strp(s string) *string { return &s }

// newRecordingClient returns a client whose runtime records each payload line.
func newRecordingClient(t *testing.T, lines *[]string) *Client {
	t.Helper()
	ctrl := gomock.NewController(t)
	rt := mocks.NewMockRuntime(ctrl)
	rt.EXPECT().Name().Return("mock").AnyTimes()
	rt.EXPECT().Execute(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, p runtime.Payload) (*runtime.Result, error) {
			*lines = append(*lines, p.Line)
			return &runtime.Result{}, nil
		}).AnyTimes()
	return NewWithRuntime(rt)
}

func TestClientMethodsEncode(t *testing.T) {
	var lines []string
	c := newRecordingClient(t, &lines)
	ctx := context.Background()

	calls := []struct {
		call func() (*runtime.Result, error)
		want string
	}{
		{func() (*runtime.Result, error) { return c.Init(ctx, 2048, nil, false) }, "init -b 2048 -f false"},
		{func() (*runtime.Result, error) { return c.Add(ctx, "f.txt", false, true, false, false, false) }, "add f.txt -r false -q true -p false -w false -t false"},
		{func() (*runtime.Result, error) { return c.Cat(ctx, "QmA") }, "cat QmA"},
		{func() (*runtime.Result, error) { return c.Get(ctx, "QmA", nil, false, false, 5) }, "get QmA -a false -C false"},
		{func() (*runtime.Result, error) { return c.Ls(ctx, "QmA") }, "ls QmA"},
		{func() (*runtime.Result, error) { return c.Refs(ctx, "QmA", nil, false, false, true) }, "refs QmA -e false -u false -r true"},
		{func() (*runtime.Result, error) { return c.RefsLocal(ctx) }, "refs local"},
		{func() (*runtime.Result, error) { return c.BlockPut(ctx, "data") }, "block put data"},
		{func() (*runtime.Result, error) { return c.BlockStat(ctx, "QmB") }, "block stat QmB"},
		{func() (*runtime.Result, error) { return c.BlockGet(ctx, "QmB") }, "block get QmB"},
		{func() (*runtime.Result, error) { return c.ObjectData(ctx, "QmO") }, "object data QmO"},
		{func() (*runtime.Result, error) { return c.ObjectLinks(ctx, "QmO") }, "object links QmO"},
		{func() (*runtime.Result, error) { return c.ObjectGet(ctx, "QmO") }, "object get QmO"},
		{func() (*runtime.Result, error) { return c.ObjectPut(ctx, "node.json") }, "object put node.json"},
		{func() (*runtime.Result, error) { return c.ObjectStat(ctx, "QmO") }, "object stat QmO"},
		{func() (*runtime.Result, error) { return c.Daemon(ctx, false, nil, true, false, nil, nil) }, "daemon -init false -mount true -writable false"},
		{func() (*runtime.Result, error) { return c.Mount(ctx, nil, strp("/ipns")) }, "mount -n /ipns"},
		{func() (*runtime.Result, error) { return c.NamePublish(ctx, "self", "/ipfs/QmA") }, "name publish self /ipfs/QmA"},
		{func() (*runtime.Result, error) { return c.NameResolve(ctx, strp("QmK")) }, "name resolve QmK"},
		{func() (*runtime.Result, error) { return c.PinRm(ctx, "QmA", true) }, "pin rm QmA -r true"},
		{func() (*runtime.Result, error) { return c.PinLs(ctx, nil) }, "pin ls"},
		{func() (*runtime.Result, error) { return c.PinAdd(ctx, "QmA", false) }, "pin add QmA -r false"},
		{func() (*runtime.Result, error) { return c.RepoGC(ctx, false) }, "repo gc -q false"},
		{func() (*runtime.Result, error) { return c.ID(ctx, nil) }, "id"},
		{func() (*runtime.Result, error) { return c.NetworkID(ctx, strp("QmP")) }, "id QmP"},
		{func() (*runtime.Result, error) { return c.BootstrapList(ctx) }, "bootstrap list"},
		{func() (*runtime.Result, error) { return c.BootstrapAdd(ctx, strp("/dnsaddr/x/p2p/QmP"), false) }, "bootstrap add /dnsaddr/x/p2p/QmP -default false"},
		{func() (*runtime.Result, error) { return c.BootstrapRm(ctx, nil, true) }, "bootstrap rm -all true"},
		{func() (*runtime.Result, error) { return c.SwarmPeers(ctx) }, "swarm peers"},
		{func() (*runtime.Result, error) { return c.SwarmAddrs(ctx) }, "swarm addrs"},
		{func() (*runtime.Result, error) { return c.SwarmConnect(ctx, strp("/ip4/1.2.3.4/tcp/4001/p2p/QmP")) }, "swarm connect /ip4/1.2.3.4/tcp/4001/p2p/QmP"},
		{func() (*runtime.Result, error) { return c.SwarmDisconnect(ctx, nil) }, "swarm disconnect"},
		{func() (*runtime.Result, error) { return c.DHTQuery(ctx, "QmP", false) }, "dht query QmP -v false"},
		{func() (*runtime.Result, error) { return c.DHTFindProvs(ctx, "QmA", true) }, "dht findprovs QmA -v true"},
		{func() (*runtime.Result, error) { return c.DHTFindPeer(ctx, nil) }, "dht findpeer"},
		{func() (*runtime.Result, error) { return c.Ping(ctx, strp("QmP"), 0) }, "ping QmP"},
		{func() (*runtime.Result, error) { return c.DiagNet(ctx, 0) }, "diag net -timeout 0"},
		{func() (*runtime.Result, error) { return c.ConfigGet(ctx, strp("Identity.PeerID")) }, "config Identity.PeerID"},
		{func() (*runtime.Result, error) { return c.ConfigSet(ctx, strp("Gateway.Writable"), strp("true")) }, "config Gateway.Writable true"},
		{func() (*runtime.Result, error) { return c.ConfigShow(ctx) }, "config show"},
		{func() (*runtime.Result, error) { return c.ConfigEdit(ctx) }, "config edit"},
		{func() (*runtime.Result, error) { return c.ConfigReplace(ctx, strp("cfg.json")) }, "config replace cfg.json"},
		{func() (*runtime.Result, error) { return c.Version(ctx) }, "version"},
	}

	for i, tc := range calls {
		_, err := tc.call()
		require.NoError(t, err, tc.want)
		require.Len(t, lines, i+1)
		assert.Equal(t, tc.want, lines[i])
	}
}

func TestClientInitTakesContext(t *testing.T) {
	var lines []string
	c := newRecordingClient(t, &lines)
	_, err := c.Init(context.Background(), 1024, strp("pw"), true)
	require.NoError(t, err)
	assert.Equal(t, []string{"init -b 1024 -p pw -f true"}, lines)
}

func TestEncodingErrorsNeverDispatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	rt := mocks.NewMockRuntime(ctrl)
	rt.EXPECT().Execute(gomock.Any(), gomock.Any()).Times(0)
	c := NewWithRuntime(rt)
	ctx := context.Background()

	_, err := c.Cat(ctx, "")
	assert.ErrorIs(t, err, command.ErrMissingArgument)

	_, err = c.DHTQuery(ctx, "-x", false)
	assert.ErrorIs(t, err, command.ErrUnrepresentable)

	_, err = c.Run(ctx, "pin frob", nil)
	assert.ErrorIs(t, err, op.ErrUnknownOp)

	_, err = c.Run(ctx, "pin add", command.Values{"path": "QmA", "bogus": 1})
	assert.ErrorIs(t, err, command.ErrInvalidArgument)

	_, err = c.Exec(ctx, nil)
	assert.ErrorIs(t, err, command.ErrMissingArgument)

	_, err = c.ExecLine(ctx, `cat "unterminated`)
	assert.ErrorIs(t, err, command.ErrInvalidArgument)
}

func TestRunResolvesAliases(t *testing.T) {
	var lines []string
	c := newRecordingClient(t, &lines)
	ctx := context.Background()

	for _, name := range []string{"pin_add", "ipfs_pin_add", "pin add", "ipfs pin add"} {
		_, err := c.Run(ctx, name, command.Values{"path": "QmA", "recursive": true})
		require.NoError(t, err, name)
	}
	_, err := c.Run(ctx, "id", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"pin add QmA -r true",
		"pin add QmA -r true",
		"pin add QmA -r true",
		"pin add QmA -r true",
		"id",
	}, lines)
}

func TestExecLine(t *testing.T) {
	var lines []string
	c := newRecordingClient(t, &lines)
	ctx := context.Background()

	_, err := c.ExecLine(ctx, `ipfs refs QmA -format '<src> <dst>'`)
	require.NoError(t, err)
	_, err = c.Exec(ctx, []string{"pin", "ls", "--type=direct"})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"refs QmA -format '<src> <dst>'",
		"pin ls --type=direct",
	}, lines)
}

func TestSplitLine(t *testing.T) {
	argv, err := SplitLine(`pin add "/ipfs/Qm A" -r true`)
	require.NoError(t, err)
	assert.Equal(t, []string{"pin", "add", "/ipfs/Qm A", "-r", "true"}, argv)

	argv, err = SplitLine(`cat $HOME`)
	require.NoError(t, err)
	assert.Equal(t, []string{"cat"}, argv)
}

func TestAPIVersion(t *testing.T) {
	c := NewWithRuntime(runtime.NewEmbedded(nil, runtime.EmbeddedConfig{}))
	assert.Equal(t, op.APIVersion, c.APIVersion())
	assert.NotNil(t, c.Dispatcher())
}
