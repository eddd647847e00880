// Package ipfs is the typed call surface of the bridge. Each method encodes
// one operation and dispatches it through a single runtime call.
package ipfs

import (
	"context"
	"fmt"

	"mvdan.cc/sh/v3/shell"

	"github.com/mattjoyce/ipfsbridge/pkg/command"
	"github.com/mattjoyce/ipfsbridge/pkg/dispatch"
	"github.com/mattjoyce/ipfsbridge/pkg/op"
	"github.com/mattjoyce/ipfsbridge/pkg/runtime"
)

// Client exposes every supported operation.
type Client struct {
	d *dispatch.Dispatcher
}

// New creates a Client over a dispatcher.
func New(d *dispatch.Dispatcher) *Client {
	return &Client{d: d}
}

// NewWithRuntime creates a Client with a default dispatcher for rt.
func NewWithRuntime(rt runtime.Runtime) *Client {
	return New(dispatch.New(rt, dispatch.Config{}))
}

// Dispatcher returns the underlying dispatcher.
func (c *Client) Dispatcher() *dispatch.Dispatcher { return c.d }

// APIVersion returns the version of this call surface.
func (c *Client) APIVersion() string { return op.APIVersion }

// do dispatches an encoded command. Encoding errors are returned before the
// runtime is touched.
func (c *Client) do(ctx context.Context, cmd command.Command, err error) (*runtime.Result, error) {
	if err != nil {
		return nil, err
	}
	return c.d.Dispatch(ctx, cmd)
}

// Run resolves name through the registry and dispatches it with values.
func (c *Client) Run(ctx context.Context, name string, values command.Values) (*runtime.Result, error) {
	d, err := op.Lookup(name)
	if err != nil {
		return nil, err
	}
	cmd, err := command.Encode(d.ID, values)
	return c.do(ctx, cmd, err)
}

// Exec passes an already split command line through unchanged.
func (c *Client) Exec(ctx context.Context, argv []string) (*runtime.Result, error) {
	cmd, err := command.Raw(argv)
	return c.do(ctx, cmd, err)
}

// ExecLine splits line with shell-words rules and passes it through.
func (c *Client) ExecLine(ctx context.Context, line string) (*runtime.Result, error) {
	argv, err := SplitLine(line)
	if err != nil {
		return nil, err
	}
	return c.Exec(ctx, argv)
}

// SplitLine splits a command line the way a POSIX shell would. Variables
// expand to the empty string and no command substitution is run. A leading
// "ipfs" word is dropped.
func SplitLine(line string) ([]string, error) {
	argv, err := shell.Fields(line, func(string) string { return "" })
	if err != nil {
		return nil, fmt.Errorf("%w: %v", command.ErrInvalidArgument, err)
	}
	if len(argv) > 0 && argv[0] == "ipfs" {
		argv = argv[1:]
	}
	return argv, nil
}

// basic

func (c *Client) Init(ctx context.Context, bits uint, passphrase *string, force bool) (*runtime.Result, error) {
	cmd, err := command.Init(bits, passphrase, force)
	return c.do(ctx, cmd, err)
}

func (c *Client) Add(ctx context.Context, path string, recursive, quiet, progress, wrapWithDirectory, trickle bool) (*runtime.Result, error) {
	cmd, err := command.Add(path, recursive, quiet, progress, wrapWithDirectory, trickle)
	return c.do(ctx, cmd, err)
}

func (c *Client) Cat(ctx context.Context, path string) (*runtime.Result, error) {
	cmd, err := command.Cat(path)
	return c.do(ctx, cmd, err)
}

// Get downloads path. level is only sent when compress is set.
func (c *Client) Get(ctx context.Context, path string, output *string, archive, compress bool, level uint) (*runtime.Result, error) {
	cmd, err := command.Get(path, output, archive, compress, level)
	return c.do(ctx, cmd, err)
}

func (c *Client) Ls(ctx context.Context, path string) (*runtime.Result, error) {
	cmd, err := command.Ls(path)
	return c.do(ctx, cmd, err)
}

func (c *Client) Refs(ctx context.Context, path string, format *string, edges, unique, recursive bool) (*runtime.Result, error) {
	cmd, err := command.Refs(path, format, edges, unique, recursive)
	return c.do(ctx, cmd, err)
}

func (c *Client) RefsLocal(ctx context.Context) (*runtime.Result, error) {
	cmd, err := command.RefsLocal()
	return c.do(ctx, cmd, err)
}

// data structure

func (c *Client) BlockPut(ctx context.Context, data string) (*runtime.Result, error) {
	cmd, err := command.BlockPut(data)
	return c.do(ctx, cmd, err)
}

func (c *Client) BlockStat(ctx context.Context, key string) (*runtime.Result, error) {
	cmd, err := command.BlockStat(key)
	return c.do(ctx, cmd, err)
}

func (c *Client) BlockGet(ctx context.Context, key string) (*runtime.Result, error) {
	cmd, err := command.BlockGet(key)
	return c.do(ctx, cmd, err)
}

func (c *Client) ObjectData(ctx context.Context, key string) (*runtime.Result, error) {
	cmd, err := command.ObjectData(key)
	return c.do(ctx, cmd, err)
}

func (c *Client) ObjectLinks(ctx context.Context, key string) (*runtime.Result, error) {
	cmd, err := command.ObjectLinks(key)
	return c.do(ctx, cmd, err)
}

func (c *Client) ObjectGet(ctx context.Context, key string) (*runtime.Result, error) {
	cmd, err := command.ObjectGet(key)
	return c.do(ctx, cmd, err)
}

func (c *Client) ObjectPut(ctx context.Context, data string) (*runtime.Result, error) {
	cmd, err := command.ObjectPut(data)
	return c.do(ctx, cmd, err)
}

func (c *Client) ObjectStat(ctx context.Context, key string) (*runtime.Result, error) {
	cmd, err := command.ObjectStat(key)
	return c.do(ctx, cmd, err)
}

// advanced

// Daemon blocks for as long as the runtime keeps the daemon running.
func (c *Client) Daemon(ctx context.Context, init bool, routing *string, mount, writable bool, mountIPFS, mountIPNS *string) (*runtime.Result, error) {
	cmd, err := command.Daemon(init, routing, mount, writable, mountIPFS, mountIPNS)
	return c.do(ctx, cmd, err)
}

func (c *Client) Mount(ctx context.Context, ipfsPath, ipnsPath *string) (*runtime.Result, error) {
	cmd, err := command.Mount(ipfsPath, ipnsPath)
	return c.do(ctx, cmd, err)
}

func (c *Client) NamePublish(ctx context.Context, name, path string) (*runtime.Result, error) {
	cmd, err := command.NamePublish(name, path)
	return c.do(ctx, cmd, err)
}

func (c *Client) NameResolve(ctx context.Context, name *string) (*runtime.Result, error) {
	cmd, err := command.NameResolve(name)
	return c.do(ctx, cmd, err)
}

func (c *Client) PinRm(ctx context.Context, path string, recursive bool) (*runtime.Result, error) {
	cmd, err := command.PinRm(path, recursive)
	return c.do(ctx, cmd, err)
}

func (c *Client) PinLs(ctx context.Context, typ *string) (*runtime.Result, error) {
	cmd, err := command.PinLs(typ)
	return c.do(ctx, cmd, err)
}

func (c *Client) PinAdd(ctx context.Context, path string, recursive bool) (*runtime.Result, error) {
	cmd, err := command.PinAdd(path, recursive)
	return c.do(ctx, cmd, err)
}

func (c *Client) RepoGC(ctx context.Context, quiet bool) (*runtime.Result, error) {
	cmd, err := command.RepoGC(quiet)
	return c.do(ctx, cmd, err)
}

// network

// ID is NetworkID under the runtime's own command name.
func (c *Client) ID(ctx context.Context, peerID *string) (*runtime.Result, error) {
	return c.NetworkID(ctx, peerID)
}

func (c *Client) NetworkID(ctx context.Context, peerID *string) (*runtime.Result, error) {
	cmd, err := command.NetworkID(peerID)
	return c.do(ctx, cmd, err)
}

func (c *Client) BootstrapList(ctx context.Context) (*runtime.Result, error) {
	cmd, err := command.BootstrapList()
	return c.do(ctx, cmd, err)
}

func (c *Client) BootstrapAdd(ctx context.Context, peer *string, defaultNodes bool) (*runtime.Result, error) {
	cmd, err := command.BootstrapAdd(peer, defaultNodes)
	return c.do(ctx, cmd, err)
}

func (c *Client) BootstrapRm(ctx context.Context, peer *string, all bool) (*runtime.Result, error) {
	cmd, err := command.BootstrapRm(peer, all)
	return c.do(ctx, cmd, err)
}

func (c *Client) SwarmPeers(ctx context.Context) (*runtime.Result, error) {
	cmd, err := command.SwarmPeers()
	return c.do(ctx, cmd, err)
}

func (c *Client) SwarmAddrs(ctx context.Context) (*runtime.Result, error) {
	cmd, err := command.SwarmAddrs()
	return c.do(ctx, cmd, err)
}

func (c *Client) SwarmConnect(ctx context.Context, address *string) (*runtime.Result, error) {
	cmd, err := command.SwarmConnect(address)
	return c.do(ctx, cmd, err)
}

func (c *Client) SwarmDisconnect(ctx context.Context, address *string) (*runtime.Result, error) {
	cmd, err := command.SwarmDisconnect(address)
	return c.do(ctx, cmd, err)
}

func (c *Client) DHTQuery(ctx context.Context, peerID string, verbose bool) (*runtime.Result, error) {
	cmd, err := command.DHTQuery(peerID, verbose)
	return c.do(ctx, cmd, err)
}

func (c *Client) DHTFindProvs(ctx context.Context, key string, verbose bool) (*runtime.Result, error) {
	cmd, err := command.DHTFindProvs(key, verbose)
	return c.do(ctx, cmd, err)
}

func (c *Client) DHTFindPeer(ctx context.Context, peerID *string) (*runtime.Result, error) {
	cmd, err := command.DHTFindPeer(peerID)
	return c.do(ctx, cmd, err)
}

// Ping sends count pings, or the runtime default when count is 0.
func (c *Client) Ping(ctx context.Context, peerID *string, count uint) (*runtime.Result, error) {
	cmd, err := command.Ping(peerID, count)
	return c.do(ctx, cmd, err)
}

func (c *Client) DiagNet(ctx context.Context, timeout uint) (*runtime.Result, error) {
	cmd, err := command.DiagNet(timeout)
	return c.do(ctx, cmd, err)
}

// tool

func (c *Client) ConfigGet(ctx context.Context, key *string) (*runtime.Result, error) {
	cmd, err := command.ConfigGet(key)
	return c.do(ctx, cmd, err)
}

func (c *Client) ConfigSet(ctx context.Context, key, value *string) (*runtime.Result, error) {
	cmd, err := command.ConfigSet(key, value)
	return c.do(ctx, cmd, err)
}

func (c *Client) ConfigShow(ctx context.Context) (*runtime.Result, error) {
	cmd, err := command.ConfigShow()
	return c.do(ctx, cmd, err)
}

func (c *Client) ConfigEdit(ctx context.Context) (*runtime.Result, error) {
	cmd, err := command.ConfigEdit()
	return c.do(ctx, cmd, err)
}

func (c *Client) ConfigReplace(ctx context.Context, file *string) (*runtime.Result, error) {
	cmd, err := command.ConfigReplace(file)
	return c.do(ctx, cmd, err)
}

func (c *Client) Version(ctx context.Context) (*runtime.Result, error) {
	cmd, err := command.Version()
	return c.do(ctx, cmd, err)
}
