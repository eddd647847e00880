package command

import "github.com/mattjoyce/ipfsbridge/pkg/op"

// Init encodes "init". bits is always emitted.
func Init(bits uint, passphrase *string, force bool) (Command, error) {
	b := newBuilder(op.Init)
	b.uintFlag("bits", "-b", bits)
	b.stringFlag("passphrase", "-p", passphrase)
	b.boolFlag("force", "-f", force)
	return b.build()
}

func Add(path string, recursive, quiet, progress, wrapWithDirectory, trickle bool) (Command, error) {
	b := newBuilder(op.Add)
	b.arg("path", path)
	b.boolFlag("recursive", "-r", recursive)
	b.boolFlag("quiet", "-q", quiet)
	b.boolFlag("progress", "-p", progress)
	b.boolFlag("wrap_with_directory", "-w", wrapWithDirectory)
	b.boolFlag("trickle", "-t", trickle)
	return b.build()
}

func Cat(path string) (Command, error) {
	b := newBuilder(op.Cat)
	b.arg("path", path)
	return b.build()
}

// Get encodes "get". compressionLevel is emitted if and only if compress is
// set.
func Get(path string, output *string, archive, compress bool, compressionLevel uint) (Command, error) {
	b := newBuilder(op.Get)
	b.arg("path", path)
	b.stringFlag("output", "-o", output)
	b.boolFlag("archive", "-a", archive)
	b.boolFlag("compress", "-C", compress)
	b.uintFlagIf("compression_level", "-l", compressionLevel, compress)
	return b.build()
}

func Ls(path string) (Command, error) {
	b := newBuilder(op.Ls)
	b.arg("path", path)
	return b.build()
}

func Refs(path string, format *string, edges, unique, recursive bool) (Command, error) {
	b := newBuilder(op.Refs)
	b.arg("path", path)
	b.stringFlag("format", "-format", format)
	b.boolFlag("edges", "-e", edges)
	b.boolFlag("unique", "-u", unique)
	b.boolFlag("recursive", "-r", recursive)
	return b.build()
}

func RefsLocal() (Command, error) {
	return newBuilder(op.RefsLocal).build()
}

func BlockPut(data string) (Command, error) {
	return keyed(op.BlockPut, "data", data)
}

func BlockStat(key string) (Command, error) {
	return keyed(op.BlockStat, "key", key)
}

func BlockGet(key string) (Command, error) {
	return keyed(op.BlockGet, "key", key)
}

func ObjectData(key string) (Command, error) {
	return keyed(op.ObjectData, "key", key)
}

func ObjectLinks(key string) (Command, error) {
	return keyed(op.ObjectLinks, "key", key)
}

func ObjectGet(key string) (Command, error) {
	return keyed(op.ObjectGet, "key", key)
}

func ObjectPut(data string) (Command, error) {
	return keyed(op.ObjectPut, "data", data)
}

func ObjectStat(key string) (Command, error) {
	return keyed(op.ObjectStat, "key", key)
}

func keyed(id op.ID, param, v string) (Command, error) {
	b := newBuilder(id)
	b.arg(param, v)
	return b.build()
}

func Daemon(init bool, routing *string, mount, writable bool, mountIPFS, mountIPNS *string) (Command, error) {
	b := newBuilder(op.Daemon)
	b.boolFlag("init", "-init", init)
	b.stringFlag("routing", "-routing", routing)
	b.boolFlag("mount", "-mount", mount)
	b.boolFlag("writable", "-writable", writable)
	b.stringFlag("mount_ipfs", "-mount-ipfs", mountIPFS)
	b.stringFlag("mount_ipns", "-mount-ipns", mountIPNS)
	return b.build()
}

func Mount(f, n *string) (Command, error) {
	b := newBuilder(op.Mount)
	b.stringFlag("f", "-f", f)
	b.stringFlag("n", "-n", n)
	return b.build()
}

func NamePublish(name, path string) (Command, error) {
	b := newBuilder(op.NamePublish)
	b.arg("name", name)
	b.arg("path", path)
	return b.build()
}

// NameResolve encodes "name resolve". A nil name resolves the node's own ID.
func NameResolve(name *string) (Command, error) {
	b := newBuilder(op.NameResolve)
	b.optArg("name", name)
	return b.build()
}

func PinRm(path string, recursive bool) (Command, error) {
	b := newBuilder(op.PinRm)
	b.arg("path", path)
	b.boolFlag("recursive", "-r", recursive)
	return b.build()
}

// PinLs encodes "pin ls". typ is one of op.PinTypes; nil leaves the runtime
// default.
func PinLs(typ *string) (Command, error) {
	b := newBuilder(op.PinLs)
	b.stringFlag("type", "-t", typ)
	return b.build()
}

func PinAdd(path string, recursive bool) (Command, error) {
	b := newBuilder(op.PinAdd)
	b.arg("path", path)
	b.boolFlag("recursive", "-r", recursive)
	return b.build()
}

func RepoGC(quiet bool) (Command, error) {
	b := newBuilder(op.RepoGC)
	b.boolFlag("quiet", "-q", quiet)
	return b.build()
}

func NetworkID(peerID *string) (Command, error) {
	b := newBuilder(op.NetworkID)
	b.optArg("peer_id", peerID)
	return b.build()
}

func BootstrapList() (Command, error) {
	return newBuilder(op.BootstrapList).build()
}

func BootstrapAdd(peer *string, defaultNodes bool) (Command, error) {
	b := newBuilder(op.BootstrapAdd)
	b.optArg("peer", peer)
	b.boolFlag("default_nodes", "-default", defaultNodes)
	return b.build()
}

func BootstrapRm(peer *string, all bool) (Command, error) {
	b := newBuilder(op.BootstrapRm)
	b.optArg("peer", peer)
	b.boolFlag("all", "-all", all)
	return b.build()
}

func SwarmPeers() (Command, error) {
	return newBuilder(op.SwarmPeers).build()
}

func SwarmAddrs() (Command, error) {
	return newBuilder(op.SwarmAddrs).build()
}

func SwarmConnect(address *string) (Command, error) {
	b := newBuilder(op.SwarmConnect)
	b.optArg("address", address)
	return b.build()
}

func SwarmDisconnect(address *string) (Command, error) {
	b := newBuilder(op.SwarmDisconn)
	b.optArg("address", address)
	return b.build()
}

func DHTQuery(peerID string, verbose bool) (Command, error) {
	b := newBuilder(op.DHTQuery)
	b.arg("peer_id", peerID)
	b.boolFlag("verbose", "-v", verbose)
	return b.build()
}

func DHTFindProvs(key string, verbose bool) (Command, error) {
	b := newBuilder(op.DHTFindProvs)
	b.arg("key", key)
	b.boolFlag("verbose", "-v", verbose)
	return b.build()
}

func DHTFindPeer(peerID *string) (Command, error) {
	b := newBuilder(op.DHTFindPeer)
	b.optArg("peer_id", peerID)
	return b.build()
}

// Ping encodes "ping". A zero count leaves the runtime default.
func Ping(peerID *string, count uint) (Command, error) {
	b := newBuilder(op.Ping)
	b.optArg("peer_id", peerID)
	b.uintFlagIf("count", "-n", count, count > 0)
	return b.build()
}

// DiagNet encodes "diag net". timeout is always emitted; the runtime
// interprets it.
func DiagNet(timeout uint) (Command, error) {
	b := newBuilder(op.DiagNet)
	b.uintFlag("timeout", "-timeout", timeout)
	return b.build()
}

func ConfigGet(key *string) (Command, error) {
	b := newBuilder(op.ConfigGet)
	b.optArg("key", key)
	return b.build()
}

func ConfigSet(key, value *string) (Command, error) {
	b := newBuilder(op.ConfigSet)
	b.optArg("key", key)
	b.optArg("value", value)
	return b.build()
}

func ConfigShow() (Command, error) {
	return newBuilder(op.ConfigShow).build()
}

func ConfigEdit() (Command, error) {
	return newBuilder(op.ConfigEdit).build()
}

func ConfigReplace(file *string) (Command, error) {
	b := newBuilder(op.ConfigReplace)
	b.optArg("file", file)
	return b.build()
}

func Version() (Command, error) {
	return newBuilder(op.Version).build()
}
