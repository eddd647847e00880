package op

import (
	"fmt"
	"sort"
	"strings"
)

const (
	Init          ID = "init"
	Add           ID = "add"
	Cat           ID = "cat"
	Get           ID = "get"
	Ls            ID = "ls"
	Refs          ID = "refs"
	RefsLocal     ID = "refs_local"
	BlockPut      ID = "block_put"
	BlockStat     ID = "block_stat"
	BlockGet      ID = "block_get"
	ObjectData    ID = "object_data"
	ObjectLinks   ID = "object_links"
	ObjectGet     ID = "object_get"
	ObjectPut     ID = "object_put"
	ObjectStat    ID = "object_stat"
	Daemon        ID = "daemon"
	Mount         ID = "mount"
	NamePublish   ID = "name_publish"
	NameResolve   ID = "name_resolve"
	PinRm         ID = "pin_rm"
	PinLs         ID = "pin_ls"
	PinAdd        ID = "pin_add"
	RepoGC        ID = "repo_gc"
	NetworkID     ID = "network_id"
	BootstrapList ID = "bootstrap_list"
	BootstrapAdd  ID = "bootstrap_add"
	BootstrapRm   ID = "bootstrap_rm"
	SwarmPeers    ID = "swarm_peers"
	SwarmAddrs    ID = "swarm_addrs"
	SwarmConnect  ID = "swarm_connect"
	SwarmDisconn  ID = "swarm_disconnect"
	DHTQuery      ID = "dht_query"
	DHTFindProvs  ID = "dht_findprovs"
	DHTFindPeer   ID = "dht_findpeer"
	Ping          ID = "ping"
	DiagNet       ID = "diag_net"
	ConfigGet     ID = "config_get"
	ConfigSet     ID = "config_set"
	ConfigShow    ID = "config_show"
	ConfigEdit    ID = "config_edit"
	ConfigReplace ID = "config_replace"
	Version       ID = "version"
)

// Pin types accepted by pin ls.
var PinTypes = []string{"direct", "indirect", "recursive", "all"}

func pos(name string, required bool, help string) Param {
	return Param{Name: name, Kind: String, Positional: true, Required: required, Help: help}
}

func strFlag(name, flag, rpc, help string) Param {
	return Param{Name: name, Kind: String, Flag: flag, RPC: rpc, Help: help}
}

func boolFlag(name, flag, rpc, help string) Param {
	return Param{Name: name, Kind: Bool, Flag: flag, RPC: rpc, Help: help}
}

func uintFlag(name, flag, rpc, help string) Param {
	return Param{Name: name, Kind: Uint, Flag: flag, RPC: rpc, Help: help}
}

var descriptors = []Descriptor{
	// basic
	{
		ID: Init, Words: []string{"init"}, Group: "basic", Local: true,
		Summary: "Initialize local configuration and generate a new keypair",
		Params: []Param{
			uintFlag("bits", "-b", "bits", "number of bits in the RSA private key"),
			strFlag("passphrase", "-p", "", "passphrase for encrypting the private key"),
			boolFlag("force", "-f", "", "overwrite an existing config"),
		},
	},
	{
		ID: Add, Words: []string{"add"}, Group: "basic", Upload: true,
		Summary: "Add a file or directory",
		Params: []Param{
			pos("path", true, "local path of the content to add"),
			boolFlag("recursive", "-r", "recursive", "add directory paths recursively"),
			boolFlag("quiet", "-q", "quiet", "write minimal output"),
			boolFlag("progress", "-p", "progress", "stream progress data"),
			boolFlag("wrap_with_directory", "-w", "wrap-with-directory", "wrap files with a directory object"),
			boolFlag("trickle", "-t", "trickle", "use trickle-dag format for dag generation"),
		},
	},
	{
		ID: Cat, Words: []string{"cat"}, Group: "basic",
		Summary: "Show object data",
		Params:  []Param{pos("path", true, "path of the object to output")},
	},
	{
		ID: Get, Words: []string{"get"}, Group: "basic",
		Summary: "Download objects to disk",
		Params: []Param{
			pos("path", true, "path of the object to download"),
			strFlag("output", "-o", "output", "path where output should be stored"),
			boolFlag("archive", "-a", "archive", "output a TAR archive"),
			boolFlag("compress", "-C", "compress", "compress the output with GZIP"),
			{Name: "compression_level", Kind: Uint, Flag: "-l", RPC: "compression-level", DependsOn: "compress", Help: "compression level (1-9)"},
		},
	},
	{
		ID: Ls, Words: []string{"ls"}, Group: "basic",
		Summary: "List links from an object",
		Params:  []Param{pos("path", true, "path of the object to list links from")},
	},
	{
		ID: Refs, Words: []string{"refs"}, Group: "basic",
		Summary: "List hashes of links from an object",
		Params: []Param{
			pos("path", true, "path of the object to list refs from"),
			strFlag("format", "-format", "format", "edge format, tokens: <src> <dst> <linkname>"),
			boolFlag("edges", "-e", "edges", "emit edge format: <from> -> <to>"),
			boolFlag("unique", "-u", "unique", "omit duplicate refs"),
			boolFlag("recursive", "-r", "recursive", "recursively list links of child nodes"),
		},
	},
	{
		ID: RefsLocal, Words: []string{"refs", "local"}, Group: "basic",
		Summary: "List hashes of all local objects",
	},

	// data structure
	{
		ID: BlockPut, Words: []string{"block", "put"}, Group: "data", Upload: true,
		Summary: "Store input as a raw block",
		Params:  []Param{pos("data", true, "data to store")},
	},
	{
		ID: BlockStat, Words: []string{"block", "stat"}, Group: "data",
		Summary: "Print information of a raw block",
		Params:  []Param{pos("key", true, "base58 multihash of an existing block")},
	},
	{
		ID: BlockGet, Words: []string{"block", "get"}, Group: "data",
		Summary: "Get a raw block",
		Params:  []Param{pos("key", true, "base58 multihash of an existing block")},
	},
	{
		ID: ObjectData, Words: []string{"object", "data"}, Group: "data",
		Summary: "Output the raw bytes of a DAG node",
		Params:  []Param{pos("key", true, "base58 multihash of the object")},
	},
	{
		ID: ObjectLinks, Words: []string{"object", "links"}, Group: "data",
		Summary: "Output the links of a DAG node",
		Params:  []Param{pos("key", true, "base58 multihash of the object")},
	},
	{
		ID: ObjectGet, Words: []string{"object", "get"}, Group: "data",
		Summary: "Get and serialize a DAG node",
		Params:  []Param{pos("key", true, "base58 multihash of the object")},
	},
	{
		ID: ObjectPut, Words: []string{"object", "put"}, Group: "data", Upload: true,
		Summary: "Store input as a DAG object",
		Params:  []Param{pos("data", true, "data to store")},
	},
	{
		ID: ObjectStat, Words: []string{"object", "stat"}, Group: "data",
		Summary: "Get stats for a DAG node",
		Params:  []Param{pos("key", true, "base58 multihash of the object")},
	},

	// advanced
	{
		ID: Daemon, Words: []string{"daemon"}, Group: "advanced", Local: true,
		Summary: "Run a long-running daemon process",
		Params: []Param{
			boolFlag("init", "-init", "", "initialize with default settings if needed"),
			strFlag("routing", "-routing", "", "routing option override (dht, supernode)"),
			boolFlag("mount", "-mount", "", "mount to the filesystem"),
			boolFlag("writable", "-writable", "", "enable writing objects over the gateway"),
			strFlag("mount_ipfs", "-mount-ipfs", "", "mountpoint for /ipfs"),
			strFlag("mount_ipns", "-mount-ipns", "", "mountpoint for /ipns"),
		},
	},
	{
		ID: Mount, Words: []string{"mount"}, Group: "advanced",
		Summary: "Mount a read-only mountpoint",
		Params: []Param{
			strFlag("f", "-f", "ipfs-path", "where /ipfs should be mounted"),
			strFlag("n", "-n", "ipns-path", "where /ipns should be mounted"),
		},
	},
	{
		ID: NamePublish, Words: []string{"name", "publish"}, Group: "advanced",
		Summary: "Publish an object to IPNS",
		Params: []Param{
			pos("name", true, "IPNS name to publish to"),
			pos("path", true, "path of the object to publish"),
		},
	},
	{
		ID: NameResolve, Words: []string{"name", "resolve"}, Group: "advanced",
		Summary: "Resolve the value published at an IPNS name",
		Params:  []Param{pos("name", false, "IPNS name, defaults to the node's peer ID")},
	},
	{
		ID: PinRm, Words: []string{"pin", "rm"}, Group: "advanced",
		Summary: "Unpin an object from local storage",
		Params: []Param{
			pos("path", true, "path of the object to unpin"),
			boolFlag("recursive", "-r", "recursive", "recursively unpin linked objects"),
		},
	},
	{
		ID: PinLs, Words: []string{"pin", "ls"}, Group: "advanced",
		Summary: "List objects pinned to local storage",
		Params: []Param{
			{Name: "type", Kind: String, Flag: "-t", RPC: "type", Enum: PinTypes, Help: "type of pinned keys to list"},
		},
	},
	{
		ID: PinAdd, Words: []string{"pin", "add"}, Group: "advanced",
		Summary: "Pin objects to local storage",
		Params: []Param{
			pos("path", true, "path of the object to pin"),
			boolFlag("recursive", "-r", "recursive", "recursively pin linked objects"),
		},
	},
	{
		ID: RepoGC, Words: []string{"repo", "gc"}, Group: "advanced",
		Summary: "Garbage collect unpinned objects",
		Params:  []Param{boolFlag("quiet", "-q", "quiet", "write minimal output")},
	},

	// network
	{
		ID: NetworkID, Words: []string{"id"}, Group: "network",
		Summary: "Show node ID info",
		Params:  []Param{pos("peer_id", false, "peer to look up, defaults to the local node")},
	},
	{
		ID: BootstrapList, Words: []string{"bootstrap", "list"}, Group: "network",
		Summary: "Show peers in the bootstrap list",
	},
	{
		ID: BootstrapAdd, Words: []string{"bootstrap", "add"}, Group: "network",
		Summary: "Add peers to the bootstrap list",
		Params: []Param{
			pos("peer", false, "peer as <multiaddr>/<peerID>"),
			boolFlag("default_nodes", "-default", "default", "add the default bootstrap nodes"),
		},
	},
	{
		ID: BootstrapRm, Words: []string{"bootstrap", "rm"}, Group: "network",
		Summary: "Remove peers from the bootstrap list",
		Params: []Param{
			pos("peer", false, "peer as <multiaddr>/<peerID>"),
			boolFlag("all", "-all", "all", "remove all bootstrap peers"),
		},
	},
	{
		ID: SwarmPeers, Words: []string{"swarm", "peers"}, Group: "network",
		Summary: "List peers with open connections",
	},
	{
		ID: SwarmAddrs, Words: []string{"swarm", "addrs"}, Group: "network",
		Summary: "List known addresses",
	},
	{
		ID: SwarmConnect, Words: []string{"swarm", "connect"}, Group: "network",
		Summary: "Open a connection to a peer address",
		Params:  []Param{pos("address", false, "multiaddr of the peer")},
	},
	{
		ID: SwarmDisconn, Words: []string{"swarm", "disconnect"}, Group: "network",
		Summary: "Close a connection to a peer address",
		Params:  []Param{pos("address", false, "multiaddr of the peer")},
	},
	{
		ID: DHTQuery, Words: []string{"dht", "query"}, Group: "network",
		Summary: "Run a closest-peers query through the DHT",
		Params: []Param{
			pos("peer_id", true, "peer ID to run the query against"),
			boolFlag("verbose", "-v", "verbose", "write extra information"),
		},
	},
	{
		ID: DHTFindProvs, Words: []string{"dht", "findprovs"}, Group: "network",
		Summary: "Find peers able to provide a key",
		Params: []Param{
			pos("key", true, "key to find providers for"),
			boolFlag("verbose", "-v", "verbose", "write extra information"),
		},
	},
	{
		ID: DHTFindPeer, Words: []string{"dht", "findpeer"}, Group: "network",
		Summary: "Find a peer through the DHT",
		Params:  []Param{pos("peer_id", false, "peer to search for")},
	},
	{
		ID: Ping, Words: []string{"ping"}, Group: "network",
		Summary: "Measure the latency of a connection",
		Params: []Param{
			pos("peer_id", false, "peer to ping"),
			uintFlag("count", "-n", "count", "number of pings, 0 for the runtime default"),
		},
	},
	{
		ID: DiagNet, Words: []string{"diag", "net"}, Group: "network",
		Summary: "Generate a network diagnostics report",
		Params:  []Param{uintFlag("timeout", "-timeout", "timeout", "diagnostic timeout")},
	},

	// tool
	{
		ID: ConfigGet, Words: []string{"config"}, Group: "tool",
		Summary: "Get a config value",
		Params:  []Param{pos("key", false, "config key, e.g. Addresses.API")},
	},
	{
		ID: ConfigSet, Words: []string{"config"}, Group: "tool",
		Summary: "Set a config value",
		Params: []Param{
			pos("key", false, "config key, e.g. Addresses.API"),
			pos("value", false, "value to set"),
		},
	},
	{
		ID: ConfigShow, Words: []string{"config", "show"}, Group: "tool",
		Summary: "Output the config file",
	},
	{
		ID: ConfigEdit, Words: []string{"config", "edit"}, Group: "tool", Local: true,
		Summary: "Open the config file in $EDITOR",
	},
	{
		ID: ConfigReplace, Words: []string{"config", "replace"}, Group: "tool",
		Summary: "Replace the config with a file",
		Params:  []Param{pos("file", false, "file to use as the new config")},
	},
	{
		ID: Version, Words: []string{"version"}, Group: "tool",
		Summary: "Show version information",
	},
}

// aliases maps naming variants that do not follow the prefix or command-word
// rules to their canonical operation.
var aliases = map[string]ID{
	"id":         NetworkID,
	"config":     ConfigGet,
	"config get": ConfigGet,
	"config set": ConfigSet,
}

var (
	byID   = make(map[ID]int, len(descriptors))
	byName = make(map[string]ID, len(descriptors)*2)
)

func init() {
	for i, d := range descriptors {
		if _, dup := byID[d.ID]; dup {
			panic(fmt.Sprintf("op: duplicate descriptor %q", d.ID))
		}
		byID[d.ID] = i
		byName[string(d.ID)] = d.ID
		// First registration wins for shared command words ("config").
		if _, taken := byName[d.Name()]; !taken {
			byName[d.Name()] = d.ID
		}
	}
	for alias, id := range aliases {
		if _, ok := byID[id]; !ok {
			panic(fmt.Sprintf("op: alias %q targets unknown op %q", alias, id))
		}
		byName[alias] = id
	}
}

// All returns every descriptor in declaration order.
func All() []Descriptor {
	out := make([]Descriptor, len(descriptors))
	copy(out, descriptors)
	return out
}

// Describe returns the descriptor for a canonical ID.
func Describe(id ID) (Descriptor, bool) {
	i, ok := byID[id]
	if !ok {
		return Descriptor{}, false
	}
	return descriptors[i], true
}

// MustDescribe is Describe for IDs known at build time.
func MustDescribe(id ID) Descriptor {
	d, ok := Describe(id)
	if !ok {
		panic(fmt.Sprintf("op: no descriptor for %q", id))
	}
	return d
}

// Lookup resolves a canonical ID, command words, prefixed variant or alias.
func Lookup(name string) (Descriptor, error) {
	key := normalize(name)
	if id, ok := byName[key]; ok {
		return descriptors[byID[id]], nil
	}
	if rest, ok := strings.CutPrefix(key, Prefix); ok {
		if id, ok := byName[rest]; ok {
			return descriptors[byID[id]], nil
		}
	}
	if rest, ok := strings.CutPrefix(key, "ipfs "); ok {
		if id, ok := byName[rest]; ok {
			return descriptors[byID[id]], nil
		}
	}
	return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownOp, name)
}

// Aliases returns every accepted name for id, canonical first.
func Aliases(id ID) []string {
	d, ok := Describe(id)
	if !ok {
		return nil
	}
	names := []string{string(d.ID), Prefix + string(d.ID)}
	if target := byName[d.Name()]; target == id && d.Name() != string(d.ID) {
		names = append(names, d.Name())
	}
	var extra []string
	for alias, target := range aliases {
		if target == id && alias != d.Name() && alias != string(d.ID) {
			extra = append(extra, alias)
		}
	}
	sort.Strings(extra)
	return append(names, extra...)
}

func normalize(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}
