package command

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/mattjoyce/ipfsbridge/pkg/op"
)

// Values holds loosely typed parameter values keyed by parameter name, as
// decoded from a JSON object or "key=value" pairs.
type Values map[string]any

// ParsePairs builds Values from "key=value" arguments.
func ParsePairs(pairs []string) (Values, error) {
	v := make(Values, len(pairs))
	for _, p := range pairs {
		key, val, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: expected key=value, got %q", ErrInvalidArgument, p)
		}
		v[key] = val
	}
	return v, nil
}

// Encode binds values to the typed encoder of id. Unknown parameter names and
// values of the wrong type are rejected with ErrInvalidArgument.
func Encode(id op.ID, values Values) (Command, error) {
	d, ok := op.Describe(id)
	if !ok {
		return Command{}, fmt.Errorf("%w: %q", op.ErrUnknownOp, id)
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, ok := d.Param(k); !ok {
			return Command{}, errorf(ErrInvalidArgument, id, k, "unknown parameter")
		}
	}

	bd := &binder{id: id, values: values}
	var (
		c   Command
		err error
	)
	switch id {
	case op.Init:
		c, err = Init(bd.uint("bits"), bd.optString("passphrase"), bd.bool("force"))
	case op.Add:
		c, err = Add(bd.string("path"), bd.bool("recursive"), bd.bool("quiet"), bd.bool("progress"),
			bd.bool("wrap_with_directory"), bd.bool("trickle"))
	case op.Cat:
		c, err = Cat(bd.string("path"))
	case op.Get:
		c, err = Get(bd.string("path"), bd.optString("output"), bd.bool("archive"), bd.bool("compress"),
			bd.uint("compression_level"))
	case op.Ls:
		c, err = Ls(bd.string("path"))
	case op.Refs:
		c, err = Refs(bd.string("path"), bd.optString("format"), bd.bool("edges"), bd.bool("unique"),
			bd.bool("recursive"))
	case op.RefsLocal:
		c, err = RefsLocal()
	case op.BlockPut:
		c, err = BlockPut(bd.string("data"))
	case op.BlockStat:
		c, err = BlockStat(bd.string("key"))
	case op.BlockGet:
		c, err = BlockGet(bd.string("key"))
	case op.ObjectData:
		c, err = ObjectData(bd.string("key"))
	case op.ObjectLinks:
		c, err = ObjectLinks(bd.string("key"))
	case op.ObjectGet:
		c, err = ObjectGet(bd.string("key"))
	case op.ObjectPut:
		c, err = ObjectPut(bd.string("data"))
	case op.ObjectStat:
		c, err = ObjectStat(bd.string("key"))
	case op.Daemon:
		c, err = Daemon(bd.bool("init"), bd.optString("routing"), bd.bool("mount"), bd.bool("writable"),
			bd.optString("mount_ipfs"), bd.optString("mount_ipns"))
	case op.Mount:
		c, err = Mount(bd.optString("f"), bd.optString("n"))
	case op.NamePublish:
		c, err = NamePublish(bd.string("name"), bd.string("path"))
	case op.NameResolve:
		c, err = NameResolve(bd.optString("name"))
	case op.PinRm:
		c, err = PinRm(bd.string("path"), bd.bool("recursive"))
	case op.PinLs:
		c, err = PinLs(bd.optString("type"))
	case op.PinAdd:
		c, err = PinAdd(bd.string("path"), bd.bool("recursive"))
	case op.RepoGC:
		c, err = RepoGC(bd.bool("quiet"))
	case op.NetworkID:
		c, err = NetworkID(bd.optString("peer_id"))
	case op.BootstrapList:
		c, err = BootstrapList()
	case op.BootstrapAdd:
		c, err = BootstrapAdd(bd.optString("peer"), bd.bool("default_nodes"))
	case op.BootstrapRm:
		c, err = BootstrapRm(bd.optString("peer"), bd.bool("all"))
	case op.SwarmPeers:
		c, err = SwarmPeers()
	case op.SwarmAddrs:
		c, err = SwarmAddrs()
	case op.SwarmConnect:
		c, err = SwarmConnect(bd.optString("address"))
	case op.SwarmDisconn:
		c, err = SwarmDisconnect(bd.optString("address"))
	case op.DHTQuery:
		c, err = DHTQuery(bd.string("peer_id"), bd.bool("verbose"))
	case op.DHTFindProvs:
		c, err = DHTFindProvs(bd.string("key"), bd.bool("verbose"))
	case op.DHTFindPeer:
		c, err = DHTFindPeer(bd.optString("peer_id"))
	case op.Ping:
		c, err = Ping(bd.optString("peer_id"), bd.uint("count"))
	case op.DiagNet:
		c, err = DiagNet(bd.uint("timeout"))
	case op.ConfigGet:
		c, err = ConfigGet(bd.optString("key"))
	case op.ConfigSet:
		c, err = ConfigSet(bd.optString("key"), bd.optString("value"))
	case op.ConfigShow:
		c, err = ConfigShow()
	case op.ConfigEdit:
		c, err = ConfigEdit()
	case op.ConfigReplace:
		c, err = ConfigReplace(bd.optString("file"))
	case op.Version:
		c, err = Version()
	default:
		return Command{}, fmt.Errorf("%w: %q has no encoder", op.ErrUnknownOp, id)
	}
	if bd.err != nil {
		return Command{}, bd.err
	}
	return c, err
}

// binder extracts typed values. The first conversion error sticks.
type binder struct {
	id     op.ID
	values Values
	err    error
}

func (bd *binder) fail(param, msg string) {
	if bd.err == nil {
		bd.err = errorf(ErrInvalidArgument, bd.id, param, msg)
	}
}

func (bd *binder) string(name string) string {
	if s := bd.optString(name); s != nil {
		return *s
	}
	return ""
}

func (bd *binder) optString(name string) *string {
	raw, ok := bd.values[name]
	if !ok || raw == nil {
		return nil
	}
	switch v := raw.(type) {
	case string:
		return &v
	case json.Number:
		s := v.String()
		return &s
	default:
		bd.fail(name, fmt.Sprintf("expected string, got %T", raw))
		return nil
	}
}

func (bd *binder) bool(name string) bool {
	raw, ok := bd.values[name]
	if !ok || raw == nil {
		return false
	}
	switch v := raw.(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			bd.fail(name, fmt.Sprintf("expected bool, got %q", v))
		}
		return b
	default:
		bd.fail(name, fmt.Sprintf("expected bool, got %T", raw))
		return false
	}
}

func (bd *binder) uint(name string) uint {
	raw, ok := bd.values[name]
	if !ok || raw == nil {
		return 0
	}
	switch v := raw.(type) {
	case uint:
		return v
	case uint64:
		return uint(v)
	case int:
		if v < 0 {
			bd.fail(name, "must not be negative")
			return 0
		}
		return uint(v)
	case int64:
		if v < 0 {
			bd.fail(name, "must not be negative")
			return 0
		}
		return uint(v)
	case float64:
		if v < 0 || v != math.Trunc(v) || v > math.MaxUint32 {
			bd.fail(name, fmt.Sprintf("expected unsigned integer, got %v", v))
			return 0
		}
		return uint(v)
	case json.Number:
		return bd.parseUint(name, v.String())
	case string:
		return bd.parseUint(name, v)
	default:
		bd.fail(name, fmt.Sprintf("expected unsigned integer, got %T", raw))
		return 0
	}
}

func (bd *binder) parseUint(name, s string) uint {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		bd.fail(name, fmt.Sprintf("expected unsigned integer, got %q", s))
		return 0
	}
	return uint(n)
}
