// Package op defines the closed set of operations the bridge can hand to the
// embedded runtime.
//
// Each operation is described once by a Descriptor: its canonical ID, the
// command words the runtime expects ("pin add"), and the parameters the
// encoder may emit. Naming variants ("ipfs_pin_add", "pin add", "id") resolve
// through a single alias table so there is exactly one implementation per
// operation.
package op

import (
	"errors"
	"strings"
)

// APIVersion is the version of the typed call surface.
const APIVersion = "1.0.0"

// Prefix is the naming-variant prefix accepted by Lookup ("ipfs_add").
const Prefix = "ipfs_"

// ErrUnknownOp is returned when a name does not resolve to an operation.
var ErrUnknownOp = errors.New("unknown operation")

// ID is the canonical identifier of an operation, e.g. "pin_add".
type ID string

// Raw identifies a pass-through command line that was not built by a typed
// encoder.
const Raw ID = "raw"

// Kind is the value type of a parameter.
type Kind int

const (
	String Kind = iota
	Bool
	Uint
)

func (k Kind) String() string {
	switch k {
	case Bool:
		return "bool"
	case Uint:
		return "uint"
	default:
		return "string"
	}
}

// MarshalText renders the kind name in JSON and YAML output.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Param describes one argument of an operation.
type Param struct {
	Name       string   `json:"name"`
	Kind       Kind     `json:"kind"`
	Positional bool     `json:"positional,omitempty"`
	Required   bool     `json:"required,omitempty"`
	Flag       string   `json:"flag,omitempty"` // command-line token, e.g. "-r"
	RPC        string   `json:"rpc,omitempty"`  // RPC option name, e.g. "recursive"
	DependsOn  string   `json:"depends_on,omitempty"`
	Enum       []string `json:"enum,omitempty"`
	Help       string   `json:"help,omitempty"`
}

// Descriptor identifies one supported operation.
type Descriptor struct {
	ID      ID       `json:"id"`
	Words   []string `json:"words"`
	Group   string   `json:"group"`
	Summary string   `json:"summary"`
	Params  []Param  `json:"params,omitempty"`

	// Local operations have no RPC equivalent (they act on the local repo or
	// process).
	Local bool `json:"local,omitempty"`
	// Upload operations carry their first positional as a request body when
	// sent over RPC.
	Upload bool `json:"upload,omitempty"`
}

// Name returns the command words joined by a space ("pin add").
func (d Descriptor) Name() string {
	return strings.Join(d.Words, " ")
}

// Param returns the parameter with the given name.
func (d Descriptor) Param(name string) (Param, bool) {
	for _, p := range d.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// FlagParam returns the parameter emitted with the given flag token.
func (d Descriptor) FlagParam(flag string) (Param, bool) {
	for _, p := range d.Params {
		if !p.Positional && p.Flag == flag {
			return p, true
		}
	}
	return Param{}, false
}

// Positionals returns the positional parameters in emission order.
func (d Descriptor) Positionals() []Param {
	var out []Param
	for _, p := range d.Params {
		if p.Positional {
			out = append(out, p)
		}
	}
	return out
}
