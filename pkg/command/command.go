// Package command encodes typed operation calls into commands for the
// embedded runtime.
//
// A Command keeps its arguments as discrete tokens. Argv returns them as a
// slice and String renders the flat command line, quoting every token that a
// shell-words parser would otherwise split or expand. Encoding is pure: the
// same operation and arguments always produce the same tokens and the same
// line.
//
// Grammar:
//   - positional arguments follow the command words in a fixed order; absent
//     optional positionals are omitted
//   - boolean flags are emitted as "<flag> true|false"
//   - string options are emitted only when set and non-empty
//   - numeric options with a "not specified" sentinel are omitted at the
//     sentinel; options only meaningful under another option are emitted only
//     when that option is active
package command

import (
	"encoding/hex"
	"errors"
	"strings"

	"github.com/zeebo/blake3"
	"mvdan.cc/sh/v3/syntax"

	"github.com/mattjoyce/ipfsbridge/pkg/op"
)

var (
	// ErrMissingArgument is returned when a required argument is empty.
	ErrMissingArgument = errors.New("missing required argument")
	// ErrInvalidArgument is returned when a bound value has the wrong type or
	// names an unknown parameter.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnrepresentable is returned for values the command grammar cannot
	// carry (NUL bytes, invalid UTF-8, positionals that read as flags).
	ErrUnrepresentable = errors.New("argument cannot be represented")
)

// Arg is one encoded argument. Flag is empty for positionals.
type Arg struct {
	Flag  string `json:"flag,omitempty"`
	Value string `json:"value"`
}

// Command is the encoded form of one operation call.
type Command struct {
	Op    op.ID    `json:"op"`
	Words []string `json:"words"`
	Args  []Arg    `json:"args"`
}

// Argv returns the command words followed by every argument token.
func (c Command) Argv() []string {
	argv := make([]string, 0, len(c.Words)+2*len(c.Args))
	argv = append(argv, c.Words...)
	for _, a := range c.Args {
		if a.Flag != "" {
			argv = append(argv, a.Flag)
		}
		argv = append(argv, a.Value)
	}
	return argv
}

// String returns the flat command line. Tokens that need it are quoted so the
// line splits back into exactly Argv.
func (c Command) String() string {
	argv := c.Argv()
	var b strings.Builder
	for i, tok := range argv {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(quote(tok))
	}
	return b.String()
}

// Len returns the byte length of the flat command line.
func (c Command) Len() int {
	return len(c.String())
}

// Fingerprint returns the hex BLAKE3 digest of the flat command line.
func (c Command) Fingerprint() string {
	sum := blake3.Sum256([]byte(c.String()))
	return hex.EncodeToString(sum[:])
}

// Positionals returns the positional argument values in order.
func (c Command) Positionals() []string {
	var out []string
	for _, a := range c.Args {
		if a.Flag == "" {
			out = append(out, a.Value)
		}
	}
	return out
}

// Flag returns the value emitted for flag.
func (c Command) Flag(flag string) (string, bool) {
	for _, a := range c.Args {
		if a.Flag == flag {
			return a.Value, true
		}
	}
	return "", false
}

// Raw wraps an already split command line for pass-through dispatch.
func Raw(argv []string) (Command, error) {
	if len(argv) == 0 {
		return Command{}, errorf(ErrMissingArgument, op.Raw, "argv", "empty command line")
	}
	c := Command{Op: op.Raw, Args: make([]Arg, 0, len(argv))}
	for _, tok := range argv {
		if err := checkValue(tok); err != nil {
			return Command{}, errorf(err, op.Raw, "argv", "")
		}
		c.Args = append(c.Args, Arg{Value: tok})
	}
	return c, nil
}

func quote(tok string) string {
	q, err := syntax.Quote(tok, syntax.LangBash)
	if err != nil {
		// Unreachable for validated tokens.
		return tok
	}
	return q
}
