package command

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/mattjoyce/ipfsbridge/pkg/op"
)

// ArgumentError reports which parameter of which operation was rejected.
type ArgumentError struct {
	Op    op.ID
	Param string
	Msg   string
	Err   error
}

func (e *ArgumentError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Param, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v: %s", e.Op, e.Param, e.Err, e.Msg)
}

func (e *ArgumentError) Unwrap() error { return e.Err }

func errorf(err error, id op.ID, param, msg string) error {
	return &ArgumentError{Op: id, Param: param, Msg: msg, Err: err}
}

// checkValue rejects values that no quoting can carry to the runtime.
func checkValue(v string) error {
	if strings.IndexByte(v, 0) >= 0 {
		return fmt.Errorf("%w: contains NUL byte", ErrUnrepresentable)
	}
	if !utf8.ValidString(v) {
		return fmt.Errorf("%w: invalid UTF-8", ErrUnrepresentable)
	}
	return nil
}

// builder accumulates one command. The first error sticks and later calls
// become no-ops.
type builder struct {
	cmd Command
	err error
}

func newBuilder(id op.ID) *builder {
	d := op.MustDescribe(id)
	words := make([]string, len(d.Words))
	copy(words, d.Words)
	return &builder{cmd: Command{Op: id, Words: words}}
}

func (b *builder) fail(err error, param, msg string) {
	if b.err == nil {
		b.err = errorf(err, b.cmd.Op, param, msg)
	}
}

func (b *builder) positional(param, v string) {
	if b.err != nil {
		return
	}
	if err := checkValue(v); err != nil {
		b.fail(err, param, "")
		return
	}
	if strings.HasPrefix(v, "-") {
		b.fail(ErrUnrepresentable, param, "positional value starts with '-'")
		return
	}
	b.cmd.Args = append(b.cmd.Args, Arg{Value: v})
}

// arg emits a required positional.
func (b *builder) arg(param, v string) {
	if b.err != nil {
		return
	}
	if v == "" {
		b.fail(ErrMissingArgument, param, "")
		return
	}
	b.positional(param, v)
}

// optArg emits an optional positional when set and non-empty.
func (b *builder) optArg(param string, v *string) {
	if v == nil || *v == "" {
		return
	}
	b.positional(param, *v)
}

func (b *builder) flag(param, flag, v string) {
	if b.err != nil {
		return
	}
	if err := checkValue(v); err != nil {
		b.fail(err, param, "")
		return
	}
	b.cmd.Args = append(b.cmd.Args, Arg{Flag: flag, Value: v})
}

func (b *builder) boolFlag(param, flag string, v bool) {
	b.flag(param, flag, strconv.FormatBool(v))
}

// stringFlag emits flag only when v is set and non-empty.
func (b *builder) stringFlag(param, flag string, v *string) {
	if v == nil || *v == "" {
		return
	}
	b.flag(param, flag, *v)
}

func (b *builder) uintFlag(param, flag string, v uint) {
	b.flag(param, flag, strconv.FormatUint(uint64(v), 10))
}

// uintFlagIf emits flag only when cond holds.
func (b *builder) uintFlagIf(param, flag string, v uint, cond bool) {
	if cond {
		b.uintFlag(param, flag, v)
	}
}

func (b *builder) build() (Command, error) {
	if b.err != nil {
		return Command{}, b.err
	}
	return b.cmd, nil
}
