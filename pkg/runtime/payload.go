package runtime

import (
	"github.com/mattjoyce/ipfsbridge/pkg/command"
	"github.com/mattjoyce/ipfsbridge/pkg/op"
)

// Payload is what crosses the boundary: the encoded command both as discrete
// tokens and as a flat line, with the exact byte length of the line.
// It is only valid for the duration of one Execute call.
type Payload struct {
	Op    op.ID
	Words []string
	Args  []command.Arg
	Argv  []string
	Line  string
	Len   int
}

// NewPayload builds the payload for c.
func NewPayload(c command.Command) Payload {
	line := c.String()
	return Payload{
		Op:    c.Op,
		Words: c.Words,
		Args:  c.Args,
		Argv:  c.Argv(),
		Line:  line,
		Len:   len(line),
	}
}
