package runtime

import "bytes"

// DefaultMaxOutput caps each captured stream.
const DefaultMaxOutput = 64 * 1024

// capture is an io.Writer that keeps at most limit bytes and discards the
// rest, so a chatty runtime cannot block on a full pipe.
type capture struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func newCapture(limit int) *capture {
	if limit <= 0 {
		limit = DefaultMaxOutput
	}
	return &capture{limit: limit}
}

func (c *capture) Write(p []byte) (int, error) {
	room := c.limit - c.buf.Len()
	if room <= 0 {
		c.truncated = len(p) > 0 || c.truncated
		return len(p), nil
	}
	if len(p) > room {
		c.buf.Write(p[:room])
		c.truncated = true
		return len(p), nil
	}
	c.buf.Write(p)
	return len(p), nil
}

func (c *capture) String() string { return c.buf.String() }

func collect(res *Result, stdout, stderr *capture) {
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	res.Truncated = stdout.truncated || stderr.truncated
}
