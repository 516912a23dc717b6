package sandbox

import "bytes"

// DefaultMaxOutputBytes caps each captured stream when Limits leaves it unset.
const DefaultMaxOutputBytes = 1 << 20

const truncationMarker = "\n... [output truncated]\n"

// cappedBuffer keeps at most limit bytes and silently discards the rest, so a
// runaway print loop cannot exhaust the parent's memory.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	if room := c.limit - c.buf.Len(); room > 0 {
		if len(p) <= room {
			c.buf.Write(p)
			return len(p), nil
		}
		c.buf.Write(p[:room])
	}
	c.truncated = true
	return len(p), nil
}

func (c *cappedBuffer) String() string {
	if c.truncated {
		return c.buf.String() + truncationMarker
	}
	return c.buf.String()
}
